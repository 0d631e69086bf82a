package repository

import "errors"

// Sentinel kinds for generation record errors.
var (
	ErrNotFound     = errors.New("generation not found")
	ErrInvalidLimit = errors.New("invalid list limit")
	ErrInvalidJob   = errors.New("generation job has no id")
)
