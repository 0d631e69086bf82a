package storage

import "errors"

// Sentinel kinds for storage errors.
var (
	ErrNotLocal     = errors.New("avatar is not a local file")
	ErrInvalidName  = errors.New("invalid media name")
	ErrEmptyPayload = errors.New("empty media payload")
)
