package pool

import "errors"

// Sentinel kinds for pool errors.
var (
	ErrPoolExhausted = errors.New("avatar pool exhausted")
	ErrNotFound      = errors.New("avatar not found")
	ErrNotAvailable  = errors.New("avatar not available")
	ErrNotReserved   = errors.New("avatar not reserved")
	ErrNotUsed       = errors.New("avatar not used")
	ErrAlreadyUsed   = errors.New("avatar already used")
	ErrInvalidAvatar = errors.New("invalid avatar candidate")
)
