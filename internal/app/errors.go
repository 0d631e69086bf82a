package service

import "github.com/okian/avatarcast/internal/adapters/http/api"

// Sentinel kinds for service errors. Each is classified by an API kind so
// the HTTP layer can map it to a status.
var (
	ErrNotStarted     = api.NewSentinel("service not started", api.ErrUnavailable)
	ErrInvalidRequest = api.NewSentinel("invalid generation request", api.ErrBadRequest)
	ErrQueueFull      = api.NewSentinel("generation queue is full", api.ErrBackpressure)
	ErrJobNotFound    = api.NewSentinel("generation job not found", api.ErrNotFound)
	ErrAvatarNotFound = api.NewSentinel("avatar not found", api.ErrNotFound)
	ErrNotRecyclable  = api.NewSentinel("avatar is not used", api.ErrConflict)
)
