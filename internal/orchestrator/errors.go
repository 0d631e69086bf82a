package orchestrator

import (
	"fmt"

	"github.com/okian/avatarcast/internal/domain/model"
)

// GenerationError is the structured failure returned by Generate.
type GenerationError struct {
	Reason model.FailureReason
	Err    error
	// Job is the terminal snapshot; nil for the sentinel values below.
	Job *model.GenerationJob
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("generation failed: %s", e.Reason)
	}
	return fmt.Sprintf("generation failed: %s: %v", e.Reason, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Is matches any GenerationError with the same reason, so callers can use
// errors.Is(err, ErrPoolExhausted).
func (e *GenerationError) Is(target error) bool {
	t, ok := target.(*GenerationError)
	return ok && t.Reason == e.Reason
}

// Sentinel reasons for errors.Is.
var (
	ErrPoolExhausted   = &GenerationError{Reason: model.ReasonPoolExhausted}
	ErrNoCandidates    = &GenerationError{Reason: model.ReasonNoCandidates}
	ErrInvalidRequest  = &GenerationError{Reason: model.ReasonInvalidRequest}
	ErrSynthesisFailed = &GenerationError{Reason: model.ReasonSynthesisFailed}
	ErrNoProvider      = &GenerationError{Reason: model.ReasonNoProvider}
	ErrProviderFailed  = &GenerationError{Reason: model.ReasonProviderFailed}
	ErrTimeout         = &GenerationError{Reason: model.ReasonTimeout}
	ErrCanceled        = &GenerationError{Reason: model.ReasonCanceled}
	ErrFinalizeFailed  = &GenerationError{Reason: model.ReasonFinalizeFailed}
)

func fail(reason model.FailureReason, err error) *GenerationError {
	return &GenerationError{Reason: reason, Err: err}
}
