package video

import (
	"errors"
	"fmt"
)

// Sentinel kinds for video provider errors.
var (
	ErrTimeout                = errors.New("video generation timed out")
	ErrNotConfigured          = errors.New("video provider not configured")
	ErrMalformedStatus        = errors.New("malformed provider status")
	ErrProviderStatus         = errors.New("unexpected provider status")
	ErrNativeAudioUnsupported = errors.New("provider needs an audio file")
	ErrNativeVoiceUnmapped    = errors.New("no provider voice mapped for native speech")
	ErrMissingImage           = errors.New("image url is required")
	ErrUnknownProvider        = errors.New("unknown video provider")
)

// SubmitError reports a rejected submission. The orchestrator moves on to
// the next provider.
type SubmitError struct {
	Provider string
	Err      error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("%s submit: %v", e.Provider, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// FailureError is a terminal "failed" status reported by the provider.
type FailureError struct {
	Provider string
	JobID    string
	Detail   string
}

func (e *FailureError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s job %s failed", e.Provider, e.JobID)
	}
	return fmt.Sprintf("%s job %s failed: %s", e.Provider, e.JobID, e.Detail)
}
