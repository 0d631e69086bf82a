package speech

import (
	"errors"
	"fmt"
)

// Sentinel kinds for synthesis errors.
var (
	ErrNotConfigured       = errors.New("speech provider not configured")
	ErrEmptyText           = errors.New("nothing to synthesize")
	ErrEmptyAudio          = errors.New("provider returned empty audio")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrProviderStatus      = errors.New("unexpected provider status")
)

// SynthesisError is returned when both the primary and the secondary
// synthesizer fail. It carries the primary's reason.
type SynthesisError struct {
	Primary   string
	Reason    error
	Secondary string
	SecondErr error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("speech synthesis failed: %v", e.Reason)
}

func (e *SynthesisError) Unwrap() error { return e.Reason }
