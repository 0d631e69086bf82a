// Package speech turns script text into audio references. A primary
// provider produces an audio file; the secondary falls back to the video
// provider's own text-to-speech.
package speech

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/avatarcast/internal/domain/model"
	"github.com/okian/avatarcast/pkg/logger"
	"github.com/okian/avatarcast/pkg/metrics"
)

const defaultTimeout = 30 * time.Second

// Request is one synthesis call.
type Request struct {
	// JobID names the stored audio file.
	JobID     string
	Text      string
	VoiceHint string
	Language  string
}

// Synthesizer produces an AudioRef for a request.
type Synthesizer interface {
	Name() string
	// Configured reports whether credentials are present.
	Configured() bool
	Synthesize(ctx context.Context, req Request) (model.AudioRef, error)
}

// Option applies a configuration option to the Fallback.
type Option func(*Fallback)

// WithTimeout bounds every provider call.
func WithTimeout(d time.Duration) Option {
	return func(f *Fallback) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Fallback) {
		if l != nil {
			f.log = l
		}
	}
}

// Fallback tries the primary synthesizer once and falls back to the
// secondary on any failure or missing credentials. There are no retries.
type Fallback struct {
	primary   Synthesizer
	secondary Synthesizer
	timeout   time.Duration
	log       logger.Logger
}

var _ Synthesizer = (*Fallback)(nil)

// NewFallback creates a fallback chain. Either side may be nil.
func NewFallback(primary, secondary Synthesizer, opts ...Option) *Fallback {
	f := &Fallback{
		primary:   primary,
		secondary: secondary,
		timeout:   defaultTimeout,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.Named("speech")
	return f
}

// Name implements Synthesizer.
func (f *Fallback) Name() string { return "fallback" }

// Configured implements Synthesizer.
func (f *Fallback) Configured() bool {
	return configured(f.primary) || configured(f.secondary)
}

// Synthesize implements Synthesizer.
func (f *Fallback) Synthesize(ctx context.Context, req Request) (model.AudioRef, error) {
	if req.Text == "" {
		return model.AudioRef{}, ErrEmptyText
	}

	primaryName := name(f.primary)
	ref, primaryErr := f.attempt(ctx, f.primary, req)
	if primaryErr == nil {
		return ref, nil
	}
	f.log.Warn(ctx, "primary synthesizer failed",
		logger.String("provider", primaryName),
		logger.Error(primaryErr))

	if err := ctx.Err(); err != nil {
		return model.AudioRef{}, &SynthesisError{Primary: primaryName, Reason: primaryErr, SecondErr: err}
	}

	ref, secondErr := f.attempt(ctx, f.secondary, req)
	if secondErr == nil {
		return ref, nil
	}
	f.log.Error(ctx, "secondary synthesizer failed",
		logger.String("provider", name(f.secondary)),
		logger.Error(secondErr))
	return model.AudioRef{}, &SynthesisError{
		Primary:   primaryName,
		Reason:    primaryErr,
		Secondary: name(f.secondary),
		SecondErr: secondErr,
	}
}

func (f *Fallback) attempt(ctx context.Context, s Synthesizer, req Request) (model.AudioRef, error) {
	if !configured(s) {
		return model.AudioRef{}, fmt.Errorf("%s: %w", name(s), ErrNotConfigured)
	}
	cctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	ref, err := s.Synthesize(cctx, req)
	latency := float64(time.Since(start).Milliseconds())
	if err == nil && ref.URL == "" && !ref.Native {
		err = ErrEmptyAudio
	}
	if err != nil {
		result := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			result = "timeout"
		}
		metrics.RecordSynthesis(s.Name(), result, latency)
		return model.AudioRef{}, fmt.Errorf("%s: %w", s.Name(), err)
	}
	metrics.RecordSynthesis(s.Name(), "success", latency)
	return ref, nil
}

func configured(s Synthesizer) bool { return s != nil && s.Configured() }

func name(s Synthesizer) string {
	if s == nil {
		return "none"
	}
	return s.Name()
}
