// Package video submits talking-avatar jobs to external providers and
// resolves them to a final video URL.
package video

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/avatarcast/internal/domain/model"
	"github.com/okian/avatarcast/pkg/logger"
)

// Status is the normalized provider job status.
type Status string

// Provider job statuses.
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Defaults of the resolve loop.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxAttempts  = 60
)

// SubmitRequest is everything a provider needs to render one video.
type SubmitRequest struct {
	JobID      string
	ImageURL   string
	Audio      model.AudioRef
	PromptHint string
}

// PollResult is one status observation.
type PollResult struct {
	Status   Status
	VideoURL string
	Detail   string
}

// Poller reads the status of a provider job.
type Poller interface {
	Poll(ctx context.Context, jobID string) (PollResult, error)
}

// Provider is a talking-avatar video service.
type Provider interface {
	Poller
	Name() string
	// Configured reports whether credentials are present.
	Configured() bool
	// Submit starts a job and returns the provider's job ID. Rejections are
	// *SubmitError.
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	// Resolve polls until the job finishes, fails or the budget runs out.
	Resolve(ctx context.Context, jobID string) (string, error)
}

// Config is shared by every adapter.
type Config struct {
	APIKey  string
	BaseURL string
	// Version pins a model version or avatar style.
	Version      string
	PollInterval time.Duration
	MaxAttempts  int
	// NativeVoices maps a requested voice ID or language code to the
	// provider's own voice ID for native speech.
	NativeVoices map[string]string
	HTTPClient   *http.Client
	Logger       logger.Logger
}

// nativeVoice resolves the provider voice for a native audio ref, trying the
// voice ID first and then the language.
func (c Config) nativeVoice(a model.AudioRef) (string, bool) {
	for _, k := range []string{a.Voice, a.Language} {
		if k == "" {
			continue
		}
		if v, ok := c.NativeVoices[k]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	return c
}
