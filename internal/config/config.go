// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New() builds a Config holding every default.
//   - Load(ctx) layers .env, an optional YAML file and AVATARCAST_ env vars on top.
//   - Validate reports the first invalid field wrapped in ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// RedisAddr is shared by the redis pool and queue backends.
	RedisAddr string `koanf:"redis_addr"`

	// QueueBackend is "memory" or "redis".
	QueueBackend string `koanf:"queue_backend"`

	// QueueKey names the redis list used by the redis queue backend.
	QueueKey string `koanf:"queue_key"`

	// QueueSize bounds the generation request queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of concurrent generation workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the request_id idempotency cache.
	DedupeSize int `koanf:"dedupe_size"`

	Avatars   AvatarsConfig   `koanf:"avatars"`
	Scoring   ScoringConfig   `koanf:"scoring"`
	Synthesis SynthesisConfig `koanf:"synthesis"`
	Video     VideoConfig     `koanf:"video"`
	Media     MediaConfig     `koanf:"media"`
	Database  DatabaseConfig  `koanf:"database"`
	Notify    NotifyConfig    `koanf:"notify"`
}

// AvatarsConfig configures the avatar pool.
type AvatarsConfig struct {
	// Dir holds available avatar images; UsedDir receives consumed ones.
	Dir     string `koanf:"dir"`
	UsedDir string `koanf:"used_dir"`

	// PublicBaseURL is where video providers fetch images from Dir.
	PublicBaseURL string `koanf:"public_base_url"`

	// Backend is "memory" or "redis".
	Backend     string `koanf:"backend"`
	RedisPrefix string `koanf:"redis_prefix"`

	// SyncSchedule is a cron spec for rescanning Dir; empty disables it.
	SyncSchedule string `koanf:"sync_schedule"`

	// ReservationTTLSec bounds how long a redis reservation may live before
	// a pool sync returns it to the available set. Zero disables it.
	ReservationTTLSec int `koanf:"reservation_ttl_sec"`

	// UseScoring selects the scoring engine; false claims uniformly at random.
	UseScoring bool `koanf:"use_scoring"`
}

// ScoringConfig tunes the avatar scoring engine.
type ScoringConfig struct {
	NeutralPrior       float64 `koanf:"neutral_prior"`
	SemanticSaturation int     `koanf:"semantic_saturation"`
}

// SynthesisConfig selects and configures speech providers.
type SynthesisConfig struct {
	Primary         string `koanf:"primary"`
	Secondary       string `koanf:"secondary"`
	TimeoutMS       int    `koanf:"timeout_ms"`
	DefaultLanguage string `koanf:"default_language"`

	ElevenLabs ElevenLabsConfig `koanf:"elevenlabs"`
	OpenAI     OpenAIConfig     `koanf:"openai"`
}

// ElevenLabsConfig holds ElevenLabs credentials and voice settings.
type ElevenLabsConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	VoiceID string `koanf:"voice_id"`
	ModelID string `koanf:"model_id"`
}

// OpenAIConfig holds OpenAI text-to-speech settings.
type OpenAIConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	Voice   string `koanf:"voice"`
}

// VideoConfig configures the video provider chain.
type VideoConfig struct {
	// Priority lists provider names, most preferred first.
	Priority        []string `koanf:"priority"`
	PollIntervalMS  int      `koanf:"poll_interval_ms"`
	MaxPollAttempts int      `koanf:"max_poll_attempts"`

	HeyGen    ProviderConfig `koanf:"heygen"`
	DID       ProviderConfig `koanf:"did"`
	Replicate ProviderConfig `koanf:"replicate"`
}

// ProviderConfig holds per-provider credentials and overrides.
type ProviderConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	// Version pins a model version (Replicate) or avatar style (HeyGen).
	Version string `koanf:"version"`
	// MaxPollAttempts overrides VideoConfig.MaxPollAttempts when > 0.
	MaxPollAttempts int `koanf:"max_poll_attempts"`
	// NativeVoices maps a voice ID or language code to the provider's own
	// voice for native speech.
	NativeVoices map[string]string `koanf:"native_voices"`
}

// MediaConfig configures where synthesized audio is stored and served.
type MediaConfig struct {
	Dir           string `koanf:"dir"`
	PublicBaseURL string `koanf:"public_base_url"`
}

// DatabaseConfig configures generation record persistence.
type DatabaseConfig struct {
	// DSN is a PostgreSQL connection string; empty disables persistence.
	DSN string `koanf:"dsn"`
}

// NotifyConfig configures the "video ready" webhook.
type NotifyConfig struct {
	WebhookURL string `koanf:"webhook_url"`
	TimeoutMS  int    `koanf:"timeout_ms"`
}

// New creates a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:     "info",
		LogFormat:    "text",
		Addr:         ":9080",
		RedisAddr:    "localhost:6379",
		QueueBackend: "memory",
		QueueKey:     "avatarcast:requests",
		QueueSize:    100,
		WorkerCount:  1,
		DedupeSize:   10_000,
		Avatars: AvatarsConfig{
			Dir:               "data/avatars/available",
			UsedDir:           "data/avatars/used",
			PublicBaseURL:     "http://localhost:9080/avatars/files",
			Backend:           "memory",
			RedisPrefix:       "avatarcast:pool",
			SyncSchedule:      "@every 5m",
			ReservationTTLSec: 1800,
			UseScoring:        true,
		},
		Scoring: ScoringConfig{
			NeutralPrior:       50,
			SemanticSaturation: 3,
		},
		Synthesis: SynthesisConfig{
			Primary:         "elevenlabs",
			Secondary:       "native",
			TimeoutMS:       30_000,
			DefaultLanguage: "es",
			ElevenLabs: ElevenLabsConfig{
				BaseURL: "https://api.elevenlabs.io",
				VoiceID: "21m00Tcm4TlvDq8ikWAM",
				ModelID: "eleven_multilingual_v2",
			},
			OpenAI: OpenAIConfig{
				Model: "tts-1",
				Voice: "alloy",
			},
		},
		Video: VideoConfig{
			Priority:        []string{"heygen", "did", "replicate"},
			PollIntervalMS:  5_000,
			MaxPollAttempts: 60,
			HeyGen:          ProviderConfig{BaseURL: "https://api.heygen.com"},
			DID:             ProviderConfig{BaseURL: "https://api.d-id.com"},
			Replicate: ProviderConfig{
				BaseURL:         "https://api.replicate.com",
				MaxPollAttempts: 72,
			},
		},
		Media: MediaConfig{
			Dir:           "data/media",
			PublicBaseURL: "http://localhost:9080/media",
		},
		Notify: NotifyConfig{
			TimeoutMS: 5_000,
		},
	}
}

// SynthesisTimeout returns the per-call synthesis timeout.
func (c *Config) SynthesisTimeout() time.Duration {
	return time.Duration(c.Synthesis.TimeoutMS) * time.Millisecond
}

// ReservationTTL is how long a redis pool reservation may stay claimed.
func (c *Config) ReservationTTL() time.Duration {
	return time.Duration(c.Avatars.ReservationTTLSec) * time.Second
}

// PollInterval returns the video poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Video.PollIntervalMS) * time.Millisecond
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.Avatars.ReservationTTLSec < 0:
		return fmt.Errorf("%w: avatars.reservation_ttl_sec must not be negative", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.Video.PollIntervalMS <= 0:
		return fmt.Errorf("%w: video.poll_interval_ms must be positive", ErrInvalidConfig)
	case c.Video.MaxPollAttempts <= 0:
		return fmt.Errorf("%w: video.max_poll_attempts must be positive", ErrInvalidConfig)
	case c.Synthesis.TimeoutMS <= 0:
		return fmt.Errorf("%w: synthesis.timeout_ms must be positive", ErrInvalidConfig)
	case len(c.Video.Priority) == 0:
		return fmt.Errorf("%w: video.priority must list at least one provider", ErrInvalidConfig)
	}
	for field, backend := range map[string]string{"avatars.backend": c.Avatars.Backend, "queue_backend": c.QueueBackend} {
		switch backend {
		case "memory", "redis":
		default:
			return fmt.Errorf("%w: %s %q", ErrInvalidConfig, field, backend)
		}
	}
	if c.Scoring.NeutralPrior < 0 || c.Scoring.NeutralPrior > 100 {
		return fmt.Errorf("%w: scoring.neutral_prior must be within [0,100]", ErrInvalidConfig)
	}
	return nil
}
