// Package notify announces finished videos to downstream systems.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/avatarcast/internal/domain/model"
	"github.com/okian/avatarcast/pkg/logger"
	"github.com/okian/avatarcast/pkg/metrics"
)

// EventVideoReady is the event name carried by every webhook.
const EventVideoReady = "video.ready"

const (
	defaultTimeout = 10 * time.Second
	source         = "avatarcast"
)

// ErrWebhookStatus is returned when the receiver answers with a non-2xx code.
var ErrWebhookStatus = errors.New("webhook rejected notification")

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Event     string     `json:"event"`
	Timestamp time.Time  `json:"timestamp"`
	Source    string     `json:"source"`
	Data      VideoReady `json:"data"`
}

// VideoReady describes the finished job.
type VideoReady struct {
	JobID         string  `json:"job_id"`
	VideoURL      string  `json:"video_url"`
	Provider      string  `json:"provider"`
	ExternalJobID string  `json:"external_job_id"`
	AvatarID      string  `json:"avatar_id,omitempty"`
	AvatarScore   float64 `json:"avatar_score"`
	Tone          string  `json:"tone,omitempty"`
	Language      string  `json:"language,omitempty"`
}

// Option configures a Webhook.
type Option func(*Webhook)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(w *Webhook) {
		if c != nil {
			w.client = c
		}
	}
}

// WithTimeout bounds one delivery.
func WithTimeout(d time.Duration) Option {
	return func(w *Webhook) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Webhook) {
		if l != nil {
			w.log = l
		}
	}
}

// WithClock sets the time source for payload timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Webhook) {
		if now != nil {
			w.now = now
		}
	}
}

// Webhook posts a JSON "video.ready" event to a fixed URL.
type Webhook struct {
	url     string
	client  *http.Client
	timeout time.Duration
	log     logger.Logger
	now     func() time.Time
}

// NewWebhook creates a webhook notifier for url.
func NewWebhook(url string, opts ...Option) *Webhook {
	w := &Webhook{
		url:     url,
		client:  http.DefaultClient,
		timeout: defaultTimeout,
		log:     logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.Named("notify")
	return w
}

// VideoReady delivers the event once. Retries are left to the receiver.
func (w *Webhook) VideoReady(ctx context.Context, job model.GenerationJob) error {
	body, err := json.Marshal(w.payload(job))
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Avatarcast-Event", EventVideoReady)

	resp, err := w.client.Do(req)
	if err != nil {
		metrics.RecordErrorByComponent("notify", "transport")
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordErrorByComponent("notify", "status")
		return fmt.Errorf("%w: status %d", ErrWebhookStatus, resp.StatusCode)
	}
	w.log.Debug(ctx, "video ready delivered", logger.String("job_id", job.ID))
	return nil
}

func (w *Webhook) payload(job model.GenerationJob) Payload {
	data := VideoReady{
		JobID:         job.ID,
		VideoURL:      job.VideoURL,
		Provider:      job.Provider,
		ExternalJobID: job.ExternalJobID,
		AvatarScore:   job.AvatarScore,
		Tone:          string(job.Tone),
		Language:      job.Language,
	}
	if job.Avatar != nil {
		data.AvatarID = job.Avatar.ID
	}
	return Payload{Event: EventVideoReady, Timestamp: w.now().UTC(), Source: source, Data: data}
}

// Log writes the event to the log instead of calling out.
type Log struct {
	log logger.Logger
}

// NewLog creates a log-only notifier.
func NewLog(l logger.Logger) *Log {
	if l == nil {
		l = logger.Nop()
	}
	return &Log{log: l.Named("notify")}
}

// VideoReady implements the notifier contract.
func (n *Log) VideoReady(ctx context.Context, job model.GenerationJob) error {
	n.log.Info(ctx, "video ready",
		logger.String("job_id", job.ID),
		logger.String("provider", job.Provider),
		logger.String("video_url", job.VideoURL))
	return nil
}
