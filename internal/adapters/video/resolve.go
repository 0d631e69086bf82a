package video

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/avatarcast/pkg/logger"
	"github.com/okian/avatarcast/pkg/metrics"
)

// Resolve polls p every interval, at most maxAttempts times.
//
// A succeeded status returns its URL and a failed status returns
// *FailureError, both immediately. Transport errors and malformed statuses
// count as processing and still consume an attempt. When the budget runs
// out Resolve returns ErrTimeout. Cancelling ctx stops polling; the
// provider-side job is left alone.
func Resolve(ctx context.Context, p Poller, provider, jobID string, interval time.Duration, maxAttempts int, log logger.Logger) (string, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if log == nil {
		log = logger.Nop()
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		res, err := p.Poll(ctx, jobID)
		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.RecordPollAttempts(provider, "canceled", attempt)
			return "", fmt.Errorf("resolve %s job %s: %w", provider, jobID, ctxErr)
		}

		switch {
		case err != nil:
			log.Debug(ctx, "poll failed, treating as processing",
				logger.String("provider", provider),
				logger.String("job_id", jobID),
				logger.Int("attempt", attempt),
				logger.Error(err))
		case res.Status == StatusSucceeded && res.VideoURL != "":
			metrics.RecordPollAttempts(provider, "succeeded", attempt)
			return res.VideoURL, nil
		case res.Status == StatusFailed:
			metrics.RecordPollAttempts(provider, "failed", attempt)
			return "", &FailureError{Provider: provider, JobID: jobID, Detail: res.Detail}
		case res.Status == StatusQueued || res.Status == StatusProcessing:
		default:
			log.Debug(ctx, "malformed status, treating as processing",
				logger.String("provider", provider),
				logger.String("job_id", jobID),
				logger.String("status", string(res.Status)))
		}

		if attempt >= maxAttempts {
			metrics.RecordPollAttempts(provider, "timeout", attempt)
			return "", fmt.Errorf("%s job %s after %d polls: %w", provider, jobID, attempt, ErrTimeout)
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			metrics.RecordPollAttempts(provider, "canceled", attempt)
			return "", fmt.Errorf("resolve %s job %s: %w", provider, jobID, ctx.Err())
		case <-timer.C:
		}
	}
}

// IsTimeout reports whether err is a resolve budget exhaustion.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }
