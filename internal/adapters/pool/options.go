package pool

import (
	"math/rand"
	"time"
)

type options struct {
	rng *rand.Rand
	now func() time.Time
}

func defaultOptions() options {
	return options{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // selection is not security sensitive
		now: time.Now,
	}
}

// Option applies a configuration option to a pool implementation.
type Option func(*options)

// WithRand sets the random source used by PickRandomAvailable and ClaimRandom.
func WithRand(r *rand.Rand) Option {
	return func(o *options) {
		if r != nil {
			o.rng = r
		}
	}
}

// WithClock sets the clock used to stamp LastUsedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
