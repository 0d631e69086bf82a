package queue

import (
	"time"

	"github.com/okian/avatarcast/pkg/logger"
)

// Option applies a configuration option to a queue.
type Option func(*options)

type options struct {
	capacity   int
	bufferSize int
	block      time.Duration
	log        logger.Logger
}

func defaultOptions() options {
	return options{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
		block:      defaultBlockTimeout,
		log:        logger.Nop(),
	}
}

// WithCapacity sets the maximum capacity of the queue.
func WithCapacity(capacity int) Option {
	return func(o *options) {
		if capacity > 0 {
			o.capacity = capacity
		}
	}
}

// WithBufferSize sets the buffer size for the in-memory channel.
func WithBufferSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.bufferSize = size
		}
	}
}

// WithBlockTimeout sets how long a redis BRPOP waits before re-checking
// for shutdown.
func WithBlockTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.block = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}
