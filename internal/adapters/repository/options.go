package repository

import (
	"time"

	"github.com/okian/avatarcast/pkg/logger"
)

// Option applies a configuration option to the GormStore.
type Option func(*GormStore)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *GormStore) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTimeout bounds every database call.
func WithTimeout(d time.Duration) Option {
	return func(s *GormStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithoutMigration skips AutoMigrate on construction.
func WithoutMigration() Option {
	return func(s *GormStore) { s.migrate = false }
}
