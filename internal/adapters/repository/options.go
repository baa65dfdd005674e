package repository

import (
	"time"

	"github.com/okian/pss/pkg/logger"
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithClock overrides the time source used for history and snapshot stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}
