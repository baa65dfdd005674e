package matchstate

import (
	"github.com/okian/pss/internal/domain/model"
	"github.com/okian/pss/pkg/logger"
)

// Option configures a Tracker.
type Option func(*Tracker)

// WithOverrideBufferSize bounds events_since_break_stop.
func WithOverrideBufferSize(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.bufferSize = n
		}
	}
}

// WithHitLevelHistory bounds each athlete's hit-level history.
func WithHitLevelHistory(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.hitHistory = n
		}
	}
}

// WithResetState sets the fight state value that starts a new match.
func WithResetState(state string) Option {
	return func(t *Tracker) {
		if state != "" {
			t.resetState = state
		}
	}
}

// WithPublisher receives a delta after every applied event.
func WithPublisher(fn func(model.MatchDelta)) Option {
	return func(t *Tracker) {
		if fn != nil {
			t.publish = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}
