package worker

import (
	"github.com/okian/pss/pkg/logger"
)

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithName sets the pipeline name used in logs.
func WithName(name string) Option {
	return func(p *Pipeline) {
		if name != "" {
			p.name = name
		}
	}
}

// WithLogger sets a custom logger for the pipeline.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithProtocolVersion sets the protocol version events are parsed against.
func WithProtocolVersion(v string) Option {
	return func(p *Pipeline) {
		if v != "" {
			p.version = v
		}
	}
}

// WithTracker attaches the match state tracker.
func WithTracker(t Tracker) Option {
	return func(p *Pipeline) { p.tracker = t }
}

// WithCatalog attaches the unknown event cataloger.
func WithCatalog(c Cataloger) Option {
	return func(p *Pipeline) { p.catalog = c }
}

// WithStats attaches the statistics aggregator.
func WithStats(s Recorder) Option {
	return func(p *Pipeline) { p.stats = s }
}

// WithPublisher attaches the fan-out publisher.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}
