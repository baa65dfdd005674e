package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/knadh/koanf/providers/file"

	"github.com/okian/pss/pkg/logger"
	"github.com/okian/pss/pkg/metrics"
)

// Registry owns the active snapshot.
type Registry struct {
	current atomic.Pointer[Snapshot]

	// reloadMu serializes Reload; readers never take it.
	reloadMu sync.Mutex
	sources  []Source
	log      logger.Logger
	now      func() time.Time
	onSwap   []func(*Snapshot)
}

// Option configures a Registry.
type Option func(*Registry)

// WithSources replaces the source list. Order matters: later sources override earlier ones.
func WithSources(sources ...Source) Option {
	return func(r *Registry) { r.sources = sources }
}

// WithSource appends one source.
func WithSource(s Source) Option {
	return func(r *Registry) { r.sources = append(r.sources, s) }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithOnSwap registers a callback run after every successful swap.
func WithOnSwap(fn func(*Snapshot)) Option {
	return func(r *Registry) {
		if fn != nil {
			r.onSwap = append(r.onSwap, fn)
		}
	}
}

// New creates a Registry. With no sources it serves the built-in grammar.
// The first snapshot is built by Reload.
func New(opts ...Option) *Registry {
	r := &Registry{
		log: logger.Get().Named("registry"),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if len(r.sources) == 0 {
		r.sources = []Source{DefaultSource{}}
	}
	r.current.Store(&Snapshot{delimiters: map[string]string{}, entries: map[Key]*Entry{}})
	return r
}

// Snapshot returns the active snapshot. It is never nil.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Reload rebuilds the snapshot from every source and swaps it in. On any
// failure the active snapshot is kept.
func (r *Registry) Reload(ctx context.Context) (*Snapshot, error) {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	snap, err := r.buildLocked(ctx)
	if err != nil {
		metrics.RecordRegistryReload("error")
		r.log.Warn(ctx, "registry reload failed, keeping previous snapshot",
			logger.Error(err), logger.Int64("generation", int64(r.Snapshot().Generation)))
		return nil, err
	}

	r.current.Store(snap)
	metrics.RecordRegistryReload("ok")
	metrics.UpdateRegistryGeneration(snap.Generation)
	for _, w := range snap.Warnings {
		r.log.Warn(ctx, "registry entry skipped", logger.String("detail", w))
	}
	r.log.Info(ctx, "registry loaded",
		logger.Int64("generation", int64(snap.Generation)),
		logger.Int("definitions", snap.Len()),
		logger.Int("warnings", len(snap.Warnings)))
	for _, fn := range r.onSwap {
		fn(snap)
	}
	return snap, nil
}

func (r *Registry) buildLocked(ctx context.Context) (*Snapshot, error) {
	if len(r.sources) == 0 {
		return nil, ErrNoSources
	}
	bundles := make([]Bundle, 0, len(r.sources))
	for _, s := range r.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := s.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadSource, s.Name(), err)
		}
		bundles = append(bundles, b)
	}
	return build(r.Snapshot().Generation+1, r.now(), bundles)
}

// WatchFile reloads the registry whenever the grammar file changes. The
// returned stop function ends the watch.
func (r *Registry) WatchFile(ctx context.Context, path string) (func(), error) {
	p := file.Provider(path)
	err := p.Watch(func(_ interface{}, err error) {
		if err != nil {
			r.log.Warn(ctx, "grammar watch error", logger.Error(err), logger.String("path", path))
			return
		}
		if ctx.Err() != nil {
			return
		}
		if _, err := r.Reload(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Debug(ctx, "grammar change rejected", logger.String("path", path))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	r.log.Info(ctx, "watching grammar file", logger.String("path", path))
	return func() { _ = p.Unwatch() }, nil
}
