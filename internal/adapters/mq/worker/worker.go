// Package worker runs the single ordered ingestion task:
// parse, validate, then state, catalog, statistics and fan-out.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pss/internal/adapters/mq/queue"
	"github.com/okian/pss/internal/domain/grammar"
	"github.com/okian/pss/internal/domain/model"
	"github.com/okian/pss/internal/domain/registry"
	"github.com/okian/pss/internal/domain/validation"
	"github.com/okian/pss/pkg/logger"
	"github.com/okian/pss/pkg/metrics"
)

const defaultProtocolVersion = "2.3"

// Source is where the pipeline reads raw messages from.
type Source interface {
	Dequeue(ctx context.Context) <-chan queue.Message
}

// Snapshotter exposes the active registry snapshot.
type Snapshotter interface {
	Snapshot() *registry.Snapshot
}

// Tracker folds tracked events into match state.
type Tracker interface {
	Apply(ev *model.ParsedEvent) (model.MatchDelta, bool)
}

// Cataloger records Unknown events by normalized pattern.
type Cataloger interface {
	Record(ev *model.ParsedEvent) model.UnknownEventRecord
}

// Recorder consumes every classified event for statistics.
type Recorder interface {
	Record(ev *model.ParsedEvent)
	SessionID() string
}

// Publisher fans classified events out to slow consumers.
type Publisher interface {
	PublishEvent(ev *model.ParsedEvent)
	PublishUnknown(rec model.UnknownEventRecord)
}

// Pipeline processes messages strictly in arrival order.
type Pipeline struct {
	source    Source
	registry  Snapshotter
	tracker   Tracker
	catalog   Cataloger
	stats     Recorder
	publisher Publisher
	version   string
	name      string

	stop     chan struct{}
	done     chan struct{}
	launched atomic.Bool

	logger logger.Logger
}

// NewPipeline creates a pipeline reading from source and parsing against reg.
func NewPipeline(source Source, reg Snapshotter, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:   source,
		registry: reg,
		version:  defaultProtocolVersion,
		name:     "pipeline",
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("pipeline"),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.name != "pipeline" {
		p.logger = p.logger.Named(p.name)
	}

	return p
}

// Start launches Run in a goroutine. The pipeline counts as running as soon
// as Start returns, so an immediate Shutdown still drains the source.
func (p *Pipeline) Start(ctx context.Context) {
	p.launched.Store(true)
	go p.Run(ctx)
}

// Run consumes the source until it is closed, ctx is canceled or a hard stop is signaled.
func (p *Pipeline) Run(ctx context.Context) {
	p.launched.Store(true)
	defer close(p.done)

	ch := p.source.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			p.Process(ctx, msg)
			metrics.UpdateQueueDepth(len(ch))
		}
	}
}

// Shutdown waits for Run to drain a closed source. When ctx expires first,
// the remaining messages are abandoned. It returns ErrNotRunning only when
// neither Start nor Run was ever called.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	if !p.launched.Load() {
		return ErrNotRunning
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		close(p.stop)
		<-p.done
		p.logger.Warn(ctx, "drain timed out, abandoning queued messages")
		return fmt.Errorf("%w: %w", ErrDrainTimeout, ctx.Err())
	}
}

// Process classifies one message and hands the result to every consumer.
// It never fails; malformed input resolves to an Unknown or Partial event.
func (p *Pipeline) Process(ctx context.Context, msg queue.Message) *model.ParsedEvent { //nolint:gocritic // hugeParam: value semantics match the queue channel
	start := time.Now()
	snap := p.registry.Snapshot()
	ev, entry := grammar.Parse(snap, p.version, msg)
	validation.Apply(ev, entry)
	ev.ProcessingTime = time.Since(start)

	ev.ID = uuid.NewString()
	if p.stats != nil {
		ev.SessionID = p.stats.SessionID()
	}

	metrics.RecordClassified(string(ev.Status))
	metrics.RecordProcessingLatency(float64(ev.ProcessingTime.Microseconds()) / 1000)

	if p.tracker != nil {
		p.tracker.Apply(ev)
	}
	if ev.Status == model.StatusUnknown && p.catalog != nil {
		rec := p.catalog.Record(ev)
		if p.publisher != nil {
			p.publisher.PublishUnknown(rec)
		}
	}
	if p.stats != nil {
		p.stats.Record(ev)
	}
	if p.publisher != nil {
		p.publisher.PublishEvent(ev)
	}

	p.logger.Debug(ctx, "event classified",
		logger.String("event_code", ev.EventCode),
		logger.String("status", string(ev.Status)),
		logger.Float64("confidence", ev.Confidence),
		logger.Int("errors", len(ev.Errors)),
	)
	return ev
}
