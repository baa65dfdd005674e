// Package hub fans classified events and match deltas out to slow consumers.
//
// Each subscriber owns a bounded buffer. Publishing never blocks: when a
// subscriber's buffer is full its oldest envelope is dropped.
package hub

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/pss/internal/domain/model"
	"github.com/okian/pss/pkg/logger"
	"github.com/okian/pss/pkg/metrics"
)

const defaultBuffer = 1024

// Kind tags an Envelope.
type Kind string

const (
	KindEvent      Kind = "event"
	KindMatchDelta Kind = "match_delta"
	KindUnknown    Kind = "unknown"
)

// Envelope is one broadcast message. Exactly one payload is set, per Kind.
type Envelope struct {
	Kind    Kind                      `json:"kind"`
	Event   *model.ParsedEvent        `json:"event,omitempty"`
	Delta   *model.MatchDelta         `json:"delta,omitempty"`
	Unknown *model.UnknownEventRecord `json:"unknown,omitempty"`
}

// Subscription is one consumer's buffered view of the hub.
type Subscription struct {
	name    string
	ch      chan Envelope
	mu      sync.Mutex
	closed  bool
	dropped atomic.Int64
}

// Name returns the subscriber name.
func (s *Subscription) Name() string { return s.name }

// C is closed when the subscription ends.
func (s *Subscription) C() <-chan Envelope { return s.ch }

// Dropped returns how many envelopes this subscriber lost.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

func (s *Subscription) offer(e Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- e:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
			metrics.RecordHubDrop(s.name)
		default:
		}
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Hub is a bounded multi-subscriber broadcast.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	log    logger.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithBuffer sets the per-subscriber buffer size.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// New creates a Hub.
func New(opts ...Option) *Hub {
	h := &Hub{subs: map[*Subscription]struct{}{}, buffer: defaultBuffer, log: logger.Get().Named("hub")}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a consumer.
func (h *Hub) Subscribe(name string) *Subscription {
	s := &Subscription{name: name, ch: make(chan Envelope, h.buffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	metrics.UpdateHubSubscribers(n)
	h.log.Debug(context.Background(), "subscriber added", logger.String("subscriber", name))
	return s
}

// Unsubscribe removes a consumer and closes its channel.
func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	_, ok := h.subs[s]
	delete(h.subs, s)
	n := len(h.subs)
	h.mu.Unlock()
	if !ok {
		return
	}
	s.close()
	metrics.UpdateHubSubscribers(n)
}

// Publish offers e to every subscriber.
func (h *Hub) Publish(e Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		s.offer(e)
	}
}

// PublishEvent broadcasts a classified event.
func (h *Hub) PublishEvent(ev *model.ParsedEvent) {
	h.Publish(Envelope{Kind: KindEvent, Event: ev})
}

// PublishDelta broadcasts a match state delta.
func (h *Hub) PublishDelta(d model.MatchDelta) {
	h.Publish(Envelope{Kind: KindMatchDelta, Delta: &d})
}

// PublishUnknown broadcasts an updated unknown pattern record.
func (h *Hub) PublishUnknown(rec model.UnknownEventRecord) {
	h.Publish(Envelope{Kind: KindUnknown, Unknown: &rec})
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = map[*Subscription]struct{}{}
	h.mu.Unlock()
	for s := range subs {
		s.close()
	}
	metrics.UpdateHubSubscribers(0)
}
