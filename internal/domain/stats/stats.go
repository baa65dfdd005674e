// Package stats aggregates running counts and timings of classified events.
package stats

import (
	"container/heap"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pss/internal/domain/model"
)

// EmptyCode keys events whose code token was blank.
const EmptyCode = "(empty)"

const (
	defaultTopN     = 10
	defaultCapacity = 256
)

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTopN sets how many error messages a snapshot reports.
func WithTopN(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.topN = n
		}
	}
}

// WithErrorCapacity bounds the number of distinct error messages tracked.
func WithErrorCapacity(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.capacity = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// Aggregator keeps per-session and process-wide counters. Every update and
// every snapshot copy holds one mutex.
type Aggregator struct {
	mu      sync.Mutex
	session *counters
	global  *counters

	topN     int
	capacity int
	now      func() time.Time
}

// New creates an Aggregator with a fresh session.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{topN: defaultTopN, capacity: defaultCapacity, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	a.global = newCounters("global", a.now(), a.capacity)
	a.session = newCounters(uuid.NewString(), a.now(), a.capacity)
	return a
}

// SessionID returns the current session id.
func (a *Aggregator) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.id
}

// NewSession rotates the session counters and returns the new id.
func (a *Aggregator) NewSession() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = newCounters(uuid.NewString(), a.now(), a.capacity)
	return a.session.id
}

// Record folds one classified event into both scopes.
func (a *Aggregator) Record(ev *model.ParsedEvent) {
	code := strings.TrimSpace(ev.EventCode)
	if code == "" {
		code = EmptyCode
	}
	a.mu.Lock()
	a.session.record(code, ev)
	a.global.record(code, ev)
	a.mu.Unlock()
}

// RecordDatagram counts a received datagram.
func (a *Aggregator) RecordDatagram() {
	a.mu.Lock()
	a.session.transport.Datagrams++
	a.global.transport.Datagrams++
	a.mu.Unlock()
}

// RecordDecodeError counts a datagram dropped before parsing.
func (a *Aggregator) RecordDecodeError() {
	a.mu.Lock()
	a.session.transport.DecodeErrors++
	a.global.transport.DecodeErrors++
	a.mu.Unlock()
}

// RecordQueueDrops counts messages evicted from the receive queue.
func (a *Aggregator) RecordQueueDrops(n int64) {
	if n <= 0 {
		return
	}
	a.mu.Lock()
	a.session.transport.QueueDrops += n
	a.global.transport.QueueDrops += n
	a.mu.Unlock()
}

// Snapshot copies the current session.
func (a *Aggregator) Snapshot() model.StatisticsSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.snapshot(a.now(), a.topN)
}

// Global copies the process-wide counters.
func (a *Aggregator) Global() model.StatisticsSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.global.snapshot(a.now(), a.topN)
}

type timing struct {
	n        int64
	min, max time.Duration
	avg      float64
}

// add updates the running min, max and mean in O(1).
func (t *timing) add(d time.Duration) {
	t.n++
	if t.n == 1 || d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}
	t.avg += (float64(d) - t.avg) / float64(t.n)
}

func (t *timing) export() model.TimingStats {
	return model.TimingStats{Count: t.n, Min: t.min, Max: t.max, Average: time.Duration(t.avg)}
}

type typeCounters struct {
	total    int64
	byStatus map[model.RecognitionStatus]int64
	timing   timing
}

type counters struct {
	id        string
	started   time.Time
	total     int64
	byStatus  map[model.RecognitionStatus]int64
	byType    map[string]*typeCounters
	timing    timing
	errors    *errorTable
	transport model.TransportStats
}

func newCounters(id string, started time.Time, capacity int) *counters {
	return &counters{
		id:       id,
		started:  started,
		byStatus: map[model.RecognitionStatus]int64{},
		byType:   map[string]*typeCounters{},
		errors:   newErrorTable(capacity),
	}
}

func (c *counters) record(code string, ev *model.ParsedEvent) {
	tc, ok := c.byType[code]
	if !ok {
		tc = &typeCounters{byStatus: map[model.RecognitionStatus]int64{}}
		c.byType[code] = tc
	}
	c.total++
	c.byStatus[ev.Status]++
	c.timing.add(ev.ProcessingTime)
	tc.total++
	tc.byStatus[ev.Status]++
	tc.timing.add(ev.ProcessingTime)
	for _, e := range ev.Errors {
		c.errors.add(e.Message)
	}
}

func (c *counters) snapshot(now time.Time, topN int) model.StatisticsSnapshot {
	s := model.StatisticsSnapshot{
		SessionID:   c.id,
		StartedAt:   c.started,
		TakenAt:     now,
		Total:       c.total,
		ByStatus:    copyStatus(c.byStatus),
		ByEventType: make(map[string]model.EventTypeStats, len(c.byType)),
		Timing:      c.timing.export(),
		TopErrors:   c.errors.top(topN),
		Transport:   c.transport,
	}
	for code, tc := range c.byType {
		s.ByEventType[code] = model.EventTypeStats{Total: tc.total, ByStatus: copyStatus(tc.byStatus), Timing: tc.timing.export()}
	}
	return s
}

func copyStatus(m map[model.RecognitionStatus]int64) map[model.RecognitionStatus]int64 {
	out := make(map[model.RecognitionStatus]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// errorTable counts messages up to a fixed number of distinct keys. When
// full, a new message evicts the least frequent one. A min-heap keeps the
// eviction candidate at the root, so every update is O(log capacity).
type errorTable struct {
	capacity int
	counts   map[string]*errorEntry
	heap     errorHeap
}

type errorEntry struct {
	msg   string
	count int64
	index int
}

// errorHeap orders by count, then the lexically greatest message first, so
// eviction among equal counts is deterministic.
type errorHeap []*errorEntry

func (h errorHeap) Len() int { return len(h) }

func (h errorHeap) Less(i, j int) bool {
	if h[i].count != h[j].count {
		return h[i].count < h[j].count
	}
	return h[i].msg > h[j].msg
}

func (h errorHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *errorHeap) Push(x any) {
	e := x.(*errorEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *errorHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

func newErrorTable(capacity int) *errorTable {
	return &errorTable{
		capacity: capacity,
		counts:   make(map[string]*errorEntry, capacity),
		heap:     make(errorHeap, 0, capacity),
	}
}

func (t *errorTable) add(msg string) {
	if e, ok := t.counts[msg]; ok {
		e.count++
		heap.Fix(&t.heap, e.index)
		return
	}
	if t.capacity <= 0 {
		return
	}
	if len(t.counts) >= t.capacity {
		victim := heap.Pop(&t.heap).(*errorEntry)
		delete(t.counts, victim.msg)
	}
	e := &errorEntry{msg: msg, count: 1}
	heap.Push(&t.heap, e)
	t.counts[msg] = e
}

func (t *errorTable) top(n int) []model.ErrorCount {
	out := make([]model.ErrorCount, 0, len(t.counts))
	for _, e := range t.counts {
		out = append(out, model.ErrorCount{Message: e.msg, Count: e.count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Message < out[j].Message
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
