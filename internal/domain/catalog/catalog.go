// Package catalog groups unknown datagrams by normalized shape and promotes
// reviewed shapes into the registry.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/pss/internal/domain/grammar"
	"github.com/okian/pss/internal/domain/model"
	"github.com/okian/pss/internal/domain/registry"
	"github.com/okian/pss/internal/domain/rules"
	"github.com/okian/pss/pkg/logger"
	"github.com/okian/pss/pkg/metrics"
)

// PromotionStore persists promoted schemas so the registry picks them up on reload.
type PromotionStore interface {
	SaveDefinition(ctx context.Context, def model.EventTypeDefinition) error
	SaveRule(ctx context.Context, r model.ValidationRule) error
	UpsertUnknown(ctx context.Context, rec model.UnknownEventRecord) error
}

// Reloader rebuilds the registry snapshot.
type Reloader interface {
	Reload(ctx context.Context) (*registry.Snapshot, error)
}

// Promotion registers a schema for an unknown shape.
type Promotion struct {
	PatternHash string                    `json:"pattern_hash"`
	Definition  model.EventTypeDefinition `json:"definition"`
	Rules       []model.ValidationRule    `json:"rules"`
}

// Catalog is safe for concurrent use.
type Catalog struct {
	mu      sync.Mutex
	records map[string]*model.UnknownEventRecord

	version  string
	store    PromotionStore
	reloader Reloader
	now      func() time.Time
	log      logger.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithPromotion wires the store and registry used by Promote.
func WithPromotion(store PromotionStore, reloader Reloader) Option {
	return func(c *Catalog) {
		c.store = store
		c.reloader = reloader
	}
}

// WithProtocolVersion sets the version promoted definitions default to.
func WithProtocolVersion(v string) Option {
	return func(c *Catalog) {
		if v != "" {
			c.version = v
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates an empty catalog.
func New(opts ...Option) *Catalog {
	c := &Catalog{
		records: map[string]*model.UnknownEventRecord{},
		version: "2.3",
		now:     time.Now,
		log:     logger.Get().Named("catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Seed loads previously persisted records. Existing entries with the same
// hash are replaced.
func (c *Catalog) Seed(recs []model.UnknownEventRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range recs {
		r := recs[i]
		c.records[r.PatternHash] = &r
	}
	metrics.UpdateUnknownPatterns(len(c.records))
}

// Record upserts the record of an Unknown event's shape and returns a copy.
func (c *Catalog) Record(ev *model.ParsedEvent) model.UnknownEventRecord {
	tokens := ev.Tokens
	if tokens == nil {
		tokens = grammar.Split(ev.RawText, registry.DefaultDelimiter)
	}
	pattern := Normalize(tokens)
	hash := Hash(pattern)
	at := ev.ReceivedAt
	if at.IsZero() {
		at = c.now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[hash]
	if !ok {
		rec = &model.UnknownEventRecord{
			PatternHash: hash,
			Pattern:     pattern,
			RawPattern:  ev.RawText,
			FirstSeen:   at,
		}
		c.records[hash] = rec
		metrics.UpdateUnknownPatterns(len(c.records))
	}
	rec.OccurrenceCount++
	if at.After(rec.LastSeen) {
		rec.LastSeen = at
	}
	return *rec
}

// Get returns one record.
func (c *Catalog) Get(hash string) (model.UnknownEventRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[hash]
	if !ok {
		return model.UnknownEventRecord{}, false
	}
	return *rec, true
}

// Len is the number of distinct shapes.
func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// List returns records by descending occurrence count. limit <= 0 returns all.
func (c *Catalog) List(limit int) []model.UnknownEventRecord {
	c.mu.Lock()
	out := make([]model.UnknownEventRecord, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, *r)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].OccurrenceCount != out[j].OccurrenceCount {
			return out[i].OccurrenceCount > out[j].OccurrenceCount
		}
		return out[i].PatternHash < out[j].PatternHash
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Promote stores a definition and its rules for an unknown shape and reloads
// the registry. Only datagrams received after the swap are affected.
func (c *Catalog) Promote(ctx context.Context, p Promotion) (*registry.Snapshot, error) {
	if c.store == nil || c.reloader == nil {
		return nil, ErrNoStore
	}
	if _, ok := c.Get(p.PatternHash); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p.PatternHash)
	}

	def := p.Definition.Clone()
	def.Code = strings.TrimSpace(def.Code)
	if def.Code == "" {
		return nil, fmt.Errorf("%w: definition needs a code", ErrInvalidPromotion)
	}
	if def.ProtocolVersion == "" {
		def.ProtocolVersion = c.version
	}
	if !def.Category.Known() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidPromotion, def.Category)
	}
	for i, f := range def.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("%w: field %d has no name", ErrInvalidPromotion, i)
		}
		if f.Kind == "" {
			def.Fields[i].Kind = model.KindString
		}
	}

	rs := make([]model.ValidationRule, 0, len(p.Rules))
	for _, r := range p.Rules {
		r.EventCode = def.Code
		r.ProtocolVersion = def.ProtocolVersion
		if _, err := rules.Compile(r, &def); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPromotion, err)
		}
		rs = append(rs, r)
	}

	if err := c.store.SaveDefinition(ctx, def); err != nil {
		return nil, fmt.Errorf("save definition: %w", err)
	}
	for _, r := range rs {
		if err := c.store.SaveRule(ctx, r); err != nil {
			return nil, fmt.Errorf("save rule %s: %w", r.Name, err)
		}
	}

	c.mu.Lock()
	var promoted model.UnknownEventRecord
	if rec, ok := c.records[p.PatternHash]; ok {
		rec.SuggestedEventCode = def.Code
		promoted = *rec
	}
	c.mu.Unlock()
	if err := c.store.UpsertUnknown(ctx, promoted); err != nil {
		return nil, fmt.Errorf("record suggested code: %w", err)
	}

	snap, err := c.reloader.Reload(ctx)
	if err != nil {
		return nil, fmt.Errorf("reload after promotion: %w", err)
	}
	c.log.Info(ctx, "unknown pattern promoted",
		logger.String("pattern_hash", p.PatternHash),
		logger.String("code", def.Code),
		logger.String("version", def.ProtocolVersion),
		logger.Int("rules", len(rs)))
	return snap, nil
}
