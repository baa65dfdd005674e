// Package api serves the operator HTTP API: statistics, stored events and
// reclassification, the unknown-pattern catalog, match state and registry control.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/okian/pss/internal/domain/catalog"
	"github.com/okian/pss/internal/domain/model"
	"github.com/okian/pss/internal/domain/registry"
)

const (
	defaultLimit = 100
	maxLimit     = 10000
)

// StatsProvider exposes the live statistics aggregator.
type StatsProvider interface {
	SessionID() string
	NewSession() string
	Snapshot() model.StatisticsSnapshot
	Global() model.StatisticsSnapshot
}

// EventStore is the read and amend side of the durable store.
type EventStore interface {
	GetEvent(ctx context.Context, id string) (*model.ParsedEvent, error)
	EventsByStatus(ctx context.Context, status model.RecognitionStatus, limit int) ([]*model.ParsedEvent, error)
	Reclassify(ctx context.Context, req model.ReclassifyRequest) (model.RecognitionHistoryRecord, error)
	History(ctx context.Context, eventID string) ([]model.RecognitionHistoryRecord, error)
	SessionStatistics(ctx context.Context, sessionID string, topN int) (model.StatisticsSnapshot, error)
}

// UnknownCatalog lists and promotes unknown patterns.
type UnknownCatalog interface {
	List(limit int) []model.UnknownEventRecord
	Promote(ctx context.Context, p catalog.Promotion) (*registry.Snapshot, error)
}

// MatchTracker exposes the live match state.
type MatchTracker interface {
	Snapshot() model.MatchState
	Reset() model.MatchDelta
}

// RegistryControl reads and reloads the grammar registry.
type RegistryControl interface {
	Snapshot() *registry.Snapshot
	Reload(ctx context.Context) (*registry.Snapshot, error)
}

// Server wires HTTP routes for the operator API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	eventsHandler   *EventsHandler
	unknownsHandler *UnknownsHandler
	matchHandler    *MatchHandler
	registryHandler *RegistryHandler
	ws              http.Handler
}

// Option configures the Server.
type Option func(*serverDeps)

type serverDeps struct {
	stats     StatsProvider
	store     EventStore
	catalog   UnknownCatalog
	tracker   MatchTracker
	registry  RegistryControl
	ws        http.Handler
	topErrors int
}

// WithStats sets the live statistics source.
func WithStats(s StatsProvider) Option { return func(d *serverDeps) { d.stats = s } }

// WithStore sets the durable store. Without it store-backed routes answer 503.
func WithStore(s EventStore) Option { return func(d *serverDeps) { d.store = s } }

// WithCatalog sets the unknown pattern catalog.
func WithCatalog(c UnknownCatalog) Option { return func(d *serverDeps) { d.catalog = c } }

// WithTracker sets the match state tracker.
func WithTracker(t MatchTracker) Option { return func(d *serverDeps) { d.tracker = t } }

// WithRegistry sets the grammar registry.
func WithRegistry(r RegistryControl) Option { return func(d *serverDeps) { d.registry = r } }

// WithWebSocket mounts the UI push handler on /ws.
func WithWebSocket(h http.Handler) Option { return func(d *serverDeps) { d.ws = h } }

// WithTopErrors sets the error table size for stored statistics.
func WithTopErrors(n int) Option {
	return func(d *serverDeps) {
		if n > 0 {
			d.topErrors = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(opts ...Option) *Server {
	d := &serverDeps{topErrors: 10}
	for _, opt := range opts {
		opt(d)
	}
	return &Server{
		healthHandler:   NewHealthHandler(d.registry, d.stats),
		statsHandler:    NewStatsHandler(d.stats, d.store, d.topErrors),
		eventsHandler:   NewEventsHandler(d.store),
		unknownsHandler: NewUnknownsHandler(d.catalog),
		matchHandler:    NewMatchHandler(d.tracker),
		registryHandler: NewRegistryHandler(d.registry),
		ws:              d.ws,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)

	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /stats/stored", MetricsMiddleware(s.statsHandler.HandleStoredStats, "stats_stored"))
	mux.HandleFunc("POST /stats/session", MetricsMiddleware(s.statsHandler.HandleNewSession, "stats_session"))

	mux.HandleFunc("GET /events", MetricsMiddleware(s.eventsHandler.HandleList, "events"))
	mux.HandleFunc("GET /events/{id}", MetricsMiddleware(s.eventsHandler.HandleGet, "event"))
	mux.HandleFunc("POST /events/{id}/reclassify", MetricsMiddleware(s.eventsHandler.HandleReclassify, "reclassify"))

	mux.HandleFunc("GET /unknowns", MetricsMiddleware(s.unknownsHandler.HandleList, "unknowns"))
	mux.HandleFunc("POST /unknowns/{hash}/promote", MetricsMiddleware(s.unknownsHandler.HandlePromote, "promote"))

	mux.HandleFunc("GET /match", MetricsMiddleware(s.matchHandler.HandleGet, "match"))
	mux.HandleFunc("POST /match/reset", MetricsMiddleware(s.matchHandler.HandleReset, "match_reset"))

	mux.HandleFunc("GET /registry", MetricsMiddleware(s.registryHandler.HandleGet, "registry"))
	mux.HandleFunc("POST /registry/reload", MetricsMiddleware(s.registryHandler.HandleReload, "registry_reload"))

	if s.ws != nil {
		mux.Handle("GET /ws", s.ws)
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, NewKind("parse limit", ErrBadRequest)
	}
	return min(n, maxLimit), nil
}
