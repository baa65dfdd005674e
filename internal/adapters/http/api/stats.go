package api

import (
	"net/http"
)

// StatsHandler handles statistics requests.
type StatsHandler struct {
	live      StatsProvider
	store     EventStore
	topErrors int
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(live StatsProvider, store EventStore, topErrors int) *StatsHandler {
	return &StatsHandler{live: live, store: store, topErrors: topErrors}
}

// HandleStats handles GET /stats. scope=global returns totals across sessions.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.stats"
	if h.live == nil {
		writeError(w, NewKind(op, ErrUnavailable))
		return
	}
	switch r.URL.Query().Get("scope") {
	case "", "session":
		writeJSON(w, http.StatusOK, h.live.Snapshot())
	case "global":
		writeJSON(w, http.StatusOK, h.live.Global())
	default:
		writeError(w, NewKind(op, ErrBadRequest))
	}
}

// HandleStoredStats handles GET /stats/stored?session=. The current session is the default.
func (h *StatsHandler) HandleStoredStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.stats_stored"
	if h.store == nil {
		writeError(w, NewKind(op, ErrUnavailable))
		return
	}
	session := r.URL.Query().Get("session")
	if session == "" && h.live != nil {
		session = h.live.SessionID()
	}
	if session == "" {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	snap, err := h.store.SessionStatistics(r.Context(), session, h.topErrors)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
}

// HandleNewSession handles POST /stats/session and starts a fresh session.
func (h *StatsHandler) HandleNewSession(w http.ResponseWriter, _ *http.Request) {
	if h.live == nil {
		writeError(w, NewKind("api.new_session", ErrUnavailable))
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: h.live.NewSession()})
}
