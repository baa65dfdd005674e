package api

import "net/http"

// MatchHandler serves the live match state.
type MatchHandler struct {
	tracker MatchTracker
}

// NewMatchHandler creates a new match handler.
func NewMatchHandler(t MatchTracker) *MatchHandler {
	return &MatchHandler{tracker: t}
}

// HandleGet handles GET /match.
func (h *MatchHandler) HandleGet(w http.ResponseWriter, _ *http.Request) {
	if h.tracker == nil {
		writeError(w, NewKind("api.match", ErrUnavailable))
		return
	}
	writeJSON(w, http.StatusOK, h.tracker.Snapshot())
}

// HandleReset handles POST /match/reset.
func (h *MatchHandler) HandleReset(w http.ResponseWriter, _ *http.Request) {
	if h.tracker == nil {
		writeError(w, NewKind("api.match_reset", ErrUnavailable))
		return
	}
	writeJSON(w, http.StatusOK, h.tracker.Reset())
}
