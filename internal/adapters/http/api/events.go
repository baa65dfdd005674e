package api

import (
	"encoding/json"
	"net/http"

	"github.com/okian/pss/internal/domain/model"
)

// EventsHandler serves stored events and reclassification.
type EventsHandler struct {
	store EventStore
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(store EventStore) *EventsHandler {
	return &EventsHandler{store: store}
}

// HandleList handles GET /events?status=&limit=.
func (h *EventsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_events"
	if h.store == nil {
		writeError(w, NewKind(op, ErrUnavailable))
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var status model.RecognitionStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		if status, err = model.ParseStatus(raw); err != nil {
			writeError(w, WrapKind(op, ErrBadRequest, err))
			return
		}
	}
	events, err := h.store.EventsByStatus(r.Context(), status, limit)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if events == nil {
		events = []*model.ParsedEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

type eventResponse struct {
	*model.ParsedEvent
	History []model.RecognitionHistoryRecord `json:"history"`
}

// HandleGet handles GET /events/{id} and includes the reclassification trail.
func (h *EventsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_event"
	if h.store == nil {
		writeError(w, NewKind(op, ErrUnavailable))
		return
	}
	id := r.PathValue("id")
	ev, err := h.store.GetEvent(r.Context(), id)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	hist, err := h.store.History(r.Context(), id)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if hist == nil {
		hist = []model.RecognitionHistoryRecord{}
	}
	writeJSON(w, http.StatusOK, eventResponse{ParsedEvent: ev, History: hist})
}

type reclassifyRequest struct {
	Status    string `json:"status"`
	Reason    string `json:"reason"`
	ChangedBy string `json:"changed_by"`
}

// HandleReclassify handles POST /events/{id}/reclassify.
func (h *EventsHandler) HandleReclassify(w http.ResponseWriter, r *http.Request) {
	const op = "api.reclassify"
	if h.store == nil {
		writeError(w, NewKind(op, ErrUnavailable))
		return
	}
	var body reclassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	status, err := model.ParseStatus(body.Status)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	rec, err := h.store.Reclassify(r.Context(), model.ReclassifyRequest{
		EventID:   r.PathValue("id"),
		NewStatus: status,
		ChangedBy: body.ChangedBy,
		Reason:    body.Reason,
	})
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
