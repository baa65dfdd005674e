package api

import (
	"encoding/json"
	"net/http"

	"github.com/okian/pss/internal/domain/catalog"
	"github.com/okian/pss/internal/domain/model"
)

// UnknownsHandler serves the unknown pattern catalog.
type UnknownsHandler struct {
	catalog UnknownCatalog
}

// NewUnknownsHandler creates a new unknowns handler.
func NewUnknownsHandler(c UnknownCatalog) *UnknownsHandler {
	return &UnknownsHandler{catalog: c}
}

// HandleList handles GET /unknowns?limit=, most frequent first.
func (h *UnknownsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeError(w, NewKind("api.unknowns", ErrUnavailable))
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	recs := h.catalog.List(limit)
	if recs == nil {
		recs = []model.UnknownEventRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

type promoteRule struct {
	model.ValidationRule
	Active *bool `json:"active"`
}

type promoteRequest struct {
	Definition model.EventTypeDefinition `json:"definition"`
	Rules      []promoteRule             `json:"rules"`
}

type promoteResponse struct {
	PatternHash string `json:"pattern_hash"`
	EventCode   string `json:"event_code"`
	Generation  uint64 `json:"registry_generation"`
}

// HandlePromote handles POST /unknowns/{hash}/promote. Rules default to active.
func (h *UnknownsHandler) HandlePromote(w http.ResponseWriter, r *http.Request) {
	const op = "api.promote"
	if h.catalog == nil {
		writeError(w, NewKind(op, ErrUnavailable))
		return
	}
	var body promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	p := catalog.Promotion{PatternHash: r.PathValue("hash"), Definition: body.Definition}
	for _, pr := range body.Rules {
		rule := pr.ValidationRule
		rule.Active = pr.Active == nil || *pr.Active
		p.Rules = append(p.Rules, rule)
	}
	snap, err := h.catalog.Promote(r.Context(), p)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, promoteResponse{
		PatternHash: p.PatternHash,
		EventCode:   p.Definition.Code,
		Generation:  snap.Generation,
	})
}
