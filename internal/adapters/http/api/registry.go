package api

import (
	"net/http"
	"time"

	"github.com/okian/pss/internal/domain/model"
)

// RegistryHandler exposes the active grammar and triggers reloads.
type RegistryHandler struct {
	registry RegistryControl
}

// NewRegistryHandler creates a new registry handler.
func NewRegistryHandler(r RegistryControl) *RegistryHandler {
	return &RegistryHandler{registry: r}
}

type registryEvent struct {
	model.EventTypeDefinition
	Rules []string `json:"rules"`
}

type registryResponse struct {
	Generation uint64                     `json:"generation"`
	LoadedAt   time.Time                  `json:"loaded_at"`
	Warnings   []string                   `json:"warnings"`
	Versions   map[string][]registryEvent `json:"versions"`
}

// HandleGet handles GET /registry.
func (h *RegistryHandler) HandleGet(w http.ResponseWriter, _ *http.Request) {
	if h.registry == nil {
		writeError(w, NewKind("api.registry", ErrUnavailable))
		return
	}
	snap := h.registry.Snapshot()
	resp := registryResponse{
		Generation: snap.Generation,
		LoadedAt:   snap.LoadedAt,
		Warnings:   append([]string{}, snap.Warnings...),
		Versions:   map[string][]registryEvent{},
	}
	for _, v := range snap.Versions() {
		entries := snap.Entries(v)
		out := make([]registryEvent, 0, len(entries))
		for _, e := range entries {
			names := make([]string, 0, len(e.Rules))
			for _, r := range e.Rules {
				names = append(names, r.Name)
			}
			out = append(out, registryEvent{EventTypeDefinition: e.Definition, Rules: names})
		}
		resp.Versions[v] = out
	}
	writeJSON(w, http.StatusOK, resp)
}

type reloadResponse struct {
	Generation uint64   `json:"generation"`
	Warnings   []string `json:"warnings"`
}

// HandleReload handles POST /registry/reload. A failed reload keeps the
// previous snapshot active.
func (h *RegistryHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	const op = "api.registry_reload"
	if h.registry == nil {
		writeError(w, NewKind(op, ErrUnavailable))
		return
	}
	snap, err := h.registry.Reload(r.Context())
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, reloadResponse{Generation: snap.Generation, Warnings: append([]string{}, snap.Warnings...)})
}
