package categories

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/galfo/observability"
)

// Handlers exposes the category and media inventory HTTP API.
type Handlers struct {
	store  *Store
	events *observability.EventLogger // optional
}

// NewHandlers wires the store to HTTP. events may be nil.
func NewHandlers(store *Store, events *observability.EventLogger) *Handlers {
	return &Handlers{store: store, events: events}
}

// Routes returns the chi router for the /api/categories and /api/media trees.
func (h *Handlers) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/categories", h.list)
	r.Post("/categories", h.create)
	r.Put("/categories/{id}", h.rename)
	r.Delete("/categories/{id}", h.delete)
	r.Get("/media", h.listMedia)
	r.Post("/media", h.addMedia)
	r.Delete("/media/{id}", h.deleteMedia)
	return r
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	cats, err := h.store.List(r.Context())
	if err != nil {
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (h *Handlers) create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 4*1024)

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "invalid request body", http.StatusBadRequest)
		return
	}

	c, err := h.store.Create(r.Context(), req.Name)
	switch {
	case errors.Is(err, ErrDuplicate):
		jsonErr(w, "name already exists", http.StatusConflict)
		return
	case err != nil:
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logEvent(r, "category_created", "category", c.ID, "create")
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handlers) rename(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 4*1024)
	id := chi.URLParam(r, "id")

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := h.store.Rename(r.Context(), id, req.Name)
	switch {
	case errors.Is(err, ErrNotFound):
		jsonErr(w, "category not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrDuplicate):
		jsonErr(w, "name already exists", http.StatusConflict)
		return
	case err != nil:
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logEvent(r, "category_renamed", "category", id, "rename")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.store.Delete(r.Context(), id)
	switch {
	case errors.Is(err, ErrNotFound):
		jsonErr(w, "category not found", http.StatusNotFound)
		return
	case err != nil:
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.logEvent(r, "category_deleted", "category", id, "delete")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) listMedia(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListMedia(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handlers) addMedia(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 8*1024)

	var req struct {
		Identity   string `json:"identity"`
		Kind       string `json:"kind"`
		CategoryID string `json:"category_id"`
		Title      string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "invalid request body", http.StatusBadRequest)
		return
	}

	m, err := h.store.AddMedia(r.Context(), req.Identity, req.Kind, req.CategoryID, req.Title)
	switch {
	case errors.Is(err, ErrDuplicate):
		jsonErr(w, "identity already registered", http.StatusConflict)
		return
	case err != nil:
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logEvent(r, "media_added", "media_item", m.ID, "create")
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handlers) deleteMedia(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.store.DeleteMedia(r.Context(), id)
	switch {
	case errors.Is(err, ErrNotFound):
		jsonErr(w, "media item not found", http.StatusNotFound)
		return
	case err != nil:
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.logEvent(r, "media_removed", "media_item", id, "delete")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) logEvent(r *http.Request, eventType, entityType, entityID, action string) {
	if h.events == nil {
		return
	}
	h.events.LogEvent(r.Context(), observability.BusinessEvent{
		EventType:   eventType,
		ServiceName: "galfo",
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		Success:     true,
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
