package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/galfo/horosafe"
	"github.com/hazyhaar/galfo/kit"
)

// API exposes the slot lifecycle over HTTP.
type API struct {
	registry   *Registry
	blobPrefix string
}

// NewAPI creates the slot API. blobPrefix is where the blob handler is
// mounted, e.g. "/blob".
func NewAPI(registry *Registry, blobPrefix string) *API {
	return &API{registry: registry, blobPrefix: blobPrefix}
}

// Routes returns the slot router, meant to be mounted at /api/slots.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/", a.create)
	r.Get("/{id}", a.view)
	r.Put("/{id}", a.request)
	r.Delete("/{id}", a.delete)
	return r
}

func (a *API) create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 8*1024)

	var req struct {
		Kind     string `json:"kind"`
		Identity string `json:"identity"`
		Fallback string `json:"fallback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Identity != "" {
		if err := horosafe.ValidateMediaPath(req.Identity); err != nil {
			jsonErr(w, "invalid identity", http.StatusBadRequest)
			return
		}
	}
	if req.Fallback != "" {
		if err := horosafe.ValidateMediaPath(req.Fallback); err != nil {
			jsonErr(w, "invalid fallback", http.StatusBadRequest)
			return
		}
	}

	s, err := a.registry.Create(fetchContext(r), req.Kind, req.Identity, req.Fallback)
	if err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, s.View(a.blobPrefix))
}

func (a *API) view(w http.ResponseWriter, r *http.Request) {
	s, err := a.registry.Get(chi.URLParam(r, "id"))
	if errors.Is(err, ErrSlotNotFound) {
		jsonErr(w, "slot not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.View(a.blobPrefix))
}

func (a *API) request(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 8*1024)

	s, err := a.registry.Get(chi.URLParam(r, "id"))
	if errors.Is(err, ErrSlotNotFound) {
		jsonErr(w, "slot not found", http.StatusNotFound)
		return
	}

	var req struct {
		Identity string `json:"identity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "invalid request body", http.StatusBadRequest)
		return
	}
	// Empty identity is a valid clear: the slot returns to idle.
	if req.Identity != "" {
		if err := horosafe.ValidateMediaPath(req.Identity); err != nil {
			jsonErr(w, "invalid identity", http.StatusBadRequest)
			return
		}
	}

	s.Request(fetchContext(r), req.Identity)
	writeJSON(w, http.StatusOK, s.View(a.blobPrefix))
}

func (a *API) delete(w http.ResponseWriter, r *http.Request) {
	if err := a.registry.Delete(chi.URLParam(r, "id")); errors.Is(err, ErrSlotNotFound) {
		jsonErr(w, "slot not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fetchContext derives the context handed to the loader: the fetch outlives
// the HTTP request, so cancellation is dropped while trace values survive.
// The session token rides along for the authenticated BO call.
func fetchContext(r *http.Request) context.Context {
	ctx := context.WithoutCancel(r.Context())
	if c, err := r.Cookie("token"); err == nil && c.Value != "" {
		ctx = kit.WithToken(ctx, c.Value)
	}
	return ctx
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
