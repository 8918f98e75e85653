package blobstore

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Handler returns a chi router serving GET /{handle}. Mount it under the
// path prefix the handles are rendered against:
//
//	r.Mount("/blob", store.Handler())
//
// Responses carry Cache-Control: no-store. Handles are revocable, so the
// browser must re-resolve them on every use. A revoked or unknown handle is
// 404, indistinguishable from one that never existed.
func (s *Store) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/{handle}", func(w http.ResponseWriter, req *http.Request) {
		h := chi.URLParam(req, "handle")
		b, ok := s.Get(h)
		if !ok {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", b.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(b.Data)))
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Write(b.Data)
	})
	return r
}

// URL returns the local URL a handle resolves to when the Handler is
// mounted at prefix (e.g. "/blob").
func URL(prefix string, h Handle) string {
	if h == "" {
		return ""
	}
	return prefix + "/" + h
}
