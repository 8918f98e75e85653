package gallery

import (
	_ "embed"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/galfo/categories"
)

//go:embed static/gallery.js
var galleryJS []byte

//go:embed static/gallery.css
var galleryCSS []byte

var pageTmpl = template.Must(template.New("gallery").Parse(`<!DOCTYPE html>
<html lang="fr"><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>Galerie — HOROS</title>
<link rel="stylesheet" href="/static/gallery.css">
</head><body>
<h1>Galerie</h1>
<nav class="filters">
<a href="/gallery"{{if not .Active}} class="active"{{end}}>Tout</a>
{{- range .Categories}}
<a href="/gallery?category={{.ID}}"{{if eq .ID $.Active}} class="active"{{end}}>{{.Name}}</a>
{{- end}}
</nav>
{{- if not .Items}}
<p class="empty">Aucun média dans cette catégorie.</p>
{{- end}}
<div class="grid">
{{- range .Items}}
<figure class="media-slot pulse" data-identity="{{.Identity}}" data-kind="{{.Kind}}">
<figcaption>{{if .Title}}{{.Title}}{{else}}{{.Identity}}{{end}}</figcaption>
</figure>
{{- end}}
</div>
<script src="/static/gallery.js"></script>
</body></html>`))

// Page renders the media grid from the inventory. The embedded script
// creates one slot per tile and polls until each reports ready or failed.
type Page struct {
	store *categories.Store
}

// NewPage creates the gallery page handler.
func NewPage(store *categories.Store) *Page {
	return &Page{store: store}
}

// Routes returns the gallery page router. Static assets are served under
// /static by [Page.Static].
func (p *Page) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", p.render)
	return r
}

// Static returns the handler for the embedded gallery assets.
func (p *Page) Static() http.Handler {
	r := chi.NewRouter()
	r.Get("/gallery.js", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Write(galleryJS)
	})
	r.Get("/gallery.css", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Write(galleryCSS)
	})
	return r
}

func (p *Page) render(w http.ResponseWriter, r *http.Request) {
	active := r.URL.Query().Get("category")

	cats, err := p.store.List(r.Context())
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	items, err := p.store.ListMedia(r.Context(), active)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	pageTmpl.Execute(w, struct {
		Categories []categories.Category
		Items      []categories.MediaItem
		Active     string
	}{
		Categories: cats,
		Items:      items,
		Active:     active,
	})
}
