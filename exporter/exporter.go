// Package exporter streams the gallery's datasets (categories, media
// inventory, feedback comments) as CSV or JSON attachments.
package exporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/galfo/categories"
	"github.com/hazyhaar/galfo/feedback"
	"github.com/hazyhaar/galfo/observability"
)

// Exporter serves dataset downloads.
type Exporter struct {
	store  *categories.Store
	widget *feedback.Widget
	events *observability.EventLogger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithEvents records each export in the business event log.
func WithEvents(el *observability.EventLogger) Option {
	return func(e *Exporter) { e.events = el }
}

// New wires the exporter to its data sources.
func New(store *categories.Store, widget *feedback.Widget, opts ...Option) *Exporter {
	e := &Exporter{store: store, widget: widget}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Routes returns the export router: GET /{dataset}?format=csv|json where
// dataset is categories, media or feedback. Default format is csv.
func (e *Exporter) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/{dataset}", e.export)
	return r
}

// dataset abstracts one exportable table: a header row plus record rows.
type dataset struct {
	header []string
	rows   [][]string
	// items holds the original structs for the JSON rendition.
	items interface{}
}

func (e *Exporter) export(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "dataset")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		http.Error(w, "format must be csv or json", http.StatusBadRequest)
		return
	}

	var (
		ds  dataset
		err error
	)
	switch name {
	case "categories":
		ds, err = e.categoriesDataset(r)
	case "media":
		ds, err = e.mediaDataset(r)
	case "feedback":
		ds, err = e.feedbackDataset()
	default:
		http.Error(w, "unknown dataset", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if e.events != nil {
		e.events.LogEvent(r.Context(), observability.BusinessEvent{
			EventType:   "export",
			ServiceName: "galfo",
			EntityType:  "dataset",
			EntityID:    name,
			Action:      "download",
			Details:     fmt.Sprintf(`{"format":%q}`, format),
			Success:     true,
		})
	}

	filename := fmt.Sprintf("%s-%s.%s", name, time.Now().Format("20060102"), format)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	if format == "json" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ds.items)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	cw := csv.NewWriter(w)
	cw.Write(ds.header)
	for _, row := range ds.rows {
		cw.Write(row)
	}
	cw.Flush()
}

func (e *Exporter) categoriesDataset(r *http.Request) (dataset, error) {
	cats, err := e.store.List(r.Context())
	if err != nil {
		return dataset{}, err
	}
	ds := dataset{header: []string{"id", "name", "created_at"}, items: cats}
	for _, c := range cats {
		ds.rows = append(ds.rows, []string{c.ID, c.Name, strconv.FormatInt(c.CreatedAt, 10)})
	}
	return ds, nil
}

func (e *Exporter) mediaDataset(r *http.Request) (dataset, error) {
	items, err := e.store.ListMedia(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		return dataset{}, err
	}
	ds := dataset{
		header: []string{"id", "identity", "kind", "category_id", "title", "created_at"},
		items:  items,
	}
	for _, m := range items {
		ds.rows = append(ds.rows, []string{
			m.ID, m.Identity, m.Kind, m.CategoryID, m.Title,
			strconv.FormatInt(m.CreatedAt, 10),
		})
	}
	return ds, nil
}

func (e *Exporter) feedbackDataset() (dataset, error) {
	comments, err := e.widget.Comments(10000, 0)
	if err != nil {
		return dataset{}, err
	}
	ds := dataset{
		header: []string{"id", "text", "page_url", "user_id", "created_at"},
		items:  comments,
	}
	for _, c := range comments {
		uid := ""
		if c.UserID != nil {
			uid = *c.UserID
		}
		ds.rows = append(ds.rows, []string{
			c.ID, c.Text, c.PageURL, uid, strconv.FormatInt(c.CreatedAt, 10),
		})
	}
	return ds, nil
}
