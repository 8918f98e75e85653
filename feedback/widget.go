package feedback

import (
	_ "embed"
	"net/http"
)

// The widget assets are compiled into the binary so the gallery pages can
// load them without a static file tree. One hour of caching keeps reloads
// cheap while letting asset updates roll out on restart.

//go:embed widget.js
var widgetJS []byte

//go:embed widget.css
var widgetCSS []byte

func serveAsset(wr http.ResponseWriter, contentType string, body []byte) {
	wr.Header().Set("Content-Type", contentType)
	wr.Header().Set("Cache-Control", "public, max-age=3600")
	wr.Write(body)
}

func (w *Widget) handleWidgetJS(wr http.ResponseWriter, r *http.Request) {
	serveAsset(wr, "application/javascript; charset=utf-8", widgetJS)
}

func (w *Widget) handleWidgetCSS(wr http.ResponseWriter, r *http.Request) {
	serveAsset(wr, "text/css; charset=utf-8", widgetCSS)
}
