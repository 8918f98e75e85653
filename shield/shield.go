// Package shield provides the HTTP security middleware galfo puts in front
// of every route: security headers, maintenance mode, rate limiting, body
// limits, request tracing, flash messages, and HEAD method handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	stack, mm := shield.DefaultFOStack(db)
//	mm.StartReloader(done)
//	for _, mw := range stack {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"database/sql"
	"net/http"
)

type contextKey string

const (
	// LoggerKey is the context key for the per-request structured logger.
	LoggerKey contextKey = "shield_logger"

	// FlashKey is the context key for flash messages.
	FlashKey contextKey = "shield_flash"
)

// FlashMessage represents a one-time notification shown to the user.
type FlashMessage struct {
	Type    string // "success" or "error"
	Message string
}

// GetFlash retrieves the flash message from the request context.
func GetFlash(ctx context.Context) *FlashMessage {
	v, _ := ctx.Value(FlashKey).(*FlashMessage)
	return v
}

// DefaultFOStack returns the standard middleware stack for the galfo FO.
// Middleware is ordered: Maintenance → HeadToGet → SecurityHeaders →
// MaxFormBody → TraceID → RateLimiter → Flash. The returned MaintenanceMode
// handle allows callers to set a custom page and call StartReloader. Health
// checks, static assets, and blob handles bypass maintenance: a gallery
// page rendered just before the flag flipped may still resolve its handles.
func DefaultFOStack(db *sql.DB) ([]func(http.Handler) http.Handler, *MaintenanceMode) {
	rl := NewRateLimiter(db, "/blob/", "/static/")
	mm := NewMaintenanceMode(db, "/healthz", "/static/", "/blob/")
	return []func(http.Handler) http.Handler{
		mm.Middleware,
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxFormBody(64 * 1024),
		TraceID,
		rl.Middleware,
		Flash,
	}, mm
}
