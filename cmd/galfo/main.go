// Command galfo is the HOROS media gallery front-office: it fetches
// protected media from the back-office with the visitor's session and
// re-serves it through short-lived in-memory blob handles.
//
// Usage:
//
//	galfo -config galfo.yaml
//	GALFO_BO_URL=https://bo.example galfo
//
// Secrets come from the environment: GALFO_JWT_SECRET (session validation),
// GALFO_ADMIN_USER / GALFO_ADMIN_HASH (bcrypt, admin screen).
package main

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/galfo/account"
	"github.com/hazyhaar/galfo/auth"
	"github.com/hazyhaar/galfo/authmedia"
	"github.com/hazyhaar/galfo/blobstore"
	"github.com/hazyhaar/galfo/categories"
	"github.com/hazyhaar/galfo/dbopen"
	"github.com/hazyhaar/galfo/exporter"
	"github.com/hazyhaar/galfo/feedback"
	"github.com/hazyhaar/galfo/gallery"
	"github.com/hazyhaar/galfo/horosafe"
	"github.com/hazyhaar/galfo/observability"
	"github.com/hazyhaar/galfo/shield"
)

func main() {
	configPath := flag.String("config", "", "path to galfo.yaml config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath); err != nil {
		logger.Error("galfo: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	jwtSecret := []byte(os.Getenv("GALFO_JWT_SECRET"))
	if err := horosafe.ValidateSecret(jwtSecret); err != nil {
		return fmt.Errorf("GALFO_JWT_SECRET: %w", err)
	}
	adminUser := env("GALFO_ADMIN_USER", "admin")
	adminHash := os.Getenv("GALFO_ADMIN_HASH")

	// Application database.
	db, err := dbopen.Open(cfg.DBPath, dbopen.WithSchema(shield.Schema), dbopen.WithMkdirAll())
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	// Observability database, separate to avoid write contention.
	obsDB, err := dbopen.Open(cfg.ObsDBPath, dbopen.WithSchema(observability.Schema), dbopen.WithMkdirAll())
	if err != nil {
		return fmt.Errorf("open obs db: %w", err)
	}
	defer obsDB.Close()

	events := observability.NewEventLogger(obsDB)
	metrics := observability.NewMetricsManager(obsDB, 100, 5*time.Second)
	defer metrics.Close()

	// BO media client + account proxy share a liveness probe.
	boOpts := []authmedia.Option{
		authmedia.WithHTTPClient(&http.Client{Timeout: cfg.BackOffice.Timeout}),
		authmedia.WithMaxBody(int64(cfg.BackOffice.MaxBodyMiB) << 20),
		authmedia.WithRetry(cfg.BackOffice.Retries, 200*time.Millisecond),
		authmedia.WithLogger(logger),
	}
	if cfg.BackOffice.AllowPrivate {
		boOpts = append(boOpts, authmedia.WithAllowPrivate())
	}
	boClient, err := authmedia.New(cfg.BackOffice.URL, boOpts...)
	if err != nil {
		return fmt.Errorf("bo client: %w", err)
	}
	probe := newBOProbe(ctx, cfg.BackOffice.URL, logger)
	boClient.HealthCheck = probe.healthy

	accounts := account.New(cfg.BackOffice.URL, cfg.CookieDomain, cfg.Secure)
	accounts.HealthCheck = probe.healthy

	// Blob store + render slot registry.
	blobs := blobstore.New(
		blobstore.WithLogger(logger),
		blobstore.WithMaxLive(cfg.Slots.MaxBlobs),
	)
	defer blobs.Close()

	registry := gallery.NewRegistry(blobs, boClient.ContextFetcher(),
		gallery.WithTTL(cfg.Slots.TTL),
		gallery.WithLogger(logger),
		gallery.WithMetrics(metrics),
	)
	defer registry.Close()
	go registry.RunJanitor(ctx, cfg.Slots.JanitorInterval)
	go recordGauges(ctx, metrics, blobs, registry)
	go runRetention(ctx, obsDB, cfg.Retention, logger)

	// Stores and feature widgets.
	catStore, err := categories.New(db)
	if err != nil {
		return err
	}
	widget, err := feedback.New(feedback.Config{
		DB:      db,
		AppName: "galfo",
		UserIDFn: func(r *http.Request) string {
			if c := auth.GetClaims(r.Context()); c != nil {
				return c.UserID
			}
			return ""
		},
	})
	if err != nil {
		return err
	}

	// Router.
	r := chi.NewRouter()
	stack, mm := shield.DefaultFOStack(db)
	mm.StartReloader(ctx.Done())
	for _, mw := range stack {
		r.Use(mw)
	}
	r.Use(auth.Middleware(jwtSecret)) // soft parse, enforcement per route

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	page := gallery.NewPage(catStore)
	r.Mount("/static", page.Static())
	r.Mount("/feedback", http.StripPrefix("/feedback", widget.Handler()))

	// Session endpoints proxied to the BO.
	r.Get("/login", loginPage)
	r.Post("/login", accounts.LoginHandler(shield.SetFlash))
	r.Post("/logout", accounts.LogoutHandler(shield.SetFlash))

	// Authenticated surface.
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Mount("/blob", http.StripPrefix("/blob", blobs.Handler()))
		r.Mount("/gallery", page.Routes())
		r.Mount("/api", apiRoutes(registry, catStore, events))
		r.Mount("/export", exporter.New(catStore, widget, exporter.WithEvents(events)).Routes())
		r.Get("/account", accountPage)
		r.Post("/account/password", accounts.ChangePasswordHandler(shield.SetFlash))
	})

	// Admin screen, gated by bcrypt basic auth.
	r.Group(func(r chi.Router) {
		r.Use(adminGate(adminUser, adminHash, logger))
		r.Get("/admin", adminPage(mm, widget))
		r.Post("/admin/maintenance", mm.AdminHandler())
		r.Post("/admin/feedback", widget.AdminSettingsHandler())
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("galfo starting", "port", cfg.Port, "bo", cfg.BackOffice.URL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("galfo shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("galfo stopped")
	return nil
}

// apiRoutes groups the slot lifecycle and the taxonomy/inventory CRUD.
func apiRoutes(registry *gallery.Registry, catStore *categories.Store, events *observability.EventLogger) http.Handler {
	r := chi.NewRouter()
	r.Mount("/slots", gallery.NewAPI(registry, "/blob").Routes())
	r.Mount("/", categories.NewHandlers(catStore, events).Routes())
	return r
}

// adminGate enforces HTTP basic auth against the bcrypt hash from the
// environment. With no hash configured the admin screen is disabled.
func adminGate(user, hash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hash == "" {
				http.NotFound(w, r)
				return
			}
			u, p, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
				bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) != nil {
				logger.Warn("admin auth refused", "remote", r.RemoteAddr)
				w.Header().Set("WWW-Authenticate", `Basic realm="galfo admin"`)
				http.Error(w, "non autorisé", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// boProbe polls the BO health endpoint so auth and media calls can fail
// fast while it is down. It starts optimistic: the first real call decides
// until the prober has sampled.
type boProbe struct {
	up atomic.Bool
}

func newBOProbe(ctx context.Context, boURL string, logger *slog.Logger) *boProbe {
	p := &boProbe{}
	p.up.Store(true)
	client := &http.Client{Timeout: 5 * time.Second}
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				resp, err := client.Get(boURL + "/healthz")
				up := err == nil && resp.StatusCode == http.StatusOK
				if resp != nil {
					resp.Body.Close()
				}
				if up != p.up.Swap(up) {
					logger.Warn("bo liveness changed", "up", up)
				}
			}
		}
	}()
	return p
}

func (p *boProbe) healthy() bool { return p.up.Load() }

// recordGauges samples the live handle and slot counts into the metrics
// timeseries.
func recordGauges(ctx context.Context, mm *observability.MetricsManager, blobs *blobstore.Store, reg *gallery.Registry) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			mm.RecordSimple(observability.MetricBlobHandlesLive, float64(blobs.Live()), "count")
			mm.RecordSimple(observability.MetricSlotsLive, float64(reg.Live()), "count")
			mm.RecordSimple(observability.MetricGoroutinesCount, float64(runtime.NumGoroutine()), "count")
			mm.RecordSimple(observability.MetricMemoryAllocMB, float64(ms.Alloc)/(1<<20), "megabytes")
		}
	}
}

// runRetention applies the observability retention policy once a day.
func runRetention(ctx context.Context, obsDB *sql.DB, cfg RetentionConfig, logger *slog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := observability.Cleanup(ctx, obsDB, observability.RetentionConfig{
				EventLogsDays: cfg.EventLogsDays,
				MetricsDays:   cfg.MetricsDays,
			})
			if err != nil {
				logger.Error("observability retention", "error", err)
			}
		}
	}
}
