// Package blobstore holds fetched media payloads in memory and hands out
// opaque, revocable handles to them. A handle is the only way the render
// surface can address a payload: it maps to a short-lived local URL
// ("/blob/<handle>") that stops resolving the moment the handle is revoked.
//
// The contract mirrors the browser object-URL discipline: install once,
// revoke exactly once, second revoke is a no-op. Nothing is ever written to
// disk and nothing survives process restart.
package blobstore

import (
	"log/slog"
	"sync"

	"github.com/hazyhaar/galfo/idgen"
)

// Handle is an opaque reference to an installed blob. The empty string is
// never a valid handle.
type Handle = string

// Blob is an installed payload. Data is owned by the store once installed;
// callers must not mutate it afterwards.
type Blob struct {
	Data        []byte
	ContentType string
}

// Store is an in-memory, reference-by-handle blob store. Safe for concurrent
// use. Revoke is idempotent so double-teardown races are harmless.
type Store struct {
	mu      sync.RWMutex
	blobs   map[Handle]Blob
	closed  bool
	newID   idgen.Generator
	logger  *slog.Logger
	maxLive int
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets a custom handle generator (tests use deterministic ones).
func WithIDGenerator(gen idgen.Generator) Option {
	return func(s *Store) { s.newID = gen }
}

// WithLogger sets the logger used for lifecycle warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMaxLive caps the number of simultaneously installed handles. 0 (the
// default) means unlimited. Install returns "" when the cap is reached.
func WithMaxLive(n int) Option {
	return func(s *Store) { s.maxLive = n }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		blobs:  make(map[Handle]Blob),
		newID:  idgen.Prefixed("blob_", idgen.Default),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Install stores a payload and returns its handle. Installs after Close, or
// past the WithMaxLive cap, return ""; callers treat that as a failed
// allocation, never as a dangling reference.
func (s *Store) Install(data []byte, contentType string) Handle {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ""
	}
	if s.maxLive > 0 && len(s.blobs) >= s.maxLive {
		s.logger.Warn("blobstore: handle cap reached, refusing install",
			"live", len(s.blobs), "max", s.maxLive)
		return ""
	}

	h := s.newID()
	s.blobs[h] = Blob{Data: data, ContentType: contentType}
	return h
}

// Revoke releases the handle. Revoking an unknown or already-revoked handle
// is a no-op.
func (s *Store) Revoke(h Handle) {
	if h == "" {
		return
	}
	s.mu.Lock()
	delete(s.blobs, h)
	s.mu.Unlock()
}

// Get returns the blob for a live handle.
func (s *Store) Get(h Handle) (Blob, bool) {
	if h == "" {
		return Blob{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[h]
	return b, ok
}

// Live returns the number of currently installed handles.
func (s *Store) Live() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Close revokes every outstanding handle and rejects further installs.
// Used at process shutdown; outstanding revokes arriving later are no-ops.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if n := len(s.blobs); n > 0 {
		s.logger.Info("blobstore: revoking outstanding handles on close", "count", n)
	}
	s.blobs = make(map[Handle]Blob)
	s.closed = true
}
