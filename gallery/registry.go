package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/galfo/idgen"
	"github.com/hazyhaar/galfo/medialoader"
	"github.com/hazyhaar/galfo/observability"
)

// ErrSlotNotFound is returned for unknown or already torn down slot IDs.
var ErrSlotNotFound = errors.New("gallery: slot not found")

// Registry owns the live slots of one process. Slots idle longer than the
// TTL are torn down by the janitor, releasing their blob handles.
type Registry struct {
	store   medialoader.HandleStore
	fetcher medialoader.Fetcher
	ttl     time.Duration
	newID   idgen.Generator
	logger  *slog.Logger
	metrics *observability.MetricsManager

	mu     sync.Mutex
	slots  map[string]*Slot
	closed bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTTL sets the idle lifetime of a slot. Default 10 minutes.
func WithTTL(d time.Duration) RegistryOption {
	return func(r *Registry) { r.ttl = d }
}

// WithIDGenerator sets a custom slot ID generator.
func WithIDGenerator(gen idgen.Generator) RegistryOption {
	return func(r *Registry) { r.newID = gen }
}

// WithLogger sets the registry logger. Default slog.Default().
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics records fetch duration, fetch failures and stale-result
// discards into the metrics timeseries.
func WithMetrics(mm *observability.MetricsManager) RegistryOption {
	return func(r *Registry) { r.metrics = mm }
}

// NewRegistry creates an empty registry backed by the given handle store
// and fetcher.
func NewRegistry(store medialoader.HandleStore, fetcher medialoader.Fetcher, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:   store,
		fetcher: fetcher,
		ttl:     10 * time.Minute,
		newID:   idgen.Prefixed("slot_", idgen.Default),
		logger:  slog.Default(),
		slots:   make(map[string]*Slot),
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics != nil {
		r.fetcher = timedFetcher{next: r.fetcher, mm: r.metrics}
	}
	return r
}

// timedFetcher wraps the registry fetcher with timing and failure counters.
type timedFetcher struct {
	next medialoader.Fetcher
	mm   *observability.MetricsManager
}

// onDiscard returns the stale-discard counter hook, nil without metrics.
func (r *Registry) onDiscard() func() {
	if r.metrics == nil {
		return nil
	}
	return func() {
		r.metrics.RecordSimple(observability.MetricStaleDiscardCount, 1, "count")
	}
}

func (f timedFetcher) Fetch(ctx context.Context, identity string) (medialoader.Payload, error) {
	start := time.Now()
	p, err := f.next.Fetch(ctx, identity)
	f.mm.RecordSimple(observability.MetricFetchDurationMs,
		float64(time.Since(start).Milliseconds()), "milliseconds")
	if err != nil {
		f.mm.RecordSimple(observability.MetricFetchFailureCount, 1, "count")
	}
	return p, err
}

// Create registers a new slot. A non-empty identity starts the first fetch
// immediately.
func (r *Registry) Create(ctx context.Context, kind, identity, fallback string) (*Slot, error) {
	if !validKind(kind) {
		return nil, fmt.Errorf("gallery: invalid kind %q", kind)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("gallery: registry closed")
	}
	s := newSlot(r.newID(), kind, fallback, r.store, r.fetcher, r.onDiscard())
	r.slots[s.ID] = s
	r.mu.Unlock()

	if identity != "" {
		s.Request(ctx, identity)
	}
	return s, nil
}

// Get returns a live slot and refreshes its idle timer.
func (r *Registry) Get(id string) (*Slot, error) {
	r.mu.Lock()
	s, ok := r.slots[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrSlotNotFound
	}
	s.touch()
	return s, nil
}

// Delete tears a slot down and removes it from the registry.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.slots[id]
	if ok {
		delete(r.slots, id)
	}
	r.mu.Unlock()
	if !ok {
		return ErrSlotNotFound
	}
	s.Teardown()
	return nil
}

// Live returns the number of registered slots.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Sweep tears down slots idle longer than the TTL and returns the count.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	var expired []*Slot
	for id, s := range r.slots {
		if now.Sub(s.lastTouched()) > r.ttl {
			delete(r.slots, id)
			expired = append(expired, s)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Teardown()
		r.logger.Debug("slot expired", "slot_id", s.ID)
	}
	return len(expired)
}

// RunJanitor sweeps at the given interval until ctx is cancelled.
func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Sweep(now); n > 0 {
				r.logger.Info("janitor swept idle slots", "count", n)
			}
		}
	}
}

// Close tears down every slot. Further Create calls fail.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	slots := make([]*Slot, 0, len(r.slots))
	for _, s := range r.slots {
		slots = append(slots, s)
	}
	r.slots = make(map[string]*Slot)
	r.mu.Unlock()

	for _, s := range slots {
		s.Teardown()
	}
}
