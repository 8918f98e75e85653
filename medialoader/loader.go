// Package medialoader fetches protected media from behind the BO
// authentication boundary and exposes each payload to the render surface as
// a revocable local handle, while keeping the handle's lifetime airtight
// under rapidly changing requests.
//
// One Loader serves one render instance (one media slot). Every Request
// bumps the instance's epoch; a fetch result may only touch visible state if
// its epoch is still current when it completes. Completion order is
// irrelevant: the last request wins by epoch, not by arrival time. Results
// that lost the race are discarded, and any handle they allocated is revoked
// on the spot, so installed handles are released exactly once no matter how
// the race unfolds.
package medialoader

import (
	"context"
	"log/slog"
	"sync"
)

// Loader drives the fetch/install/revoke lifecycle for a single render
// instance. All methods are safe for concurrent use.
type Loader struct {
	store     HandleStore
	fetcher   Fetcher
	logger    *slog.Logger
	onChange  func(State)
	onDiscard func()

	mu     sync.Mutex
	epoch  int64
	torn   bool
	cancel context.CancelFunc // cancels the in-flight fetch, advisory only
	state  State
	handle string // installed handle, "" when none
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used for discarded-result diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(ld *Loader) { ld.logger = l }
}

// WithOnChange registers a callback fired on every committed state
// transition. It runs with the loader's internal lock held, so it must
// return quickly and must not call back into the Loader.
func WithOnChange(fn func(State)) Option {
	return func(ld *Loader) { ld.onChange = fn }
}

// WithOnDiscard registers a callback fired each time a stale result is
// thrown away. It runs outside the loader lock.
func WithOnDiscard(fn func()) Option {
	return func(ld *Loader) { ld.onDiscard = fn }
}

// New creates a Loader in PhaseIdle. The store converts payloads into local
// handles; the fetcher performs the authenticated requests.
func New(store HandleStore, fetcher Fetcher, opts ...Option) *Loader {
	ld := &Loader{
		store:   store,
		fetcher: fetcher,
		logger:  slog.Default(),
		state:   State{Phase: PhaseIdle},
	}
	for _, o := range opts {
		o(ld)
	}
	return ld
}

// State returns the current projection.
func (ld *Loader) State() State {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	return ld.state
}

// Request declares the desired identity. An empty identity revokes whatever
// is displayed and settles in PhaseIdle without issuing a fetch. A non-empty
// identity supersedes any in-flight fetch and starts a new one; ctx should
// outlive the caller (it bounds the fetch, not the calling request).
//
// Requests after Teardown are ignored.
func (ld *Loader) Request(ctx context.Context, identity string) {
	ld.mu.Lock()
	if ld.torn {
		ld.mu.Unlock()
		return
	}

	// Supersede: everything tagged with an older epoch is now inert.
	ld.epoch++
	epoch := ld.epoch
	if ld.cancel != nil {
		ld.cancel()
		ld.cancel = nil
	}

	// The previously displayed handle dies with the identity that owned it,
	// exactly once: clearing ld.handle here is what keeps the completion
	// path from revoking it a second time.
	if prev := ld.handle; prev != "" {
		ld.handle = ""
		ld.store.Revoke(prev)
	}

	if identity == "" {
		ld.setState(State{Phase: PhaseIdle})
		ld.mu.Unlock()
		return
	}

	fctx, cancel := context.WithCancel(ctx)
	ld.cancel = cancel
	ld.setState(State{Phase: PhaseLoading, Identity: identity})
	ld.mu.Unlock()

	go ld.run(fctx, epoch, identity)
}

// Teardown permanently supersedes all epochs and revokes the installed
// handle. In-flight fetches finish on their own; their results are discarded
// and any handle they allocate is revoked immediately. Idempotent.
func (ld *Loader) Teardown() {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	if ld.torn {
		return
	}
	ld.torn = true
	ld.epoch++
	if ld.cancel != nil {
		ld.cancel()
		ld.cancel = nil
	}
	if prev := ld.handle; prev != "" {
		ld.handle = ""
		ld.store.Revoke(prev)
	}
}

// run is the only suspension point: it performs the fetch off the caller's
// goroutine and funnels the result through complete.
func (ld *Loader) run(ctx context.Context, epoch int64, identity string) {
	p, err := ld.fetcher.Fetch(ctx, identity)
	if err != nil {
		ld.complete(epoch, identity, "", err)
		return
	}
	// Allocate the handle before checking currency, mirroring the
	// object-URL discipline: the stale path below then exercises the
	// mandatory revoke instead of silently never allocating.
	h := ld.store.Install(p.Data, p.ContentType)
	ld.complete(epoch, identity, h, nil)
}

// complete applies a fetch result if and only if its epoch is still current.
// Stale results, superseded or post-teardown, successful or failed, mutate
// nothing; a stale handle is revoked before returning.
func (ld *Loader) complete(epoch int64, identity, h string, fetchErr error) {
	ld.mu.Lock()
	if ld.torn || epoch != ld.epoch {
		ld.mu.Unlock()
		if h != "" {
			ld.store.Revoke(h)
		}
		ld.logger.Debug("medialoader: discarded stale result",
			"identity", identity, "epoch", epoch, "failed", fetchErr != nil)
		if ld.onDiscard != nil {
			ld.onDiscard()
		}
		return
	}
	defer ld.mu.Unlock()

	// The fetch is over; release its context so it detaches from the parent.
	if ld.cancel != nil {
		ld.cancel()
		ld.cancel = nil
	}

	if fetchErr != nil {
		ld.setState(State{Phase: PhaseFailed, Identity: identity})
		ld.logger.Warn("medialoader: fetch failed",
			"identity", identity, "error", fetchErr)
		return
	}
	if h == "" {
		// The store refused the allocation (closed or at capacity); without
		// a handle there is nothing to display.
		ld.setState(State{Phase: PhaseFailed, Identity: identity})
		ld.logger.Warn("medialoader: handle allocation refused", "identity", identity)
		return
	}

	// At most one installed handle per instance: replace, then revoke the
	// previous one.
	prev := ld.handle
	ld.handle = h
	if prev != "" {
		ld.store.Revoke(prev)
	}
	ld.setState(State{Phase: PhaseReady, Identity: identity, Handle: h})
}

// setState commits a transition. Callers hold ld.mu.
func (ld *Loader) setState(s State) {
	ld.state = s
	if ld.onChange != nil {
		ld.onChange(s)
	}
}
