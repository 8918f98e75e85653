package medialoader

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/galfo/blobstore"
)

// trackingStore wraps a real blob store and records every install and revoke
// so tests can assert the exactly-once contract.
type trackingStore struct {
	inner *blobstore.Store

	mu        sync.Mutex
	installed []string
	revokes   map[string]int
	revoked   chan string
}

func newTrackingStore() *trackingStore {
	return &trackingStore{
		inner:   blobstore.New(),
		revokes: make(map[string]int),
		revoked: make(chan string, 32),
	}
}

func (ts *trackingStore) Install(data []byte, contentType string) string {
	h := ts.inner.Install(data, contentType)
	ts.mu.Lock()
	ts.installed = append(ts.installed, h)
	ts.mu.Unlock()
	return h
}

func (ts *trackingStore) Revoke(h string) {
	ts.mu.Lock()
	ts.revokes[h]++
	ts.mu.Unlock()
	ts.inner.Revoke(h)
	ts.revoked <- h
}

func (ts *trackingStore) revokeCount(h string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.revokes[h]
}

func (ts *trackingStore) waitRevoke(t *testing.T) string {
	t.Helper()
	select {
	case h := <-ts.revoked:
		return h
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a revoke")
		return ""
	}
}

// fetchCall is one in-flight stub fetch. The test decides its outcome by
// sending on release; the stub ignores context cancellation on purpose:
// cancellation is advisory and the loader must cope with results that arrive
// after supersede or teardown.
type fetchCall struct {
	identity string
	release  chan fetchResult
}

type fetchResult struct {
	p   Payload
	err error
}

func (c *fetchCall) succeed(data string) {
	c.release <- fetchResult{p: Payload{Data: []byte(data), ContentType: "image/jpeg"}}
}

func (c *fetchCall) fail() {
	c.release <- fetchResult{err: fmt.Errorf("%w: stub transport error", ErrFetchFailed)}
}

type stubFetcher struct {
	calls chan *fetchCall
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{calls: make(chan *fetchCall, 32)}
}

func (f *stubFetcher) Fetch(_ context.Context, identity string) (Payload, error) {
	c := &fetchCall{identity: identity, release: make(chan fetchResult, 1)}
	f.calls <- c
	r := <-c.release
	return r.p, r.err
}

func (f *stubFetcher) next(t *testing.T) *fetchCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a fetch call")
		return nil
	}
}

// harness wires a loader to the stubs and collects state transitions.
type harness struct {
	store   *trackingStore
	fetcher *stubFetcher
	loader  *Loader
	states  chan State
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   newTrackingStore(),
		fetcher: newStubFetcher(),
		states:  make(chan State, 32),
	}
	h.loader = New(h.store, h.fetcher, WithOnChange(func(s State) {
		h.states <- s
	}))
	t.Cleanup(h.loader.Teardown)
	return h
}

func (h *harness) waitPhase(t *testing.T, want Phase) State {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-h.states:
			if s.Phase == want {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for phase %v (current %v)", want, h.loader.State().Phase)
			return State{}
		}
	}
}

func TestEmptyIdentity_NoFetchIssued(t *testing.T) {
	h := newHarness(t)

	h.loader.Request(context.Background(), "")

	if got := h.loader.State(); got.Phase != PhaseIdle {
		t.Fatalf("phase: got %v, want idle", got.Phase)
	}
	select {
	case c := <-h.fetcher.calls:
		t.Fatalf("unexpected fetch for identity %q", c.identity)
	default:
	}
}

func TestSuccess_InstallsHandle(t *testing.T) {
	h := newHarness(t)

	h.loader.Request(context.Background(), "gallery/cat.jpg")
	if s := h.waitPhase(t, PhaseLoading); s.Identity != "gallery/cat.jpg" {
		t.Fatalf("loading identity: %q", s.Identity)
	}

	h.fetcher.next(t).succeed("jpegbytes")
	s := h.waitPhase(t, PhaseReady)
	if s.Identity != "gallery/cat.jpg" || s.Handle == "" {
		t.Fatalf("ready state: %+v", s)
	}

	b, ok := h.store.inner.Get(s.Handle)
	if !ok || string(b.Data) != "jpegbytes" {
		t.Fatalf("handle does not resolve to the payload: ok=%v", ok)
	}
}

func TestFailure_ThenRetrySameIdentity(t *testing.T) {
	h := newHarness(t)

	h.loader.Request(context.Background(), "gallery/x.jpg")
	h.fetcher.next(t).fail()

	s := h.waitPhase(t, PhaseFailed)
	if s.Identity != "gallery/x.jpg" || s.Handle != "" {
		t.Fatalf("failed state: %+v", s)
	}
	if h.store.inner.Live() != 0 {
		t.Fatal("failure must not install a handle")
	}

	// Re-supplying the same identity retries from Loading.
	h.loader.Request(context.Background(), "gallery/x.jpg")
	h.waitPhase(t, PhaseLoading)
	h.fetcher.next(t).succeed("ok")
	if s := h.waitPhase(t, PhaseReady); s.Identity != "gallery/x.jpg" {
		t.Fatalf("retry ready state: %+v", s)
	}
}

func TestLastEpochWins_OutOfOrderCompletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.loader.Request(ctx, "A")
	callA := h.fetcher.next(t)
	h.loader.Request(ctx, "B")
	callB := h.fetcher.next(t)

	// B resolves first and wins.
	callB.succeed("payload-B")
	ready := h.waitPhase(t, PhaseReady)
	if ready.Identity != "B" {
		t.Fatalf("ready identity: %q, want B", ready.Identity)
	}

	// A resolves later: discarded, its handle revoked on the spot.
	callA.succeed("payload-A")
	revoked := h.store.waitRevoke(t)

	if s := h.loader.State(); s.Phase != PhaseReady || s.Identity != "B" {
		t.Fatalf("state mutated by stale result: %+v", s)
	}
	if revoked == ready.Handle {
		t.Fatal("the winning handle was revoked instead of the stale one")
	}
	if got := h.store.revokeCount(revoked); got != 1 {
		t.Fatalf("stale handle revoked %d times", got)
	}
	if h.store.inner.Live() != 1 {
		t.Fatalf("live handles: %d, want 1", h.store.inner.Live())
	}
}

func TestStaleFailure_AlsoDiscarded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.loader.Request(ctx, "A")
	callA := h.fetcher.next(t)
	h.loader.Request(ctx, "B")
	h.fetcher.next(t).succeed("payload-B")
	h.waitPhase(t, PhaseReady)

	// A's late failure must not push the loader into PhaseFailed.
	callA.fail()
	// Nothing observable happens; give the completion a moment to land.
	time.Sleep(20 * time.Millisecond)
	if s := h.loader.State(); s.Phase != PhaseReady || s.Identity != "B" {
		t.Fatalf("stale failure mutated state: %+v", s)
	}
}

func TestReplace_RevokesPreviousHandle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.loader.Request(ctx, "A")
	h.fetcher.next(t).succeed("payload-A")
	first := h.waitPhase(t, PhaseReady)

	h.loader.Request(ctx, "B")
	if h.store.waitRevoke(t) != first.Handle {
		t.Fatal("previous handle not revoked on identity change")
	}
	h.fetcher.next(t).succeed("payload-B")
	second := h.waitPhase(t, PhaseReady)

	if second.Handle == first.Handle {
		t.Fatal("handle reused across identities")
	}
	if got := h.store.revokeCount(first.Handle); got != 1 {
		t.Fatalf("previous handle revoked %d times", got)
	}
	if h.store.inner.Live() != 1 {
		t.Fatalf("live handles: %d, want 1", h.store.inner.Live())
	}
}

func TestTeardownMidFlight(t *testing.T) {
	h := newHarness(t)

	h.loader.Request(context.Background(), "A")
	call := h.fetcher.next(t)
	before := h.loader.State()

	h.loader.Teardown()
	call.succeed("payload-A")
	revoked := h.store.waitRevoke(t)

	if got := h.store.revokeCount(revoked); got != 1 {
		t.Fatalf("post-teardown handle revoked %d times", got)
	}
	if h.store.inner.Live() != 0 {
		t.Fatalf("live handles after teardown: %d", h.store.inner.Live())
	}
	// Teardown halts transitions; whatever was visible stays as-is.
	if s := h.loader.State(); s != before {
		t.Fatalf("state mutated after teardown: %+v", s)
	}
}

func TestTeardown_RevokesInstalledAndBlocksRequests(t *testing.T) {
	h := newHarness(t)

	h.loader.Request(context.Background(), "A")
	h.fetcher.next(t).succeed("payload-A")
	ready := h.waitPhase(t, PhaseReady)

	h.loader.Teardown()
	if h.store.waitRevoke(t) != ready.Handle {
		t.Fatal("installed handle not revoked on teardown")
	}
	h.loader.Teardown() // idempotent

	h.loader.Request(context.Background(), "B")
	select {
	case c := <-h.fetcher.calls:
		t.Fatalf("fetch issued after teardown for %q", c.identity)
	default:
	}
	if got := h.store.revokeCount(ready.Handle); got != 1 {
		t.Fatalf("handle revoked %d times", got)
	}
}

func TestRapidSequence_OnlyFinalResultApplies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const n = 5
	calls := make([]*fetchCall, 0, n)
	for i := 0; i < n; i++ {
		h.loader.Request(ctx, fmt.Sprintf("img-%d", i))
		calls = append(calls, h.fetcher.next(t))
	}

	// Resolve in reverse order: the final request still wins because
	// application is gated by epoch, not completion time.
	for i := n - 1; i >= 0; i-- {
		calls[i].succeed(fmt.Sprintf("payload-%d", i))
	}

	s := h.waitPhase(t, PhaseReady)
	if s.Identity != fmt.Sprintf("img-%d", n-1) {
		t.Fatalf("final identity: %q", s.Identity)
	}

	// Every stale handle is revoked; only the winner stays live.
	for i := 0; i < n-1; i++ {
		h.store.waitRevoke(t)
	}
	if live := h.store.inner.Live(); live != 1 {
		t.Fatalf("live handles: %d, want 1", live)
	}

	h.loader.Teardown()
	if h.store.waitRevoke(t) != s.Handle {
		t.Fatal("winner handle not revoked on teardown")
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	for handle, count := range h.store.revokes {
		if count != 1 {
			t.Fatalf("handle %s revoked %d times", handle, count)
		}
	}
}

func TestEmptyIdentity_RevokesDisplayedHandle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.loader.Request(ctx, "A")
	h.fetcher.next(t).succeed("payload-A")
	ready := h.waitPhase(t, PhaseReady)

	h.loader.Request(ctx, "")
	if h.store.waitRevoke(t) != ready.Handle {
		t.Fatal("handle not revoked when identity became empty")
	}
	if s := h.loader.State(); s.Phase != PhaseIdle {
		t.Fatalf("phase: %v, want idle", s.Phase)
	}
}

func TestPhaseString(t *testing.T) {
	cases := map[Phase]string{
		PhaseIdle:    "idle",
		PhaseLoading: "loading",
		PhaseReady:   "ready",
		PhaseFailed:  "failed",
		Phase(99):    "unknown",
	}
	for phase, want := range cases {
		if got := phase.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", phase, got, want)
		}
	}
}

func TestCompletion_ReleasesFetchContext(t *testing.T) {
	store := newTrackingStore()
	ctxs := make(chan context.Context, 2)
	fetcher := FetcherFunc(func(ctx context.Context, _ string) (Payload, error) {
		ctxs <- ctx
		return Payload{Data: []byte("x"), ContentType: "image/jpeg"}, nil
	})

	states := make(chan State, 8)
	ld := New(store, fetcher, WithOnChange(func(s State) { states <- s }))
	t.Cleanup(ld.Teardown)

	ld.Request(context.Background(), "photos/a.jpg")

	waitReady := func() {
		deadline := time.After(2 * time.Second)
		for {
			select {
			case s := <-states:
				if s.Phase == PhaseReady {
					return
				}
			case <-deadline:
				t.Fatal("timed out waiting for ready")
			}
		}
	}
	waitReady()

	fctx := <-ctxs
	select {
	case <-fctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("fetch context still live after the result was committed")
	}
	if fctx.Err() != context.Canceled {
		t.Fatalf("fetch context err: %v, want canceled", fctx.Err())
	}
}
