// Package gallery is the render surface: per-slot media loading state
// projected as JSON for the browser, plus the gallery page itself.
//
// One slot is one on-screen media element. The browser polls its slot and
// swaps an <img> or <video> to the blob URL once the slot reports ready.
package gallery

import (
	"context"
	"sync"
	"time"

	"github.com/hazyhaar/galfo/medialoader"
)

// Kind selects the element the browser renders for a slot.
const (
	KindImage = "image"
	KindVideo = "video"
)

func validKind(k string) bool { return k == KindImage || k == KindVideo }

// Slot binds one loader instance to a media kind and an optional fallback
// identity shown when the requested media fails to load.
type Slot struct {
	ID       string
	Kind     string
	Fallback string

	loader *medialoader.Loader

	mu       sync.Mutex
	touched  time.Time
	fellBack bool
}

func newSlot(id, kind, fallback string, store medialoader.HandleStore, fetcher medialoader.Fetcher, onDiscard func()) *Slot {
	s := &Slot{
		ID:       id,
		Kind:     kind,
		Fallback: fallback,
		touched:  time.Now(),
	}
	opts := []medialoader.Option{medialoader.WithOnChange(s.onChange)}
	if onDiscard != nil {
		opts = append(opts, medialoader.WithOnDiscard(onDiscard))
	}
	s.loader = medialoader.New(store, fetcher, opts...)
	return s
}

// Request points the slot at a new identity. Stale in-flight results for the
// previous identity are superseded by the loader's epoch check.
func (s *Slot) Request(ctx context.Context, identity string) {
	s.mu.Lock()
	s.touched = time.Now()
	s.fellBack = false
	s.mu.Unlock()
	s.loader.Request(ctx, identity)
}

// Teardown releases the slot's loader and any installed handle.
func (s *Slot) Teardown() {
	s.loader.Teardown()
}

// onChange runs under the loader's lock; it must not call back into the
// loader synchronously. The fallback request runs on its own goroutine.
func (s *Slot) onChange(st medialoader.State) {
	if st.Phase != medialoader.PhaseFailed || s.Fallback == "" {
		return
	}
	s.mu.Lock()
	if s.fellBack || st.Identity == s.Fallback {
		s.mu.Unlock()
		return
	}
	s.fellBack = true
	s.mu.Unlock()
	go s.loader.Request(context.Background(), s.Fallback)
}

func (s *Slot) touch() {
	s.mu.Lock()
	s.touched = time.Now()
	s.mu.Unlock()
}

func (s *Slot) lastTouched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

// View is the projected render state the browser polls.
type View struct {
	SlotID   string `json:"slot_id"`
	State    string `json:"state"` // idle | loading | ready | failed
	Kind     string `json:"kind"`
	Identity string `json:"identity,omitempty"`
	Src      string `json:"src,omitempty"` // blob URL, ready only
	Fallback string `json:"fallback,omitempty"`
}

// View projects the slot's current loader state. blobPrefix is the mount
// point of the blob handler, e.g. "/blob".
func (s *Slot) View(blobPrefix string) View {
	st := s.loader.State()
	v := View{
		SlotID:   s.ID,
		State:    st.Phase.String(),
		Kind:     s.Kind,
		Identity: st.Identity,
		Fallback: s.Fallback,
	}
	if st.Phase == medialoader.PhaseReady && st.Handle != "" {
		v.Src = blobPrefix + "/" + st.Handle
	}
	return v
}
