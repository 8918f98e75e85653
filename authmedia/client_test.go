package authmedia

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/galfo/kit"
	"github.com/hazyhaar/galfo/medialoader"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, append([]Option{WithAllowPrivate()}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNew_RejectsBadURL(t *testing.T) {
	if _, err := New("ftp://bo.internal"); err == nil {
		t.Fatal("expected error for non-HTTP scheme")
	}
	if _, err := New("http://127.0.0.1:9"); err == nil {
		t.Fatal("expected SSRF error for loopback without WithAllowPrivate")
	}
	if _, err := New("http://127.0.0.1:9", WithAllowPrivate()); err != nil {
		t.Fatalf("WithAllowPrivate: %v", err)
	}
}

func TestFetchMedia_Success(t *testing.T) {
	var gotPath, gotToken string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if ck, err := r.Cookie("token"); err == nil {
			gotToken = ck.Value
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("pngbytes"))
	}))

	p, err := c.FetchMedia(context.Background(), "sess-token", "2024/06/cat.png")
	if err != nil {
		t.Fatal(err)
	}
	if string(p.Data) != "pngbytes" || p.ContentType != "image/png" {
		t.Fatalf("payload: %+v", p)
	}
	if gotPath != "/api/internal/media/2024/06/cat.png" {
		t.Fatalf("path: %q", gotPath)
	}
	if gotToken != "sess-token" {
		t.Fatalf("token cookie: %q", gotToken)
	}
}

func TestFetchMedia_StatusFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))

	_, err := c.FetchMedia(context.Background(), "tok", "x.jpg")
	if !errors.Is(err, medialoader.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
}

func TestFetchMedia_EmptyBodyIsFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	_, err := c.FetchMedia(context.Background(), "tok", "x.jpg")
	if !errors.Is(err, medialoader.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
}

func TestFetchMedia_RejectsTraversal(t *testing.T) {
	called := false
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	for _, identity := range []string{"", "../secrets", "/abs/path", "a//b"} {
		if _, err := c.FetchMedia(context.Background(), "tok", identity); !errors.Is(err, medialoader.ErrFetchFailed) {
			t.Fatalf("identity %q: expected ErrFetchFailed, got %v", identity, err)
		}
	}
	if called {
		t.Fatal("invalid identities must not reach the network")
	}
}

func TestFetchMedia_BodyCap(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2048))
	}), WithMaxBody(1024))

	_, err := c.FetchMedia(context.Background(), "tok", "big.jpg")
	if !errors.Is(err, medialoader.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed for oversized body, got %v", err)
	}
}

func TestFetchMedia_Retry5xxNot4xx(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}), WithRetry(2, time.Millisecond))

	p, err := c.FetchMedia(context.Background(), "tok", "x.jpg")
	if err != nil {
		t.Fatalf("expected retry to recover: %v", err)
	}
	if string(p.Data) != "ok" || calls.Load() != 2 {
		t.Fatalf("payload %q after %d calls", p.Data, calls.Load())
	}

	var calls4xx atomic.Int32
	c2 := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls4xx.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}), WithRetry(3, time.Millisecond))

	if _, err := c2.FetchMedia(context.Background(), "tok", "x.jpg"); err == nil {
		t.Fatal("expected failure")
	}
	if calls4xx.Load() != 1 {
		t.Fatalf("4xx retried: %d calls", calls4xx.Load())
	}
}

func TestFetchMedia_HealthCheckFailFast(t *testing.T) {
	called := false
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	c.HealthCheck = func() bool { return false }

	_, err := c.FetchMedia(context.Background(), "tok", "x.jpg")
	if !errors.Is(err, medialoader.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
	if called {
		t.Fatal("fetch must fail fast when BO is known-down")
	}
}

func TestFetcher_BindsToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("token")
		if err != nil || ck.Value != "bound" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Write([]byte("ok"))
	}))

	f := c.Fetcher("bound")
	if _, err := f.Fetch(context.Background(), "x.jpg"); err != nil {
		t.Fatalf("bound fetcher: %v", err)
	}
	if _, err := c.Fetcher("wrong").Fetch(context.Background(), "x.jpg"); err == nil {
		t.Fatal("wrong token must fail")
	}
}

func TestContextFetcher_ReadsTokenFromContext(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("token")
		if err != nil || ck.Value != "ambient" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Write([]byte("ok"))
	}))

	f := c.ContextFetcher()
	ctx := kit.WithToken(context.Background(), "ambient")
	if _, err := f.Fetch(ctx, "x.jpg"); err != nil {
		t.Fatalf("context fetcher: %v", err)
	}
	if _, err := f.Fetch(context.Background(), "x.jpg"); err == nil {
		t.Fatal("missing token must fail")
	}
}

func TestEscapePath(t *testing.T) {
	if got := escapePath("a/b.c"); got != "a/b.c" {
		t.Fatalf("escapePath plain: %q", got)
	}
}
