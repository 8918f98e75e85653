// Package authmedia is the FO-side client for the BO's protected media API.
// It issues one authenticated request per media identity, forwarding the
// ambient session token, and returns the raw binary payload or a failure
// that wraps medialoader.ErrFetchFailed. The BO URL is never exposed to the
// user; the FO re-serves payloads through revocable blob handles.
package authmedia

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/galfo/horosafe"
	"github.com/hazyhaar/galfo/kit"
	"github.com/hazyhaar/galfo/medialoader"
)

// defaultMaxBody caps media payload reads (32 MiB). Larger assets belong on
// a CDN, not inside FO process memory.
const defaultMaxBody int64 = 32 << 20

// Client calls the BO internal media API.
type Client struct {
	boURL   string
	client  *http.Client
	logger  *slog.Logger
	maxBody int64
	retries int
	backoff time.Duration
	private bool

	// HealthCheck is an optional callback reporting whether the BO is
	// reachable. When set and returning false, fetches fail fast instead of
	// waiting for the HTTP timeout.
	HealthCheck func() bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (tests, custom TLS).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithLogger sets the logger for fetch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMaxBody caps the payload size read from the BO. Default 32 MiB.
func WithMaxBody(n int64) Option {
	return func(c *Client) { c.maxBody = n }
}

// WithRetry enables up to maxRetries retries with exponential backoff for
// transport errors and 5xx responses. 4xx responses never retry.
func WithRetry(maxRetries int, baseBackoff time.Duration) Option {
	return func(c *Client) {
		c.retries = maxRetries
		c.backoff = baseBackoff
	}
}

// WithAllowPrivate skips the SSRF check on the BO URL. Required when the BO
// lives on a private address (single-host deployments, tests).
func WithAllowPrivate() Option {
	return func(c *Client) { c.private = true }
}

// New creates a media client for the given BO base URL, e.g.
// "https://rv.docbusinessia.fr". Unless WithAllowPrivate is given, the URL
// is validated against private/loopback targets at construction time.
func New(boURL string, opts ...Option) (*Client, error) {
	c := &Client{
		boURL:   strings.TrimRight(boURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
		maxBody: defaultMaxBody,
		backoff: 250 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	if !c.private {
		if err := horosafe.ValidateURL(boURL); err != nil {
			return nil, fmt.Errorf("authmedia: %w", err)
		}
	}
	return c, nil
}

// FetchMedia retrieves the binary representation of identity from
// GET {bo}/api/internal/media/{identity}, authenticating with the session
// token. All failures wrap medialoader.ErrFetchFailed and carry no payload.
func (c *Client) FetchMedia(ctx context.Context, token, identity string) (medialoader.Payload, error) {
	if err := horosafe.ValidateMediaPath(identity); err != nil {
		return medialoader.Payload{}, fmt.Errorf("%w: %v", medialoader.ErrFetchFailed, err)
	}
	if c.HealthCheck != nil && !c.HealthCheck() {
		return medialoader.Payload{}, fmt.Errorf("%w: BO unreachable", medialoader.ErrFetchFailed)
	}

	target := c.boURL + "/api/internal/media/" + escapePath(identity)

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		p, retryable, err := c.fetchOnce(ctx, target, token)
		if err == nil {
			return p, nil
		}
		lastErr = err

		if !retryable || ctx.Err() != nil || attempt == c.retries {
			break
		}
		wait := c.backoff * (1 << uint(attempt))
		c.logger.WarnContext(ctx, "authmedia: retrying fetch",
			"identity", identity,
			"attempt", attempt+1,
			"max_retries", c.retries,
			"backoff_ms", wait.Milliseconds(),
			"error", err)
		select {
		case <-ctx.Done():
			return medialoader.Payload{}, fmt.Errorf("%w: %v", medialoader.ErrFetchFailed, ctx.Err())
		case <-time.After(wait):
		}
	}
	return medialoader.Payload{}, lastErr
}

// fetchOnce performs a single request. The middle return reports whether the
// failure is worth retrying (transport errors and 5xx are, 4xx is not).
func (c *Client) fetchOnce(ctx context.Context, target, token string) (medialoader.Payload, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return medialoader.Payload{}, false, fmt.Errorf("%w: create request: %v", medialoader.ErrFetchFailed, err)
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "token", Value: token})
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return medialoader.Payload{}, true, fmt.Errorf("%w: %v", medialoader.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retryable := resp.StatusCode >= 500
		return medialoader.Payload{}, retryable,
			fmt.Errorf("%w: BO returned status %d", medialoader.ErrFetchFailed, resp.StatusCode)
	}

	data, err := horosafe.LimitedReadAll(resp.Body, c.maxBody)
	if err != nil {
		return medialoader.Payload{}, false, fmt.Errorf("%w: read body: %v", medialoader.ErrFetchFailed, err)
	}
	if len(data) == 0 {
		return medialoader.Payload{}, false, fmt.Errorf("%w: empty payload", medialoader.ErrFetchFailed)
	}

	ct := resp.Header.Get("Content-Type")
	return medialoader.Payload{Data: data, ContentType: ct}, false, nil
}

// Fetcher binds a session token and satisfies medialoader.Fetcher. One
// fetcher per render instance: the token is captured when the instance is
// created and travels with every fetch it issues.
func (c *Client) Fetcher(token string) medialoader.Fetcher {
	return medialoader.FetcherFunc(func(ctx context.Context, identity string) (medialoader.Payload, error) {
		return c.FetchMedia(ctx, token, identity)
	})
}

// ContextFetcher satisfies medialoader.Fetcher by reading the session token
// from the fetch context (kit.WithToken). Use it when one fetcher is shared
// across render instances belonging to different sessions.
func (c *Client) ContextFetcher() medialoader.Fetcher {
	return medialoader.FetcherFunc(func(ctx context.Context, identity string) (medialoader.Payload, error) {
		return c.FetchMedia(ctx, kit.GetToken(ctx), identity)
	})
}

// escapePath escapes each segment of a media identity while preserving the
// segment separators.
func escapePath(identity string) string {
	segs := strings.Split(identity, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
