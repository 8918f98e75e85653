package medialoader

import (
	"context"
	"errors"
)

// Payload is the raw result of an authenticated media fetch.
type Payload struct {
	Data        []byte
	ContentType string
}

// ErrFetchFailed is the single failure class the loader distinguishes.
// Transport errors, non-success statuses, and undecodable responses all wrap
// it; the render surface never learns which one occurred.
var ErrFetchFailed = errors.New("medialoader: fetch failed")

// Fetcher performs one authenticated request per call. Implementations must
// return an error wrapping ErrFetchFailed on any failure and must not return
// partial payloads.
type Fetcher interface {
	Fetch(ctx context.Context, identity string) (Payload, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, identity string) (Payload, error)

func (f FetcherFunc) Fetch(ctx context.Context, identity string) (Payload, error) {
	return f(ctx, identity)
}

// HandleStore is the slice of the blob store the loader needs: allocate a
// local handle from a payload, and release it. Revoke must be idempotent.
// *blobstore.Store satisfies it.
type HandleStore interface {
	Install(data []byte, contentType string) string
	Revoke(handle string)
}
