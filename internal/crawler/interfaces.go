package crawler

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned by BlobStore.GetObject for missing paths.
var ErrObjectNotFound = errors.New("object not found")

// Fetcher retrieves the body of a URL, retrying transient failures.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Transport performs a single HTTP GET without retrying.
type Transport interface {
	Get(ctx context.Context, url string) (Response, error)
}

// PageScraper turns one listing page into a tagged result.
type PageScraper interface {
	ScrapePage(body []byte) (PageResult, error)
}

// URLBuilder maps an entity key and a 1-based page number to a page URL.
type URLBuilder func(key string, page int) string

// BlobStore reads and writes artifacts and returns a URI for each write.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
}

// Publisher pushes run events to Pub/Sub (or similar). event names the event
// type and travels as a message attribute.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) (string, error)
}

// Hasher computes digests for integrity checks.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Pauser blocks for a delay or until the context ends.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// Jitter picks a duration in [lo, hi].
type Jitter func(lo, hi time.Duration) time.Duration
