// Package fetcher wraps a single-attempt transport with bounded retries,
// full-jitter exponential backoff, a process-wide in-flight cap and per-host
// rate limiting.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/ratings-crawler/internal/crawler"
	"github.com/JakeFAU/ratings-crawler/internal/metrics"
)

// ErrRetriesExhausted marks a URL that failed on every allowed attempt.
var ErrRetriesExhausted = errors.New("retries exhausted")

// StatusError reports a response with a status other than 200.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Error is returned once the retry budget for a URL is spent. It matches
// ErrRetriesExhausted and the last underlying cause under errors.Is/As.
type Error struct {
	URL      string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %v after %d attempts: %v", e.URL, ErrRetriesExhausted, e.Attempts, e.Err)
}

// Unwrap exposes both the sentinel and the last cause.
func (e *Error) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Err}
}

// RateLimiter paces requests per host.
type RateLimiter interface {
	Wait(ctx context.Context, url string) error
}

// Config controls retry and concurrency limits.
type Config struct {
	MaxRetries  int
	Backoff     Backoff
	MaxInflight int64
}

// Fetcher implements crawler.Fetcher on top of a crawler.Transport.
type Fetcher struct {
	transport  crawler.Transport
	limiter    RateLimiter
	inflight   *semaphore.Weighted
	maxRetries int
	backoff    Backoff
	pauser     crawler.Pauser
	logger     *zap.Logger
}

// New builds a Fetcher. limiter may be nil; MaxInflight <= 0 leaves requests uncapped.
func New(transport crawler.Transport, limiter RateLimiter, cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	var inflight *semaphore.Weighted
	if cfg.MaxInflight > 0 {
		inflight = semaphore.NewWeighted(cfg.MaxInflight)
	}
	return &Fetcher{
		transport:  transport,
		limiter:    limiter,
		inflight:   inflight,
		maxRetries: maxRetries,
		backoff:    cfg.Backoff.withDefaults(),
		pauser:     crawler.TimerPauser{},
		logger:     logger,
	}
}

// Fetch returns the body of a 200 response. Transport errors and other
// statuses are retried up to the configured budget with a full-jitter wait
// between attempts; context cancellation stops immediately.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < f.maxRetries; attempt++ {
		body, err := f.attempt(ctx, url)
		if err == nil {
			return body, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, ctxErr)
		}
		lastErr = err
		if attempt == f.maxRetries-1 {
			break
		}
		delay := f.backoff.Delay(attempt)
		f.logger.Warn("fetch attempt failed, backing off",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", f.maxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		metrics.ObserveFetchRetry()
		f.pauser.Pause(ctx, delay)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, ctxErr)
		}
	}
	metrics.ObserveFetchExhausted()
	f.logger.Error("fetch retries exhausted",
		zap.String("url", url),
		zap.Int("attempts", f.maxRetries),
		zap.Error(lastErr),
	)
	return nil, &Error{URL: url, Attempts: f.maxRetries, Err: lastErr}
}

func (f *Fetcher) attempt(ctx context.Context, url string) ([]byte, error) {
	if f.inflight != nil {
		if err := f.inflight.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("acquire inflight slot: %w", err)
		}
		defer f.inflight.Release(1)
	}
	metrics.IncInflight()
	defer metrics.DecInflight()

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, url); err != nil {
			return nil, err
		}
	}
	resp, err := f.transport.Get(ctx, url)
	if err != nil {
		metrics.ObserveFetchAttempt(url, "error")
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		metrics.ObserveFetchAttempt(url, "status_"+strconv.Itoa(resp.StatusCode))
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}
	metrics.ObserveFetchAttempt(url, "ok")
	return resp.Body, nil
}
