package fetcher

import (
	"time"

	"github.com/JakeFAU/ratings-crawler/internal/crawler"
)

const (
	// DefaultMaxRetries is the attempt budget per URL.
	DefaultMaxRetries = 5

	maxShift = 20
)

// Backoff computes full-jitter exponential waits: after failed attempt n
// (0-based) the wait is uniform in [0, Base * 2^n].
type Backoff struct {
	Base   time.Duration
	Jitter crawler.Jitter
}

func (b Backoff) withDefaults() Backoff {
	if b.Base < 0 {
		b.Base = 0
	}
	if b.Jitter == nil {
		b.Jitter = crawler.UniformJitter
	}
	return b
}

// Ceiling returns the upper bound of the wait after attempt.
func (b Backoff) Ceiling(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxShift {
		attempt = maxShift
	}
	return b.Base << uint(attempt)
}

// Delay draws the wait after attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	b = b.withDefaults()
	return b.Jitter(0, b.Ceiling(attempt))
}
