package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Letterboxd.com/alice/films/", "letterboxd.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := pagesTotal
	Init()
	if pagesTotal == nil || pagesTotal != first {
		t.Fatal("Init() should create collectors exactly once")
	}
}

func TestObserveHelpers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(pagesTotal.WithLabelValues("records"))
	ObservePage("records")
	if got := testutil.ToFloat64(pagesTotal.WithLabelValues("records")); got != before+1 {
		t.Errorf("expected pages counter to grow by 1, got %f -> %f", before, got)
	}

	beforeEntities := testutil.ToFloat64(entitiesTotal.WithLabelValues("failed"))
	ObserveEntity("failed")
	if got := testutil.ToFloat64(entitiesTotal.WithLabelValues("failed")); got != beforeEntities+1 {
		t.Errorf("expected entity counter to grow by 1, got %f", got)
	}

	beforeAttempts := testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("letterboxd.com", "ok"))
	ObserveFetchAttempt("https://letterboxd.com/members/popular/", "ok")
	if got := testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("letterboxd.com", "ok")); got != beforeAttempts+1 {
		t.Errorf("expected attempts counter keyed by host, got %f", got)
	}

	beforeMerged := testutil.ToFloat64(ratingsMergedTotal)
	ObserveRatingsMerged(3)
	ObserveRatingsMerged(0)
	if got := testutil.ToFloat64(ratingsMergedTotal); got != beforeMerged+3 {
		t.Errorf("expected merged counter to grow by 3, got %f", got)
	}

	IncInflight()
	DecInflight()
	ObserveBatchDuration(2 * time.Second)
	ObserveRateLimitDelay("letterboxd.com", 100*time.Millisecond)
	if n := testutil.CollectAndCount(batchDurationSeconds); n != 1 {
		t.Errorf("expected one batch duration series, got %d", n)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://letterboxd.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
