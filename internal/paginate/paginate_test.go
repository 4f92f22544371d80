package paginate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ratings-crawler/internal/crawler"
	"github.com/JakeFAU/ratings-crawler/internal/dataset"
)

var errFetch = errors.New("retries exhausted")

// pageFetcher serves "<count>" bodies keyed by page number; missing pages are empty.
type pageFetcher struct {
	mu        sync.Mutex
	counts    map[int]int
	failPage  int
	requested []int
}

func (f *pageFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	page := pageFromURL(url)
	f.mu.Lock()
	f.requested = append(f.requested, page)
	f.mu.Unlock()
	if f.failPage != 0 && page == f.failPage {
		return nil, errFetch
	}
	return []byte(strconv.Itoa(f.counts[page])), nil
}

func (f *pageFetcher) pagesRequested() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.requested...)
}

type countScraper struct{}

func (countScraper) ScrapePage(body []byte) (crawler.PageResult, error) {
	n, err := strconv.Atoi(string(body))
	if err != nil {
		return crawler.PageResult{}, err
	}
	records := make([]dataset.RawRecord, n)
	for i := range records {
		records[i] = dataset.RawRecord{ItemID: int64(i + 1), Glyphs: "★"}
	}
	return crawler.Records(records), nil
}

func testURLs(key string, page int) string {
	return fmt.Sprintf("https://letterboxd.com/%s/films/by/date/page/%d/", key, page)
}

func pageFromURL(url string) int {
	parts := strings.Split(strings.TrimSuffix(url, "/"), "/")
	n, _ := strconv.Atoi(parts[len(parts)-1])
	return n
}

type noPause struct{ calls int }

func (p *noPause) Pause(context.Context, time.Duration) { p.calls++ }

func newPaginator(f crawler.Fetcher, cfg Config) (*Paginator, *noPause) {
	p := New(f, countScraper{}, testURLs, cfg, zap.NewNop())
	pauser := &noPause{}
	p.pauser = pauser
	return p, pauser
}

func TestSequentialStopsAtFirstEmptyPage(t *testing.T) {
	t.Parallel()

	f := &pageFetcher{counts: map[int]int{1: 2, 2: 3, 4: 9}}
	p, pauser := newPaginator(f, Config{Strategy: Sequential, MinDelay: 500 * time.Millisecond, MaxDelay: 1500 * time.Millisecond})

	records, stats, err := p.Collect(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, records, 5)
	assert.Equal(t, Stats{Pages: 3, EmptyPages: 1, Records: 5}, stats)
	assert.Equal(t, []int{1, 2, 3}, f.pagesRequested())
	assert.Equal(t, 2, pauser.calls, "pause between requests, not before the first")
}

func TestParallelStopsWhenWholeBatchIsEmpty(t *testing.T) {
	t.Parallel()

	counts := map[int]int{}
	for page := 1; page <= 7; page++ {
		counts[page] = 1
	}
	f := &pageFetcher{counts: counts}
	p, _ := newPaginator(f, Config{Strategy: Parallel, BatchSize: 5, Workers: 5})

	records, stats, err := p.Collect(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, records, 7)
	// Batch 6..10 is only partly empty, so batch 11..15 is fetched before stopping.
	assert.Equal(t, 15, stats.Pages)
	assert.Equal(t, 8, stats.EmptyPages)
	assert.Len(t, f.pagesRequested(), 15)
}

func TestParallelStopsEarlyOnEmptyGap(t *testing.T) {
	t.Parallel()

	counts := map[int]int{11: 4}
	for page := 1; page <= 5; page++ {
		counts[page] = 2
	}
	f := &pageFetcher{counts: counts}
	p, _ := newPaginator(f, Config{Strategy: Parallel, BatchSize: 5, Workers: 2})

	records, stats, err := p.Collect(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, records, 10)
	assert.Equal(t, 10, stats.Pages)
	assert.NotContains(t, f.pagesRequested(), 11, "data past an all-empty batch is not reached")
}

func TestParallelFatalErrorFailsEntity(t *testing.T) {
	t.Parallel()

	f := &pageFetcher{counts: map[int]int{1: 1, 2: 1, 3: 1, 4: 1, 5: 1}, failPage: 3}
	p, _ := newPaginator(f, Config{Strategy: Parallel, BatchSize: 5, Workers: 5})

	_, _, err := p.Collect(context.Background(), "bob")
	require.Error(t, err)
	assert.ErrorIs(t, err, errFetch)
	assert.Contains(t, err.Error(), "page 3 of bob")
}

func TestSequentialFatalError(t *testing.T) {
	t.Parallel()

	f := &pageFetcher{counts: map[int]int{1: 1, 2: 1}, failPage: 2}
	p, _ := newPaginator(f, Config{Strategy: Sequential})

	var yielded []int
	_, err := p.Paginate(context.Background(), "bob", func(page int, _ []dataset.RawRecord) {
		yielded = append(yielded, page)
	})
	require.ErrorIs(t, err, errFetch)
	assert.Equal(t, []int{1}, yielded)
}

func TestMaxPagesCapsWalk(t *testing.T) {
	t.Parallel()

	counts := map[int]int{}
	for page := 1; page <= 50; page++ {
		counts[page] = 1
	}

	for _, strategy := range []string{Sequential, Parallel} {
		t.Run(strategy, func(t *testing.T) {
			t.Parallel()
			f := &pageFetcher{counts: counts}
			p, _ := newPaginator(f, Config{Strategy: strategy, BatchSize: 5, Workers: 5, MaxPages: 7})
			records, stats, err := p.Collect(context.Background(), "alice")
			require.NoError(t, err)
			assert.Len(t, records, 7)
			assert.Equal(t, 7, stats.Pages)
		})
	}
}

func TestScrapeErrorIsFatal(t *testing.T) {
	t.Parallel()

	f := fetcherFunc(func(context.Context, string) ([]byte, error) { return []byte("not-a-number"), nil })
	p, _ := newPaginator(f, Config{Strategy: Sequential})

	_, _, err := p.Collect(context.Background(), "carol")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scrape page 1 of carol")
}

type fetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f fetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }
