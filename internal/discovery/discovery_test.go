package discovery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ratings-crawler/internal/scrape/letterboxd"
)

// listingFetcher serves comma-separated usernames per page.
type listingFetcher struct {
	pages    map[int]string
	failPage int
	calls    []int
}

func (f *listingFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	page, err := strconv.Atoi(url)
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, page)
	if page == f.failPage {
		return nil, errors.New("retries exhausted")
	}
	body, ok := f.pages[page]
	if !ok {
		return []byte("<layout missing>"), nil
	}
	return []byte(body), nil
}

type csvScraper struct{}

func (csvScraper) ScrapeMembers(body []byte) ([]string, error) {
	s := string(body)
	if s == "<layout missing>" {
		return nil, letterboxd.ErrUnexpectedLayout
	}
	if s == "" {
		return nil, nil
	}
	return strings.Split(s, ","), nil
}

type countingPauser struct{ n int }

func (p *countingPauser) Pause(context.Context, time.Duration) { p.n++ }

func newDiscoverer(f *listingFetcher) (*Discoverer, *countingPauser) {
	d := New(f, csvScraper{}, func(page int) string { return fmt.Sprint(page) }, Config{}, zap.NewNop())
	p := &countingPauser{}
	d.pauser = p
	return d, p
}

func TestDiscoverSkipsKnownUsers(t *testing.T) {
	t.Parallel()

	f := &listingFetcher{pages: map[int]string{
		1: "alice,bob,carol",
		2: "dave,alice,erin",
		3: "frank",
	}}
	d, pauser := newDiscoverer(f)

	got, err := d.Discover(context.Background(), map[string]struct{}{"bob": {}}, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol", "dave", "erin"}, got)
	assert.Equal(t, []int{1, 2}, f.calls)
	assert.Equal(t, 1, pauser.n)
}

func TestDiscoverStopsAtUnrecognisedLayout(t *testing.T) {
	t.Parallel()

	f := &listingFetcher{pages: map[int]string{1: "alice"}}
	d, _ := newDiscoverer(f)

	got, err := d.Discover(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, got)
	assert.Equal(t, []int{1, 2}, f.calls)
}

func TestDiscoverStopsAtEmptyPage(t *testing.T) {
	t.Parallel()

	f := &listingFetcher{pages: map[int]string{1: "alice", 2: "", 3: "bob"}}
	d, _ := newDiscoverer(f)

	got, err := d.Discover(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, got)
}

func TestDiscoverReturnsPartialOnFetchFailure(t *testing.T) {
	t.Parallel()

	f := &listingFetcher{pages: map[int]string{1: "alice,bob"}, failPage: 2}
	d, _ := newDiscoverer(f)

	got, err := d.Discover(context.Background(), nil, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "members page 2")
	assert.Equal(t, []string{"alice", "bob"}, got)
}

func TestDiscoverHonoursMaxPages(t *testing.T) {
	t.Parallel()

	f := &listingFetcher{pages: map[int]string{1: "a", 2: "b", 3: "c"}}
	d, _ := newDiscoverer(f)
	d.cfg.MaxPages = 2

	got, err := d.Discover(context.Background(), nil, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestDiscoverZeroRequested(t *testing.T) {
	t.Parallel()

	f := &listingFetcher{}
	d, _ := newDiscoverer(f)
	got, err := d.Discover(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, f.calls)
}
