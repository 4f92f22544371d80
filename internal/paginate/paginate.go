// Package paginate walks the numbered listing pages of one entity.
//
// Two strategies are supported. Sequential fetches one page at a time with a
// jittered pause between requests and stops at the first empty page.
// Parallel submits a batch of consecutive pages at once and stops once every
// page of a processed batch came back empty. The parallel stop rule is a
// heuristic: it can fetch up to one batch width of pages past the real end,
// and a batch that is only partly empty never stops the walk, so a sparse gap
// in the middle of a listing is walked through.
package paginate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/ratings-crawler/internal/crawler"
	"github.com/JakeFAU/ratings-crawler/internal/dataset"
	"github.com/JakeFAU/ratings-crawler/internal/metrics"
)

// Strategy names.
const (
	Sequential = "sequential"
	Parallel   = "parallel"
)

// Config controls page walking.
type Config struct {
	Strategy  string
	BatchSize int
	Workers   int
	MinDelay  time.Duration
	MaxDelay  time.Duration
	// MaxPages caps the walk; 0 leaves it unbounded.
	MaxPages int
}

// Stats summarizes one walk.
type Stats struct {
	Pages      int
	EmptyPages int
	Records    int
}

// YieldFunc receives the records of one non-empty page. It is always called
// from the goroutine that called Paginate.
type YieldFunc func(page int, records []dataset.RawRecord)

// Paginator drives a Fetcher and a PageScraper across pages 1..n.
type Paginator struct {
	fetcher crawler.Fetcher
	scraper crawler.PageScraper
	urls    crawler.URLBuilder
	cfg     Config
	pauser  crawler.Pauser
	jitter  crawler.Jitter
	logger  *zap.Logger
}

// New builds a Paginator.
func New(
	fetcher crawler.Fetcher,
	scraper crawler.PageScraper,
	urls crawler.URLBuilder,
	cfg Config,
	logger *zap.Logger,
) *Paginator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Strategy == "" {
		cfg.Strategy = Parallel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.Workers <= 0 {
		cfg.Workers = cfg.BatchSize
	}
	return &Paginator{
		fetcher: fetcher,
		scraper: scraper,
		urls:    urls,
		cfg:     cfg,
		pauser:  crawler.TimerPauser{},
		jitter:  crawler.UniformJitter,
		logger:  logger,
	}
}

// Paginate walks key's pages, passing each non-empty page to yield. A fetch
// or scrape failure on any page aborts the walk with that error.
func (p *Paginator) Paginate(ctx context.Context, key string, yield YieldFunc) (Stats, error) {
	if p.cfg.Strategy == Sequential {
		return p.sequential(ctx, key, yield)
	}
	return p.parallel(ctx, key, yield)
}

// Collect gathers every record of key.
func (p *Paginator) Collect(ctx context.Context, key string) ([]dataset.RawRecord, Stats, error) {
	var out []dataset.RawRecord
	stats, err := p.Paginate(ctx, key, func(_ int, records []dataset.RawRecord) {
		out = append(out, records...)
	})
	return out, stats, err
}

func (p *Paginator) sequential(ctx context.Context, key string, yield YieldFunc) (Stats, error) {
	var stats Stats
	for page := 1; p.cfg.MaxPages == 0 || page <= p.cfg.MaxPages; page++ {
		if page > 1 {
			p.pauser.Pause(ctx, p.jitter(p.cfg.MinDelay, p.cfg.MaxDelay))
			if err := ctx.Err(); err != nil {
				return stats, fmt.Errorf("paginate %s: %w", key, err)
			}
		}
		res, err := p.fetchPage(ctx, key, page)
		if err != nil {
			return stats, err
		}
		stats.Pages++
		if res.Empty() {
			stats.EmptyPages++
			break
		}
		stats.Records += len(res.Records)
		yield(page, res.Records)
	}
	p.logDone(key, stats)
	return stats, nil
}

type pageOutcome struct {
	page   int
	result crawler.PageResult
}

func (p *Paginator) parallel(ctx context.Context, key string, yield YieldFunc) (Stats, error) {
	var stats Stats
	next := 1
	for {
		size := p.cfg.BatchSize
		if p.cfg.MaxPages > 0 {
			size = min(size, p.cfg.MaxPages-next+1)
			if size <= 0 {
				break
			}
		}
		empty, err := p.runBatch(ctx, key, next, size, yield, &stats)
		if err != nil {
			return stats, err
		}
		next += size
		if empty >= size {
			break
		}
	}
	p.logDone(key, stats)
	return stats, nil
}

// runBatch fetches pages [first, first+size) and processes them in completion
// order. It returns how many of them were empty.
func (p *Paginator) runBatch(
	ctx context.Context,
	key string,
	first, size int,
	yield YieldFunc,
	stats *Stats,
) (int, error) {
	results := make(chan pageOutcome, size)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i := range size {
		page := first + i
		g.Go(func() error {
			res, err := p.fetchPage(gctx, key, page)
			if err != nil {
				return err
			}
			results <- pageOutcome{page: page, result: res}
			return nil
		})
	}
	waitErr := make(chan error, 1)
	go func() {
		waitErr <- g.Wait()
		close(results)
	}()

	empty := 0
	for out := range results {
		stats.Pages++
		if out.result.Empty() {
			empty++
			stats.EmptyPages++
			continue
		}
		stats.Records += len(out.result.Records)
		yield(out.page, out.result.Records)
	}
	if err := <-waitErr; err != nil {
		return empty, err
	}
	return empty, nil
}

func (p *Paginator) fetchPage(ctx context.Context, key string, page int) (crawler.PageResult, error) {
	url := p.urls(key, page)
	body, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return crawler.PageResult{}, fmt.Errorf("page %d of %s: %w", page, key, err)
	}
	res, err := p.scraper.ScrapePage(body)
	if err != nil {
		return crawler.PageResult{}, fmt.Errorf("scrape page %d of %s: %w", page, key, err)
	}
	metrics.ObservePage(res.Kind.String())
	p.logger.Debug("page scraped",
		zap.String("key", key),
		zap.Int("page", page),
		zap.Stringer("kind", res.Kind),
		zap.Int("records", len(res.Records)),
	)
	return res, nil
}

func (p *Paginator) logDone(key string, stats Stats) {
	p.logger.Debug("pagination finished",
		zap.String("key", key),
		zap.Int("pages", stats.Pages),
		zap.Int("empty_pages", stats.EmptyPages),
		zap.Int("records", stats.Records),
	)
}
