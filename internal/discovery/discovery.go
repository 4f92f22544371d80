// Package discovery finds usernames that have not been crawled yet by walking
// the popular-members listing.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ratings-crawler/internal/crawler"
	"github.com/JakeFAU/ratings-crawler/internal/scrape/letterboxd"
)

// MembersScraper extracts usernames from one listing page.
type MembersScraper interface {
	ScrapeMembers(body []byte) ([]string, error)
}

// PageURL builds the URL of listing page n, starting at 1.
type PageURL func(page int) string

// Config controls the listing walk.
type Config struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	// MaxPages caps the walk; 0 leaves it unbounded.
	MaxPages int
}

// Discoverer walks listing pages until enough unseen usernames are found.
type Discoverer struct {
	fetcher crawler.Fetcher
	scraper MembersScraper
	pageURL PageURL
	cfg     Config
	pauser  crawler.Pauser
	jitter  crawler.Jitter
	logger  *zap.Logger
}

// New builds a Discoverer.
func New(fetcher crawler.Fetcher, scraper MembersScraper, pageURL PageURL, cfg Config, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{
		fetcher: fetcher,
		scraper: scraper,
		pageURL: pageURL,
		cfg:     cfg,
		pauser:  crawler.TimerPauser{},
		jitter:  crawler.UniformJitter,
		logger:  logger,
	}
}

// Discover returns up to n usernames absent from exclude, in listing order.
// The walk stops early at a page that lists nobody or whose layout is not
// recognised. A fetch failure ends the walk too; the usernames found so far
// are returned together with the error.
func (d *Discoverer) Discover(ctx context.Context, exclude map[string]struct{}, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	found := make([]string, 0, n)
	picked := make(map[string]struct{}, n)
	for page := 1; len(found) < n; page++ {
		if d.cfg.MaxPages > 0 && page > d.cfg.MaxPages {
			break
		}
		if page > 1 {
			d.pauser.Pause(ctx, d.jitter(d.cfg.MinDelay, d.cfg.MaxDelay))
		}
		if err := ctx.Err(); err != nil {
			return found, fmt.Errorf("discover users: %w", err)
		}
		body, err := d.fetcher.Fetch(ctx, d.pageURL(page))
		if err != nil {
			return found, fmt.Errorf("fetch members page %d: %w", page, err)
		}
		names, err := d.scraper.ScrapeMembers(body)
		if errors.Is(err, letterboxd.ErrUnexpectedLayout) {
			d.logger.Warn("members page layout not recognised, stopping", zap.Int("page", page))
			break
		}
		if err != nil {
			return found, fmt.Errorf("scrape members page %d: %w", page, err)
		}
		if len(names) == 0 {
			break
		}
		for _, name := range names {
			if _, known := exclude[name]; known {
				continue
			}
			if _, dup := picked[name]; dup {
				continue
			}
			picked[name] = struct{}{}
			found = append(found, name)
			if len(found) == n {
				break
			}
		}
	}
	d.logger.Info("users discovered", zap.Int("requested", n), zap.Int("found", len(found)))
	return found, nil
}
