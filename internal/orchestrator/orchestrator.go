// Package orchestrator fans entity keys out over a bounded worker pool and
// merges the per-entity results into one batch result.
//
// Workers paginate, resolve the user ID through the shared Allocator and stage
// item registrations. A single merger, running on the caller's goroutine,
// commits staged items and folds ratings into the batch's RatingSet in
// completion order. A failing or panicking task is reported in its outcome
// and never aborts its siblings.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ratings-crawler/internal/dataset"
	"github.com/JakeFAU/ratings-crawler/internal/identity"
	"github.com/JakeFAU/ratings-crawler/internal/metrics"
	"github.com/JakeFAU/ratings-crawler/internal/paginate"
)

// DefaultConcurrency is the worker pool width when none is configured.
const DefaultConcurrency = 5

// ErrTaskPanic wraps a value recovered from a panicking task.
var ErrTaskPanic = errors.New("task panicked")

// Paginator collects every raw record for one entity.
type Paginator interface {
	Collect(ctx context.Context, key string) ([]dataset.RawRecord, paginate.Stats, error)
}

// Config controls the worker pool.
type Config struct {
	Concurrency int
}

// BatchResult is the merged output of one batch.
type BatchResult struct {
	// Ratings holds this batch's ratings, deduplicated by (user, item).
	Ratings *dataset.RatingSet
	// Items holds only the items first seen in this batch.
	Items dataset.ItemTable
	// Users is the full identity table after the batch.
	Users     dataset.UserTable
	MaxUserID int64
	Outcomes  []EntityOutcome
	Duration  time.Duration
}

// Summary tallies the batch outcomes.
func (r BatchResult) Summary() Summary {
	return Summarize(r.Outcomes)
}

// Orchestrator runs batches against a shared Allocator.
type Orchestrator struct {
	paginator Paginator
	alloc     *identity.Allocator
	cfg       Config
	logger    *zap.Logger
}

// New builds an Orchestrator.
func New(paginator Paginator, alloc *identity.Allocator, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Orchestrator{
		paginator: paginator,
		alloc:     alloc,
		cfg:       cfg,
		logger:    logger,
	}
}

// Allocator exposes the shared identity allocator.
func (o *Orchestrator) Allocator() *identity.Allocator {
	return o.alloc
}

// RunBatch processes keys and blocks until every task has been merged or has
// failed. Duplicate keys are processed once. The only error returned is the
// context's, in which case the partial result is still returned.
func (o *Orchestrator) RunBatch(ctx context.Context, keys []string) (BatchResult, error) {
	start := time.Now()
	keys = uniqueKeys(keys)
	itemsBefore := o.alloc.ItemTable()

	work := make(chan string)
	results := make(chan taskResult, len(keys))

	workers := o.cfg.Concurrency
	if workers > len(keys) {
		workers = len(keys)
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range work {
				results <- o.runTask(ctx, key)
			}
		}()
	}
	go func() {
		for _, key := range keys {
			work <- key
		}
		close(work)
		wg.Wait()
		close(results)
	}()

	result := BatchResult{
		Ratings:  dataset.NewRatingSet(),
		Outcomes: make([]EntityOutcome, 0, len(keys)),
	}
	for res := range results {
		result.Outcomes = append(result.Outcomes, o.merge(res, result.Ratings))
	}

	result.Items = newItems(itemsBefore, o.alloc.ItemTable())
	result.Users = o.alloc.UserTable()
	result.MaxUserID = o.alloc.MaxUserID()
	result.Duration = time.Since(start)
	metrics.ObserveBatchDuration(result.Duration)

	summary := result.Summary()
	o.logger.Info("batch finished",
		zap.Int("entities", len(keys)),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("empty", summary.Empty),
		zap.Int("failed", summary.Failed),
		zap.Int("ratings", result.Ratings.Len()),
		zap.Int("new_items", len(result.Items)),
		zap.Int64("max_user_id", result.MaxUserID),
		zap.Duration("duration", result.Duration),
	)
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("batch interrupted: %w", err)
	}
	return result, nil
}

// merge commits one task's staged items and folds its ratings into set.
func (o *Orchestrator) merge(res taskResult, set *dataset.RatingSet) EntityOutcome {
	out := res.outcome
	if out.State == StateFailed {
		o.finish(out)
		return out
	}
	added, err := o.alloc.Commit(res.stage)
	if err != nil {
		if errors.Is(err, identity.ErrCollision) {
			metrics.ObserveItemCollision()
		}
		out.State = StateFailed
		out.Err = fmt.Errorf("commit items for %s: %w", out.Key, err)
		o.finish(out)
		return out
	}
	newKeys, _ := set.Merge(res.ratings)
	metrics.ObserveRatingsMerged(newKeys)
	out.NewItems = added
	out.State = StateMerged
	o.finish(out)
	return out
}

func (o *Orchestrator) finish(out EntityOutcome) {
	state := out.State.String()
	if out.State == StateMerged && out.Empty {
		state = StateEmpty.String()
	}
	metrics.ObserveEntity(state)
	if out.State == StateFailed {
		o.logger.Warn("entity failed",
			zap.String("key", out.Key),
			zap.Int("pages", out.Pages),
			zap.Error(out.Err),
		)
		return
	}
	o.logger.Debug("entity merged",
		zap.String("key", out.Key),
		zap.Int64("user_id", out.UserID),
		zap.Int("pages", out.Pages),
		zap.Int("ratings", out.Ratings),
		zap.Int("new_items", out.NewItems),
		zap.Bool("empty", out.Empty),
	)
}

func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func newItems(before, after dataset.ItemTable) dataset.ItemTable {
	out := make(dataset.ItemTable)
	for id, label := range after {
		if _, ok := before[id]; !ok {
			out[id] = label
		}
	}
	return out
}
