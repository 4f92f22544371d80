// Package runner drives whole crawl runs: discovery, batches, persistence and
// event publishing.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ratings-crawler/internal/crawler"
	"github.com/JakeFAU/ratings-crawler/internal/dataset"
	"github.com/JakeFAU/ratings-crawler/internal/identity"
	"github.com/JakeFAU/ratings-crawler/internal/orchestrator"
	"github.com/JakeFAU/ratings-crawler/internal/store"
)

// Run modes.
const (
	ModeNew      = "new"
	ModeContinue = "continue"
)

// Event names published by the runner.
const (
	EventBatchCompleted = "batch.completed"
	EventUserExported   = "user.exported"
)

// Discoverer finds usernames not in exclude.
type Discoverer interface {
	Discover(ctx context.Context, exclude map[string]struct{}, n int) ([]string, error)
}

// Config holds runner settings that do not vary per run.
type Config struct {
	Concurrency int
	Versioning  bool
}

// Options selects what one Run does.
type Options struct {
	Batches int
	Size    int
	Mode    string
}

// Runner wires the crawl pipeline to persistence.
type Runner struct {
	gateway    store.Gateway
	discoverer Discoverer
	paginator  orchestrator.Paginator
	publisher  crawler.Publisher
	clock      crawler.Clock
	ids        crawler.IDGenerator
	cfg        Config
	logger     *zap.Logger

	mu     sync.RWMutex
	status Status
}

// New builds a Runner. publisher may be nil.
func New(
	gateway store.Gateway,
	discoverer Discoverer,
	paginator orchestrator.Paginator,
	publisher crawler.Publisher,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		gateway:    gateway,
		discoverer: discoverer,
		paginator:  paginator,
		publisher:  publisher,
		clock:      clock,
		ids:        ids,
		cfg:        cfg,
		logger:     logger,
	}
}

// state is the dataset loaded at the start of a run.
type state struct {
	users   dataset.UserTable
	items   dataset.ItemTable
	ratings *dataset.RatingSet
	log     dataset.UpdateLog
}

func (r *Runner) load(ctx context.Context) (state, error) {
	var (
		s   state
		err error
	)
	if s.users, err = r.gateway.LoadUsers(ctx); err != nil {
		return s, fmt.Errorf("load users: %w", err)
	}
	if s.items, err = r.gateway.LoadItems(ctx); err != nil {
		return s, fmt.Errorf("load items: %w", err)
	}
	if s.ratings, err = r.gateway.LoadRatings(ctx); err != nil {
		return s, fmt.Errorf("load ratings: %w", err)
	}
	if s.log, err = r.gateway.LoadUpdateLog(ctx); err != nil {
		return s, fmt.Errorf("load update log: %w", err)
	}
	return s, nil
}

// Run executes up to opts.Batches batches of opts.Size newly discovered users,
// saving the cumulative dataset after each batch. The run ends early when
// discovery finds nobody new.
func (r *Runner) Run(ctx context.Context, opts Options) (Report, error) {
	if opts.Batches <= 0 || opts.Size <= 0 {
		return Report{}, fmt.Errorf("batches and size must be positive")
	}
	if opts.Mode != ModeNew && opts.Mode != ModeContinue {
		return Report{}, fmt.Errorf("unknown mode %q", opts.Mode)
	}
	runID, err := r.ids.NewID()
	if err != nil {
		return Report{}, fmt.Errorf("run id: %w", err)
	}
	logger := r.logger.With(zap.String("run_id", runID), zap.String("mode", opts.Mode))

	var st state
	if opts.Mode == ModeNew {
		logger.Info("starting a fresh dataset")
		st = state{
			users:   dataset.UserTable{},
			items:   dataset.ItemTable{},
			ratings: dataset.NewRatingSet(),
			log:     dataset.UpdateLog{},
		}
	} else if st, err = r.load(ctx); err != nil {
		return Report{}, err
	}

	alloc := identity.NewAllocator(st.users, st.items, 0)
	orch := orchestrator.New(r.paginator, alloc, orchestrator.Config{Concurrency: r.cfg.Concurrency}, logger)

	seen := processedUsers(st)

	report := Report{RunID: runID, Mode: opts.Mode}
	r.setStatus(Status{
		RunID:          runID,
		Mode:           opts.Mode,
		Running:        true,
		StartedAt:      r.clock.Now(),
		BatchesPlanned: opts.Batches,
		Users:          len(st.users),
		Items:          len(st.items),
		Ratings:        st.ratings.Len(),
	})
	defer r.finishStatus()

	for batch := 1; batch <= opts.Batches; batch++ {
		keys, derr := r.discoverer.Discover(ctx, seen, opts.Size)
		if derr != nil {
			if len(keys) == 0 {
				return report, r.fail(fmt.Errorf("batch %d: discover users: %w", batch, derr))
			}
			logger.Warn("discovery stopped early", zap.Int("batch", batch), zap.Int("found", len(keys)), zap.Error(derr))
		}
		if len(keys) == 0 {
			logger.Info("no new users to process, stopping", zap.Int("batch", batch))
			break
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}

		logger.Info("processing batch", zap.Int("batch", batch), zap.Int("users", len(keys)))
		res, berr := orch.RunBatch(ctx, keys)
		if berr != nil {
			return report, r.fail(fmt.Errorf("batch %d: %w", batch, berr))
		}
		added, replaced := st.ratings.MergeSet(res.Ratings)

		now := r.clock.Now()
		for _, o := range res.Outcomes {
			if o.Succeeded() {
				st.log.Stamp(o.Key, now)
			}
		}

		saved, serr := r.gateway.Save(ctx, store.Snapshot{
			Users:   alloc.UserTable(),
			Items:   alloc.ItemTable(),
			Ratings: st.ratings,
		}, r.cfg.Versioning)
		if serr != nil {
			return report, r.fail(fmt.Errorf("batch %d: save dataset: %w", batch, serr))
		}
		if err := r.gateway.SaveUpdateLog(ctx, st.log); err != nil {
			return report, r.fail(fmt.Errorf("batch %d: save update log: %w", batch, err))
		}

		br := newBatchReport(runID, batch, res, saved, added, replaced)
		report.Batches = append(report.Batches, br)
		r.publish(ctx, logger, EventBatchCompleted, br)
		r.recordBatch(br)
	}

	logger.Info("run finished",
		zap.Int("batches", len(report.Batches)),
		zap.Int("ratings", st.ratings.Len()),
		zap.Int("users", len(alloc.UserTable())),
	)
	return report, nil
}

// processedUsers returns the names discovery must skip: everyone in the
// update log, plus users holding stored ratings from datasets that predate
// the log. A user with an ID but neither is a past failure and stays
// eligible.
func processedUsers(st state) map[string]struct{} {
	seen := make(map[string]struct{}, len(st.log))
	for name := range st.log {
		seen[name] = struct{}{}
	}
	rated := make(map[int64]struct{})
	for _, row := range st.ratings.Rows() {
		rated[row.UserID] = struct{}{}
	}
	for name, id := range st.users {
		if _, ok := rated[id]; ok {
			seen[name] = struct{}{}
		}
	}
	return seen
}

var (
	// ErrUserFailed reports that the single user could not be crawled.
	ErrUserFailed = errors.New("user crawl failed")
	// ErrNoRatings reports that the single user has no valid ratings.
	ErrNoRatings = errors.New("no valid ratings found")
)

// RunUser crawls one user and exports their ratings to per-user files. The
// identity and item tables and the update log are updated; the cumulative
// ratings table is written back unchanged. A user without ratings writes
// nothing and yields ErrNoRatings.
func (r *Runner) RunUser(ctx context.Context, username string) (UserReport, error) {
	runID, err := r.ids.NewID()
	if err != nil {
		return UserReport{}, fmt.Errorf("run id: %w", err)
	}
	logger := r.logger.With(zap.String("run_id", runID), zap.String("username", username))

	st, err := r.load(ctx)
	if err != nil {
		return UserReport{}, err
	}
	alloc := identity.NewAllocator(st.users, st.items, 0)
	orch := orchestrator.New(r.paginator, alloc, orchestrator.Config{Concurrency: 1}, logger)

	res, err := orch.RunBatch(ctx, []string{username})
	if err != nil {
		return UserReport{}, err
	}
	outcome := res.Outcomes[0]
	if !outcome.Succeeded() {
		return UserReport{}, fmt.Errorf("%w: %s: %w", ErrUserFailed, username, outcome.Err)
	}
	if outcome.Empty {
		return UserReport{}, fmt.Errorf("%w for %s", ErrNoRatings, username)
	}

	users, items := alloc.UserTable(), alloc.ItemTable()
	rows := res.Ratings.Rows()
	translated, err := dataset.Translate(rows, users, items)
	if err != nil {
		return UserReport{}, fmt.Errorf("translate ratings: %w", err)
	}

	report := UserReport{
		RunID:    runID,
		Username: username,
		UserID:   outcome.UserID,
		Ratings:  len(rows),
		NewItems: len(res.Items),
	}
	if exporter, ok := r.gateway.(store.UserExporter); ok {
		if report.URIs, err = exporter.ExportUser(ctx, username, rows, translated); err != nil {
			return report, fmt.Errorf("export user: %w", err)
		}
	} else {
		logger.Warn("storage backend does not export per-user files")
	}

	if _, err := r.gateway.Save(ctx, store.Snapshot{Users: users, Items: items, Ratings: st.ratings}, false); err != nil {
		return report, fmt.Errorf("save mappings: %w", err)
	}
	st.log.Stamp(username, r.clock.Now())
	if err := r.gateway.SaveUpdateLog(ctx, st.log); err != nil {
		return report, fmt.Errorf("save update log: %w", err)
	}
	r.publish(ctx, logger, EventUserExported, report)
	logger.Info("user exported", zap.Int64("user_id", report.UserID), zap.Int("ratings", report.Ratings))
	return report, nil
}

func (r *Runner) publish(ctx context.Context, logger *zap.Logger, event string, payload any) {
	if r.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	id, err := r.publisher.Publish(pubCtx, event, payload)
	if err != nil {
		logger.Warn("publish event failed", zap.String("event", event), zap.Error(err))
		return
	}
	logger.Debug("event published", zap.String("event", event), zap.String("message_id", id))
}
