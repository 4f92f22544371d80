package orchestrator

import (
	"context"
	"fmt"

	"github.com/JakeFAU/ratings-crawler/internal/dataset"
	"github.com/JakeFAU/ratings-crawler/internal/identity"
	"github.com/JakeFAU/ratings-crawler/internal/metrics"
)

type taskResult struct {
	outcome EntityOutcome
	ratings []dataset.Rating
	stage   *identity.Stage
}

// runTask walks one entity up to IdentityResolved. Merging is left to the
// merger so the rating set has a single writer.
func (o *Orchestrator) runTask(ctx context.Context, key string) (res taskResult) {
	res.outcome = EntityOutcome{Key: key, State: StatePending}
	defer func() {
		if r := recover(); r != nil {
			res = failed(res.outcome, fmt.Errorf("%w: %v", ErrTaskPanic, r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return failed(res.outcome, err)
	}

	res.outcome.State = StateFetching
	records, stats, err := o.paginator.Collect(ctx, key)
	res.outcome.Pages = stats.Pages
	if err != nil {
		return failed(res.outcome, fmt.Errorf("collect %s: %w", key, err))
	}

	userID, assigned := o.alloc.GetOrAssignUserID(key)
	if assigned {
		metrics.ObserveUserIDAssigned()
	}
	res.outcome.UserID = userID

	ratings := dataset.RatingsFor(userID, records)
	if len(ratings) == 0 {
		res.outcome.State = StateEmpty
		res.outcome.Empty = true
	} else {
		res.outcome.State = StateHasRecords
	}
	res.outcome.Ratings = len(ratings)

	stage := o.alloc.NewStage()
	for _, rec := range records {
		if _, ok := dataset.ParseScore(rec.Glyphs); !ok {
			continue
		}
		if err := stage.Register(rec.ItemID, rec.ItemSlug); err != nil {
			metrics.ObserveItemCollision()
			return failed(res.outcome, fmt.Errorf("register items for %s: %w", key, err))
		}
	}
	res.outcome.State = StateIdentityResolved
	res.ratings = ratings
	res.stage = stage
	return res
}

func failed(out EntityOutcome, err error) taskResult {
	out.State = StateFailed
	out.Err = err
	return taskResult{outcome: out}
}
