package runner

import (
	"time"

	"github.com/JakeFAU/ratings-crawler/internal/orchestrator"
	"github.com/JakeFAU/ratings-crawler/internal/store"
)

// Failure names an entity that failed in a batch.
type Failure struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// BatchReport summarizes one persisted batch. It is also the payload of the
// batch.completed event.
type BatchReport struct {
	RunID        string    `json:"run_id"`
	Batch        int       `json:"batch"`
	Users        int       `json:"users"`
	Succeeded    int       `json:"succeeded"`
	Empty        int       `json:"empty"`
	Failed       int       `json:"failed"`
	Failures     []Failure `json:"failures,omitempty"`
	NewRatings   int       `json:"new_ratings"`
	Replaced     int       `json:"replaced_ratings"`
	NewItems     int       `json:"new_items"`
	TotalRatings int       `json:"total_ratings"`
	MaxUserID    int64     `json:"max_user_id"`
	Digest       string    `json:"digest"`
	SnapshotURI  string    `json:"snapshot_uri,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
}

// Report summarizes a Run.
type Report struct {
	RunID   string        `json:"run_id"`
	Mode    string        `json:"mode"`
	Batches []BatchReport `json:"batches"`
}

// UserReport summarizes a RunUser call.
type UserReport struct {
	RunID    string   `json:"run_id"`
	Username string   `json:"username"`
	UserID   int64    `json:"user_id"`
	Ratings  int      `json:"ratings"`
	NewItems int      `json:"new_items"`
	URIs     []string `json:"uris,omitempty"`
}

func newBatchReport(
	runID string,
	batch int,
	res orchestrator.BatchResult,
	saved store.SaveReport,
	added, replaced int,
) BatchReport {
	summary := res.Summary()
	br := BatchReport{
		RunID:        runID,
		Batch:        batch,
		Users:        len(res.Outcomes),
		Succeeded:    summary.Succeeded,
		Empty:        summary.Empty,
		Failed:       summary.Failed,
		NewRatings:   added,
		Replaced:     replaced,
		NewItems:     len(res.Items),
		TotalRatings: saved.Ratings,
		MaxUserID:    res.MaxUserID,
		Digest:       saved.Digest,
		SnapshotURI:  saved.SnapshotURI,
		DurationMS:   res.Duration.Milliseconds(),
	}
	for _, o := range res.Outcomes {
		if o.State == orchestrator.StateFailed {
			msg := ""
			if o.Err != nil {
				msg = o.Err.Error()
			}
			br.Failures = append(br.Failures, Failure{Key: o.Key, Error: msg})
		}
	}
	return br
}

// Status is a point-in-time view of the current or last run.
type Status struct {
	RunID          string       `json:"run_id,omitempty"`
	Mode           string       `json:"mode,omitempty"`
	Running        bool         `json:"running"`
	StartedAt      time.Time    `json:"started_at,omitempty"`
	BatchesPlanned int          `json:"batches_planned"`
	BatchesDone    int          `json:"batches_done"`
	Users          int          `json:"users"`
	Items          int          `json:"items"`
	Ratings        int          `json:"ratings"`
	LastBatch      *BatchReport `json:"last_batch,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// Status returns a copy of the current status.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.status
	if s.LastBatch != nil {
		last := *s.LastBatch
		s.LastBatch = &last
	}
	return s
}

func (r *Runner) setStatus(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = s
}

func (r *Runner) recordBatch(br BatchReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.BatchesDone++
	r.status.Ratings = br.TotalRatings
	r.status.LastBatch = &br
}

func (r *Runner) finishStatus() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Running = false
}

func (r *Runner) fail(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Error = err.Error()
	return err
}
