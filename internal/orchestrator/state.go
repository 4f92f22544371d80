package orchestrator

// State tracks one entity task through the batch.
type State int

// Task states. Failed is terminal and reachable from Fetching and
// IdentityResolved.
const (
	StatePending State = iota
	StateFetching
	StateEmpty
	StateHasRecords
	StateIdentityResolved
	StateMerged
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetching:
		return "fetching"
	case StateEmpty:
		return "empty"
	case StateHasRecords:
		return "has_records"
	case StateIdentityResolved:
		return "identity_resolved"
	case StateMerged:
		return "merged"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EntityOutcome reports how one key fared in a batch.
type EntityOutcome struct {
	Key    string
	UserID int64
	State  State
	// Empty is set when the entity had no valid ratings. Empty entities still
	// reach StateMerged.
	Empty    bool
	Pages    int
	Ratings  int
	NewItems int
	Err      error
}

// Succeeded reports whether the outcome was merged.
func (o EntityOutcome) Succeeded() bool {
	return o.State == StateMerged
}

// Summary counts outcomes by result.
type Summary struct {
	Succeeded int
	Empty     int
	Failed    int
}

// Summarize tallies outcomes. Empty entities count as empty, not succeeded.
func Summarize(outcomes []EntityOutcome) Summary {
	var s Summary
	for _, o := range outcomes {
		switch {
		case o.State == StateFailed:
			s.Failed++
		case o.Empty:
			s.Empty++
		default:
			s.Succeeded++
		}
	}
	return s
}
