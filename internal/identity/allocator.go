// Package identity owns the username to surrogate ID table and the item
// table. All mutation goes through an Allocator, which is safe for
// concurrent use.
package identity

import (
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/ratings-crawler/internal/dataset"
)

// ErrCollision is matched by every *CollisionError.
var ErrCollision = errors.New("item id collision")

// CollisionError reports an item ID seen with a label other than the one
// already recorded for it.
type CollisionError struct {
	ItemID   int64
	Known    string
	Observed string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("item %d already mapped to %q, observed %q", e.ItemID, e.Known, e.Observed)
}

// Is reports ErrCollision as a match.
func (e *CollisionError) Is(target error) bool {
	return target == ErrCollision
}

// Allocator assigns user IDs and records item labels.
type Allocator struct {
	mu    sync.RWMutex
	users dataset.UserTable
	items dataset.ItemTable
	maxID int64
}

// NewAllocator seeds an Allocator from persisted tables. maxID is raised to
// the table's own maximum if lower.
func NewAllocator(users dataset.UserTable, items dataset.ItemTable, maxID int64) *Allocator {
	u := users.Clone()
	if m := u.Max(); m > maxID {
		maxID = m
	}
	return &Allocator{
		users: u,
		items: items.Clone(),
		maxID: maxID,
	}
}

// GetOrAssignUserID returns key's ID, assigning max+1 when key is new. The
// boolean reports whether a new ID was assigned.
func (a *Allocator) GetOrAssignUserID(key string) (int64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id, ok := a.users[key]; ok {
		return id, false
	}
	a.maxID++
	a.users[key] = a.maxID
	return a.maxID, true
}

// LookupUser returns key's ID without assigning one.
func (a *Allocator) LookupUser(key string) (int64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.users[key]
	return id, ok
}

// LookupItem returns the label recorded for itemID.
func (a *Allocator) LookupItem(itemID int64) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	label, ok := a.items[itemID]
	return label, ok
}

// MaxUserID returns the highest ID assigned so far.
func (a *Allocator) MaxUserID() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.maxID
}

// UserTable returns a copy of the identity table.
func (a *Allocator) UserTable() dataset.UserTable {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.users.Clone()
}

// ItemTable returns a copy of the item table.
func (a *Allocator) ItemTable() dataset.ItemTable {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.items.Clone()
}

// NewStage opens a per-task staging area for item registrations.
func (a *Allocator) NewStage() *Stage {
	return &Stage{alloc: a, pending: make(dataset.ItemTable)}
}

// RegisterItem validates and records a single item immediately.
func (a *Allocator) RegisterItem(itemID int64, label string) error {
	stage := a.NewStage()
	if err := stage.Register(itemID, label); err != nil {
		return err
	}
	_, err := a.Commit(stage)
	return err
}

// Commit merges a stage's new items into the shared table. Every staged item
// is re-checked under the write lock, since a sibling task may have committed
// the same ID meanwhile; on any collision nothing is merged. Returns how many
// items were added.
func (a *Allocator) Commit(stage *Stage) (int, error) {
	if stage == nil || len(stage.pending) == 0 {
		return 0, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, label := range stage.pending {
		if known, ok := a.items[id]; ok && known != label {
			return 0, &CollisionError{ItemID: id, Known: known, Observed: label}
		}
	}
	added := 0
	for id, label := range stage.pending {
		if _, ok := a.items[id]; !ok {
			a.items[id] = label
			added++
		}
	}
	stage.pending = make(dataset.ItemTable)
	return added, nil
}

// Stage collects item registrations for one task. A Stage is used by a
// single goroutine.
type Stage struct {
	alloc   *Allocator
	pending dataset.ItemTable
}

// Register checks label against the shared table and the stage. Unseen items
// are staged; known items with the same label are a no-op.
func (s *Stage) Register(itemID int64, label string) error {
	if staged, ok := s.pending[itemID]; ok {
		if staged != label {
			return &CollisionError{ItemID: itemID, Known: staged, Observed: label}
		}
		return nil
	}
	if known, ok := s.alloc.LookupItem(itemID); ok {
		if known != label {
			return &CollisionError{ItemID: itemID, Known: known, Observed: label}
		}
		return nil
	}
	s.pending[itemID] = label
	return nil
}

// Pending returns a copy of the staged items.
func (s *Stage) Pending() dataset.ItemTable {
	return s.pending.Clone()
}

// Len reports how many items are staged.
func (s *Stage) Len() int {
	return len(s.pending)
}
