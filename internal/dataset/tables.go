package dataset

import (
	"sort"
	"time"
)

// DateLayout is the day-granularity format used by the update log.
const DateLayout = "2006-01-02"

// UserTable maps usernames to surrogate user IDs.
type UserTable map[string]int64

// UserEntry is one row of a UserTable.
type UserEntry struct {
	Username string
	ID       int64
}

// Max returns the largest assigned ID, or 0 for an empty table.
func (t UserTable) Max() int64 {
	var maxID int64
	for _, id := range t {
		if id > maxID {
			maxID = id
		}
	}
	return maxID
}

// Clone returns an independent copy.
func (t UserTable) Clone() UserTable {
	out := make(UserTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Inverse maps IDs back to usernames.
func (t UserTable) Inverse() map[int64]string {
	out := make(map[int64]string, len(t))
	for name, id := range t {
		out[id] = name
	}
	return out
}

// Sorted returns the table ordered by ID.
func (t UserTable) Sorted() []UserEntry {
	out := make([]UserEntry, 0, len(t))
	for name, id := range t {
		out = append(out, UserEntry{Username: name, ID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ItemTable maps external item IDs to their labels (slugs).
type ItemTable map[int64]string

// ItemEntry is one row of an ItemTable.
type ItemEntry struct {
	ID    int64
	Label string
}

// Clone returns an independent copy.
func (t ItemTable) Clone() ItemTable {
	out := make(ItemTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Sorted returns the table ordered by item ID.
func (t ItemTable) Sorted() []ItemEntry {
	out := make([]ItemEntry, 0, len(t))
	for id, label := range t {
		out = append(out, ItemEntry{ID: id, Label: label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdateLog records the last day each user was processed.
type UpdateLog map[string]time.Time

// Stamp records username as processed on the UTC day of at.
func (l UpdateLog) Stamp(username string, at time.Time) {
	l[username] = Day(at)
}

// Usernames returns the logged users in lexical order.
func (l UpdateLog) Usernames() []string {
	out := make([]string, 0, len(l))
	for name := range l {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
