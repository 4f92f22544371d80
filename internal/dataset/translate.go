package dataset

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnmapped is returned when a rating references an ID missing from the
// identity or item table.
var ErrUnmapped = errors.New("unmapped id")

// TranslatedRating is the human-readable form of a Rating.
type TranslatedRating struct {
	Username  string  `json:"username"`
	ItemLabel string  `json:"film_title"`
	Score     float64 `json:"rating"`
}

// Translate resolves every rating to its username and item label. Any
// unmapped user or item ID fails the whole translation.
func Translate(rows []Rating, users UserTable, items ItemTable) ([]TranslatedRating, error) {
	names := users.Inverse()
	out := make([]TranslatedRating, 0, len(rows))
	missingUsers := map[int64]struct{}{}
	missingItems := map[int64]struct{}{}
	for _, r := range rows {
		name, okUser := names[r.UserID]
		label, okItem := items[r.ItemID]
		if !okUser {
			missingUsers[r.UserID] = struct{}{}
		}
		if !okItem {
			missingItems[r.ItemID] = struct{}{}
		}
		if okUser && okItem {
			out = append(out, TranslatedRating{Username: name, ItemLabel: label, Score: r.Score})
		}
	}
	if len(missingUsers) > 0 {
		return nil, fmt.Errorf("%w: user ids %v", ErrUnmapped, sortedIDs(missingUsers))
	}
	if len(missingItems) > 0 {
		return nil, fmt.Errorf("%w: item ids %v", ErrUnmapped, sortedIDs(missingItems))
	}
	return out, nil
}

func sortedIDs(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
