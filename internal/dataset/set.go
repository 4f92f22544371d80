package dataset

// Key identifies a rating by its (user, item) pair.
type Key struct {
	UserID int64
	ItemID int64
}

// RatingSet is an ordered collection of ratings with at most one entry per
// Key. It is not safe for concurrent writers.
type RatingSet struct {
	rows  []Rating
	index map[Key]int
}

// NewRatingSet returns a set seeded with rows, deduplicated in order.
func NewRatingSet(rows ...Rating) *RatingSet {
	s := &RatingSet{index: make(map[Key]int, len(rows))}
	s.Merge(rows)
	return s
}

// Add inserts r. When the key already exists the stored score is replaced and
// the entry keeps its original position. Reports whether the key was new.
func (s *RatingSet) Add(r Rating) bool {
	if s.index == nil {
		s.index = make(map[Key]int)
	}
	k := r.Key()
	if i, ok := s.index[k]; ok {
		s.rows[i] = r
		return false
	}
	s.index[k] = len(s.rows)
	s.rows = append(s.rows, r)
	return true
}

// Merge adds every rating in rows and returns how many keys were new and how
// many replaced an existing entry.
func (s *RatingSet) Merge(rows []Rating) (added, replaced int) {
	for _, r := range rows {
		if s.Add(r) {
			added++
		} else {
			replaced++
		}
	}
	return added, replaced
}

// MergeSet folds other into s.
func (s *RatingSet) MergeSet(other *RatingSet) (added, replaced int) {
	if other == nil {
		return 0, 0
	}
	return s.Merge(other.rows)
}

// Get returns the rating stored for the pair.
func (s *RatingSet) Get(userID, itemID int64) (Rating, bool) {
	i, ok := s.index[Key{UserID: userID, ItemID: itemID}]
	if !ok {
		return Rating{}, false
	}
	return s.rows[i], true
}

// ForUser returns the ratings of one user in set order.
func (s *RatingSet) ForUser(userID int64) []Rating {
	var out []Rating
	for _, r := range s.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

// Len reports the number of distinct keys.
func (s *RatingSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rows)
}

// Rows returns a copy of the ratings in set order.
func (s *RatingSet) Rows() []Rating {
	if s == nil {
		return nil
	}
	out := make([]Rating, len(s.rows))
	copy(out, s.rows)
	return out
}
