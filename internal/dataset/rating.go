// Package dataset holds the rating dataset model: scores, cumulative rating
// sets, identity and item tables, and the update log.
package dataset

import "strings"

const (
	// FullGlyph marks one whole point of a score.
	FullGlyph = "★"
	// HalfGlyph adds half a point to a score.
	HalfGlyph = "½"
	// MaxScore is the highest score a rating can carry.
	MaxScore = 5.0
)

// RawRecord is one rated entry as extracted from a listing page, before any
// identity resolution.
type RawRecord struct {
	ItemSlug string
	ItemID   int64
	Glyphs   string
}

// Rating links a surrogate user ID to an external item ID.
type Rating struct {
	UserID int64   `json:"user_id"`
	ItemID int64   `json:"film_id"`
	Score  float64 `json:"rating"`
}

// Key returns the deduplication key of the rating.
func (r Rating) Key() Key {
	return Key{UserID: r.UserID, ItemID: r.ItemID}
}

// ParseScore converts a glyph string such as "★★★½" into a numeric score.
// The boolean is false when the string carries no score glyph at all or more
// full glyphs than MaxScore allows; such entries are not ratings.
func ParseScore(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	full := strings.Count(raw, FullGlyph)
	half := strings.Contains(raw, HalfGlyph)
	if full == 0 && !half {
		return 0, false
	}
	score := float64(full)
	if half {
		score += 0.5
	}
	if score > MaxScore {
		return 0, false
	}
	return score, true
}

// RatingsFor converts raw page records into ratings for userID, dropping
// records without a score.
func RatingsFor(userID int64, records []RawRecord) []Rating {
	out := make([]Rating, 0, len(records))
	for _, rec := range records {
		score, ok := ParseScore(rec.Glyphs)
		if !ok {
			continue
		}
		out = append(out, Rating{UserID: userID, ItemID: rec.ItemID, Score: score})
	}
	return out
}
