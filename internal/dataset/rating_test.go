package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    string
		want   float64
		wantOK bool
	}{
		{name: "four stars", raw: "★★★★", want: 4.0, wantOK: true},
		{name: "three and a half", raw: "★★★½", want: 3.5, wantOK: true},
		{name: "half only", raw: "½", want: 0.5, wantOK: true},
		{name: "five stars", raw: "★★★★★", want: 5.0, wantOK: true},
		{name: "surrounding whitespace", raw: "  ★★ \n", want: 2.0, wantOK: true},
		{name: "empty", raw: "", wantOK: false},
		{name: "blank", raw: "   ", wantOK: false},
		{name: "no glyphs", raw: "liked", wantOK: false},
		{name: "too many glyphs", raw: "★★★★★★", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseScore(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestRatingsForDropsUnscoredRecords(t *testing.T) {
	t.Parallel()

	records := []RawRecord{
		{ItemSlug: "nosferatu-2024", ItemID: 35995, Glyphs: "★★★★"},
		{ItemSlug: "unrated", ItemID: 1, Glyphs: ""},
		{ItemSlug: "anora", ItemID: 2, Glyphs: "★★★½"},
	}

	got := RatingsFor(7, records)
	require.Len(t, got, 2)
	assert.Equal(t, Rating{UserID: 7, ItemID: 35995, Score: 4.0}, got[0])
	assert.Equal(t, Rating{UserID: 7, ItemID: 2, Score: 3.5}, got[1])
}

func TestRatingSetLastWriteWins(t *testing.T) {
	t.Parallel()

	set := NewRatingSet()
	assert.True(t, set.Add(Rating{UserID: 1, ItemID: 7, Score: 2.0}))
	assert.True(t, set.Add(Rating{UserID: 1, ItemID: 8, Score: 3.0}))
	assert.False(t, set.Add(Rating{UserID: 1, ItemID: 7, Score: 4.5}))

	require.Equal(t, 2, set.Len())
	got, ok := set.Get(1, 7)
	require.True(t, ok)
	assert.InDelta(t, 4.5, got.Score, 1e-9)
	assert.Equal(t, int64(7), set.Rows()[0].ItemID, "replaced entry keeps its position")
}

func TestRatingSetMerge(t *testing.T) {
	t.Parallel()

	base := NewRatingSet(
		Rating{UserID: 1, ItemID: 1, Score: 1},
		Rating{UserID: 2, ItemID: 1, Score: 2},
	)
	batch := NewRatingSet(
		Rating{UserID: 2, ItemID: 1, Score: 5},
		Rating{UserID: 3, ItemID: 9, Score: 0.5},
	)

	added, replaced := base.MergeSet(batch)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, replaced)
	assert.Equal(t, 3, base.Len())
	assert.Len(t, base.ForUser(2), 1)
	assert.InDelta(t, 5.0, base.ForUser(2)[0].Score, 1e-9)

	rows := base.Rows()
	rows[0].Score = 99
	got, _ := base.Get(1, 1)
	assert.InDelta(t, 1.0, got.Score, 1e-9, "Rows returns a copy")
}
