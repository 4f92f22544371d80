package dataset

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserTableMaxAndSorted(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(0), UserTable{}.Max())

	users := UserTable{"carol": 3, "alice": 1, "bob": 7}
	assert.Equal(t, int64(7), users.Max())
	assert.Equal(t, []UserEntry{
		{Username: "alice", ID: 1},
		{Username: "carol", ID: 3},
		{Username: "bob", ID: 7},
	}, users.Sorted())

	clone := users.Clone()
	clone["dave"] = 8
	_, ok := users["dave"]
	assert.False(t, ok)
}

func TestUpdateLogStampTruncatesToDay(t *testing.T) {
	t.Parallel()

	log := UpdateLog{}
	log.Stamp("alice", time.Date(2025, 4, 20, 18, 40, 12, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC), log["alice"])
	assert.Equal(t, "2025-04-20", log["alice"].Format(DateLayout))
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	users := UserTable{"alice": 1}
	items := ItemTable{35995: "nosferatu-2024"}

	got, err := Translate([]Rating{{UserID: 1, ItemID: 35995, Score: 4}}, users, items)
	require.NoError(t, err)
	assert.Equal(t, []TranslatedRating{{Username: "alice", ItemLabel: "nosferatu-2024", Score: 4}}, got)

	_, err = Translate([]Rating{{UserID: 2, ItemID: 35995, Score: 4}}, users, items)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnmapped))
	assert.Contains(t, err.Error(), "user ids [2]")

	_, err = Translate([]Rating{{UserID: 1, ItemID: 5, Score: 4}}, users, items)
	require.ErrorIs(t, err, ErrUnmapped)
	assert.Contains(t, err.Error(), "item ids [5]")
}
