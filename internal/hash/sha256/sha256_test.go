package sha256

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ratingsTable = "user_id,film_id,rating\n1,35995,4.5\n2,35995,3.0\n"

func TestHashRatingsTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"ratings table", ratingsTable, "128fd098adcadbe2c065a72cb8876819ef692ff94d57d4d4720684245486d52b"},
		{"empty table", "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := New()
			got, err := h.Hash([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again, err := h.Hash([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestHashChangesWithScore(t *testing.T) {
	t.Parallel()

	h := New()
	a, err := h.Hash([]byte(ratingsTable))
	require.NoError(t, err)
	b, err := h.Hash([]byte(strings.Replace(ratingsTable, "4.5", "5.0", 1)))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
