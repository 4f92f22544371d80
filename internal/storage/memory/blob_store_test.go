package memory

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ratings-crawler/internal/crawler"
)

func TestBlobStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "training/latest.csv", "text/csv", bytes.NewReader([]byte("content")))
	require.NoError(t, err)
	assert.Equal(t, "memory://training/latest.csv", uri)

	rc, err := store.GetObject(context.Background(), "training/latest.csv")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "content", string(got))
	assert.Equal(t, []string{"training/latest.csv"}, store.Paths())
}

func TestBlobStoreReadersAreIsolated(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	_, err := store.PutObject(context.Background(), "a", "", bytes.NewReader([]byte("abc")))
	require.NoError(t, err)

	rc, err := store.GetObject(context.Background(), "a")
	require.NoError(t, err)
	buf, err := io.ReadAll(rc)
	require.NoError(t, err)
	buf[0] = 'X'

	assert.Equal(t, "abc", string(store.data["a"]))
}

func TestBlobStoreMissingObject(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().GetObject(context.Background(), "nope")
	assert.ErrorIs(t, err, crawler.ErrObjectNotFound)
}
