package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/ratings-crawler/internal/crawler"
)

func newTestStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "ratings"})
	require.NoError(t, err)
	return store
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	assert.Error(t, err)
	_, err = New(&storage.Client{}, Config{})
	assert.Error(t, err)
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/ratings/o")
		assert.Equal(t, "training/latest_raw_user_ratings.csv", r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "user_id,film_id,rating")
		fmt.Fprintln(w, `{"name": "training/latest_raw_user_ratings.csv", "bucket": "ratings"}`)
	})
	store := newTestStore(t, handler)

	uri, err := store.PutObject(context.Background(), "training/latest_raw_user_ratings.csv", "text/csv",
		bytes.NewReader([]byte("user_id,film_id,rating\n")))
	require.NoError(t, err)
	assert.Equal(t, "gs://ratings/training/latest_raw_user_ratings.csv", uri)
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	_, err := store.PutObject(context.Background(), "x.csv", "text/csv", bytes.NewReader([]byte("x")))
	assert.Error(t, err)
}

func TestGetObjectMissingMapsToNotFound(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	}))
	_, err := store.GetObject(context.Background(), "mappings/latest_user_mappings.csv")
	assert.ErrorIs(t, err, crawler.ErrObjectNotFound)
}

func TestGetObjectReads(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "latest_user_mappings.csv") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = io.WriteString(w, "username,numeric_user_id\nalice,1\n")
	}))
	rc, err := store.GetObject(context.Background(), "mappings/latest_user_mappings.csv")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "username,numeric_user_id\nalice,1\n", string(got))
}

func TestEmptyPathRejected(t *testing.T) {
	t.Parallel()

	store := &BlobStore{bucket: "ratings"}
	_, err := store.PutObject(context.Background(), " ", "", bytes.NewReader(nil))
	assert.Error(t, err)
	_, err = store.GetObject(context.Background(), "")
	assert.Error(t, err)
}
