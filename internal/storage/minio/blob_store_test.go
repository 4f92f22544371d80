package minio

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ratings-crawler/internal/crawler"
)

// fakeS3 answers path-style PUT and GET requests from an in-memory map.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>`+
				`<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T) (*BlobStore, *fakeS3) {
	t.Helper()

	fake := &fakeS3{objects: make(map[string][]byte)}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	client, err := NewClient(Config{Endpoint: u.Host, AccessKey: "minioadmin", SecretKey: "minioadmin"})
	require.NoError(t, err)
	store, err := New(client, "ratings")
	require.NoError(t, err)
	return store, fake
}

func TestPutObjectStoresUnderBucket(t *testing.T) {
	t.Parallel()

	store, fake := newTestStore(t)
	uri, err := store.PutObject(context.Background(), "mappings/latest_film_mappings.csv", "text/csv",
		bytes.NewReader([]byte("film_id,film_title\n")))
	require.NoError(t, err)
	assert.Equal(t, "s3://ratings/mappings/latest_film_mappings.csv", uri)
	fake.mu.Lock()
	stored, ok := fake.objects["ratings/mappings/latest_film_mappings.csv"]
	fake.mu.Unlock()
	require.True(t, ok)
	assert.Contains(t, string(stored), "film_id,film_title")
}

func TestGetObjectMissingMapsToNotFound(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	_, err := store.GetObject(context.Background(), "mappings/absent.csv")
	assert.ErrorIs(t, err, crawler.ErrObjectNotFound)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "ratings")
	assert.Error(t, err)
}
