package scrape

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/tgcrawler/internal/api"
)

type chunkRecorder struct {
	posts     []url.Values
	postSizes []int
	stored    map[string]bool // chunkNumber values the probe reports as stored
}

func (c *chunkRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if c.stored[r.URL.Query().Get("chunkNumber")] {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			c.posts = append(c.posts, r.URL.Query())
			c.postSizes = append(c.postSizes, len(body))
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func TestUploader_ExactMultipleIsOneChunk(t *testing.T) {
	rec := &chunkRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	u := NewUploader(api.New(srv.URL))
	data := make([]byte, uploadChunkSize)
	path, err := u.Upload(context.Background(), "messageMedia", "mm-1", "1.jpg", data)
	require.NoError(t, err)
	assert.Equal(t, "1.jpg", path)

	require.Len(t, rec.posts, 1, "a payload of exactly one chunk size must not produce a trailing empty chunk")
	assert.Equal(t, "0", rec.posts[0].Get("chunkNumber"))
	assert.Equal(t, "1", rec.posts[0].Get("totalChunks"))
	assert.Equal(t, uploadChunkSize, rec.postSizes[0])
}

func TestUploader_SplitsAcrossChunks(t *testing.T) {
	rec := &chunkRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	u := NewUploader(api.New(srv.URL))
	data := make([]byte, uploadChunkSize+10)
	_, err := u.Upload(context.Background(), "messageMedia", "mm-1", "2.bin", data)
	require.NoError(t, err)

	require.Len(t, rec.posts, 2)
	assert.Equal(t, "2", rec.posts[0].Get("totalChunks"))
	assert.Equal(t, uploadChunkSize, rec.postSizes[0])
	assert.Equal(t, 10, rec.postSizes[1])
}

func TestUploader_ResumeSkipsStoredChunks(t *testing.T) {
	rec := &chunkRecorder{stored: map[string]bool{"0": true}}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	u := NewUploader(api.New(srv.URL))
	data := make([]byte, uploadChunkSize+10)
	_, err := u.Upload(context.Background(), "messageMedia", "mm-1", "3.bin", data)
	require.NoError(t, err)

	require.Len(t, rec.posts, 1, "already stored chunks are not re-uploaded")
	assert.Equal(t, "1", rec.posts[0].Get("chunkNumber"))
	assert.Equal(t, 10, rec.postSizes[0])
}

func TestUploader_EmptyFileStillUploads(t *testing.T) {
	rec := &chunkRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	u := NewUploader(api.New(srv.URL))
	_, err := u.Upload(context.Background(), "messageMedia", "mm-1", "4.bin", nil)
	require.NoError(t, err)

	require.Len(t, rec.posts, 1)
	assert.Equal(t, "1", rec.posts[0].Get("totalChunks"))
	assert.Zero(t, rec.postSizes[0])
}
