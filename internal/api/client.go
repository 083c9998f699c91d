// Package api is the client for the REST backend that persists crawl
// entities. It speaks plain JSON collections plus a chunked binary upload
// endpoint for media files.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/blockedby/tgcrawler/internal/logger"
)

// ErrUniqueConstraint is returned when the backend reports an insert
// conflict (HTTP 409). The repository save protocol consumes it; it must
// never reach callers of Save.
var ErrUniqueConstraint = errors.New("unique constraint violation")

// ErrNotFound is returned for HTTP 404.
var ErrNotFound = errors.New("not found")

// Client talks to the backend REST API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

// New creates a backend client. baseURL must not end with a slash.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     logger.With("api"),
	}
}

// List fetches records of a type matching the query.
func (c *Client) List(ctx context.Context, typ string, query map[string]string) ([]map[string]any, error) {
	u := c.baseURL + "/" + typ
	if len(query) > 0 {
		vals := url.Values{}
		for k, v := range query {
			vals.Set(k, v)
		}
		u += "?" + vals.Encode()
	}

	var out []map[string]any
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, fmt.Errorf("list %s: %w", typ, err)
	}
	return out, nil
}

// Get fetches one record by id.
func (c *Client) Get(ctx context.Context, typ, id string) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/"+typ+"/"+id, nil, &out); err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", typ, id, err)
	}
	return out, nil
}

// Create inserts a record. A 409 response surfaces as ErrUniqueConstraint.
func (c *Client) Create(ctx context.Context, typ string, body map[string]any) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/"+typ, body, &out); err != nil {
		return nil, fmt.Errorf("create %s: %w", typ, err)
	}
	return out, nil
}

// Update overwrites a record by id.
func (c *Client) Update(ctx context.Context, typ, id string, body map[string]any) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodPut, c.baseURL+"/"+typ+"/"+id, body, &out); err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", typ, id, err)
	}
	return out, nil
}

// Delete removes a record by id.
func (c *Client) Delete(ctx context.Context, typ, id string) error {
	if err := c.do(ctx, http.MethodDelete, c.baseURL+"/"+typ+"/"+id, nil, nil); err != nil {
		return fmt.Errorf("delete %s/%s: %w", typ, id, err)
	}
	return nil
}

// ChunkExists probes whether a chunk is already stored, so uploads can be
// skipped on retry.
func (c *Client) ChunkExists(ctx context.Context, typ, id, filename string, chunkNumber, chunkSize int) (bool, error) {
	vals := url.Values{}
	vals.Set("filename", filename)
	vals.Set("chunkNumber", strconv.Itoa(chunkNumber))
	vals.Set("chunkSize", strconv.Itoa(chunkSize))
	u := c.baseURL + "/" + typ + "/" + id + "/chunk?" + vals.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("probe chunk: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("probe chunk: unexpected status %d", resp.StatusCode)
	}
}

// UploadChunk uploads one binary chunk of a media file.
func (c *Client) UploadChunk(ctx context.Context, typ, id, filename string, chunkNumber, totalChunks int, totalSize int64, chunk []byte) error {
	vals := url.Values{}
	vals.Set("filename", filename)
	vals.Set("chunkNumber", strconv.Itoa(chunkNumber))
	vals.Set("totalChunks", strconv.Itoa(totalChunks))
	vals.Set("totalSize", strconv.FormatInt(totalSize, 10))
	u := c.baseURL + "/" + typ + "/" + id + "/chunk?" + vals.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(chunk))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload chunk: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("upload chunk: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, u string, body map[string]any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug().Str("method", method).Str("url", u).Msg("backend request")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrUniqueConstraint
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	case resp.StatusCode >= 300:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
