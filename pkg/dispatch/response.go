package dispatch

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkexplorer/offworker/pkg/cache"
)

// offlineBody is the network-only fallback body. The application parses
// it and branches on the flag.
var offlineBody = []byte(`{"offline":true}`)

// syntheticStatus builds an empty response with the given status.
func syntheticStatus(status int, req *http.Request) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewReader(nil)),
		Request:    req,
	}
}

// syntheticOffline builds the status-200 offline JSON response served
// by the network-only strategy when the backend is unreachable.
func syntheticOffline(req *http.Request) *http.Response {
	resp := syntheticStatus(http.StatusOK, req)
	resp.Header.Set("Content-Type", "application/json")
	resp.Body = io.NopCloser(bytes.NewReader(offlineBody))
	resp.ContentLength = int64(len(offlineBody))
	return resp
}

// responseFromEntry materializes a stored snapshot as a response to
// the given request.
func responseFromEntry(entry *cache.Entry, req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    entry.Status,
		Status:        fmt.Sprintf("%d %s", entry.Status, http.StatusText(entry.Status)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        entry.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(entry.Body)),
		ContentLength: int64(len(entry.Body)),
		Request:       req,
	}
}

// snapshotResponse drains the response body into a cache entry and
// replaces the body with a fresh reader so the response remains
// streamable.
func snapshotResponse(resp *http.Response) (*cache.Entry, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return &cache.Entry{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now().UTC(),
	}, nil
}
