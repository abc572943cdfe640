package lifecycle

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkexplorer/offworker/pkg/cache"
)

// entryFromResponse drains a precache response into a cache entry.
func entryFromResponse(resp *http.Response) (*cache.Entry, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &cache.Entry{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now().UTC(),
	}, nil
}
