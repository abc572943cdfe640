package dispatch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkexplorer/offworker/pkg/cache"
	"github.com/pkexplorer/offworker/pkg/cache/memory"
	"github.com/pkexplorer/offworker/pkg/worker"
)

const (
	testTileHost    = "tiles.example.com"
	testBackendHost = "api.example.com"
	testAppShell    = "https://app.example.com/index.html"
)

var errNetworkDown = errors.New("dial tcp: connection refused")

// fakeFetcher scripts network behavior per test and records requests.
type fakeFetcher struct {
	fn    func(req *http.Request) (*http.Response, error)
	calls int
}

func (f *fakeFetcher) Do(req *http.Request) (*http.Response, error) {
	f.calls++
	return f.fn(req)
}

func networkDown() *fakeFetcher {
	return &fakeFetcher{fn: func(*http.Request) (*http.Response, error) {
		return nil, errNetworkDown
	}}
}

func respondWith(status int, body string) *fakeFetcher {
	return &fakeFetcher{fn: func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Header:     http.Header{"Content-Type": []string{"text/plain"}},
			Body:       io.NopCloser(bytes.NewReader([]byte(body))),
			Request:    req,
		}, nil
	}}
}

func newTestDispatcher(t *testing.T, fetcher Fetcher) (*Dispatcher, cache.Namespace, cache.Namespace) {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	static, err := store.Open(cache.StaticNamespace)
	require.NoError(t, err)
	tiles, err := store.Open(cache.TileNamespace)
	require.NoError(t, err)

	d := New(fetcher, static, tiles, Config{
		TileHost:     testTileHost,
		BackendHosts: []string{testBackendHost},
		AppShellURL:  testAppShell,
	}, nil)
	return d, static, tiles
}

func getRequest(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	return req
}

// dispatch runs one dispatch and settles its background work.
func dispatch(t *testing.T, d *Dispatcher, req *http.Request) *http.Response {
	t.Helper()
	work := worker.NewWork()
	resp := d.Dispatch(context.Background(), req, work)
	require.NoError(t, work.Wait())
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

// ============================================================================
// Classification
// ============================================================================

func TestClassify(t *testing.T) {
	d, _, _ := newTestDispatcher(t, respondWith(200, "ok"))

	tests := []struct {
		method, url, want string
	}{
		{http.MethodPost, "https://api.example.com/api/points", StrategyPassthrough},
		{http.MethodPut, "https://tiles.example.com/1/2/3.png", StrategyPassthrough},
		{http.MethodGet, "https://tiles.example.com/1/2/3.png", StrategyCacheFirst},
		{http.MethodGet, "https://api.example.com/api/points", StrategyNetworkOnly},
		{http.MethodGet, "https://app.example.com/app.js", StrategyNetworkFirst},
		{http.MethodGet, "https://cdn.example.net/leaflet.js", StrategyNetworkFirst},
	}
	for _, tt := range tests {
		req := getRequest(t, tt.url)
		req.Method = tt.method
		assert.Equal(t, tt.want, d.classify(req), "%s %s", tt.method, tt.url)
	}
}

// ============================================================================
// Passthrough
// ============================================================================

func TestPassthrough_ForwardsVerbatim(t *testing.T) {
	fetcher := respondWith(201, "created")
	d, static, tiles := newTestDispatcher(t, fetcher)

	req, err := http.NewRequest(http.MethodPost, "https://api.example.com/api/points", bytes.NewReader([]byte(`{"lat":1}`)))
	require.NoError(t, err)

	resp := dispatch(t, d, req)
	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, "created", readBody(t, resp))
	assert.Equal(t, 1, fetcher.calls)

	// Writes never touch the caches.
	n, err := static.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	n, err = tiles.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPassthrough_NetworkFailure(t *testing.T) {
	d, _, _ := newTestDispatcher(t, networkDown())

	req, err := http.NewRequest(http.MethodDelete, "https://api.example.com/api/points/1", nil)
	require.NoError(t, err)

	resp := dispatch(t, d, req)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

// ============================================================================
// Cache-first (tiles)
// ============================================================================

func TestCacheFirst_MissFetchesAndStores(t *testing.T) {
	fetcher := respondWith(200, "tile-bytes")
	d, _, tiles := newTestDispatcher(t, fetcher)

	url := "https://tiles.example.com/10/512/384.png"
	resp := dispatch(t, d, getRequest(t, url))
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "tile-bytes", readBody(t, resp))

	entry, err := tiles.Match(context.Background(), cache.RequestKey(http.MethodGet, url))
	require.NoError(t, err)
	assert.Equal(t, []byte("tile-bytes"), entry.Body)
}

func TestCacheFirst_HitSkipsNetwork(t *testing.T) {
	fetcher := respondWith(200, "tile-bytes")
	d, _, _ := newTestDispatcher(t, fetcher)

	url := "https://tiles.example.com/10/512/384.png"
	_ = dispatch(t, d, getRequest(t, url))
	require.Equal(t, 1, fetcher.calls)

	resp := dispatch(t, d, getRequest(t, url))
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "tile-bytes", readBody(t, resp))
	assert.Equal(t, 1, fetcher.calls, "second request must be served from cache")
}

func TestCacheFirst_OfflineMissIsEmpty503(t *testing.T) {
	d, _, _ := newTestDispatcher(t, networkDown())

	resp := dispatch(t, d, getRequest(t, "https://tiles.example.com/0/0/0.png"))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Empty(t, readBody(t, resp))
}

func TestCacheFirst_NonOKNotStored(t *testing.T) {
	d, _, tiles := newTestDispatcher(t, respondWith(404, "no tile"))

	url := "https://tiles.example.com/0/0/0.png"
	resp := dispatch(t, d, getRequest(t, url))
	assert.Equal(t, 404, resp.StatusCode)

	_, err := tiles.Match(context.Background(), cache.RequestKey(http.MethodGet, url))
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

// ============================================================================
// Network-only (backend)
// ============================================================================

func TestNetworkOnly_Success(t *testing.T) {
	d, static, tiles := newTestDispatcher(t, respondWith(200, `[{"lat":1}]`))

	url := "https://api.example.com/api/points"
	resp := dispatch(t, d, getRequest(t, url))
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, `[{"lat":1}]`, readBody(t, resp))

	// Backend responses are never cached.
	for _, ns := range []cache.Namespace{static, tiles} {
		n, err := ns.Len(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	}
}

func TestNetworkOnly_OfflineJSON(t *testing.T) {
	d, _, _ := newTestDispatcher(t, networkDown())

	resp := dispatch(t, d, getRequest(t, "https://api.example.com/api/points"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"offline":true}`, readBody(t, resp))
}

func TestNetworkOnly_NeverReadsCache(t *testing.T) {
	d, static, _ := newTestDispatcher(t, networkDown())

	// Even with a matching entry in the static namespace, the backend
	// strategy must not serve it.
	url := "https://api.example.com/api/points"
	require.NoError(t, static.Put(context.Background(), cache.RequestKey(http.MethodGet, url), &cache.Entry{
		Status: 200, Body: []byte("stale"),
	}))

	resp := dispatch(t, d, getRequest(t, url))
	assert.JSONEq(t, `{"offline":true}`, readBody(t, resp))
}

func TestNetworkOnly_BackendHostWithPort(t *testing.T) {
	// Backend entries may carry an explicit port, as the default
	// config does ("localhost:3000"). URL.Hostname() strips the port,
	// so matching must consider host:port too.
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })
	static, err := store.Open(cache.StaticNamespace)
	require.NoError(t, err)
	tiles, err := store.Open(cache.TileNamespace)
	require.NoError(t, err)

	newDispatcher := func(f Fetcher) *Dispatcher {
		return New(f, static, tiles, Config{
			TileHost:     testTileHost,
			BackendHosts: []string{"localhost:3000"},
			AppShellURL:  testAppShell,
		}, nil)
	}

	d := newDispatcher(networkDown())
	req := getRequest(t, "http://localhost:3000/api/points")
	assert.Equal(t, StrategyNetworkOnly, d.classify(req))

	resp := dispatch(t, d, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"offline":true}`, readBody(t, resp))

	// Online, the backend response must not land in any namespace.
	d = newDispatcher(respondWith(200, `[{"lat":1}]`))
	_ = dispatch(t, d, getRequest(t, "http://localhost:3000/api/points"))
	for _, ns := range []cache.Namespace{static, tiles} {
		n, err := ns.Len(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	}

	// A portless entry still matches whatever port the URL carries.
	d = New(networkDown(), static, tiles, Config{
		BackendHosts: []string{"localhost"},
	}, nil)
	assert.Equal(t, StrategyNetworkOnly, d.classify(getRequest(t, "http://localhost:8081/api/points")))
}

// ============================================================================
// Network-first (default)
// ============================================================================

func TestNetworkFirst_SuccessStores(t *testing.T) {
	d, static, _ := newTestDispatcher(t, respondWith(200, "body{}"))

	url := "https://app.example.com/style.css"
	resp := dispatch(t, d, getRequest(t, url))
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "body{}", readBody(t, resp))

	entry, err := static.Match(context.Background(), cache.RequestKey(http.MethodGet, url))
	require.NoError(t, err)
	assert.Equal(t, []byte("body{}"), entry.Body)
}

func TestNetworkFirst_OfflineServesCache(t *testing.T) {
	d, static, _ := newTestDispatcher(t, networkDown())

	url := "https://app.example.com/app.js"
	require.NoError(t, static.Put(context.Background(), cache.RequestKey(http.MethodGet, url), &cache.Entry{
		Status: 200,
		Header: http.Header{"Content-Type": []string{"text/javascript"}},
		Body:   []byte("export {}"),
	}))

	resp := dispatch(t, d, getRequest(t, url))
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "export {}", readBody(t, resp))
	assert.Equal(t, "text/javascript", resp.Header.Get("Content-Type"))
}

func TestNetworkFirst_OfflineNavigationGetsAppShell(t *testing.T) {
	d, static, _ := newTestDispatcher(t, networkDown())

	require.NoError(t, static.Put(context.Background(), cache.RequestKey(http.MethodGet, testAppShell), &cache.Entry{
		Status: 200,
		Header: http.Header{"Content-Type": []string{"text/html"}},
		Body:   []byte("<html>shell</html>"),
	}))

	req := getRequest(t, "https://app.example.com/points/42")
	req.Header.Set("Sec-Fetch-Mode", "navigate")

	resp := dispatch(t, d, req)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "<html>shell</html>", readBody(t, resp))
}

func TestNetworkFirst_AcceptHeaderFallbackForNavigation(t *testing.T) {
	d, static, _ := newTestDispatcher(t, networkDown())

	require.NoError(t, static.Put(context.Background(), cache.RequestKey(http.MethodGet, testAppShell), &cache.Entry{
		Status: 200, Body: []byte("<html>shell</html>"),
	}))

	req := getRequest(t, "https://app.example.com/points/42")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp := dispatch(t, d, req)
	assert.Equal(t, "<html>shell</html>", readBody(t, resp))
}

func TestNetworkFirst_FetchMetadataOverridesAccept(t *testing.T) {
	d, static, _ := newTestDispatcher(t, networkDown())

	require.NoError(t, static.Put(context.Background(), cache.RequestKey(http.MethodGet, testAppShell), &cache.Entry{
		Status: 200, Body: []byte("<html>shell</html>"),
	}))

	// Explicit non-navigate fetch metadata wins over an html Accept.
	req := getRequest(t, "https://app.example.com/data.json")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Accept", "text/html")

	resp := dispatch(t, d, req)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestNetworkFirst_OfflineMissIs503(t *testing.T) {
	d, _, _ := newTestDispatcher(t, networkDown())

	req := getRequest(t, "https://app.example.com/data.json")
	req.Header.Set("Sec-Fetch-Mode", "cors")

	resp := dispatch(t, d, req)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestNetworkFirst_OfflineNavigationWithoutShellIs503(t *testing.T) {
	d, _, _ := newTestDispatcher(t, networkDown())

	req := getRequest(t, "https://app.example.com/points/42")
	req.Header.Set("Sec-Fetch-Mode", "navigate")

	resp := dispatch(t, d, req)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestNetworkFirst_NonOKNotStored(t *testing.T) {
	d, static, _ := newTestDispatcher(t, respondWith(500, "boom"))

	url := "https://app.example.com/broken"
	resp := dispatch(t, d, getRequest(t, url))
	assert.Equal(t, 500, resp.StatusCode)

	_, err := static.Match(context.Background(), cache.RequestKey(http.MethodGet, url))
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

// ============================================================================
// Background cache writes
// ============================================================================

// failingNamespace wraps a namespace and fails every Put.
type failingNamespace struct {
	cache.Namespace
}

func (f *failingNamespace) Put(context.Context, string, *cache.Entry) error {
	return cache.ErrQuotaExceeded
}

func TestCacheWriteFailureIsInvisible(t *testing.T) {
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })
	static, err := store.Open(cache.StaticNamespace)
	require.NoError(t, err)
	tiles, err := store.Open(cache.TileNamespace)
	require.NoError(t, err)

	d := New(respondWith(200, "big"), &failingNamespace{static}, tiles, Config{
		TileHost:     testTileHost,
		BackendHosts: []string{testBackendHost},
		AppShellURL:  testAppShell,
	}, nil)

	work := worker.NewWork()
	resp := d.Dispatch(context.Background(), getRequest(t, "https://app.example.com/big.js"), work)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "big", readBody(t, resp))

	// The failed write is swallowed by the background task.
	assert.NoError(t, work.Wait())
}

func TestDispatchWithoutTasksSkipsWrites(t *testing.T) {
	d, static, _ := newTestDispatcher(t, respondWith(200, "ok"))

	url := "https://app.example.com/app.js"
	resp := d.Dispatch(context.Background(), getRequest(t, url), nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "ok", readBody(t, resp))

	_, err := static.Match(context.Background(), cache.RequestKey(http.MethodGet, url))
	assert.ErrorIs(t, err, cache.ErrNotFound)
}
