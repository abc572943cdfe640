package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"resty.dev/v3"

	"github.com/pkexplorer/offworker/pkg/cache"
	cachemem "github.com/pkexplorer/offworker/pkg/cache/memory"
	"github.com/pkexplorer/offworker/pkg/dispatch"
	"github.com/pkexplorer/offworker/pkg/lifecycle"
	"github.com/pkexplorer/offworker/pkg/notify"
	"github.com/pkexplorer/offworker/pkg/queue"
	queuemem "github.com/pkexplorer/offworker/pkg/queue/memory"
	"github.com/pkexplorer/offworker/pkg/replay"
	"github.com/pkexplorer/offworker/pkg/worker"
)

// scriptedFetcher fakes the upstream network for both the dispatcher
// and the bypass path.
type scriptedFetcher struct {
	mu    sync.Mutex
	fn    func(req *http.Request) (*http.Response, error)
	seen  []string
	calls int
}

func (f *scriptedFetcher) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.calls++
	f.seen = append(f.seen, req.Method+" "+req.URL.String())
	fn := f.fn
	f.mu.Unlock()
	return fn(req)
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func okFetcher(body string) *scriptedFetcher {
	return &scriptedFetcher{fn: func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"text/plain"}},
			Body:       io.NopCloser(bytes.NewReader([]byte(body))),
			Request:    req,
		}, nil
	}}
}

func downFetcher() *scriptedFetcher {
	return &scriptedFetcher{fn: func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	}}
}

type env struct {
	registration *worker.Registration
	store        queue.Store
	caches       cache.Manager
	clients      *ClientRegistry
	server       *httptest.Server
}

// newEnv assembles a gateway over in-memory stores. replayEndpoint may
// be empty when the test never syncs.
func newEnv(t *testing.T, fetcher dispatch.Fetcher, replayEndpoint string) *env {
	t.Helper()

	caches := cachemem.New()
	static, err := caches.Open(cache.StaticNamespace)
	require.NoError(t, err)
	tiles, err := caches.Open(cache.TileNamespace)
	require.NoError(t, err)

	store := queuemem.New()
	reg := worker.New()
	clients := NewClientRegistry()

	dispatcher := dispatch.New(fetcher, static, tiles, dispatch.Config{
		TileHost:     "tiles.example.com",
		BackendHosts: []string{"api.example.com"},
		AppShellURL:  "https://app.example.com/index.html",
	}, nil)

	mgr := lifecycle.New(reg, caches, fetcher, clients, lifecycle.Config{})

	client := resty.New()
	t.Cleanup(func() { _ = client.Close() })
	engine := replay.New(store, client, replay.Config{Endpoint: replayEndpoint}, nil)

	relay := notify.New(clients, clients)
	WireEvents(reg, mgr, engine, relay)

	router := NewRouter(Config{Origin: "https://app.example.com"}, Deps{
		Registration: reg,
		Dispatcher:   dispatcher,
		Fetcher:      fetcher,
		Store:        store,
		Clients:      clients,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &env{
		registration: reg,
		store:        store,
		caches:       caches,
		clients:      clients,
		server:       server,
	}
}

func (e *env) activate(t *testing.T) {
	t.Helper()
	require.NoError(t, e.registration.BeginInstall())
	require.NoError(t, e.registration.FinishInstall())
	require.NoError(t, e.registration.BeginActivate())
	require.NoError(t, e.registration.FinishActivate())
}

func (e *env) postJSON(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response) Response {
	t.Helper()
	defer resp.Body.Close()
	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// ============================================================================
// Proxy route
// ============================================================================

func TestProxy_DispatchesWhenActive(t *testing.T) {
	fetcher := okFetcher("hello")
	e := newEnv(t, fetcher, "")
	e.activate(t)

	resp, err := http.Get(e.server.URL + "/app.js")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "hello", string(body))

	// The origin-form path resolved against the configured origin.
	assert.Contains(t, fetcher.seen[0], "https://app.example.com/app.js")
}

func TestProxy_OfflineNetworkFirstFallsBackToCache(t *testing.T) {
	fetcher := okFetcher("fresh")
	e := newEnv(t, fetcher, "")
	e.activate(t)

	// Warm the cache while online.
	resp, err := http.Get(e.server.URL + "/style.css")
	require.NoError(t, err)
	resp.Body.Close()

	// The cache write is fire-and-forget; wait for it to land.
	static, err := e.caches.Open(cache.StaticNamespace)
	require.NoError(t, err)
	key := cache.RequestKey(http.MethodGet, "https://app.example.com/style.css")
	require.Eventually(t, func() bool {
		_, err := static.Match(context.Background(), key)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	// Go offline and fetch again.
	fetcher.mu.Lock()
	fetcher.fn = func(*http.Request) (*http.Response, error) {
		return nil, errors.New("network down")
	}
	fetcher.mu.Unlock()

	resp, err = http.Get(e.server.URL + "/style.css")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "fresh", string(body))
}

func TestProxy_BypassesWhenNotActive(t *testing.T) {
	fetcher := okFetcher("direct")
	e := newEnv(t, fetcher, "")
	// Registration stays in StateNew.

	resp, err := http.Get(e.server.URL + "/anything")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "direct", string(body))

	// Nothing was cached on the bypass path.
	static, err := e.caches.Open(cache.StaticNamespace)
	require.NoError(t, err)
	n, err := static.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestProxy_BypassUpstreamDownIs502(t *testing.T) {
	e := newEnv(t, downFetcher(), "")

	resp, err := http.Get(e.server.URL + "/anything")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

// ============================================================================
// Queue API
// ============================================================================

func TestQueueAPI_EnqueueAndList(t *testing.T) {
	e := newEnv(t, okFetcher(""), "")

	resp := e.postJSON(t, "/-/queue", `{"lat":45.1,"lng":7.6}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	decodeResponse(t, resp)

	resp, err := http.Get(e.server.URL + "/-/queue")
	require.NoError(t, err)
	out := decodeResponse(t, resp)
	assert.Equal(t, "ok", out.Status)

	records, ok := out.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, records, 1)
}

func TestQueueAPI_RejectsInvalidJSON(t *testing.T) {
	e := newEnv(t, okFetcher(""), "")

	resp := e.postJSON(t, "/-/queue", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	count, err := e.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

// ============================================================================
// Sync
// ============================================================================

func TestSync_DrainsQueue(t *testing.T) {
	var mu sync.Mutex
	var received []string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = append(received, string(body))
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer backend.Close()

	e := newEnv(t, okFetcher(""), backend.URL+"/api/points")
	e.activate(t)

	_, err := e.store.Put(context.Background(), json.RawMessage(`{"seq":0}`))
	require.NoError(t, err)

	resp := e.postJSON(t, "/-/sync", `{"tag":"sync-points"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		count, err := e.store.Count(context.Background())
		return err == nil && count == 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{`{"seq":0}`}, received)
}

func TestSync_WrongTagLeavesQueue(t *testing.T) {
	e := newEnv(t, okFetcher(""), "http://127.0.0.1:1/api/points")

	_, err := e.store.Put(context.Background(), json.RawMessage(`{"seq":0}`))
	require.NoError(t, err)

	resp := e.postJSON(t, "/-/sync", `{"tag":"sync-other"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	time.Sleep(50 * time.Millisecond)
	count, err := e.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSync_MissingTagIs400(t *testing.T) {
	e := newEnv(t, okFetcher(""), "")

	resp := e.postJSON(t, "/-/sync", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

// ============================================================================
// Messages
// ============================================================================

func TestMessage_SkipWaiting(t *testing.T) {
	e := newEnv(t, okFetcher(""), "")
	require.NoError(t, e.registration.BeginInstall())
	require.NoError(t, e.registration.FinishInstall())

	resp := e.postJSON(t, "/-/message", `{"type":"SKIP_WAITING"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.True(t, e.registration.Active())
}

func TestMessage_SkipWaitingWrongStateIs409(t *testing.T) {
	e := newEnv(t, okFetcher(""), "")

	resp := e.postJSON(t, "/-/message", `{"type":"SKIP_WAITING"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestMessage_CacheRefresh(t *testing.T) {
	fetcher := okFetcher("asset")
	e := newEnv(t, fetcher, "")
	e.activate(t)

	// Populate a namespace first.
	static, err := e.caches.Open(cache.StaticNamespace)
	require.NoError(t, err)
	require.NoError(t, static.Put(context.Background(), "GET https://app.example.com/a", &cache.Entry{Status: 200}))

	resp := e.postJSON(t, "/-/message", `{"type":"CACHE_REFRESH"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	names, err := e.caches.Names()
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Equal(t, worker.StateRedundant, e.registration.State())

	// The gateway now bypasses straight to the network.
	before := fetcher.callCount()
	getResp, err := http.Get(e.server.URL + "/app.js")
	require.NoError(t, err)
	getResp.Body.Close()
	assert.Equal(t, before+1, fetcher.callCount())
}

func TestMessage_UnknownTypeIs400(t *testing.T) {
	e := newEnv(t, okFetcher(""), "")

	resp := e.postJSON(t, "/-/message", `{"type":"RELOAD"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

// ============================================================================
// Push + clients
// ============================================================================

func putJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestClients_RegisterListDeregister(t *testing.T) {
	e := newEnv(t, okFetcher(""), "")

	resp := putJSON(t, e.server.URL+"/-/clients/win-1", `{"url":"/points/42"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	windows := e.clients.List()
	require.Len(t, windows, 1)
	assert.Equal(t, "win-1", windows[0].ID)
	assert.Equal(t, "/points/42", windows[0].URL)

	req, err := http.NewRequest(http.MethodDelete, e.server.URL+"/-/clients/win-1", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, e.clients.List())
}

func TestPush_RelaysNotification(t *testing.T) {
	e := newEnv(t, okFetcher(""), "")

	resp := e.postJSON(t, "/-/push", `{"title":"New point","url":"/points/9"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	notifications := e.clients.Notifications()
	require.Len(t, notifications, 1)
	assert.Equal(t, "New point", notifications[0].Title)
	assert.Equal(t, "/points/9", notifications[0].URL)
}

func TestPush_MalformedPayloadIs400(t *testing.T) {
	e := newEnv(t, okFetcher(""), "")

	resp := e.postJSON(t, "/-/push", `{broken`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
	assert.Empty(t, e.clients.Notifications())
}

func TestNotificationClick_OpenFocusesMatchingClient(t *testing.T) {
	e := newEnv(t, okFetcher(""), "")

	resp := putJSON(t, e.server.URL+"/-/clients/win-1", `{"url":"/map"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = e.postJSON(t, "/-/notification/click", `{"action":"open","url":"/map"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The existing window was focused, not duplicated.
	windows := e.clients.List()
	require.Len(t, windows, 1)
	assert.Equal(t, "win-1", windows[0].ID)
}

func TestNotificationClick_OpensWindowWhenNoMatch(t *testing.T) {
	e := newEnv(t, okFetcher(""), "")

	resp := e.postJSON(t, "/-/notification/click", `{"action":"open","url":"/points/9"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	windows := e.clients.List()
	require.Len(t, windows, 1)
	assert.Equal(t, "/points/9", windows[0].URL)
}

func TestNotificationClick_CloseDismissesOnly(t *testing.T) {
	e := newEnv(t, okFetcher(""), "")

	resp := e.postJSON(t, "/-/notification/click", `{"action":"close","url":"/map"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	assert.Empty(t, e.clients.List(), "close must not open a window")
}

func TestNotificationClick_MalformedBodyIs400(t *testing.T) {
	e := newEnv(t, okFetcher(""), "")

	resp := e.postJSON(t, "/-/notification/click", `{broken`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

// ============================================================================
// Health
// ============================================================================

func TestHealth_Liveness(t *testing.T) {
	e := newEnv(t, okFetcher(""), "")

	resp, err := http.Get(e.server.URL + "/-/health")
	require.NoError(t, err)
	out := decodeResponse(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", out.Status)
}

func TestHealth_ReadinessTracksActivation(t *testing.T) {
	e := newEnv(t, okFetcher(""), "")

	resp, err := http.Get(e.server.URL + "/-/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	e.activate(t)

	resp, err = http.Get(e.server.URL + "/-/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
