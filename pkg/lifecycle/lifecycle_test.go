package lifecycle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkexplorer/offworker/pkg/cache"
	"github.com/pkexplorer/offworker/pkg/cache/memory"
	"github.com/pkexplorer/offworker/pkg/worker"
)

type countingClaimer struct {
	claims int
}

func (c *countingClaimer) Claim() { c.claims++ }

// assetServer serves a fixed set of paths and 404s everything else.
func assetServer(t *testing.T, assets map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := assets[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func manifestFor(server *httptest.Server, paths ...string) []string {
	urls := make([]string, len(paths))
	for i, p := range paths {
		urls[i] = server.URL + p
	}
	return urls
}

func TestInstall_PrecachesManifest(t *testing.T) {
	server := assetServer(t, map[string]string{
		"/index.html":           "<html>shell</html>",
		"/manifest.webmanifest": `{"name":"PK Explorer"}`,
	})

	caches := memory.New()
	reg := worker.New()
	mgr := New(reg, caches, http.DefaultClient, nil, Config{
		Manifest: manifestFor(server, "/index.html", "/manifest.webmanifest"),
	})

	require.NoError(t, mgr.Install(context.Background()))
	assert.Equal(t, worker.StateInstalled, reg.State())

	static, err := caches.Open(cache.StaticNamespace)
	require.NoError(t, err)
	entry, err := static.Match(context.Background(), cache.RequestKey(http.MethodGet, server.URL+"/index.html"))
	require.NoError(t, err)
	assert.Equal(t, []byte("<html>shell</html>"), entry.Body)
}

func TestInstall_PrecacheFailureIsAllOrNothing(t *testing.T) {
	server := assetServer(t, map[string]string{
		"/index.html": "<html>shell</html>",
		// "/missing.js" is absent: the second fetch 404s.
	})

	caches := memory.New()
	reg := worker.New()
	mgr := New(reg, caches, http.DefaultClient, nil, Config{
		Manifest: manifestFor(server, "/index.html", "/missing.js"),
	})

	// Install still completes; the registration is usable without the
	// precache.
	require.NoError(t, mgr.Install(context.Background()))
	assert.Equal(t, worker.StateInstalled, reg.State())

	// Nothing was stored, not even the asset that fetched cleanly.
	static, err := caches.Open(cache.StaticNamespace)
	require.NoError(t, err)
	n, err := static.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestInstall_EmptyManifest(t *testing.T) {
	reg := worker.New()
	mgr := New(reg, memory.New(), http.DefaultClient, nil, Config{})

	require.NoError(t, mgr.Install(context.Background()))
	assert.Equal(t, worker.StateInstalled, reg.State())
}

func TestActivate_EvictsUnrecognizedAndClaims(t *testing.T) {
	caches := memory.New()
	for _, name := range []string{cache.StaticNamespace, cache.TileNamespace, "pk-explorer-v0", "pk-maps-v0"} {
		_, err := caches.Open(name)
		require.NoError(t, err)
	}

	reg := worker.New()
	require.NoError(t, reg.BeginInstall())
	require.NoError(t, reg.FinishInstall())

	claimer := &countingClaimer{}
	mgr := New(reg, caches, http.DefaultClient, claimer, Config{})

	require.NoError(t, mgr.Activate(context.Background()))
	assert.Equal(t, worker.StateActivated, reg.State())
	assert.Equal(t, 1, claimer.claims)

	names, err := caches.Names()
	require.NoError(t, err)
	assert.ElementsMatch(t, cache.RecognizedNamespaces(), names)
}

func TestActivate_RequiresInstalledState(t *testing.T) {
	mgr := New(worker.New(), memory.New(), http.DefaultClient, nil, Config{})

	err := mgr.Activate(context.Background())
	var invalid *worker.ErrInvalidTransition
	assert.ErrorAs(t, err, &invalid)
}

func TestStartup_FullBoot(t *testing.T) {
	server := assetServer(t, map[string]string{"/index.html": "<html></html>"})

	reg := worker.New()
	claimer := &countingClaimer{}
	mgr := New(reg, memory.New(), http.DefaultClient, claimer, Config{
		Manifest: manifestFor(server, "/index.html"),
	})

	require.NoError(t, mgr.Startup(context.Background()))
	assert.True(t, reg.Active())
	assert.Equal(t, 1, claimer.claims)
}

func TestHandleMessage_SkipWaitingPromotesWaiting(t *testing.T) {
	reg := worker.New()
	require.NoError(t, reg.BeginInstall())
	require.NoError(t, reg.FinishInstall())

	mgr := New(reg, memory.New(), http.DefaultClient, nil, Config{})
	require.NoError(t, mgr.HandleMessage(context.Background(), MessageSkipWaiting))
	assert.True(t, reg.Active())
}

func TestHandleMessage_SkipWaitingRejectsNonWaiting(t *testing.T) {
	reg := worker.New()
	mgr := New(reg, memory.New(), http.DefaultClient, nil, Config{})

	assert.Error(t, mgr.HandleMessage(context.Background(), MessageSkipWaiting))
	assert.Equal(t, worker.StateNew, reg.State())
}

func TestHandleMessage_CacheRefresh(t *testing.T) {
	caches := memory.New()
	for _, name := range cache.RecognizedNamespaces() {
		ns, err := caches.Open(name)
		require.NoError(t, err)
		require.NoError(t, ns.Put(context.Background(), "GET https://example.com/a", &cache.Entry{Status: 200}))
	}

	reg := worker.New()
	require.NoError(t, reg.BeginInstall())
	require.NoError(t, reg.FinishInstall())
	require.NoError(t, reg.BeginActivate())
	require.NoError(t, reg.FinishActivate())

	mgr := New(reg, caches, http.DefaultClient, nil, Config{})
	require.NoError(t, mgr.HandleMessage(context.Background(), MessageCacheRefresh))

	// Zero namespaces remain and the registration is redundant.
	names, err := caches.Names()
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Equal(t, worker.StateRedundant, reg.State())
}

func TestHandleMessage_Unknown(t *testing.T) {
	mgr := New(worker.New(), memory.New(), http.DefaultClient, nil, Config{})

	err := mgr.HandleMessage(context.Background(), "RELOAD")
	var unknown *ErrUnknownMessage
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "RELOAD", unknown.Type)
}
