// Package dispatch implements the request dispatcher: it classifies
// every intercepted request into one strategy and produces a response
// for it unconditionally. The dispatcher is total — network failures,
// cache misses and store errors all map to a synthetic fallback, never
// to an unanswered request.
package dispatch

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkexplorer/offworker/internal/logger"
	"github.com/pkexplorer/offworker/internal/telemetry"
	"github.com/pkexplorer/offworker/pkg/cache"
)

// Strategy names as they appear in logs, metrics and spans.
const (
	StrategyPassthrough  = "passthrough"
	StrategyCacheFirst   = "cache_first"
	StrategyNetworkOnly  = "network_only"
	StrategyNetworkFirst = "network_first"
)

// Response sources.
const (
	SourceNetwork   = "network"
	SourceCache     = "cache"
	SourceSynthetic = "synthetic"
)

// Fetcher performs the actual network round trip. *http.Client
// satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// BackgroundTasks receives fire-and-forget work spawned by a dispatch,
// such as cache writes. The response path never waits on it.
type BackgroundTasks interface {
	Go(fn func() error)
}

// Config selects hosts per strategy and names the app shell document.
type Config struct {
	// TileHost is the map tile server host. Requests to it are served
	// cache-first from the tile namespace.
	TileHost string

	// BackendHosts are API backend hosts. Requests to them are
	// network-only and never cached.
	BackendHosts []string

	// AppShellURL is the absolute URL of the cached application shell
	// served to offline navigation requests.
	AppShellURL string
}

// Dispatcher routes intercepted requests through the caching
// strategies.
type Dispatcher struct {
	fetcher Fetcher
	static  cache.Namespace
	tiles   cache.Namespace
	cfg     Config
	metrics Metrics
}

// New creates a dispatcher. A nil metrics falls back to a no-op
// implementation.
func New(fetcher Fetcher, static, tiles cache.Namespace, cfg Config, metrics Metrics) *Dispatcher {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Dispatcher{
		fetcher: fetcher,
		static:  static,
		tiles:   tiles,
		cfg:     cfg,
		metrics: metrics,
	}
}

// Dispatch classifies the request and returns a response for it. A
// response is always returned. Background cache writes register on
// tasks; pass nil to run the dispatch without them (writes are then
// skipped).
func (d *Dispatcher) Dispatch(ctx context.Context, req *http.Request, tasks BackgroundTasks) *http.Response {
	ctx, span := telemetry.StartDispatchSpan(ctx, req.Method, req.URL.String())
	defer span.End()

	strategy := d.classify(req)
	span.SetAttributes(telemetry.Strategy(strategy))

	ctx = logger.WithContext(ctx, logger.NewLogContext("fetch").WithStrategy(strategy))
	start := time.Now()

	var resp *http.Response
	var source string
	switch strategy {
	case StrategyPassthrough:
		resp, source = d.passthrough(ctx, req)
	case StrategyCacheFirst:
		resp, source = d.cacheFirst(ctx, req, tasks)
	case StrategyNetworkOnly:
		resp, source = d.networkOnly(ctx, req)
	default:
		resp, source = d.networkFirst(ctx, req, tasks)
	}

	span.SetAttributes(telemetry.Source(source), telemetry.HTTPStatus(resp.StatusCode))
	d.metrics.ObserveDispatch(strategy, source, time.Since(start).Seconds())

	logger.DebugCtx(ctx, "Dispatched request",
		logger.Method(req.Method),
		logger.URL(req.URL.String()),
		logger.Status(resp.StatusCode),
		logger.Source(source),
	)
	return resp
}

// classify picks the strategy for a request. First match wins.
func (d *Dispatcher) classify(req *http.Request) string {
	if req.Method != http.MethodGet {
		return StrategyPassthrough
	}
	if hostMatches(req.URL, d.cfg.TileHost) {
		return StrategyCacheFirst
	}
	for _, backend := range d.cfg.BackendHosts {
		if hostMatches(req.URL, backend) {
			return StrategyNetworkOnly
		}
	}
	return StrategyNetworkFirst
}

// hostMatches reports whether the request URL targets the configured
// host. Configured entries may carry a port ("localhost:3000"), which
// must match the URL's host:port exactly; a portless entry matches the
// hostname whatever the port.
func hostMatches(u *url.URL, configured string) bool {
	if configured == "" {
		return false
	}
	return u.Host == configured || u.Hostname() == configured
}

// passthrough forwards non-GET requests verbatim. Neither the request
// nor the response touches a cache namespace. A transport failure maps
// to 502 so the caller sees the outage rather than a hung request.
func (d *Dispatcher) passthrough(ctx context.Context, req *http.Request) (*http.Response, string) {
	resp, err := d.fetcher.Do(req.WithContext(ctx))
	if err != nil {
		logger.Warn("Passthrough request failed",
			logger.Method(req.Method),
			logger.URL(req.URL.String()),
			logger.Err(err),
		)
		return syntheticStatus(http.StatusBadGateway, req), SourceSynthetic
	}
	return resp, SourceNetwork
}

// cacheFirst serves tile requests from the tile namespace, falling back
// to the network and storing fresh 200s. No tile means an empty 503 —
// the map renders a blank tile instead of erroring.
func (d *Dispatcher) cacheFirst(ctx context.Context, req *http.Request, tasks BackgroundTasks) (*http.Response, string) {
	key := cache.RequestKey(req.Method, req.URL.String())

	entry, err := d.tiles.Match(ctx, key)
	if err == nil {
		d.metrics.ObserveCacheLookup(d.tiles.Name(), true)
		return responseFromEntry(entry, req), SourceCache
	}
	if err != cache.ErrNotFound {
		logger.Warn("Tile cache lookup failed", logger.CacheKey(key), logger.Err(err))
	}
	d.metrics.ObserveCacheLookup(d.tiles.Name(), false)

	resp, err := d.fetcher.Do(req.WithContext(ctx))
	if err != nil {
		return syntheticStatus(http.StatusServiceUnavailable, req), SourceSynthetic
	}

	d.storeClone(resp, key, d.tiles, tasks)
	return resp, SourceNetwork
}

// networkOnly serves backend API requests straight from the network.
// Offline, it answers with the {"offline":true} body at status 200:
// the application branches on the body flag, not the status code.
func (d *Dispatcher) networkOnly(ctx context.Context, req *http.Request) (*http.Response, string) {
	resp, err := d.fetcher.Do(req.WithContext(ctx))
	if err != nil {
		return syntheticOffline(req), SourceSynthetic
	}
	return resp, SourceNetwork
}

// networkFirst tries the network, stores fresh 200s into the static
// namespace, and falls back to the static cache when offline. An
// uncached navigation request gets the app shell so the SPA can boot;
// anything else gets 503.
func (d *Dispatcher) networkFirst(ctx context.Context, req *http.Request, tasks BackgroundTasks) (*http.Response, string) {
	key := cache.RequestKey(req.Method, req.URL.String())

	resp, err := d.fetcher.Do(req.WithContext(ctx))
	if err == nil {
		if cacheableURL(req) {
			d.storeClone(resp, key, d.static, tasks)
		}
		return resp, SourceNetwork
	}

	entry, matchErr := d.static.Match(ctx, key)
	if matchErr == nil {
		d.metrics.ObserveCacheLookup(d.static.Name(), true)
		return responseFromEntry(entry, req), SourceCache
	}
	if matchErr != cache.ErrNotFound {
		logger.Warn("Static cache lookup failed", logger.CacheKey(key), logger.Err(matchErr))
	}
	d.metrics.ObserveCacheLookup(d.static.Name(), false)

	if isNavigation(req) {
		shellKey := cache.RequestKey(http.MethodGet, d.cfg.AppShellURL)
		if shell, shellErr := d.static.Match(ctx, shellKey); shellErr == nil {
			return responseFromEntry(shell, req), SourceCache
		}
	}

	return syntheticStatus(http.StatusServiceUnavailable, req), SourceSynthetic
}

// storeClone snapshots a 200 response and writes the copy to the
// namespace as a background task. The response body is rewound so the
// caller can still stream it. Write failures are logged, never
// surfaced.
func (d *Dispatcher) storeClone(resp *http.Response, key string, ns cache.Namespace, tasks BackgroundTasks) {
	if tasks == nil || resp.StatusCode != http.StatusOK {
		return
	}

	entry, err := snapshotResponse(resp)
	if err != nil {
		logger.Warn("Failed to snapshot response for caching", logger.CacheKey(key), logger.Err(err))
		return
	}

	name := ns.Name()
	tasks.Go(func() error {
		// Detached from the request context: the write outlives the reply.
		if err := ns.Put(context.Background(), key, entry); err != nil {
			logger.Warn("Cache write failed",
				logger.Namespace(name),
				logger.CacheKey(key),
				logger.Err(err),
			)
			d.metrics.ObserveCacheWrite(name, false)
			return nil
		}
		d.metrics.ObserveCacheWrite(name, true)
		return nil
	})
}

// cacheableURL reports whether the request URL is a well-formed
// absolute http(s) URL worth storing.
func cacheableURL(req *http.Request) bool {
	u := req.URL
	return u.IsAbs() && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// isNavigation reports whether the request is a document navigation.
// Fetch metadata is authoritative; the Accept header covers clients
// that omit it.
func isNavigation(req *http.Request) bool {
	if mode := req.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}
