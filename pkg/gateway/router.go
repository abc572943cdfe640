package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pkexplorer/offworker/internal/logger"
	"github.com/pkexplorer/offworker/pkg/dispatch"
	"github.com/pkexplorer/offworker/pkg/queue"
	"github.com/pkexplorer/offworker/pkg/worker"
)

// Deps are the collaborators the router wires together.
type Deps struct {
	Registration *worker.Registration
	Dispatcher   *dispatch.Dispatcher
	Fetcher      dispatch.Fetcher
	Store        queue.Store
	Clients      *ClientRegistry
}

// NewRouter creates and configures the chi router with all middleware and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
//
// Routes:
//   - /* - proxy route through the dispatcher
//   - POST/GET /-/queue - pending write queue
//   - POST /-/sync - connectivity-restoration signal
//   - POST /-/push - push message intake
//   - POST /-/notification/click - notification click routing
//   - POST /-/message - control messages (SKIP_WAITING, CACHE_REFRESH)
//   - PUT/DELETE /-/clients/{id}, GET /-/clients - client window registry
//   - GET /-/health, GET /-/health/ready - probes
func NewRouter(cfg Config, deps Deps) http.Handler {
	cfg.applyDefaults()
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	control := &controlHandlers{
		registration: deps.Registration,
		store:        deps.Store,
		clients:      deps.Clients,
	}

	r.Route("/-", func(r chi.Router) {
		r.Post("/queue", control.enqueue)
		r.Get("/queue", control.listQueue)
		r.Post("/sync", control.handleSync)
		r.Post("/push", control.handlePush)
		r.Post("/notification/click", control.handleClick)
		r.Post("/message", control.handleMessage)

		r.Get("/clients", control.listClients)
		r.Put("/clients/{id}", control.registerClient)
		r.Delete("/clients/{id}", control.deregisterClient)

		r.Get("/health", control.liveness)
		r.Get("/health/ready", control.readiness)
	})

	proxy := &proxyHandler{
		registration: deps.Registration,
		dispatcher:   deps.Dispatcher,
		fetcher:      deps.Fetcher,
		origin:       cfg.Origin,
	}
	r.Handle("/*", proxy)

	return r
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("Gateway request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logger.Info("Gateway request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		)
	})
}
