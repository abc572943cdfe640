// Package lifecycle drives the registration through install and
// activation, and handles control messages from client windows.
// Install precaches the static asset manifest; activation evicts
// namespaces left behind by previous versions and claims all registered
// clients at once.
package lifecycle

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkexplorer/offworker/internal/logger"
	"github.com/pkexplorer/offworker/internal/telemetry"
	"github.com/pkexplorer/offworker/pkg/cache"
	"github.com/pkexplorer/offworker/pkg/worker"
)

// Control message types accepted by HandleMessage.
const (
	MessageSkipWaiting  = "SKIP_WAITING"
	MessageCacheRefresh = "CACHE_REFRESH"
)

// ErrUnknownMessage is returned for control messages outside the
// protocol.
type ErrUnknownMessage struct {
	Type string
}

func (e *ErrUnknownMessage) Error() string {
	return fmt.Sprintf("unknown control message %q", e.Type)
}

// Fetcher performs the network round trips for precaching.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Claimer marks the gateway live for every registered client window.
// The gateway's client registry implements it.
type Claimer interface {
	Claim()
}

// Config holds lifecycle configuration.
type Config struct {
	// Manifest lists the absolute URLs precached at install, the app
	// shell first.
	Manifest []string
}

// Manager owns the registration lifecycle.
type Manager struct {
	reg     *worker.Registration
	caches  cache.Manager
	fetcher Fetcher
	claimer Claimer
	cfg     Config
}

// New creates a lifecycle manager. claimer may be nil when no client
// registry participates (tests, one-shot CLI commands).
func New(reg *worker.Registration, caches cache.Manager, fetcher Fetcher, claimer Claimer, cfg Config) *Manager {
	return &Manager{
		reg:     reg,
		caches:  caches,
		fetcher: fetcher,
		claimer: claimer,
		cfg:     cfg,
	}
}

// Install moves the registration through installing -> installed,
// precaching the manifest on the way. A precache failure aborts the
// whole precache and is logged; it does not block the registration —
// assets are fetched again on demand by the network-first path.
func (m *Manager) Install(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanInstall)
	defer span.End()

	if err := m.reg.BeginInstall(); err != nil {
		return err
	}

	if err := m.precache(ctx); err != nil {
		logger.Warn("Precache aborted, nothing stored", logger.Err(err))
	}

	return m.reg.FinishInstall()
}

// precache fetches every manifest asset and stores them all, or none.
// Fetches complete before the first write so a mid-manifest failure
// leaves the namespace untouched.
func (m *Manager) precache(ctx context.Context) error {
	if len(m.cfg.Manifest) == 0 {
		return nil
	}

	static, err := m.caches.Open(cache.StaticNamespace)
	if err != nil {
		return fmt.Errorf("failed to open static namespace: %w", err)
	}

	type fetched struct {
		key   string
		entry *cache.Entry
	}
	entries := make([]fetched, 0, len(m.cfg.Manifest))

	for _, asset := range m.cfg.Manifest {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset, nil)
		if err != nil {
			return fmt.Errorf("invalid manifest asset %q: %w", asset, err)
		}
		resp, err := m.fetcher.Do(req)
		if err != nil {
			return fmt.Errorf("failed to fetch %q: %w", asset, err)
		}
		entry, err := entryFromResponse(resp)
		if err != nil {
			return fmt.Errorf("failed to read %q: %w", asset, err)
		}
		if entry.Status != http.StatusOK {
			return fmt.Errorf("unexpected status %d for %q", entry.Status, asset)
		}
		entries = append(entries, fetched{
			key:   cache.RequestKey(http.MethodGet, asset),
			entry: entry,
		})
	}

	for _, f := range entries {
		if err := static.Put(ctx, f.key, f.entry); err != nil {
			return fmt.Errorf("failed to store %q: %w", f.key, err)
		}
	}

	logger.Info("Precached static assets",
		logger.Namespace(cache.StaticNamespace),
		logger.Pending(len(entries)),
	)
	return nil
}

// Activate moves the registration through activating -> activated.
// Every on-disk namespace outside the recognized set is dropped whole,
// then all registered clients are claimed immediately.
func (m *Manager) Activate(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanActivate)
	defer span.End()

	if err := m.reg.BeginActivate(); err != nil {
		return err
	}

	dropped, err := cache.EvictUnrecognized(m.caches, cache.RecognizedNamespaces())
	if err != nil {
		// Stale namespaces are an eviction concern, not an activation
		// blocker.
		logger.Warn("Namespace eviction incomplete", logger.Err(err))
	}
	if len(dropped) > 0 {
		logger.InfoCtx(ctx, "Evicted stale cache namespaces", logger.Evicted(len(dropped)))
	}

	if err := m.reg.FinishActivate(); err != nil {
		return err
	}

	if m.claimer != nil {
		m.claimer.Claim()
	}
	logger.Info("Registration activated")
	return nil
}

// Startup runs install then activation, the normal daemon boot path.
func (m *Manager) Startup(ctx context.Context) error {
	if err := m.Install(ctx); err != nil {
		return fmt.Errorf("install failed: %w", err)
	}
	if err := m.Activate(ctx); err != nil {
		return fmt.Errorf("activation failed: %w", err)
	}
	return nil
}

// HandleMessage processes one control message from a client window.
//
//   - SKIP_WAITING promotes a waiting (installed) registration to
//     active; any other state is an invalid transition error.
//   - CACHE_REFRESH drops every cache namespace and unregisters: the
//     registration goes redundant and the gateway bypasses to the
//     network until restart.
func (m *Manager) HandleMessage(ctx context.Context, messageType string) error {
	switch messageType {
	case MessageSkipWaiting:
		logger.Info("Skip-waiting requested")
		return m.Activate(ctx)

	case MessageCacheRefresh:
		logger.Info("Cache refresh requested, dropping all namespaces")
		if err := m.caches.DropAll(); err != nil {
			return fmt.Errorf("failed to drop namespaces: %w", err)
		}
		m.reg.Unregister()
		return nil

	default:
		return &ErrUnknownMessage{Type: messageType}
	}
}
