package gateway

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkexplorer/offworker/internal/logger"
	"github.com/pkexplorer/offworker/pkg/notify"
)

// ClientWindow is one registered application window.
type ClientWindow struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	RegisteredAt time.Time `json:"registered_at"`

	// Claimed reports whether the activated registration controls this
	// window.
	Claimed bool `json:"claimed"`
}

// ClientRegistry tracks application windows over the control API. It
// backs both the lifecycle claim step and the push relay's focus/open
// behavior.
type ClientRegistry struct {
	mu      sync.RWMutex
	windows map[string]*ClientWindow

	// relayed holds notifications forwarded to clients, newest last.
	relayed []notify.Notification
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{windows: make(map[string]*ClientWindow)}
}

// Register adds or updates a client window.
func (c *ClientRegistry) Register(id, url string) *ClientWindow {
	c.mu.Lock()
	defer c.mu.Unlock()

	window, ok := c.windows[id]
	if !ok {
		window = &ClientWindow{ID: id, RegisteredAt: time.Now().UTC()}
		c.windows[id] = window
	}
	window.URL = url
	return window
}

// Deregister removes a client window. Unknown IDs are a no-op.
func (c *ClientRegistry) Deregister(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.windows, id)
}

// List returns all registered windows ordered by registration time.
func (c *ClientRegistry) List() []*ClientWindow {
	c.mu.RLock()
	defer c.mu.RUnlock()

	windows := make([]*ClientWindow, 0, len(c.windows))
	for _, w := range c.windows {
		clone := *w
		windows = append(windows, &clone)
	}
	sort.Slice(windows, func(i, j int) bool {
		return windows[i].RegisteredAt.Before(windows[j].RegisteredAt)
	})
	return windows
}

// Claim marks every registered window as controlled by the active
// registration. Implements the lifecycle claim step.
func (c *ClientRegistry) Claim() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.windows {
		w.Claimed = true
	}
	logger.Debug("Claimed client windows", logger.Pending(len(c.windows)))
}

// ============================================================================
// notify ports
// ============================================================================

// Focus brings the first registered window showing url to the
// foreground. Focusing is a relay concern: the window learns about it
// on its next control poll; here it only has to exist.
func (c *ClientRegistry) Focus(_ context.Context, url string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, w := range c.windows {
		if w.URL == url {
			logger.Debug("Focusing client window", logger.ClientAddr(w.ID), logger.URL(url))
			return true, nil
		}
	}
	return false, nil
}

// OpenWindow registers a synthetic window for url, standing in for the
// platform "open a new window" call.
func (c *ClientRegistry) OpenWindow(_ context.Context, url string) error {
	window := c.Register("window-"+time.Now().UTC().Format("20060102150405.000000000"), url)
	logger.Debug("Opened client window", logger.ClientAddr(window.ID), logger.URL(url))
	return nil
}

// Show relays a notification to all registered windows and records it.
// Implements notify.Notifier.
func (c *ClientRegistry) Show(_ context.Context, n notify.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.relayed = append(c.relayed, n)
	logger.Info("Relayed notification to clients",
		logger.URL(n.URL),
		logger.Pending(len(c.windows)),
	)
	return nil
}

// Notifications returns the notifications relayed so far, oldest first.
func (c *ClientRegistry) Notifications() []notify.Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]notify.Notification(nil), c.relayed...)
}
