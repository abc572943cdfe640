// Package notify relays push messages to client windows. A push
// payload becomes a displayed notification with open/close actions; a
// click on it focuses an existing client window when one matches the
// target URL, or opens a new one.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkexplorer/offworker/internal/logger"
)

// Defaults applied to sparse push payloads.
const (
	DefaultTitle = "PK Explorer"
	DefaultBody  = "You have a new notification"
	DefaultURL   = "/"
)

// Notification actions.
const (
	ActionOpen  = "open"
	ActionClose = "close"
)

// Payload is the push message schema. Every field is optional.
type Payload struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Notification is a fully-defaulted notification ready to display.
type Notification struct {
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	URL     string   `json:"url"`
	Actions []string `json:"actions"`
}

// Notifier displays notifications. The gateway's default implementation
// relays them to registered client windows.
type Notifier interface {
	Show(ctx context.Context, n Notification) error
}

// Clients is the window registry surface the click handler needs.
type Clients interface {
	// Focus brings an existing client window showing url to the
	// foreground. Returns false when no such window is registered.
	Focus(ctx context.Context, url string) (bool, error)

	// OpenWindow opens a new client window at url.
	OpenWindow(ctx context.Context, url string) error
}

// Relay handles push messages and notification clicks.
type Relay struct {
	notifier Notifier
	clients  Clients
}

// New creates a push relay.
func New(notifier Notifier, clients Clients) *Relay {
	return &Relay{notifier: notifier, clients: clients}
}

// HandlePush decodes a push payload, fills in defaults and displays
// the notification. A malformed payload is an error; the push is
// dropped.
func (r *Relay) HandlePush(ctx context.Context, raw []byte) error {
	var payload Payload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("malformed push payload: %w", err)
		}
	}

	n := payload.notification()
	logger.Info("Displaying push notification", logger.URL(n.URL))
	if err := r.notifier.Show(ctx, n); err != nil {
		return fmt.Errorf("failed to display notification: %w", err)
	}
	return nil
}

// HandleClick processes a notification click. The close action
// dismisses without touching any window; open and the default (body)
// click focus a matching client window, falling back to opening a new
// one.
func (r *Relay) HandleClick(ctx context.Context, action, url string) error {
	if action == ActionClose {
		logger.Debug("Notification dismissed")
		return nil
	}
	if url == "" {
		url = DefaultURL
	}

	focused, err := r.clients.Focus(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to focus client window: %w", err)
	}
	if focused {
		logger.Debug("Focused existing client window", logger.URL(url))
		return nil
	}

	if err := r.clients.OpenWindow(ctx, url); err != nil {
		return fmt.Errorf("failed to open client window: %w", err)
	}
	logger.Debug("Opened new client window", logger.URL(url))
	return nil
}

// notification applies defaults to a payload.
func (p Payload) notification() Notification {
	n := Notification{
		Title:   p.Title,
		Body:    p.Body,
		URL:     p.URL,
		Actions: []string{ActionOpen, ActionClose},
	}
	if n.Title == "" {
		n.Title = DefaultTitle
	}
	if n.Body == "" {
		n.Body = DefaultBody
	}
	if n.URL == "" {
		n.URL = DefaultURL
	}
	return n
}
