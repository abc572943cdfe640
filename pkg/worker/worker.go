// Package worker models the registration that owns the offline gateway:
// its lifecycle state, the table of event handlers, and the background
// work spawned while handling an event. The host dispatches events
// (install, activate, fetch, sync, push, notificationclick, message)
// through a Registration
// and awaits the returned Work handle before considering the event
// settled.
package worker

import (
	"context"
	"fmt"
	"sync"
)

// State is the registration lifecycle state.
type State string

// Registration lifecycle states. A registration moves strictly forward
// through install and activation; Redundant is terminal and reachable
// from any state via unregistration.
const (
	StateNew        State = "new"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
	StateRedundant  State = "redundant"
)

// EventKind identifies an event routed through the dispatch table.
type EventKind string

const (
	EventInstall           EventKind = "install"
	EventActivate          EventKind = "activate"
	EventFetch             EventKind = "fetch"
	EventSync              EventKind = "sync"
	EventPush              EventKind = "push"
	EventNotificationClick EventKind = "notificationclick"
	EventMessage           EventKind = "message"
)

// Event is one occurrence delivered to a handler. Only the fields
// relevant to the kind are populated.
type Event struct {
	Kind EventKind

	// Tag is the sync tag for EventSync.
	Tag string

	// Message is the control message type for EventMessage.
	Message string

	// Payload is the raw body for EventPush.
	Payload []byte

	// Action and TargetURL carry the clicked notification action and
	// its target for EventNotificationClick.
	Action    string
	TargetURL string
}

// Handler processes one event. Fire-and-forget tasks belong on work,
// not on new unattached goroutines, so the host can await them.
type Handler func(ctx context.Context, event Event, work *Work) error

// ErrNoHandler is returned when an event kind has no registered handler.
type ErrNoHandler struct {
	Kind EventKind
}

func (e *ErrNoHandler) Error() string {
	return fmt.Sprintf("no handler registered for %q events", e.Kind)
}

// ErrInvalidTransition is returned by state transitions that are not
// part of the lifecycle.
type ErrInvalidTransition struct {
	From, To State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid registration transition %s -> %s", e.From, e.To)
}

// Registration is the explicit per-worker context object. It is safe
// for concurrent use; events may be in flight concurrently, state
// transitions are serialized.
type Registration struct {
	mu       sync.RWMutex
	state    State
	handlers map[EventKind]Handler
}

// New creates a registration in StateNew with an empty handler table.
func New() *Registration {
	return &Registration{
		state:    StateNew,
		handlers: make(map[EventKind]Handler),
	}
}

// State returns the current lifecycle state.
func (r *Registration) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Active reports whether the registration is serving fetches.
func (r *Registration) Active() bool {
	return r.State() == StateActivated
}

// On registers the handler for an event kind, replacing any previous one.
func (r *Registration) On(kind EventKind, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = handler
}

// Dispatch routes an event to its handler and returns the Work handle
// carrying any background tasks the handler registered. The handler
// itself runs synchronously; the caller decides when to Wait.
func (r *Registration) Dispatch(ctx context.Context, event Event) (*Work, error) {
	r.mu.RLock()
	handler, ok := r.handlers[event.Kind]
	r.mu.RUnlock()

	if !ok {
		return nil, &ErrNoHandler{Kind: event.Kind}
	}

	work := NewWork()
	if err := handler(ctx, event, work); err != nil {
		return work, err
	}
	return work, nil
}

// ============================================================================
// State transitions
// ============================================================================

// validNext lists the forward transitions. Redundant is additionally
// reachable from every state.
var validNext = map[State]State{
	StateNew:        StateInstalling,
	StateInstalling: StateInstalled,
	StateInstalled:  StateActivating,
	StateActivating: StateActivated,
}

func (r *Registration) transition(to State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if to == StateRedundant {
		r.state = StateRedundant
		return nil
	}
	if validNext[r.state] != to {
		return &ErrInvalidTransition{From: r.state, To: to}
	}
	r.state = to
	return nil
}

// BeginInstall moves new -> installing.
func (r *Registration) BeginInstall() error {
	return r.transition(StateInstalling)
}

// FinishInstall moves installing -> installed. The registration is now
// waiting; it serves nothing until activated.
func (r *Registration) FinishInstall() error {
	return r.transition(StateInstalled)
}

// BeginActivate moves installed -> activating.
func (r *Registration) BeginActivate() error {
	return r.transition(StateActivating)
}

// FinishActivate moves activating -> activated.
func (r *Registration) FinishActivate() error {
	return r.transition(StateActivated)
}

// Unregister moves the registration to redundant from any state.
// Redundant is terminal.
func (r *Registration) Unregister() {
	_ = r.transition(StateRedundant)
}
