package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pkexplorer/offworker/internal/logger"
	"github.com/pkexplorer/offworker/pkg/lifecycle"
	"github.com/pkexplorer/offworker/pkg/queue"
	"github.com/pkexplorer/offworker/pkg/worker"
)

// controlHandlers implements the /-/ control API.
type controlHandlers struct {
	registration *worker.Registration
	store        queue.Store
	clients      *ClientRegistry
}

// ============================================================================
// Queue
// ============================================================================

// enqueue appends the request body to the durable write queue.
//
// POST /-/queue
func (h *controlHandlers) enqueue(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		JSON(w, http.StatusBadRequest, ErrorResponse("failed to read request body"))
		return
	}
	if !json.Valid(body) {
		JSON(w, http.StatusBadRequest, ErrorResponse("payload must be valid JSON"))
		return
	}

	record, err := h.store.Put(r.Context(), body)
	if err != nil {
		logger.Error("Failed to enqueue pending write", logger.Err(err))
		JSON(w, http.StatusInternalServerError, ErrorResponse("failed to store pending write"))
		return
	}

	logger.Info("Queued pending write", logger.RecordID(record.ID))
	JSON(w, http.StatusCreated, OKResponse(record))
}

// listQueue returns all pending writes in replay order.
//
// GET /-/queue
func (h *controlHandlers) listQueue(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.List(r.Context())
	if err != nil {
		logger.Error("Failed to list pending writes", logger.Err(err))
		JSON(w, http.StatusInternalServerError, ErrorResponse("failed to read queue"))
		return
	}
	if records == nil {
		records = []*queue.PendingWrite{}
	}
	JSON(w, http.StatusOK, OKResponse(records))
}

// ============================================================================
// Worker events
// ============================================================================

type syncRequest struct {
	Tag string `json:"tag"`
}

// handleSync accepts a connectivity-restoration signal and dispatches a
// sync event. The replay runs as background work; the signal source is
// answered immediately and never sees replay errors.
//
// POST /-/sync
func (h *controlHandlers) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSON(w, http.StatusBadRequest, ErrorResponse("malformed sync request"))
		return
	}
	if req.Tag == "" {
		JSON(w, http.StatusBadRequest, ErrorResponse("missing sync tag"))
		return
	}

	work, err := h.registration.Dispatch(r.Context(), worker.Event{
		Kind: worker.EventSync,
		Tag:  req.Tag,
	})
	if err != nil {
		JSON(w, http.StatusInternalServerError, ErrorResponse(err.Error()))
		return
	}

	go func() {
		if err := work.Wait(); err != nil {
			logger.Warn("Sync event work failed", logger.Tag(req.Tag), logger.Err(err))
		}
	}()
	JSON(w, http.StatusAccepted, OKResponse(map[string]string{"tag": req.Tag}))
}

// handlePush relays one push message.
//
// POST /-/push
func (h *controlHandlers) handlePush(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		JSON(w, http.StatusBadRequest, ErrorResponse("failed to read request body"))
		return
	}

	work, err := h.registration.Dispatch(r.Context(), worker.Event{
		Kind:    worker.EventPush,
		Payload: body,
	})
	if err != nil {
		JSON(w, http.StatusBadRequest, ErrorResponse(err.Error()))
		return
	}
	if err := work.Wait(); err != nil {
		JSON(w, http.StatusBadRequest, ErrorResponse(err.Error()))
		return
	}
	JSON(w, http.StatusOK, OKResponse(nil))
}

type clickRequest struct {
	Action string `json:"action"`
	URL    string `json:"url"`
}

// handleClick routes a notification click. Close dismisses; open (or a
// body click, empty action) focuses a matching client window, opening a
// new one when none matches.
//
// POST /-/notification/click
func (h *controlHandlers) handleClick(w http.ResponseWriter, r *http.Request) {
	var req clickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSON(w, http.StatusBadRequest, ErrorResponse("malformed click"))
		return
	}

	work, err := h.registration.Dispatch(r.Context(), worker.Event{
		Kind:      worker.EventNotificationClick,
		Action:    req.Action,
		TargetURL: req.URL,
	})
	if err == nil {
		err = work.Wait()
	}
	if err != nil {
		JSON(w, http.StatusInternalServerError, ErrorResponse(err.Error()))
		return
	}
	JSON(w, http.StatusOK, OKResponse(nil))
}

type messageRequest struct {
	Type string `json:"type"`
}

// handleMessage processes a control message from a client window.
//
// POST /-/message
func (h *controlHandlers) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSON(w, http.StatusBadRequest, ErrorResponse("malformed message"))
		return
	}

	work, err := h.registration.Dispatch(r.Context(), worker.Event{
		Kind:    worker.EventMessage,
		Message: req.Type,
	})
	if err == nil {
		err = work.Wait()
	}
	if err != nil {
		var unknown *lifecycle.ErrUnknownMessage
		var invalid *worker.ErrInvalidTransition
		switch {
		case errors.As(err, &unknown):
			JSON(w, http.StatusBadRequest, ErrorResponse(err.Error()))
		case errors.As(err, &invalid):
			JSON(w, http.StatusConflict, ErrorResponse(err.Error()))
		default:
			JSON(w, http.StatusInternalServerError, ErrorResponse(err.Error()))
		}
		return
	}
	JSON(w, http.StatusOK, OKResponse(map[string]string{"state": string(h.registration.State())}))
}

// ============================================================================
// Client windows
// ============================================================================

type registerClientRequest struct {
	URL string `json:"url"`
}

// registerClient adds or updates a client window.
//
// PUT /-/clients/{id}
func (h *controlHandlers) registerClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req registerClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSON(w, http.StatusBadRequest, ErrorResponse("malformed client registration"))
		return
	}

	window := h.clients.Register(id, req.URL)
	logger.Debug("Registered client window", logger.ClientAddr(id), logger.URL(req.URL))
	JSON(w, http.StatusOK, OKResponse(window))
}

// deregisterClient removes a client window.
//
// DELETE /-/clients/{id}
func (h *controlHandlers) deregisterClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.clients.Deregister(id)
	logger.Debug("Deregistered client window", logger.ClientAddr(id))
	JSON(w, http.StatusOK, OKResponse(nil))
}

// listClients returns all registered client windows.
//
// GET /-/clients
func (h *controlHandlers) listClients(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, OKResponse(h.clients.List()))
}

// ============================================================================
// Health
// ============================================================================

// liveness reports the process is up.
//
// GET /-/health
func (h *controlHandlers) liveness(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, HealthyResponse(map[string]string{
		"state": string(h.registration.State()),
	}))
}

// readiness reports whether the gateway serves through the strategies.
// A redundant or not-yet-activated registration is not ready.
//
// GET /-/health/ready
func (h *controlHandlers) readiness(w http.ResponseWriter, r *http.Request) {
	if !h.registration.Active() {
		JSON(w, http.StatusServiceUnavailable, UnhealthyResponse(
			"registration not active: "+string(h.registration.State()),
		))
		return
	}

	pending, err := h.store.Count(r.Context())
	if err != nil {
		JSON(w, http.StatusServiceUnavailable, UnhealthyResponse("queue store unavailable"))
		return
	}
	JSON(w, http.StatusOK, HealthyResponse(map[string]any{
		"state":   string(h.registration.State()),
		"pending": pending,
	}))
}
