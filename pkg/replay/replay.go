// Package replay drains the durable write queue when a
// connectivity-restoration signal arrives. Records are resent strictly
// in enqueue order; each is deleted only after the backend acknowledges
// it with a 2xx, so delivery is at-least-once. A failed record stays in
// place and the batch moves on — there is no in-process retry loop, the
// next sync signal retries naturally.
package replay

import (
	"context"

	"resty.dev/v3"

	"github.com/pkexplorer/offworker/internal/logger"
	"github.com/pkexplorer/offworker/internal/telemetry"
	"github.com/pkexplorer/offworker/pkg/queue"
)

// SyncTag is the only sync tag the engine reacts to. Signals carrying
// any other tag are ignored.
const SyncTag = "sync-points"

// Config holds replay engine configuration.
type Config struct {
	// Endpoint is the absolute URL pending writes are POSTed to.
	Endpoint string
}

// Engine replays queued writes against the backend.
type Engine struct {
	store    queue.Store
	client   *resty.Client
	endpoint string
	metrics  Metrics
}

// New creates a replay engine. A nil metrics falls back to a no-op
// implementation.
func New(store queue.Store, client *resty.Client, cfg Config, metrics Metrics) *Engine {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Engine{
		store:    store,
		client:   client,
		endpoint: cfg.Endpoint,
		metrics:  metrics,
	}
}

// HandleSync processes one connectivity-restoration signal. Signals
// with a tag other than SyncTag are a no-op and touch nothing. Store
// failures abort the invocation with records intact; they are logged,
// not propagated — the signal source gets no error either way.
func (e *Engine) HandleSync(ctx context.Context, tag string) {
	if tag != SyncTag {
		logger.Debug("Ignoring sync signal with unknown tag", logger.Tag(tag))
		return
	}

	records, err := e.store.List(ctx)
	if err != nil {
		logger.Error("Failed to read write queue, keeping records", logger.Err(err))
		return
	}
	if len(records) == 0 {
		return
	}

	ctx, span := telemetry.StartReplaySpan(ctx, tag, len(records))
	defer span.End()

	log := logger.NewLogContext("sync")
	ctx = logger.WithContext(ctx, log)
	logger.InfoCtx(ctx, "Replaying queued writes", logger.Pending(len(records)))

	replayed, failed := 0, 0
	for _, record := range records {
		if ctx.Err() != nil {
			logger.WarnCtx(ctx, "Replay interrupted", logger.Pending(len(records)-replayed-failed))
			break
		}
		if e.replayOne(ctx, record) {
			replayed++
		} else {
			failed++
		}
	}

	span.SetAttributes(telemetry.Replayed(replayed), telemetry.Failed(failed))
	e.metrics.ObserveReplay(replayed, failed)
	logger.InfoCtx(ctx, "Replay finished",
		logger.Replayed(replayed),
		logger.Failed(failed),
		logger.DurationMs(log.DurationMs()),
	)
}

// replayOne resends a single record and deletes it on acknowledgment.
// Returns true when the record was acknowledged and removed.
func (e *Engine) replayOne(ctx context.Context, record *queue.PendingWrite) bool {
	resp, err := e.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody([]byte(record.Payload)).
		Post(e.endpoint)
	if err != nil {
		logger.WarnCtx(ctx, "Replay POST failed, keeping record",
			logger.RecordID(record.ID),
			logger.Err(err),
		)
		return false
	}
	if !resp.IsSuccess() {
		logger.WarnCtx(ctx, "Replay rejected by backend, keeping record",
			logger.RecordID(record.ID),
			logger.Status(resp.StatusCode()),
		)
		return false
	}

	if err := e.store.Delete(ctx, record.ID); err != nil {
		// The POST landed but the record survives; the next sync will
		// resend it. At-least-once allows the duplicate.
		logger.WarnCtx(ctx, "Failed to delete acknowledged record",
			logger.RecordID(record.ID),
			logger.Err(err),
		)
		return false
	}

	logger.DebugCtx(ctx, "Replayed record", logger.RecordID(record.ID))
	return true
}
