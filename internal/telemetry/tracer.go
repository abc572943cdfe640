package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for worker operations.
// These follow OpenTelemetry semantic conventions where applicable.
// Worker-specific keys use the "worker." prefix.
const (
	// ========================================================================
	// Request attributes
	// ========================================================================
	AttrHTTPMethod = "http.request.method"
	AttrHTTPStatus = "http.response.status_code"
	AttrURLFull    = "url.full"
	AttrServerAddr = "server.address"
	AttrClientAddr = "client.address"

	// ========================================================================
	// Worker attributes
	// ========================================================================
	AttrEvent    = "worker.event"    // install, activate, fetch, sync, push, message
	AttrStrategy = "worker.strategy" // cache_first, network_only, network_first, passthrough
	AttrSyncTag  = "worker.sync_tag" // tag carried by a connectivity-restoration signal
	AttrSource   = "worker.source"   // response source: cache, network, synthetic

	// ========================================================================
	// Cache attributes
	// ========================================================================
	AttrCacheHit       = "cache.hit"
	AttrCacheNamespace = "cache.namespace"
	AttrCacheKey       = "cache.key"

	// ========================================================================
	// Queue attributes
	// ========================================================================
	AttrRecordID = "queue.record_id"
	AttrPending  = "queue.pending"
	AttrReplayed = "queue.replayed"
	AttrFailed   = "queue.failed"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	// Root span for request dispatch
	SpanDispatch = "dispatch.request"

	// Per-strategy spans
	SpanCacheFirst   = "dispatch.cache_first"
	SpanNetworkOnly  = "dispatch.network_only"
	SpanNetworkFirst = "dispatch.network_first"
	SpanPassthrough  = "dispatch.passthrough"

	// Cache namespace operations
	SpanCacheMatch = "cache.match"
	SpanCachePut   = "cache.put"
	SpanCacheEvict = "cache.evict"

	// Replay engine
	SpanReplay       = "replay.drain"
	SpanReplayRecord = "replay.record"

	// Lifecycle
	SpanInstall  = "lifecycle.install"
	SpanActivate = "lifecycle.activate"
)

// Event returns an attribute for the worker event kind
func Event(kind string) attribute.KeyValue {
	return attribute.String(AttrEvent, kind)
}

// Strategy returns an attribute for the fetch strategy
func Strategy(name string) attribute.KeyValue {
	return attribute.String(AttrStrategy, name)
}

// SyncTag returns an attribute for a sync signal tag
func SyncTag(tag string) attribute.KeyValue {
	return attribute.String(AttrSyncTag, tag)
}

// Source returns an attribute for the response source
func Source(src string) attribute.KeyValue {
	return attribute.String(AttrSource, src)
}

// HTTPMethod returns an attribute for the HTTP method
func HTTPMethod(m string) attribute.KeyValue {
	return attribute.String(AttrHTTPMethod, m)
}

// HTTPStatus returns an attribute for the HTTP response status
func HTTPStatus(code int) attribute.KeyValue {
	return attribute.Int(AttrHTTPStatus, code)
}

// URLFull returns an attribute for the absolute request URL
func URLFull(u string) attribute.KeyValue {
	return attribute.String(AttrURLFull, u)
}

// CacheHit returns an attribute for cache hit indicator
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// CacheNamespace returns an attribute for the cache namespace name
func CacheNamespace(name string) attribute.KeyValue {
	return attribute.String(AttrCacheNamespace, name)
}

// CacheKey returns an attribute for a cache entry key
func CacheKey(key string) attribute.KeyValue {
	return attribute.String(AttrCacheKey, key)
}

// RecordID returns an attribute for a PendingWrite identifier
func RecordID(id string) attribute.KeyValue {
	return attribute.String(AttrRecordID, id)
}

// Pending returns an attribute for queue depth
func Pending(n int) attribute.KeyValue {
	return attribute.Int(AttrPending, n)
}

// Replayed returns an attribute for acknowledged records in a replay batch
func Replayed(n int) attribute.KeyValue {
	return attribute.Int(AttrReplayed, n)
}

// Failed returns an attribute for unacknowledged records in a replay batch
func Failed(n int) attribute.KeyValue {
	return attribute.Int(AttrFailed, n)
}

// StartDispatchSpan starts a span for an intercepted request.
// The span carries method and URL; the caller adds strategy and outcome
// attributes as classification proceeds.
func StartDispatchSpan(ctx context.Context, method, url string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanDispatch,
		trace.WithAttributes(
			HTTPMethod(method),
			URLFull(url),
		),
	)
}

// StartReplaySpan starts a span for one replay engine invocation.
func StartReplaySpan(ctx context.Context, tag string, pending int) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanReplay,
		trace.WithAttributes(
			SyncTag(tag),
			Pending(pending),
		),
	)
}

// SpanName builds a span name for an arbitrary component operation.
func SpanName(component, operation string) string {
	return fmt.Sprintf("%s.%s", component, operation)
}
