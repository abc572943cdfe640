package logger

import "log/slog"

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so logs can be
// aggregated and queried per event, strategy, and namespace.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Worker Events
	// ========================================================================
	KeyEvent    = "event"    // Worker event kind: install, activate, fetch, sync, push, message
	KeyStrategy = "strategy" // Fetch strategy: cache_first, network_only, network_first, passthrough
	KeyTag      = "tag"      // Sync signal tag

	// ========================================================================
	// Requests
	// ========================================================================
	KeyMethod     = "method"      // HTTP method
	KeyURL        = "url"         // Absolute request URL
	KeyHost       = "host"        // Target host
	KeyStatus     = "status"      // HTTP status code
	KeyClientAddr = "client_addr" // Address of the requesting client window

	// ========================================================================
	// Cache Namespaces
	// ========================================================================
	KeyNamespace = "namespace" // Cache namespace name
	KeyCacheKey  = "cache_key" // Request identity key inside a namespace
	KeyCacheHit  = "cache_hit" // Cache hit indicator
	KeyEvicted   = "evicted"   // Number of namespaces evicted

	// ========================================================================
	// Pending Write Queue
	// ========================================================================
	KeyRecordID = "record_id" // PendingWrite identifier
	KeyPending  = "pending"   // Pending records in the queue
	KeyReplayed = "replayed"  // Records replayed successfully
	KeyFailed   = "failed"    // Records that failed replay

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeySource     = "source"      // Response source: cache, network, synthetic
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Event returns a slog.Attr for the worker event kind
func Event(kind string) slog.Attr {
	return slog.String(KeyEvent, kind)
}

// Strategy returns a slog.Attr for the fetch strategy
func Strategy(name string) slog.Attr {
	return slog.String(KeyStrategy, name)
}

// Tag returns a slog.Attr for a sync signal tag
func Tag(tag string) slog.Attr {
	return slog.String(KeyTag, tag)
}

// Method returns a slog.Attr for the HTTP method
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// URL returns a slog.Attr for the request URL
func URL(u string) slog.Attr {
	return slog.String(KeyURL, u)
}

// Host returns a slog.Attr for the target host
func Host(h string) slog.Attr {
	return slog.String(KeyHost, h)
}

// Status returns a slog.Attr for an HTTP status code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// ClientAddr returns a slog.Attr for a client window address
func ClientAddr(addr string) slog.Attr {
	return slog.String(KeyClientAddr, addr)
}

// Namespace returns a slog.Attr for a cache namespace name
func Namespace(name string) slog.Attr {
	return slog.String(KeyNamespace, name)
}

// CacheKey returns a slog.Attr for a cache entry key
func CacheKey(key string) slog.Attr {
	return slog.String(KeyCacheKey, key)
}

// CacheHit returns a slog.Attr for cache hit indicator
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

// Evicted returns a slog.Attr for number of namespaces evicted
func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}

// RecordID returns a slog.Attr for a PendingWrite identifier
func RecordID(id string) slog.Attr {
	return slog.String(KeyRecordID, id)
}

// Pending returns a slog.Attr for pending queue depth
func Pending(n int) slog.Attr {
	return slog.Int(KeyPending, n)
}

// Replayed returns a slog.Attr for records replayed successfully
func Replayed(n int) slog.Attr {
	return slog.Int(KeyReplayed, n)
}

// Failed returns a slog.Attr for records that failed replay
func Failed(n int) slog.Attr {
	return slog.Int(KeyFailed, n)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Source returns a slog.Attr for the response source
func Source(src string) slog.Attr {
	return slog.String(KeySource, src)
}
