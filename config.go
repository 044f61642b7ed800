package httpcache

import "time"

// Config holds every tunable named in the engine's option table. Zero value
// is not valid; use DefaultConfig and layer TransportOptions over it the way
// NewTransport does.
type Config struct {
	// SharedCache puts the engine in shared/public-cache mode (RFC 9111
	// §4.2.1's stricter rules around Authorization and private/s-maxage).
	// Default true (shared cache).
	SharedCache bool

	// MaxObjectSize caps the response body size, in bytes, eligible for
	// storage at all. A body that exceeds it is never buffered for
	// caching; the original stream is passed through to the caller
	// unmodified and no entry is created. Default 8192 (8 KiB).
	MaxObjectSize int64

	// MaxCacheEntries bounds the number of entries a size-aware Storage
	// implementation should retain; advisory only — enforcement is a
	// property of the Storage backend, not the engine. Default 1000.
	MaxCacheEntries int

	// MaxUpdateRetries bounds the number of CAS retry attempts
	// Storage.UpdateEntry performs before returning ErrCacheUpdateFailed.
	// Default 1.
	MaxUpdateRetries int

	// FreshnessCheckEnabled, when false, treats every stored entry as
	// always-fresh (bypassing C3 entirely) — useful only for backends that
	// have their own external TTL enforcement. Default true.
	FreshnessCheckEnabled bool

	// HeuristicFreshnessEnabled permits C3 to derive a freshness lifetime
	// from Last-Modified when no explicit freshness directive is present
	// (RFC 9111 §4.2.2). Default false: a stored response with no explicit
	// freshness directive is treated as stale until an opt-in.
	HeuristicFreshnessEnabled bool

	// HeuristicFreshnessFraction is the fraction of (Date - Last-Modified)
	// used as the heuristic freshness lifetime. Default 0.1 (RFC 9111's
	// suggested 10%).
	HeuristicFreshnessFraction float64

	// MaxHeuristicFreshness caps the heuristic freshness lifetime
	// regardless of HeuristicFreshnessFraction's computation. Default 24h.
	MaxHeuristicFreshness time.Duration

	// HeuristicDefaultLifetime is the heuristic freshness lifetime applied
	// when HeuristicFreshnessEnabled is true but the response carries no
	// Last-Modified header to derive a lifetime from. Default 0 (no
	// heuristic freshness without a Last-Modified to anchor it).
	HeuristicDefaultLifetime time.Duration

	// AsynchronousWorkers bounds the number of concurrent background
	// revalidations C11 will run. Default 1.
	AsynchronousWorkers int

	// AsyncRevalidateTimeout bounds how long a background revalidation may
	// run before it is abandoned. Default 30s.
	AsyncRevalidateTimeout time.Duration

	// EnableVarySeparation stores distinct variants per the Vary header
	// instead of the single-latest-response behavior. Default true.
	EnableVarySeparation bool

	// DisableWarningHeader suppresses RFC 7234 §5.5 Warning header
	// injection on stale/degraded responses. Default false.
	DisableWarningHeader bool

	// CacheKeyHeaders lists extra request header names folded into the
	// primary cache key, beyond method+URI (spec.md §4.2). Default empty.
	CacheKeyHeaders []string

	// ShouldCache, if non-nil, is consulted after the built-in cacheability
	// policy (C6) accepts a response, and may veto storage. Default nil.
	ShouldCache func(req *RequestContext, resp *ResponseContext) bool

	// MarkCachedResponses sets an engine-identifying header (X-Cache) on
	// responses served from the cache. Default true.
	MarkCachedResponses bool

	// SkipServerErrorsFromCache refuses to serve a stored 5xx entry even
	// when it would otherwise be used as a stale-if-error fallback.
	// Default false.
	SkipServerErrorsFromCache bool

	// StaleIfErrorEnabled permits C5 to honor a stale-if-error directive
	// (RFC 5861) from either the response or the request, serving a stale
	// entry when synchronous revalidation fails. Default false.
	StaleIfErrorEnabled bool

	// NeverCacheHTTP10ResponsesWithQuery refuses to store a response to an
	// HTTP/1.0 request whose URI carries a query component (RFC 9111
	// §4.2's compatibility carve-out for servers that cannot be trusted to
	// send explicit freshness information for such requests). Default
	// false.
	NeverCacheHTTP10ResponsesWithQuery bool

	// NeverCacheHTTP11ResponsesWithQuery is the HTTP/1.1-and-above
	// counterpart of NeverCacheHTTP10ResponsesWithQuery, for deployments
	// that want the same restriction applied regardless of the request's
	// protocol version. Default false.
	NeverCacheHTTP11ResponsesWithQuery bool
}

// DefaultConfig returns the documented defaults (spec.md §6).
func DefaultConfig() Config {
	return Config{
		SharedCache:                        true,
		MaxObjectSize:                      8 * 1024,
		MaxCacheEntries:                    1000,
		MaxUpdateRetries:                   1,
		FreshnessCheckEnabled:              true,
		HeuristicFreshnessEnabled:          false,
		HeuristicFreshnessFraction:         0.1,
		MaxHeuristicFreshness:              24 * time.Hour,
		HeuristicDefaultLifetime:           0,
		AsynchronousWorkers:                1,
		AsyncRevalidateTimeout:             30 * time.Second,
		EnableVarySeparation:               true,
		DisableWarningHeader:               false,
		MarkCachedResponses:                true,
		SkipServerErrorsFromCache:          false,
		StaleIfErrorEnabled:                false,
		NeverCacheHTTP10ResponsesWithQuery: false,
		NeverCacheHTTP11ResponsesWithQuery: false,
	}
}
