package httpcache

import (
	"fmt"
	"net/http"
	"time"
)

// TransportOption configures a Transport at construction time via
// NewTransport.
type TransportOption func(*Transport) error

// WithMarkCachedResponses toggles Config.MarkCachedResponses.
func WithMarkCachedResponses(mark bool) TransportOption {
	return func(t *Transport) error { t.cfg.MarkCachedResponses = mark; return nil }
}

// WithSkipServerErrorsFromCache toggles Config.SkipServerErrorsFromCache.
func WithSkipServerErrorsFromCache(skip bool) TransportOption {
	return func(t *Transport) error { t.cfg.SkipServerErrorsFromCache = skip; return nil }
}

// WithAsyncRevalidateTimeout sets Config.AsyncRevalidateTimeout.
func WithAsyncRevalidateTimeout(timeout time.Duration) TransportOption {
	return func(t *Transport) error { t.cfg.AsyncRevalidateTimeout = timeout; return nil }
}

// WithSharedCache puts the engine in shared/public cache mode (stricter
// RFC 9111 rules around Authorization, private and s-maxage). Default
// true: the engine behaves as a shared cache.
func WithSharedCache(shared bool) TransportOption {
	return func(t *Transport) error { t.cfg.SharedCache = shared; return nil }
}

// WithVarySeparation toggles Config.EnableVarySeparation.
func WithVarySeparation(enable bool) TransportOption {
	return func(t *Transport) error { t.cfg.EnableVarySeparation = enable; return nil }
}

// WithShouldCache installs a veto hook consulted after the built-in
// cacheability policy (C6) accepts a response.
func WithShouldCache(fn func(*RequestContext, *ResponseContext) bool) TransportOption {
	return func(t *Transport) error { t.cfg.ShouldCache = fn; return nil }
}

// WithCacheKeyHeaders lists extra request headers folded into the primary
// cache key.
func WithCacheKeyHeaders(headers []string) TransportOption {
	return func(t *Transport) error { t.cfg.CacheKeyHeaders = headers; return nil }
}

// WithDisableWarningHeader suppresses RFC 7234 §5.5 Warning header
// injection.
func WithDisableWarningHeader(disable bool) TransportOption {
	return func(t *Transport) error { t.cfg.DisableWarningHeader = disable; return nil }
}

// WithMaxObjectSize sets Config.MaxObjectSize.
func WithMaxObjectSize(bytes int64) TransportOption {
	return func(t *Transport) error { t.cfg.MaxObjectSize = bytes; return nil }
}

// WithMaxUpdateRetries sets Config.MaxUpdateRetries.
func WithMaxUpdateRetries(retries int) TransportOption {
	return func(t *Transport) error { t.cfg.MaxUpdateRetries = retries; return nil }
}

// WithHeuristicFreshness configures Config.HeuristicFreshnessEnabled and
// its fraction/cap.
func WithHeuristicFreshness(enabled bool, fraction float64, cap time.Duration) TransportOption {
	return func(t *Transport) error {
		t.cfg.HeuristicFreshnessEnabled = enabled
		if fraction > 0 {
			t.cfg.HeuristicFreshnessFraction = fraction
		}
		if cap > 0 {
			t.cfg.MaxHeuristicFreshness = cap
		}
		return nil
	}
}

// WithAsynchronousWorkers sets Config.AsynchronousWorkers.
func WithAsynchronousWorkers(n int) TransportOption {
	return func(t *Transport) error {
		if n < 1 {
			n = 1
		}
		t.cfg.AsynchronousWorkers = n
		return nil
	}
}

// WithDownstream sets the underlying DownstreamExecutor used to make
// requests. If nil, http.DefaultTransport (adapted) is used.
func WithDownstream(d DownstreamExecutor) TransportOption {
	return func(t *Transport) error { t.downstream = d; return nil }
}

// WithRoundTripper is a convenience wrapper over WithDownstream for the
// common case of an http.RoundTripper.
func WithRoundTripper(rt http.RoundTripper) TransportOption {
	return func(t *Transport) error {
		if rt == nil {
			rt = http.DefaultTransport
		}
		t.downstream = roundTripperExecutor{rt}
		return nil
	}
}

// WithResourceFactory overrides the ResourceFactory used to materialize
// response bodies. Default: MemoryResourceFactory, which holds every stored
// body in memory; bodies over Config.MaxObjectSize are not buffered for
// storage at all.
func WithResourceFactory(f ResourceFactory) TransportOption {
	return func(t *Transport) error { t.resourceFactory = f; return nil }
}

// WithResilience installs retry/circuit-breaker policies around every
// downstream dispatch the engine performs, including background
// revalidation.
func WithResilience(cfg ResilienceConfig) TransportOption {
	return func(t *Transport) error { t.resilience = &cfg; return nil }
}

// WithStaleIfErrorEnabled toggles Config.StaleIfErrorEnabled.
func WithStaleIfErrorEnabled(enabled bool) TransportOption {
	return func(t *Transport) error { t.cfg.StaleIfErrorEnabled = enabled; return nil }
}

// WithHeuristicDefaultLifetime sets Config.HeuristicDefaultLifetime, the
// fallback heuristic freshness lifetime applied when a response carries no
// Last-Modified header.
func WithHeuristicDefaultLifetime(lifetime time.Duration) TransportOption {
	return func(t *Transport) error { t.cfg.HeuristicDefaultLifetime = lifetime; return nil }
}

// WithNeverCacheHTTP10ResponsesWithQuery toggles
// Config.NeverCacheHTTP10ResponsesWithQuery.
func WithNeverCacheHTTP10ResponsesWithQuery(never bool) TransportOption {
	return func(t *Transport) error { t.cfg.NeverCacheHTTP10ResponsesWithQuery = never; return nil }
}

// WithNeverCacheHTTP11ResponsesWithQuery toggles
// Config.NeverCacheHTTP11ResponsesWithQuery.
func WithNeverCacheHTTP11ResponsesWithQuery(never bool) TransportOption {
	return func(t *Transport) error { t.cfg.NeverCacheHTTP11ResponsesWithQuery = never; return nil }
}
