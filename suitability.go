package httpcache

import (
	"log/slog"
	"net/http"
)

// SuitabilityClass classifies a stored entry's relationship to an incoming
// request (C5), after C1's directive parsing and C3's validity policy have
// both run.
type SuitabilityClass int

const (
	// SuitabilityNone means the entry cannot be used at all (selector
	// mismatch, Vary: *, or no entry was found).
	SuitabilityNone SuitabilityClass = iota
	// SuitabilityFresh means the entry may be returned as-is.
	SuitabilityFresh
	// SuitabilityStaleWhileRevalidate means the entry may be returned
	// immediately while a background revalidation (C11) refreshes it.
	SuitabilityStaleWhileRevalidate
	// SuitabilityMustRevalidate means the entry is stale (or directives
	// force revalidation regardless of freshness) and must be validated
	// with the origin before use.
	SuitabilityMustRevalidate
	// SuitabilityStaleIfError means the entry is stale but may still be
	// served if a synchronous revalidation attempt fails.
	SuitabilityStaleIfError
)

// classifySuitability implements C5: given a stored entry (already
// selector-matched against req's Vary-named headers) and the directives on
// both sides, decide how the entry may be used.
func classifySuitability(req *http.Request, entry *CacheEntry, cfg Config, log *slog.Logger) SuitabilityClass {
	if entry == nil {
		return SuitabilityNone
	}

	respHeaders := responseHeadersForFreshness(entry, log)

	if !cfg.FreshnessCheckEnabled {
		return SuitabilityFresh
	}

	switch getFreshness(respHeaders, req.Header, cfg, log) {
	case fresh:
		return SuitabilityFresh
	case staleWhileRevalidate:
		return SuitabilityStaleWhileRevalidate
	case transparent:
		return SuitabilityNone
	default: // stale
		if canStaleOnError(respHeaders, req.Header, cfg, log) {
			return SuitabilityStaleIfError
		}
		return SuitabilityMustRevalidate
	}
}

// responseHeadersForFreshness rebuilds the minimal header set C3's
// freshness functions need (Date, Cache-Control, Age, Expires,
// Last-Modified) from a stored entry, computing a live Age value.
func responseHeadersForFreshness(entry *CacheEntry, log *slog.Logger) http.Header {
	h := entry.Header.Clone()
	age, err := calculateAge(entry.Header, entry.RequestInstant, entry.ResponseInstant, log)
	if err == nil {
		h.Set(headerAge, formatAge(age))
	}
	return h
}
