package httpcache

import (
	"net/http"
	"strings"
)

// addValidators adds If-None-Match / If-Modified-Since to req from a stored
// entry's ETag and Last-Modified, implementing C7's conditional-request
// construction (RFC 9111 §4.3.1). Both validators may be present at once;
// the origin is responsible for preferring the strong one.
func addValidators(req *http.Request, entry *CacheEntry) {
	if etag := entry.Header.Get(headerETag); etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified := entry.Header.Get(headerLastModified); lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}
}

// hasValidators reports whether entry carries a validator a conditional
// request could use. An entry with neither can never be revalidated
// conditionally — a full re-fetch is the only option.
func hasValidators(entry *CacheEntry) bool {
	return entry.Header.Get(headerETag) != "" || entry.Header.Get(headerLastModified) != ""
}

// buildConditionalRequest clones req (typically the original client
// request) into one suitable for dispatching a revalidation: method forced
// to the entry's own method semantics preserved, validators attached, and
// any client-supplied Cache-Control stripped so the origin always sees a
// plain conditional GET/HEAD.
func buildConditionalRequest(req *http.Request, entry *CacheEntry) *http.Request {
	clone := req.Clone(req.Context())
	clone.Header.Del("Cache-Control")
	clone.Header.Del(headerPragma)
	addValidators(clone, entry)
	return clone
}

// buildVariantNegotiationRequest clones req into one that asks the origin to
// pick among the known variants of a Vary-split resource (spec.md §4.12.1):
// every distinct ETag across variants is collected into a single
// comma-joined If-None-Match, so a 304 response tells the engine which
// variant (by ETag) is still current without fetching a full body. Client
// Cache-Control is stripped so the origin sees a plain conditional request.
func buildVariantNegotiationRequest(req *http.Request, variants map[string]*CacheEntry) *http.Request {
	clone := req.Clone(req.Context())
	clone.Header.Del("Cache-Control")
	clone.Header.Del(headerPragma)
	clone.Header.Del("If-None-Match")
	clone.Header.Del("If-Modified-Since")

	seen := make(map[string]bool)
	var etags []string
	for _, v := range variants {
		etag := v.Header.Get(headerETag)
		if etag == "" || seen[etag] {
			continue
		}
		seen[etag] = true
		etags = append(etags, etag)
	}
	if len(etags) > 0 {
		clone.Header.Set("If-None-Match", strings.Join(etags, ", "))
	}
	return clone
}

// buildUnconditionalRequest clones req with every conditional validator
// stripped, forcing a full fetch. Used when variant negotiation comes back
// with a 304 that cannot be matched to any known variant — the engine
// cannot trust a cached body it cannot identify, so it falls back to
// fetching a fresh representation outright rather than retrying
// conditionally.
func buildUnconditionalRequest(req *http.Request) *http.Request {
	clone := req.Clone(req.Context())
	clone.Header.Del("If-None-Match")
	clone.Header.Del("If-Modified-Since")
	clone.Header.Del("If-Match")
	clone.Header.Del("If-Unmodified-Since")
	clone.Header.Set("Cache-Control", "no-cache")
	clone.Header.Set(headerPragma, "no-cache")
	return clone
}
