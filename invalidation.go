package httpcache

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// isUnsafeMethod reports whether method can change server state and
// therefore triggers invalidation on a non-error response (RFC 9111 §4.4).
func isUnsafeMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	default:
		return false
	}
}

// invalidate removes cache entries per RFC 9111 §4.4: on a non-error
// response to an unsafe method, the effective Request-URI is invalidated
// unconditionally, while any same-origin URI named in Location/
// Content-Location is invalidated only when that target's own stored
// entry is demonstrably stale relative to resp (spec.md §4.9).
func invalidate(ctx context.Context, store *cacheStore, cfg Config, req *http.Request, resp *http.Response) {
	log := GetLogger()

	if resp.StatusCode >= 400 {
		log.Debug("skipping cache invalidation for error response",
			"status", resp.StatusCode, "url", req.URL.String())
		return
	}

	invalidateURI(ctx, store, cfg, req.URL, "request-uri")

	if location := resp.Header.Get(headerLocation); location != "" {
		invalidateHeaderURI(ctx, store, cfg, req.URL, location, "Location", resp)
	}
	if contentLocation := resp.Header.Get(headerContentLocation); contentLocation != "" {
		invalidateHeaderURI(ctx, store, cfg, req.URL, contentLocation, "Content-Location", resp)
	}
}

// invalidateHeaderURI resolves headerValue against requestURL and, iff the
// result is same-origin, invalidates it — but only when the target's
// existing entry is stale relative to resp: its ETag must not be strongly
// equal to resp's ETag, and its Date must not be newer than resp's (RFC
// 9111 §4.4: invalidation never discards a representation that is at least
// as current as the one just received). A target with no stored entry is
// passed to invalidateURI, which has nothing to remove; a stored entry with
// no ETag is evicted, since an empty ETag is never strongly equal.
func invalidateHeaderURI(ctx context.Context, store *cacheStore, cfg Config, requestURL *url.URL, headerValue, headerName string, resp *http.Response) {
	log := GetLogger()

	targetURL, err := requestURL.Parse(headerValue)
	if err != nil {
		log.Debug("failed to parse invalidation target URI", "header", headerName, "value", headerValue, "error", err)
		return
	}
	if !isSameOrigin(requestURL, targetURL) {
		log.Debug("skipping cross-origin invalidation",
			"header", headerName, "request-origin", getOrigin(requestURL), "target-origin", getOrigin(targetURL))
		return
	}

	getReq := &http.Request{Method: http.MethodGet, URL: targetURL, Header: http.Header{}}
	existing, err := store.Lookup(ctx, getReq, cfg)
	if err != nil || existing == nil || existing.Entry == nil {
		// Nothing stored at the target yet: there's nothing to protect from
		// eviction, so fall through to invalidateURI (a no-op if truly absent).
		invalidateURI(ctx, store, cfg, targetURL, headerName)
		return
	}

	if etagsStronglyEqual(existing.Entry.Header.Get(headerETag), resp.Header.Get(headerETag)) {
		log.Debug("invalidation target ETag strongly equal to response, skipping", "header", headerName, "url", targetURL.String())
		return
	}

	targetDate, targetErr := Date(existing.Entry.Header)
	respDate, respErr := Date(resp.Header)
	if targetErr == nil && respErr == nil && targetDate.After(respDate) {
		log.Debug("invalidation target newer than response, skipping", "header", headerName, "url", targetURL.String())
		return
	}

	invalidateURI(ctx, store, cfg, targetURL, headerName)
}

// invalidateURI removes the GET and, if distinct, HEAD entries for targetURL
// — including, for either, every variant sub-entry a Vary-split root names
// — keyed the same way cacheStore derives a primary key so invalidation
// always reaches what Store actually wrote under (spec.md §4.9, property
// P3: evict the root and every variant at the request's key).
func invalidateURI(ctx context.Context, store *cacheStore, cfg Config, targetURL *url.URL, source string) {
	log := GetLogger()

	getReq := &http.Request{Method: http.MethodGet, URL: targetURL, Header: http.Header{}}
	if err := store.Remove(ctx, getReq, cfg); err != nil {
		log.Warn("failed to invalidate cache entry", "source", source, "url", targetURL.String(), "error", err)
	} else {
		log.Debug("invalidated cache entry", "source", source, "url", targetURL.String())
	}

	getKey := store.primaryKey(getReq, cfg)
	headReq := &http.Request{Method: http.MethodHead, URL: targetURL, Header: http.Header{}}
	if headKey := store.primaryKey(headReq, cfg); headKey != getKey {
		if err := store.Remove(ctx, headReq, cfg); err != nil {
			log.Warn("failed to invalidate HEAD cache entry", "source", source, "url", targetURL.String(), "error", err)
		} else {
			log.Debug("invalidated HEAD cache entry", "source", source, "url", targetURL.String())
		}
	}
}

// etagsStronglyEqual implements RFC 9111 §8.8.3.2's strong comparison: both
// tags must be non-weak and byte-equal. A weak ("W/"-prefixed) tag on
// either side is never strongly equal to anything.
func etagsStronglyEqual(a, b string) bool {
	if strings.HasPrefix(a, "W/") || strings.HasPrefix(b, "W/") {
		return false
	}
	return a != "" && a == b
}

// isSameOrigin reports whether two URLs share scheme and host (RFC 9111's
// definition of origin for invalidation purposes).
func isSameOrigin(a, b *url.URL) bool {
	return a.Scheme == b.Scheme && a.Host == b.Host
}

func getOrigin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}
