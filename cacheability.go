package httpcache

import (
	"log/slog"
	"net/http"
)

// RequestContext is the read-only view of a request handed to a
// Config.ShouldCache hook.
type RequestContext struct {
	Method string
	URL    string
	Header http.Header
}

// ResponseContext is the read-only view of a response handed to a
// Config.ShouldCache hook.
type ResponseContext struct {
	StatusCode int
	Header     http.Header
}

func newRequestContext(req *http.Request) *RequestContext {
	return &RequestContext{Method: req.Method, URL: req.URL.String(), Header: req.Header}
}

func newResponseContext(resp *http.Response) *ResponseContext {
	return &ResponseContext{StatusCode: resp.StatusCode, Header: resp.Header}
}

// cacheableStatusCodes are the status codes eligible for storage by
// default, independent of directives (RFC 9111 §3, spec.md §4.3/§4.6).
var cacheableStatusCodes = map[int]bool{
	http.StatusOK:                   true,
	http.StatusNonAuthoritativeInfo: true,
	http.StatusMultipleChoices:      true,
	http.StatusMovedPermanently:     true,
	http.StatusGone:                 true,
}

// conditionallyCacheableStatusCodes are status codes the IANA HTTP status
// code registry also marks cacheable, but only when the response carries
// must-understand or an explicit freshness directive — never
// unconditionally (spec.md §4.3/§4.6). A status code outside both this set
// and cacheableStatusCodes (500, 403, ...) is never cacheable regardless of
// directives. 206 is intentionally excluded: partial-content caching is out
// of scope.
var conditionallyCacheableStatusCodes = map[int]bool{
	http.StatusNoContent:       true,
	http.StatusNotFound:        true,
	http.StatusMethodNotAllowed: true,
	http.StatusRequestURITooLong: true,
	http.StatusNotImplemented:  true,
}

// responseCacheable implements C6: decides whether resp, for req, may be
// stored at all. It does not decide whether an existing entry is still
// usable (that's C5); it decides whether this exchange creates one.
func responseCacheable(req *http.Request, resp *http.Response, reqCC, respCC cacheControl, cfg Config, log *slog.Logger) bool {
	if !understoodStatusCodes[resp.StatusCode] {
		return false
	}

	switch req.Method {
	case http.MethodGet, http.MethodHead:
		// always eligible by method
	case http.MethodPost:
		// A POST response is only cacheable when it carries an explicit
		// freshness directive: max-age, s-maxage, or Expires. Without one,
		// a POST response is never implicitly reusable (spec decision,
		// Open Question 2).
		if !hasExplicitFreshness(resp.Header, respCC) {
			return false
		}
	default:
		return false
	}

	if !cacheableStatusCodes[resp.StatusCode] {
		if !conditionallyCacheableStatusCodes[resp.StatusCode] {
			return false
		}
		_, mustUnderstand := respCC[cacheControlMustUnderstand]
		if !mustUnderstand && !hasExplicitFreshness(resp.Header, respCC) {
			return false
		}
		// must-understand (RFC 9111 §5.2.2.3) or an explicit freshness
		// directive admits a conditionally-cacheable status code; neither one
		// makes an otherwise-uncacheable status code (500, 403, ...) storable.
	}

	if req.URL.RawQuery != "" {
		if req.ProtoMajor == 1 && req.ProtoMinor == 0 && cfg.NeverCacheHTTP10ResponsesWithQuery {
			return false
		}
		if req.ProtoMajor == 1 && req.ProtoMinor >= 1 && cfg.NeverCacheHTTP11ResponsesWithQuery {
			return false
		}
	}

	if !canStore(req, reqCC, respCC, cfg.SharedCache, resp.StatusCode, log) {
		return false
	}

	if cfg.ShouldCache != nil && !cfg.ShouldCache(newRequestContext(req), newResponseContext(resp)) {
		return false
	}

	return true
}

func hasExplicitFreshness(h http.Header, cc cacheControl) bool {
	if _, ok := cc[cacheControlMaxAge]; ok {
		return true
	}
	if _, ok := cc[cacheControlSMaxAge]; ok {
		return true
	}
	return h.Get("Expires") != ""
}
