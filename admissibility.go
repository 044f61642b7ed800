package httpcache

import "net/http"

// requestAdmissible reports whether req is even eligible for a cache
// lookup (C4). A request that fails admissibility always goes straight to
// the downstream executor; it is never looked up or used to trigger
// invalidation logic beyond the unsafe-method path in C10.
func requestAdmissible(req *http.Request, reqCC cacheControl) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodPost:
		// admissible; POST is looked up only because a prior POST response
		// may have been stored under an explicit freshness directive (C6).
	default:
		return false
	}

	// Only HTTP/1.1-and-below requests are cache-eligible: a cache sitting
	// in front of an HTTP/2+ connection cannot assume the same semantics
	// this engine implements apply unmodified.
	if req.ProtoMajor > 1 {
		return false
	}

	// Range and If-Range requests bypass the cache entirely: this engine
	// never stores or reconstructs partial content (206 is absent from
	// cacheableStatusCodes and conditionallyCacheableStatusCodes), so a
	// Range request must always reach the origin directly.
	if req.Header.Get("Range") != "" || req.Header.Get("If-Range") != "" {
		return false
	}

	if _, ok := reqCC[cacheControlNoStore]; ok {
		// no-store on the request means the cache must neither use an
		// existing entry nor create one from this exchange's response.
		return false
	}

	return true
}

// optionsAsteriskProbe reports whether req is an OPTIONS * request with
// Max-Forwards: 0 (RFC 9110 §9.3.7 combined with §7.6.2): a forwarding
// cache must answer it directly rather than forward it or consult the
// stored-entry machinery, since "*" is not a resource URI.
func optionsAsteriskProbe(req *http.Request) bool {
	return req.Method == http.MethodOptions &&
		req.URL.Path == "*" &&
		req.Header.Get("Max-Forwards") == "0"
}

// synthesizeNotImplemented builds the 501 response returned for an
// OPTIONS * probe with Max-Forwards: 0, per spec.md §4.4/§4.12 step 1.
func synthesizeNotImplemented(req *http.Request) *http.Response {
	return &http.Response{
		Status:     "501 Not Implemented",
		StatusCode: http.StatusNotImplemented,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{"Content-Length": []string{"0"}},
		Body:       http.NoBody,
		Request:    req,
	}
}

// onlyIfCachedRequested reports whether req demands that the engine answer
// purely from cache, synthesizing a 504 rather than contacting the origin
// when no suitable entry exists (RFC 9111 §5.2.1.7).
func onlyIfCachedRequested(reqCC cacheControl) bool {
	_, ok := reqCC[cacheControlOnlyIfCached]
	return ok
}

// synthesizeGatewayTimeout builds the response returned when only-if-cached
// was requested and no suitable entry exists.
func synthesizeGatewayTimeout(req *http.Request) *http.Response {
	body := http.NoBody
	return &http.Response{
		Status:     "504 Gateway Timeout",
		StatusCode: http.StatusGatewayTimeout,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{"Content-Length": []string{"0"}},
		Body:       body,
		Request:    req,
	}
}
