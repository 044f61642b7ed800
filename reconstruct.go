package httpcache

import (
	"io"
	"log/slog"
	"net/http"
)

// reconstructResponse implements C8: builds an *http.Response for req from
// a stored entry, with a live Age header, optional Warning headers, and the
// engine's cache-hit marker.
func reconstructResponse(req *http.Request, entry *CacheEntry, suitability SuitabilityClass, cfg Config, log *slog.Logger) (*http.Response, error) {
	header := entry.Header.Clone()

	age, err := calculateAge(entry.Header, entry.RequestInstant, entry.ResponseInstant, log)
	if err == nil {
		header.Set(headerAge, formatAge(age))
	}

	if cfg.MarkCachedResponses {
		header.Set(XCache, "HIT")
		header.Set(XCacheFreshness, freshnessString(suitabilityToFreshness(suitability)))
	}

	if !cfg.DisableWarningHeader && suitability == SuitabilityStaleIfError {
		header.Add(headerWarning, warningResponseIsStale)
	}

	var body io.ReadCloser
	var contentLength int64
	if entry.Resource != nil {
		rc, err := entry.Resource.Open()
		if err != nil {
			return nil, newCacheError(KindResourceIO, "reconstructResponse", err)
		}
		body = rc
		contentLength = entry.Resource.Length()
	} else {
		body = http.NoBody
		contentLength = 0
	}

	resp := &http.Response{
		Status:        http.StatusText(entry.StatusCode),
		StatusCode:    entry.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          body,
		ContentLength: contentLength,
		Request:       req,
	}
	return resp, nil
}

func suitabilityToFreshness(s SuitabilityClass) int {
	switch s {
	case SuitabilityFresh:
		return fresh
	case SuitabilityStaleWhileRevalidate:
		return staleWhileRevalidate
	case SuitabilityStaleIfError, SuitabilityMustRevalidate:
		return stale
	default:
		return stale
	}
}
