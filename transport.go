package httpcache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DownstreamExecutor dispatches a request to whatever lies beyond the cache
// — an origin server, a downstream proxy, or a mock in tests. Transport
// treats it as opaque; RoundTripper is the common case, adapted below.
type DownstreamExecutor interface {
	Execute(req *http.Request) (*http.Response, error)
}

// roundTripperExecutor adapts an http.RoundTripper to DownstreamExecutor.
type roundTripperExecutor struct {
	rt http.RoundTripper
}

func (e roundTripperExecutor) Execute(req *http.Request) (*http.Response, error) {
	return e.rt.RoundTrip(req)
}

// Transport is C12, the exec/decision engine: an http.RoundTripper that
// drives every other component (C1-C11) to decide, for each request,
// whether to answer from cache, revalidate, or fetch fresh, and to update
// the cache and invalidate entries accordingly.
type Transport struct {
	cfg Config

	downstream      DownstreamExecutor
	resourceFactory ResourceFactory
	resilience      *ResilienceConfig

	store       *cacheStore
	revalidator *revalidator
	log         *slog.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport builds a Transport storing entries in storage, applying opts
// over DefaultConfig(). storage is the only required argument; everything
// else (downstream executor, resource factory, resilience policies) has a
// usable default.
func NewTransport(storage Storage, opts ...TransportOption) (*Transport, error) {
	t := &Transport{
		cfg: DefaultConfig(),
		log: GetLogger(),
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	if t.downstream == nil {
		t.downstream = roundTripperExecutor{http.DefaultTransport}
	}
	if t.resourceFactory == nil {
		t.resourceFactory = MemoryResourceFactory{}
	}
	if rc, ok := storage.(maxUpdateRetriesSetter); ok {
		rc.setMaxUpdateRetries(t.cfg.MaxUpdateRetries)
	}

	t.store = newCacheStore(storage, t.log)
	t.revalidator = newRevalidator(t.downstream, t.store, t.resilience, t.resourceFactory, t.cfg.AsynchronousWorkers, t.log)

	return t, nil
}

// RoundTrip implements C12's decision procedure: admissibility (C4) ->
// lookup+suitability (C9/C5) -> serve fresh / serve-and-revalidate /
// synchronous revalidate / fetch -> cacheability (C6) -> store (C9) ->
// invalidate on unsafe methods (C10).
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if optionsAsteriskProbe(req) {
		return synthesizeNotImplemented(req), nil
	}

	reqCC := parseCacheControl(req.Header, t.log)

	if !requestAdmissible(req, reqCC) {
		resp, err := t.dispatch(req)
		if err == nil && isUnsafeMethod(req.Method) {
			invalidate(req.Context(), t.store, t.cfg, req, resp)
		}
		return resp, err
	}

	match, err := t.store.Lookup(req.Context(), req, t.cfg)
	if err != nil {
		t.log.Warn("cache lookup failed, falling back to downstream", "url", req.URL.String(), "error", err)
		match = nil
	}

	if match == nil || match.Suitability == SuitabilityNone {
		if onlyIfCachedRequested(reqCC) {
			return synthesizeGatewayTimeout(req), nil
		}
		if match != nil && match.Root != nil && len(match.Root.Variants) > 0 {
			return t.negotiateVariant(req, match)
		}
		return t.fetchAndStore(req)
	}

	switch match.Suitability {
	case SuitabilityFresh:
		return reconstructResponse(req, match.Entry, match.Suitability, t.cfg, t.log)

	case SuitabilityStaleWhileRevalidate:
		resp, err := reconstructResponse(req, match.Entry, match.Suitability, t.cfg, t.log)
		if err != nil {
			return nil, err
		}
		t.revalidator.TriggerAsync(req, match, t.cfg)
		return resp, nil

	case SuitabilityMustRevalidate:
		if onlyIfCachedRequested(reqCC) {
			return synthesizeGatewayTimeout(req), nil
		}
		return t.revalidateSynchronously(req, match, false)

	case SuitabilityStaleIfError:
		if onlyIfCachedRequested(reqCC) {
			return synthesizeGatewayTimeout(req), nil
		}
		return t.revalidateSynchronously(req, match, true)

	default:
		return t.fetchAndStore(req)
	}
}

// revalidateSynchronously issues a conditional request for match.Entry. A
// 304 refreshes the stored entry and reconstructs from it; any other
// response is treated like a fresh fetch. When allowStaleOnError is true, a
// downstream failure falls back to the stale entry (with a Warning header)
// instead of propagating the error (RFC 5861 stale-if-error).
func (t *Transport) revalidateSynchronously(req *http.Request, match *CacheMatch, allowStaleOnError bool) (*http.Response, error) {
	entry := match.Entry
	revalReq := buildConditionalRequest(req, entry)

	reqInstant := clock.now()
	resp, err := t.dispatch(revalReq)
	if err != nil {
		if allowStaleOnError {
			return t.serveStaleOnError(req, entry, err)
		}
		return nil, err
	}
	responseInstant := clock.now()

	if resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		updated := entry.Clone()
		for k, v := range resp.Header {
			if k == "Content-Length" || k == "Transfer-Encoding" {
				continue
			}
			updated.Header[k] = v
		}
		updated.RequestInstant = reqInstant
		updated.ResponseInstant = responseInstant
		if err := t.store.storage.PutEntry(req.Context(), match.Key, updated); err != nil {
			t.log.Warn("failed to persist revalidation refresh", "key", match.Key, "error", err)
		}
		return reconstructResponse(req, updated, SuitabilityFresh, t.cfg, t.log)
	}

	if resp.StatusCode >= 500 && allowStaleOnError {
		resp.Body.Close()
		return t.serveStaleOnError(req, entry, nil)
	}

	return t.storeIfCacheable(req, resp, reqInstant, responseInstant)
}

// negotiateVariant implements C12's §4.12.1 variant-negotiation path: the
// root at match.Key has variants but none selector-matched the live
// request, so rather than fetching a fresh representation outright it asks
// the origin (via If-None-Match over every known variant ETag) whether one
// of them is still current for this selector.
func (t *Transport) negotiateVariant(req *http.Request, match *CacheMatch) (*http.Response, error) {
	variants, err := t.store.LoadVariants(req.Context(), match.Root)
	if err != nil || len(variants) == 0 {
		return t.fetchAndStore(req)
	}

	negReq := buildVariantNegotiationRequest(req, variants)

	reqInstant := clock.now()
	resp, err := t.dispatch(negReq)
	if err != nil {
		return nil, err
	}
	responseInstant := clock.now()

	if resp.StatusCode != http.StatusNotModified {
		return t.storeIfCacheable(req, resp, reqInstant, responseInstant)
	}
	resp.Body.Close()

	etag := resp.Header.Get(headerETag)
	var matched *CacheEntry
	var matchedKey string
	if etag != "" {
		for key, v := range variants {
			if etagsStronglyEqual(v.Header.Get(headerETag), etag) {
				matched, matchedKey = v, key
				break
			}
		}
	}
	if matched == nil {
		t.log.Debug("variant negotiation 304 matched no known variant, fetching unconditionally", "url", req.URL.String())
		return t.fetchAndStore(buildUnconditionalRequest(req))
	}

	if respDate, err := Date(resp.Header); err == nil {
		if entryDate, err2 := Date(matched.Header); err2 == nil && entryDate.After(respDate) {
			t.log.Debug("matched variant newer than negotiation response, fetching unconditionally", "url", req.URL.String())
			return t.fetchAndStore(buildUnconditionalRequest(req))
		}
	}

	if err := t.store.StoreFromNegotiated(req.Context(), req, match.Key, matchedKey, matched, resp, reqInstant, responseInstant, t.cfg); err != nil {
		t.log.Warn("failed to persist negotiated variant", "url", req.URL.String(), "error", err)
	}

	return reconstructResponse(req, matched, SuitabilityFresh, t.cfg, t.log)
}

// serveStaleOnError reconstructs entry as a stale-if-error response,
// annotated with a Warning header unless suppressed, after a revalidation
// attempt failed outright.
func (t *Transport) serveStaleOnError(req *http.Request, entry *CacheEntry, cause error) (*http.Response, error) {
	if cause != nil {
		t.log.Warn("revalidation failed, serving stale-if-error entry", "url", req.URL.String(), "error", cause)
	}
	resp, err := reconstructResponse(req, entry, SuitabilityStaleIfError, t.cfg, t.log)
	if err != nil {
		return nil, err
	}
	if !t.cfg.DisableWarningHeader {
		addRevalidationFailedWarning(resp)
	}
	return resp, nil
}

// fetchAndStore dispatches req with no usable cached entry and stores the
// response if C6 approves it.
func (t *Transport) fetchAndStore(req *http.Request) (*http.Response, error) {
	reqInstant := clock.now()
	resp, err := t.dispatch(req)
	if err != nil {
		return nil, err
	}
	responseInstant := clock.now()
	return t.storeIfCacheable(req, resp, reqInstant, responseInstant)
}

// storeIfCacheable buffers resp's body, decides cacheability (C6), stores
// the entry when approved (C9), and always returns a response usable by the
// caller — the original body if storage is skipped, a fresh reader over the
// buffered resource otherwise.
func (t *Transport) storeIfCacheable(req *http.Request, resp *http.Response, reqInstant, respInstant time.Time) (*http.Response, error) {
	reqCC := parseCacheControl(req.Header, t.log)
	respCC := parseCacheControl(resp.Header, t.log)

	if !responseCacheable(req, resp, reqCC, respCC, t.cfg, t.log) {
		if isUnsafeMethod(req.Method) {
			invalidate(req.Context(), t.store, t.cfg, req, resp)
		}
		return resp, nil
	}

	res, err := bufferBody(req.Context(), resp, t.cfg, t.resourceFactory)
	if err != nil {
		if errors.Is(err, errObjectTooLarge) {
			t.log.Debug("response body exceeds MaxObjectSize, streaming through uncached", "url", req.URL.String())
		} else {
			t.log.Warn("failed to buffer response body, serving without caching", "url", req.URL.String(), "error", err)
		}
		if isUnsafeMethod(req.Method) {
			invalidate(req.Context(), t.store, t.cfg, req, resp)
		}
		return resp, nil
	}

	if err := t.store.Store(req.Context(), req, resp, res, reqInstant, respInstant, t.cfg); err != nil {
		t.log.Warn("failed to store cache entry", "url", req.URL.String(), "error", err)
	}

	if isUnsafeMethod(req.Method) {
		invalidate(req.Context(), t.store, t.cfg, req, resp)
	}

	out := *resp
	if res != nil {
		rc, err := res.Open()
		if err == nil {
			out.Body = rc
		}
	}
	return &out, nil
}

// dispatch issues req through the configured DownstreamExecutor, wrapped in
// resilience policies when configured.
func (t *Transport) dispatch(req *http.Request) (*http.Response, error) {
	resp, err := executeWithResilience(t.resilience, func() (*http.Response, error) {
		return t.downstream.Execute(req)
	})
	if err != nil {
		return nil, newCacheError(KindBackendIO, "Transport.RoundTrip", err)
	}
	if resp.Request == nil {
		resp.Request = req
	}
	return resp, nil
}

// bufferBody reads resp.Body to completion through factory, replacing
// resp.Body with a fresh reader over the buffered content so the caller can
// still consume it. Returns a nil Resource for bodiless responses (204,
// 304, HEAD).
//
// Config.MaxObjectSize (spec.md §4.12.4) is a hard cacheability gate, not a
// memory/disk tradeoff: a body that exceeds it is never buffered for
// storage at all. bufferBody detects the overflow after reading at most
// MaxObjectSize+1 bytes, reassembles resp.Body from what it already
// consumed plus whatever remains unread so the caller still gets the
// original stream unmodified, and returns errObjectTooLarge instead of a
// Resource.
func bufferBody(ctx context.Context, resp *http.Response, cfg Config, factory ResourceFactory) (Resource, error) {
	if resp.Body == nil || resp.Body == http.NoBody ||
		resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotModified ||
		resp.Request != nil && resp.Request.Method == http.MethodHead {
		if resp.Body != nil {
			resp.Body.Close()
		}
		resp.Body = http.NoBody
		return nil, nil
	}

	limit := cfg.MaxObjectSize
	if limit < 0 {
		limit = 0
	}

	if resp.ContentLength > limit {
		// Known size already exceeds the cap: nothing to buffer, stream the
		// original body through untouched.
		return nil, errObjectTooLarge
	}

	if factory == nil {
		factory = MemoryResourceFactory{}
	}

	body := resp.Body

	peek := make([]byte, limit+1)
	n, readErr := io.ReadFull(body, peek)
	if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
		body.Close()
		return nil, newCacheError(KindResourceIO, "bufferBody", readErr)
	}

	if int64(n) > limit {
		// Overflow: reconstruct the untouched stream (what was peeked, plus
		// whatever remains) so the caller still receives it unmodified, but
		// skip caching entirely.
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(peek[:n]), body), body}
		return nil, errObjectTooLarge
	}

	defer body.Close()

	res, err := factory.Generate(ctx, resp.Request.URL.String(), bytes.NewReader(peek[:n]), int64(n))
	if err != nil {
		return nil, newCacheError(KindResourceIO, "bufferBody", err)
	}

	rc, err := res.Open()
	if err != nil {
		return nil, newCacheError(KindResourceIO, "bufferBody", err)
	}
	resp.Body = rc
	resp.ContentLength = res.Length()

	return res, nil
}
