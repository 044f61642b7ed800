package httpcache

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// revalidator is C11: it refreshes a stale-while-revalidate entry in the
// background after the stale copy has already been returned to the caller.
// A bounded worker pool (Config.AsynchronousWorkers) keeps a burst of stale
// hits from opening unbounded origin connections; revalidations beyond the
// pool's capacity are simply skipped — the entry stays stale until the next
// request triggers another attempt or it falls out of the
// stale-while-revalidate window entirely.
//
// inflight deduplicates concurrent triggers for the same entry key: only
// the first caller to observe a key absent from the map schedules work,
// matching spec.md §4.11's "insert the key or, if present, return without
// scheduling". backoff tracks a per-key next-eligible-time after repeated
// failures, applying an exponential delay capped at maxBackoff.
type revalidator struct {
	downstream      DownstreamExecutor
	store           *cacheStore
	resilience      *ResilienceConfig
	resourceFactory ResourceFactory
	log             *slog.Logger

	slots chan struct{}

	mu       sync.Mutex
	inflight map[string]bool
	backoff  map[string]*backoffState

	baseBackoff time.Duration
	maxBackoff  time.Duration
}

type backoffState struct {
	failures  int
	nextAfter time.Time
}

func newRevalidator(downstream DownstreamExecutor, store *cacheStore, resilience *ResilienceConfig, resourceFactory ResourceFactory, workers int, log *slog.Logger) *revalidator {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = GetLogger()
	}
	return &revalidator{
		downstream:      downstream,
		store:           store,
		resilience:      resilience,
		resourceFactory: resourceFactory,
		log:             log,
		slots:           make(chan struct{}, workers),
		inflight:        make(map[string]bool),
		backoff:         make(map[string]*backoffState),
		baseBackoff:     time.Second,
		maxBackoff:      time.Minute,
	}
}

// TriggerAsync deduplicates by match.Key (at most one in-flight revalidation
// per key, per spec.md §4.11/P8), honors any active backoff from prior
// failures against that key, and — only then — attempts to claim a worker
// slot and spawn a background revalidation. It never blocks the caller.
func (r *revalidator) TriggerAsync(req *http.Request, match *CacheMatch, cfg Config) {
	key := match.Key

	r.mu.Lock()
	if r.inflight[key] {
		r.mu.Unlock()
		r.log.Debug("revalidation already in flight, skipping duplicate trigger", "key", key)
		return
	}
	if bo, ok := r.backoff[key]; ok && clock.now().Before(bo.nextAfter) {
		r.mu.Unlock()
		r.log.Debug("revalidation backing off after repeated failures", "key", key, "until", bo.nextAfter)
		return
	}
	r.inflight[key] = true
	r.mu.Unlock()

	select {
	case r.slots <- struct{}{}:
	default:
		r.clearInflight(key)
		r.log.Debug("revalidation pool saturated, skipping background refresh", "url", req.URL.String())
		return
	}

	go func() {
		defer func() { <-r.slots }()
		defer r.clearInflight(key)
		ok := r.run(req, match, cfg)
		r.recordOutcome(key, ok)
	}()
}

func (r *revalidator) clearInflight(key string) {
	r.mu.Lock()
	delete(r.inflight, key)
	r.mu.Unlock()
}

// recordOutcome clears a key's backoff state on success, or doubles its
// delay (capped at maxBackoff) on failure — a fixed/exponential strategy
// per spec.md §4.11's "configurable strategy" note.
func (r *revalidator) recordOutcome(key string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if success {
		delete(r.backoff, key)
		return
	}

	bo, ok := r.backoff[key]
	if !ok {
		bo = &backoffState{}
		r.backoff[key] = bo
	}
	bo.failures++
	delay := r.baseBackoff << uint(min(bo.failures-1, 20))
	if delay > r.maxBackoff || delay <= 0 {
		delay = r.maxBackoff
	}
	bo.nextAfter = clock.now().Add(delay)
}

// run performs the background revalidation exchange and reports whether it
// succeeded, so the caller can drive the per-key backoff schedule.
func (r *revalidator) run(req *http.Request, match *CacheMatch, cfg Config) bool {
	entry := match.Entry
	ctx := context.Background()
	var cancel context.CancelFunc
	if cfg.AsyncRevalidateTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.AsyncRevalidateTimeout)
		defer cancel()
	}

	revalReq := buildConditionalRequest(req, entry).WithContext(ctx)
	revalReq.Header.Set("Cache-Control", cacheControlNoCache)

	reqInstant := clock.now()
	resp, err := executeWithResilience(r.resilience, func() (*http.Response, error) {
		return r.downstream.Execute(revalReq)
	})
	if err != nil {
		r.log.Warn("background revalidation failed", "url", req.URL.String(), "error", err)
		return false
	}
	if resp.Request == nil {
		resp.Request = revalReq
	}
	defer resp.Body.Close()
	responseInstant := clock.now()

	if resp.StatusCode == http.StatusNotModified {
		r.refreshTimestamps(ctx, match.Key, entry, resp, reqInstant, responseInstant)
		return true
	}

	reqCC := parseCacheControl(req.Header, r.log)
	respCC := parseCacheControl(resp.Header, r.log)
	if !responseCacheable(req, resp, reqCC, respCC, cfg, r.log) {
		return resp.StatusCode < 500
	}

	res, err := bufferBody(ctx, resp, cfg, r.resourceFactory)
	if err != nil {
		if errors.Is(err, errObjectTooLarge) {
			r.log.Debug("revalidated body exceeds MaxObjectSize, leaving stale entry in place", "url", req.URL.String())
			return true
		}
		r.log.Warn("failed to buffer revalidated body", "url", req.URL.String(), "error", err)
		return false
	}
	if err := r.store.Store(ctx, req, resp, res, reqInstant, responseInstant, cfg); err != nil {
		r.log.Warn("failed to store revalidated entry", "url", req.URL.String(), "error", err)
		return false
	}
	return true
}

// refreshTimestamps rewrites entry's Date/Age-relevant fields after a 304,
// without re-fetching the body, per RFC 9111 §4.3.4.
func (r *revalidator) refreshTimestamps(ctx context.Context, key string, entry *CacheEntry, resp *http.Response, reqInstant, respInstant time.Time) {
	updated := entry.Clone()
	for k, v := range resp.Header {
		if k == "Content-Length" || k == "Transfer-Encoding" {
			continue
		}
		updated.Header[k] = v
	}
	updated.RequestInstant = reqInstant
	updated.ResponseInstant = respInstant

	if err := r.store.storage.PutEntry(ctx, key, updated); err != nil {
		r.log.Warn("failed to persist revalidation refresh", "key", key, "error", err)
	}
}
