package httpcache

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestRevalidatorDeduplicatesConcurrentTriggers is P8: N concurrent requests
// that all observe SuitabilityStaleWhileRevalidate for the same key must
// produce at most one background exchange with the origin.
func TestRevalidatorDeduplicatesConcurrentTriggers(t *testing.T) {
	client, _ := newCachingClient(t, WithMarkCachedResponses(true))

	var originHits int64
	var revalHits int64
	block := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&originHits, 1)
		if r.Header.Get("Cache-Control") == cacheControlNoCache {
			n := atomic.AddInt64(&revalHits, 1)
			if n == 1 {
				<-block // hold the first (and only expected) revalidation open
			}
		}
		w.Header().Set(cacheControlHeader, "max-age=1, stale-while-revalidate=100")
		w.Write([]byte("content"))
	}))
	defer ts.Close()

	resp1, err := client.Get(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	drainAndClose(t, resp1)
	if atomic.LoadInt64(&originHits) != 1 {
		t.Fatalf("expected exactly one origin hit for the initial fetch, got %d", originHits)
	}

	clock = &fakeClock{elapsed: 2 * time.Second}
	defer func() { clock = realClock{} }()

	const concurrency = 20
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			resp, err := client.Get(ts.URL)
			if err != nil {
				t.Error(err)
				return
			}
			drainAndClose(t, resp)
		}()
	}
	wg.Wait()

	// Give the single dispatched background revalidation a moment to start,
	// then release it and confirm no second one was ever dispatched.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && atomic.LoadInt64(&revalHits) < 1 {
		time.Sleep(10 * time.Millisecond)
	}
	close(block)

	time.Sleep(150 * time.Millisecond)
	if got := atomic.LoadInt64(&revalHits); got != 1 {
		t.Fatalf("expected exactly one background revalidation to reach the origin for %d concurrent stale triggers, got %d", concurrency, got)
	}
}

// TestRevalidatorBacksOffAfterFailure verifies that a background
// revalidation which fails does not immediately retrigger on every
// subsequent stale hit: it waits out a backoff window.
func TestRevalidatorBacksOffAfterFailure(t *testing.T) {
	client, _ := newCachingClient(t, WithMarkCachedResponses(true))

	var hits int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&hits, 1)
		w.Header().Set("X-Hit", strconv.FormatInt(n, 10))
		if n == 1 {
			w.Header().Set(cacheControlHeader, "max-age=1, stale-while-revalidate=100")
			w.Write([]byte("content"))
			return
		}
		// Every background revalidation after the first fetch fails.
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	resp1, err := client.Get(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	drainAndClose(t, resp1)

	clock = &fakeClock{elapsed: 2 * time.Second}
	defer func() { clock = realClock{} }()

	resp2, err := client.Get(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	drainAndClose(t, resp2)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && atomic.LoadInt64(&hits) < 2 {
		time.Sleep(10 * time.Millisecond)
	}
	if atomic.LoadInt64(&hits) != 2 {
		t.Fatalf("expected the first background revalidation attempt to reach the origin, got %d hits", hits)
	}

	// Immediately trigger more stale hits: with the key in backoff, none of
	// these should produce a third origin hit right away.
	for i := 0; i < 5; i++ {
		resp, err := client.Get(ts.URL)
		if err != nil {
			t.Fatal(err)
		}
		drainAndClose(t, resp)
	}
	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt64(&hits); got != 2 {
		t.Fatalf("expected backoff to suppress immediate re-triggering, got %d hits", got)
	}
}
