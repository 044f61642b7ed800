package httpcache

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
)

// TestConcurrentVariantStoresBothReflectedInRoot is P10: two concurrent
// stores of distinct variants of the same resource must both end up
// reflected in the root entry's variant map, even though both racers
// contend on the same root key's CAS update.
func TestConcurrentVariantStoresBothReflectedInRoot(t *testing.T) {
	storage := NewStorage(NewMemoryCache(), NewEntryCodec(nil))
	store := newCacheStore(storage, nil)
	cfg := DefaultConfig()

	newReq := func(encoding string) *http.Request {
		req, err := http.NewRequest(http.MethodGet, "http://example.org/c", nil)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Accept-Encoding", encoding)
		return req
	}
	newResp := func(body string) (*http.Response, Resource) {
		res, err := MemoryResourceFactory{}.Generate(context.Background(), "http://example.org/c", bytes.NewReader([]byte(body)), int64(len(body)))
		if err != nil {
			t.Fatal(err)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Vary": []string{"Accept-Encoding"}},
		}, res
	}

	gzipReq := newReq("gzip")
	identityReq := newReq("identity")
	gzipResp, gzipRes := newResp("G")
	identityResp, identityRes := newResp("I")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := store.Store(context.Background(), gzipReq, gzipResp, gzipRes, clock.now(), clock.now(), cfg); err != nil {
			t.Errorf("store gzip variant: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := store.Store(context.Background(), identityReq, identityResp, identityRes, clock.now(), clock.now(), cfg); err != nil {
			t.Errorf("store identity variant: %v", err)
		}
	}()
	wg.Wait()

	key := store.primaryKey(gzipReq, cfg)
	root, err := storage.GetEntry(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if root == nil || !root.IsRoot() {
		t.Fatal("expected a root entry with a variant map")
	}
	if len(root.Variants) != 2 {
		t.Fatalf("expected both concurrent variant stores reflected in root.Variants, got %d entries: %v", len(root.Variants), root.Variants)
	}
}

// alwaysCollideCAS is a CASCache whose CompareAndSwap never succeeds,
// simulating permanent contention so Storage.UpdateEntry must exhaust its
// retry budget and surface ErrCacheUpdateFailed.
type alwaysCollideCAS struct {
	*MemoryCache
}

func (alwaysCollideCAS) CompareAndSwap(_ context.Context, _ string, _, _ []byte) (bool, error) {
	return false, nil
}

var _ CASCache = alwaysCollideCAS{}

// TestUpdateEntryExhaustsRetryBudget verifies that repeated CAS collisions
// surface CacheUpdateFailed rather than retrying forever, and that the
// retry count honors Config.MaxUpdateRetries.
func TestUpdateEntryExhaustsRetryBudget(t *testing.T) {
	cas := alwaysCollideCAS{MemoryCache: NewMemoryCache()}
	storage := NewStorage(cas, NewEntryCodec(nil))

	_, err := NewTransport(storage, WithMaxUpdateRetries(2))
	if err != nil {
		t.Fatal(err)
	}

	err = storage.UpdateEntry(context.Background(), "k", func(cur *CacheEntry) (*CacheEntry, error) {
		return &CacheEntry{Method: http.MethodGet, RequestURI: "http://example.org/"}, nil
	})
	if err == nil {
		t.Fatal("expected CAS exhaustion to surface an error")
	}
	var cacheErr *CacheError
	if !errors.As(err, &cacheErr) || cacheErr.Kind != KindCacheUpdateFailed {
		t.Fatalf("expected a CacheError with KindCacheUpdateFailed, got %v", err)
	}
	if !errors.Is(err, ErrCacheUpdateFailed) {
		t.Fatalf("expected errors.Is to match ErrCacheUpdateFailed, got %v", err)
	}
}
