package httpcache

import (
	"net/http"
	"testing"
	"time"
)

// fakeClock pins "now" to a fixed elapsed duration past whatever instant is
// passed to since(), letting tests simulate the passage of time without
// actually sleeping.
type fakeClock struct {
	elapsed time.Duration
}

func (c *fakeClock) now() time.Time {
	return time.Now().Add(c.elapsed)
}

func (c *fakeClock) since(t time.Time) time.Duration {
	return c.elapsed
}

// newCachingClient builds a Transport over a fresh in-memory Storage and
// wraps it in an *http.Client, the shape every end-to-end test in this
// package drives requests through.
func newCachingClient(t *testing.T, opts ...TransportOption) (*http.Client, *Transport) {
	t.Helper()
	storage := NewStorage(NewMemoryCache(), NewEntryCodec(nil))
	transport, err := NewTransport(storage, opts...)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	return &http.Client{Transport: transport}, transport
}

// drainAndClose reads resp.Body to completion and closes it, returning the
// bytes read. Tests use this instead of a partial Read so cache storage
// (which happens after the body is fully consumed downstream) has settled
// before the next assertion.
func drainAndClose(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf
}
