package httpcache

import (
	"bytes"
	"context"
	"net/http"
	"reflect"
	"testing"
	"time"
)

// TestSerializationRoundTrip is P6: for any entry built from a cacheable
// response, deserialize(serialize(e)) must yield an entry equal in status,
// header set, variants set, body, and timestamps.
func TestSerializationRoundTrip(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.org/a?x=1", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header: http.Header{
			"Etag":          []string{`"v1"`},
			"Content-Type":  []string{"text/plain"},
			"Cache-Control": []string{"max-age=60"},
		},
	}
	body := []byte("hello, cache")
	res, err := MemoryResourceFactory{}.Generate(context.Background(), req.URL.String(), bytes.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatal(err)
	}

	reqInstant := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	respInstant := reqInstant.Add(50 * time.Millisecond)
	entry := newEntryFromResponse(req, resp, res, reqInstant, respInstant)

	data, err := serializeEntry(entry)
	if err != nil {
		t.Fatalf("serializeEntry: %v", err)
	}

	got, err := deserializeEntry(data, MemoryResourceFactory{})
	if err != nil {
		t.Fatalf("deserializeEntry: %v", err)
	}

	if got.StatusCode != entry.StatusCode {
		t.Errorf("status: got %d, want %d", got.StatusCode, entry.StatusCode)
	}
	if got.Header.Get("Etag") != entry.Header.Get("Etag") {
		t.Errorf("etag: got %q, want %q", got.Header.Get("Etag"), entry.Header.Get("Etag"))
	}
	if got.Header.Get("Content-Type") != entry.Header.Get("Content-Type") {
		t.Errorf("content-type: got %q, want %q", got.Header.Get("Content-Type"), entry.Header.Get("Content-Type"))
	}
	if got.Header.Get("Cache-Control") != entry.Header.Get("Cache-Control") {
		t.Errorf("cache-control: got %q, want %q", got.Header.Get("Cache-Control"), entry.Header.Get("Cache-Control"))
	}
	if !got.RequestInstant.Equal(entry.RequestInstant) {
		t.Errorf("requestInstant: got %v, want %v", got.RequestInstant, entry.RequestInstant)
	}
	if !got.ResponseInstant.Equal(entry.ResponseInstant) {
		t.Errorf("responseInstant: got %v, want %v", got.ResponseInstant, entry.ResponseInstant)
	}

	gotBody, err := readAll(got.Resource)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(gotBody, body) {
		t.Errorf("body: got %q, want %q", gotBody, body)
	}
}

// TestSerializationRoundTripVariantRoot is the variant-map half of P6: a
// root entry's Variants set must round-trip byte-for-byte and its Resource
// must remain nil (invariant 2).
func TestSerializationRoundTripVariantRoot(t *testing.T) {
	root := &CacheEntry{
		Method:          http.MethodGet,
		RequestURI:      "http://example.org/c",
		StatusCode:      http.StatusOK,
		Header:          http.Header{"Vary": []string{"Accept-Encoding"}},
		Variants:        map[string]string{"{accept-encoding=gzip}": "key-gzip", "{accept-encoding=identity}": "key-identity"},
		RequestInstant:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ResponseInstant: time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data, err := serializeEntry(root)
	if err != nil {
		t.Fatalf("serializeEntry: %v", err)
	}
	got, err := deserializeEntry(data, MemoryResourceFactory{})
	if err != nil {
		t.Fatalf("deserializeEntry: %v", err)
	}

	if got.Resource != nil {
		t.Fatal("expected a variant root entry to round-trip with a nil Resource")
	}
	if !reflect.DeepEqual(got.Variants, root.Variants) {
		t.Fatalf("variants: got %v, want %v", got.Variants, root.Variants)
	}
}

func readAll(r Resource) ([]byte, error) {
	rc, err := r.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
