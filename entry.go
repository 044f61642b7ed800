package httpcache

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"net/http/httputil"
	"sort"
	"strconv"
	"strings"
	"time"
)

// hopByHopHeaders is the fixed list of headers that are never part of a
// stored entry; it is extended per-response by the tokens listed in that
// response's own Connection header.
var hopByHopHeaders = map[string]bool{
	"Connection":               true,
	"Content-Length":           true,
	"Transfer-Encoding":        true,
	"Host":                     true,
	"Keep-Alive":               true,
	"Te":                       true,
	"Upgrade":                  true,
	"Proxy-Authorization":      true,
	"Proxy-Authenticate":       true,
	"Proxy-Authentication-Info": true,
}

// understoodStatusCodes are the status codes this cache is able to store
// and reconstruct from. Responses with any other status code are never
// stored (spec.md §3 invariant 3).
var understoodStatusCodes = map[int]bool{
	100: true, 101: true,
	200: true, 201: true, 202: true, 203: true, 204: true, 205: true, 206: true,
	300: true, 301: true, 302: true, 303: true, 304: true, 305: true, 307: true,
	400: true, 401: true, 402: true, 403: true, 404: true, 405: true, 406: true,
	407: true, 408: true, 409: true, 410: true, 411: true, 412: true, 413: true,
	414: true, 415: true, 416: true, 417: true, 421: true,
	500: true, 501: true, 502: true, 503: true, 504: true, 505: true,
}

// CacheEntry is the unit stored by a Storage backend. See spec.md §3.
type CacheEntry struct {
	Method     string
	RequestURI string

	// Selectors holds, for a variant entry, the request header values for
	// each field the response's Vary advertised (see VariantSelector).
	Selectors map[string]string

	StatusCode int
	Header     http.Header

	Resource Resource // nil for 204/304/HEAD and for root entries with Variants

	RequestInstant  time.Time
	ResponseInstant time.Time

	// Variants maps a canonicalized variant selector to the storage key of
	// the sub-entry holding that variant's response. Non-empty only on a
	// root entry; a root entry with a non-empty Variants has a nil
	// Resource (invariant 2).
	Variants map[string]string
}

// IsRoot reports whether e is a root entry carrying a variant map rather
// than a response body.
func (e *CacheEntry) IsRoot() bool { return len(e.Variants) > 0 }

// Clone returns a deep-enough copy of e for safe mutation by callers; the
// Resource is shared (Resources are immutable once stored).
func (e *CacheEntry) Clone() *CacheEntry {
	c := *e
	c.Header = e.Header.Clone()
	if e.Selectors != nil {
		c.Selectors = make(map[string]string, len(e.Selectors))
		for k, v := range e.Selectors {
			c.Selectors[k] = v
		}
	}
	if e.Variants != nil {
		c.Variants = make(map[string]string, len(e.Variants))
		for k, v := range e.Variants {
			c.Variants[k] = v
		}
	}
	return &c
}

// stripHopByHop removes hop-by-hop headers from h, extended by any tokens
// named in h's own Connection header (spec.md §3, §9).
func stripHopByHop(h http.Header) http.Header {
	out := h.Clone()
	extra := map[string]bool{}
	for _, v := range out.Values("Connection") {
		for _, tok := range strings.Split(v, ",") {
			tok = http.CanonicalHeaderKey(strings.TrimSpace(tok))
			if tok != "" {
				extra[tok] = true
			}
		}
	}
	for k := range out {
		ck := http.CanonicalHeaderKey(k)
		if hopByHopHeaders[ck] || extra[ck] {
			out.Del(k)
		}
	}
	return out
}

// newEntryFromResponse builds a CacheEntry from an origin exchange. The
// resource, if any, must already have been buffered by the caller (C12
// buffers under the size cap before calling this).
func newEntryFromResponse(req *http.Request, resp *http.Response, res Resource, reqInstant, respInstant time.Time) *CacheEntry {
	e := &CacheEntry{
		Method:          req.Method,
		RequestURI:      req.URL.String(),
		StatusCode:      resp.StatusCode,
		Header:          stripHopByHop(resp.Header),
		Resource:        res,
		RequestInstant:  reqInstant,
		ResponseInstant: respInstant,
	}
	if res != nil {
		e.Header.Set("Content-Length", strconv.FormatInt(res.Length(), 10))
	} else {
		e.Header.Del("Content-Length")
	}
	e.Header.Del("Transfer-Encoding")
	return e
}

// --- HC- banner serialization (spec.md §6) -----------------------------
//
// Layout:
//   HC-Key: <request method + SP + request URI>
//   HC-Resource-Length: <n>            (omitted when Resource is nil)
//   HC-Request-Instant: <RFC3339Nano>
//   HC-Response-Instant: <RFC3339Nano>
//   HC-Variant: <selector>=<key>       (zero or more, root entries only)
//   HC-Selector: <header>=<value>      (zero or more, variant entries only)
//   <blank line>
//   <request-line>\r\n<request headers>\r\n\r\n
//   \r\n                               (separator line)
//   <status-line>\r\n<response headers>\r\n\r\n
//   <body bytes, iff Resource != nil>

func serializeEntry(e *CacheEntry) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "HC-Key: %s %s\n", e.Method, e.RequestURI)
	if e.Resource != nil {
		fmt.Fprintf(&buf, "HC-Resource-Length: %d\n", e.Resource.Length())
	}
	fmt.Fprintf(&buf, "HC-Request-Instant: %s\n", e.RequestInstant.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&buf, "HC-Response-Instant: %s\n", e.ResponseInstant.UTC().Format(time.RFC3339Nano))

	for _, sel := range sortedKeys(e.Variants) {
		fmt.Fprintf(&buf, "HC-Variant: %s=%s\n", sel, e.Variants[sel])
	}
	for _, h := range sortedKeys(e.Selectors) {
		fmt.Fprintf(&buf, "HC-Selector: %s=%s\n", h, e.Selectors[h])
	}
	buf.WriteString("\n")

	req, err := http.NewRequest(e.Method, e.RequestURI, nil)
	if err != nil {
		return nil, fmt.Errorf("serializeEntry: rebuilding request: %w", err)
	}
	reqBytes, err := httputil.DumpRequestOut(req, false)
	if err != nil {
		return nil, fmt.Errorf("serializeEntry: dumping request: %w", err)
	}
	buf.Write(reqBytes)
	buf.WriteString("\r\n")

	resp := &http.Response{
		StatusCode: e.StatusCode,
		Status:     fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode)),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     e.Header,
		Body:       http.NoBody,
	}
	if e.Resource != nil {
		rc, err := e.Resource.Open()
		if err != nil {
			return nil, newCacheError(KindResourceIO, "serializeEntry", err)
		}
		defer rc.Close()
		resp.Body = rc
	}
	respBytes, err := httputil.DumpResponse(resp, e.Resource != nil)
	if err != nil {
		return nil, fmt.Errorf("serializeEntry: dumping response: %w", err)
	}
	buf.Write(respBytes)

	return buf.Bytes(), nil
}

func deserializeEntry(data []byte, factory ResourceFactory) (*CacheEntry, error) {
	r := bufio.NewReader(bytes.NewReader(data))

	e := &CacheEntry{}
	resourceLength := int64(-1)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("deserializeEntry: reading banner: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		k, v, ok := strings.Cut(line, ": ")
		if !ok {
			return nil, fmt.Errorf("deserializeEntry: malformed banner line %q", line)
		}
		switch k {
		case "HC-Key":
			method, uri, ok := strings.Cut(v, " ")
			if !ok {
				return nil, fmt.Errorf("deserializeEntry: malformed HC-Key %q", v)
			}
			e.Method, e.RequestURI = method, uri
		case "HC-Resource-Length":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("deserializeEntry: bad HC-Resource-Length: %w", err)
			}
			resourceLength = n
		case "HC-Request-Instant":
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, fmt.Errorf("deserializeEntry: bad HC-Request-Instant: %w", err)
			}
			e.RequestInstant = t
		case "HC-Response-Instant":
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, fmt.Errorf("deserializeEntry: bad HC-Response-Instant: %w", err)
			}
			e.ResponseInstant = t
		case "HC-Variant":
			sel, key, ok := strings.Cut(v, "=")
			if !ok {
				return nil, fmt.Errorf("deserializeEntry: malformed HC-Variant %q", v)
			}
			if e.Variants == nil {
				e.Variants = map[string]string{}
			}
			e.Variants[sel] = key
		case "HC-Selector":
			h, val, ok := strings.Cut(v, "=")
			if !ok {
				return nil, fmt.Errorf("deserializeEntry: malformed HC-Selector %q", v)
			}
			if e.Selectors == nil {
				e.Selectors = map[string]string{}
			}
			e.Selectors[h] = val
		}
	}

	req, err := http.ReadRequest(r)
	if err != nil {
		return nil, fmt.Errorf("deserializeEntry: reading request: %w", err)
	}
	req.Body.Close()
	if _, err := r.ReadString('\n'); err != nil && resourceLength >= 0 {
		return nil, fmt.Errorf("deserializeEntry: reading request/response separator: %w", err)
	}

	resp, err := http.ReadResponse(r, req)
	if err != nil {
		return nil, fmt.Errorf("deserializeEntry: reading response: %w", err)
	}
	defer resp.Body.Close()
	e.StatusCode = resp.StatusCode
	e.Header = resp.Header

	if resourceLength >= 0 {
		res, err := factory.Generate(req.Context(), e.RequestURI, resp.Body, resourceLength)
		if err != nil {
			return nil, newCacheError(KindResourceIO, "deserializeEntry", err)
		}
		e.Resource = res
	}

	return e, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
