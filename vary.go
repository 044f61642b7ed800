package httpcache

import (
	"net/http"
	"sort"
	"strings"
)

// varyNames returns the canonicalized, deduplicated header names listed in
// h's Vary, or (nil, true) if Vary contains "*" (RFC 9111 §4.1: a resource
// with Vary: * can never be served from cache without revalidation).
func varyNames(h http.Header) (names []string, varyStar bool) {
	seen := map[string]bool{}
	for _, v := range h.Values("Vary") {
		for _, tok := range strings.Split(v, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			if tok == "*" {
				return nil, true
			}
			canon := http.CanonicalHeaderKey(tok)
			if !seen[canon] {
				seen[canon] = true
				names = append(names, canon)
			}
		}
	}
	sort.Strings(names)
	return names, false
}

// normalizeHeaderValue collapses whitespace and comma-space separators so
// semantically-equivalent header values compare equal (RFC 9111 §4.1).
func normalizeHeaderValue(value string) string {
	value = strings.TrimSpace(value)

	var b strings.Builder
	prevSpace := false
	for _, r := range value {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if !prevSpace {
				b.WriteRune(' ')
				prevSpace = true
			}
			continue
		}
		b.WriteRune(r)
		prevSpace = false
	}

	return strings.ReplaceAll(b.String(), ", ", ",")
}

func normalizedHeaderValuesMatch(a, b string) bool {
	return a == b || normalizeHeaderValue(a) == normalizeHeaderValue(b)
}

// selectorValues captures, for each name in names, the normalized value req
// carries for that header. Used both to build a variant's stored Selectors
// and to test a later request against them.
func selectorValues(names []string, req *http.Request) map[string]string {
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]string, len(names))
	for _, name := range names {
		out[name] = normalizeHeaderValue(req.Header.Get(name))
	}
	return out
}

// selectorsMatch reports whether req's headers match the stored selector
// values exactly — RFC 9111 §4.1's per-field comparison, absent-vs-absent
// counting as a match.
func selectorsMatch(stored map[string]string, req *http.Request) bool {
	for name, want := range stored {
		got := normalizeHeaderValue(req.Header.Get(name))
		if !normalizedHeaderValuesMatch(got, want) {
			return false
		}
	}
	return true
}

// variantSelectorKey renders a selector map into the stable string used as
// a root entry's Variants map key (spec.md §3's variant map).
func variantSelectorKey(selectors map[string]string) string {
	if len(selectors) == 0 {
		return ""
	}
	parts := make([]string, 0, len(selectors))
	for name, val := range selectors {
		parts = append(parts, name+"="+val)
	}
	sort.Strings(parts)
	return strings.Join(parts, "&")
}
