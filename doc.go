// Package httpcache implements the decision engine of a transparent,
// RFC 9111 (obsoletes RFC 7234) compliant client-side HTTP cache.
//
// The engine (Transport) sits in front of a DownstreamExecutor — typically
// another http.RoundTripper — and for every request decides whether it can
// be served from a Storage-backed entry, whether that entry must be
// revalidated with the origin, and whether the origin's response is itself
// cacheable. Storage backends, resource factories and the downstream
// executor are external collaborators; this package only implements the
// policy that sits between them.
//
// By default the engine behaves as a shared/public cache (CDN, reverse
// proxy): Config.SharedCache is true, which enforces the stricter rules
// RFC 9111 reserves for caches serving more than one user. Set
// Config.SharedCache to false to operate as a private cache.
package httpcache
