package httpcache

const (
	stale = iota
	fresh
	transparent
	staleWhileRevalidate

	// XCache marks a response as served from the cache (Config.MarkCachedResponses).
	XCache = "X-Cache"
	// XCacheFreshness reports the freshness state of a response served from cache.
	XCacheFreshness = "X-Cache-Freshness"

	headerLastModified    = "Last-Modified"
	headerETag            = "ETag"
	headerAge             = "Age"
	headerWarning         = "Warning"
	headerLocation        = "Location"
	headerContentLocation = "Content-Location"
	headerDate            = "Date"
	headerVary            = "Vary"
	headerAuthorization   = "Authorization"

	cacheControlOnlyIfCached         = "only-if-cached"
	cacheControlNoCache              = "no-cache"
	cacheControlStaleWhileRevalidate = "stale-while-revalidate"
	cacheControlStaleIfError         = "stale-if-error"
	cacheControlMaxAge               = "max-age"
	cacheControlMinFresh             = "min-fresh"
	cacheControlMaxStale             = "max-stale"
	cacheControlNoStore              = "no-store"
	cacheControlNoTransform          = "no-transform"
	cacheControlPrivate              = "private"
	cacheControlMustUnderstand       = "must-understand"
	cacheControlPublic               = "public"
	cacheControlMustRevalidate       = "must-revalidate"
	cacheControlProxyRevalidate      = "proxy-revalidate"
	cacheControlSMaxAge              = "s-maxage"
	cacheControlImmutable            = "immutable"

	headerPragma  = "Pragma"
	pragmaNoCache = "no-cache"

	logConflictingDirectives = "conflicting Cache-Control directives detected"

	// RFC 7234 Section 5.5: Warning header codes
	warningResponseIsStale     = `110 - "Response is Stale"`
	warningRevalidationFailed  = `111 - "Revalidation Failed"`
	warningDisconnectedOp      = `112 - "Disconnected Operation"`
	warningHeuristicExpiration = `113 - "Heuristic Expiration"`

	freshnessStringFresh                = "fresh"
	freshnessStringStale                = "stale"
	freshnessStringStaleWhileRevalidate = "stale-while-revalidate"
	freshnessStringTransparent          = "transparent"
	freshnessStringUnknown              = "unknown"
)
