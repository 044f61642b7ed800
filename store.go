package httpcache

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// CacheMatch is the result of a cache lookup (C9 facing C12): the stored
// entry that best matches the request, if any, already classified by C5.
type CacheMatch struct {
	Key         string
	Entry       *CacheEntry
	Suitability SuitabilityClass

	// Root holds the root entry when the primary key resolved to one but
	// none of its variants selector-matched the live request (Suitability
	// is SuitabilityNone in that case). C12 uses it to drive variant
	// negotiation (spec.md §4.12.1) instead of falling straight through to
	// a plain fetch.
	Root *CacheEntry
}

// cacheStore is C9, the facade C12 drives: it turns requests into storage
// keys, resolves Vary-separated variants, and writes new entries (splitting
// a root/variant pair when a response carries Vary).
type cacheStore struct {
	storage Storage
	log     *slog.Logger
}

func newCacheStore(storage Storage, log *slog.Logger) *cacheStore {
	if log == nil {
		log = GetLogger()
	}
	return &cacheStore{storage: storage, log: log}
}

func (s *cacheStore) primaryKey(req *http.Request, cfg Config) string {
	return hashKey(cacheKeyWithHeaders(req, cfg.CacheKeyHeaders))
}

// Lookup implements C9's read path: resolve the primary key, follow the
// variant map if the stored entry is a root, and classify suitability (C5)
// against whatever entry matches.
func (s *cacheStore) Lookup(ctx context.Context, req *http.Request, cfg Config) (*CacheMatch, error) {
	key := s.primaryKey(req, cfg)

	root, err := s.storage.GetEntry(ctx, key)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, nil
	}

	entry := root
	if root.IsRoot() {
		entry = nil
		for _, variantKey := range root.Variants {
			candidate, err := s.storage.GetEntry(ctx, variantKey)
			if err != nil {
				s.log.Warn("failed to read variant entry", "key", variantKey, "error", err)
				continue
			}
			if candidate == nil {
				continue
			}
			if selectorsMatch(candidate.Selectors, req) {
				entry = candidate
				break
			}
		}
		if entry == nil {
			return &CacheMatch{Key: key, Suitability: SuitabilityNone, Root: root}, nil
		}
	}

	suitability := classifySuitability(req, entry, cfg, s.log)
	return &CacheMatch{Key: key, Entry: entry, Suitability: suitability}, nil
}

// Store implements C9's write path: persists resp (already policy-approved
// by C6) as a CacheEntry, splitting into a root+variant pair when the
// response carries a Vary header and variant separation is enabled.
func (s *cacheStore) Store(ctx context.Context, req *http.Request, resp *http.Response, res Resource, reqInstant, respInstant time.Time, cfg Config) error {
	key := s.primaryKey(req, cfg)
	entry := newEntryFromResponse(req, resp, res, reqInstant, respInstant)

	names, varyStar := varyNames(resp.Header)
	if varyStar {
		// RFC 9111 §4.1: Vary: * can never be matched again; don't bother
		// storing a variant nobody can retrieve.
		return nil
	}
	if !cfg.EnableVarySeparation || len(names) == 0 {
		return s.storage.PutEntry(ctx, key, entry)
	}

	entry.Selectors = selectorValues(names, req)
	selectorKey := variantSelectorKey(entry.Selectors)
	variantStorageKey := key + "|variant:" + hashKey(selectorKey)

	if err := s.storage.PutEntry(ctx, variantStorageKey, entry); err != nil {
		return err
	}

	return s.storage.UpdateEntry(ctx, key, func(cur *CacheEntry) (*CacheEntry, error) {
		root := cur
		if root == nil || !root.IsRoot() {
			root = &CacheEntry{
				Method:     req.Method,
				RequestURI: req.URL.String(),
				Variants:   map[string]string{},
			}
		} else {
			root = root.Clone()
		}
		root.Variants[selectorKey] = variantStorageKey
		return root, nil
	})
}

// LoadVariants reads every variant sub-entry named by root.Variants,
// skipping (and logging) any that fail to read or have gone missing —
// spec.md's getVariants contract tolerates a partially-reachable variant
// set rather than failing the whole lookup over one bad sub-entry.
func (s *cacheStore) LoadVariants(ctx context.Context, root *CacheEntry) (map[string]*CacheEntry, error) {
	out := make(map[string]*CacheEntry, len(root.Variants))
	for _, storageKey := range root.Variants {
		entry, err := s.storage.GetEntry(ctx, storageKey)
		if err != nil {
			s.log.Warn("failed to read variant entry", "key", storageKey, "error", err)
			continue
		}
		if entry == nil {
			continue
		}
		out[storageKey] = entry
	}
	return out, nil
}

// StoreFromNegotiated persists a variant-negotiation outcome (spec.md
// §4.12.1/C9): the 304 came back matching negotiatedKey's existing variant
// entry, so its headers are refreshed in place, a copy carrying the live
// request's own selectors is stored under that selector's variant key, and
// the root's variant map is extended to point at the copy. The copy shares
// the Resource rather than duplicating the body.
func (s *cacheStore) StoreFromNegotiated(ctx context.Context, req *http.Request, rootKey, negotiatedKey string, negotiated *CacheEntry, resp *http.Response, reqInstant, respInstant time.Time, cfg Config) error {
	updated := negotiated.Clone()
	for k, v := range resp.Header {
		if k == "Content-Length" || k == "Transfer-Encoding" {
			continue
		}
		updated.Header[k] = v
	}
	updated.RequestInstant = reqInstant
	updated.ResponseInstant = respInstant

	if err := s.storage.PutEntry(ctx, negotiatedKey, updated); err != nil {
		return err
	}

	names, _ := varyNames(updated.Header)
	selectors := selectorValues(names, req)
	selectorKey := variantSelectorKey(selectors)
	copyKey := rootKey + "|variant:" + hashKey(selectorKey)
	promoted := updated.Clone()
	promoted.Selectors = selectors
	if err := s.storage.PutEntry(ctx, copyKey, promoted); err != nil {
		return err
	}

	return s.storage.UpdateEntry(ctx, rootKey, func(cur *CacheEntry) (*CacheEntry, error) {
		root := cur
		if root == nil || !root.IsRoot() {
			root = &CacheEntry{
				Method:     req.Method,
				RequestURI: req.URL.String(),
				Variants:   map[string]string{},
			}
		} else {
			root = root.Clone()
		}
		root.Variants[selectorKey] = copyKey
		return root, nil
	})
}

// Remove deletes the entry stored directly under req's primary key. When
// that entry is a root, every variant sub-entry it names is deleted first,
// so invalidation reaches the root and all of its variants at the
// request's key (spec.md §4.9).
func (s *cacheStore) Remove(ctx context.Context, req *http.Request, cfg Config) error {
	key := s.primaryKey(req, cfg)

	entry, err := s.storage.GetEntry(ctx, key)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}

	if entry.IsRoot() {
		for _, variantKey := range entry.Variants {
			if err := s.storage.RemoveEntry(ctx, variantKey); err != nil {
				s.log.Warn("failed to invalidate variant entry", "key", variantKey, "error", err)
			}
		}
	}

	return s.storage.RemoveEntry(ctx, key)
}
