package httpcache

import (
	"context"
)

// RawCache is the minimal byte-oriented backend contract: get, put, delete
// by opaque key. Every backend package (diskcache, freecache, leveldbcache,
// memcache, redis, mongodb, postgresql, natskv, hazelcast,
// blobcache) implements at least this much.
type RawCache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// CASCache is implemented by backends that can perform a native atomic
// compare-and-swap. Storage.UpdateEntry uses it directly when available
// (memcache, redis, hazelcast, mongodb, postgresql, natskv)
// and falls back to a striped in-process mutex otherwise (diskcache,
// freecache, leveldbcache, blobcache).
type CASCache interface {
	RawCache
	// CompareAndSwap stores new under key iff the backend's current value
	// equals old byte-for-byte. A nil old means "key must not exist yet".
	// swapped is false, err nil when the precondition didn't hold.
	CompareAndSwap(ctx context.Context, key string, old, new []byte) (swapped bool, err error)
}

// Storage is the CacheEntry-level facade C9 sits behind. It serializes
// entries to/from a RawCache, deriving CAS semantics from a CASCache when
// the backend offers one and from a striped mutex when it does not.
type Storage interface {
	GetEntry(ctx context.Context, key string) (*CacheEntry, error)
	PutEntry(ctx context.Context, key string, entry *CacheEntry) error
	RemoveEntry(ctx context.Context, key string) error
	// UpdateEntry reads the current entry (nil if absent), applies fn, and
	// writes the result back atomically with respect to other UpdateEntry
	// calls on the same key. Returns ErrCacheUpdateFailed (as a CacheError)
	// if the retry budget is exhausted under contention.
	UpdateEntry(ctx context.Context, key string, fn func(cur *CacheEntry) (*CacheEntry, error)) error
	GetEntries(ctx context.Context, keys []string) (map[string]*CacheEntry, error)
}

// EntryCodec serializes/deserializes CacheEntry values to bytes, layered
// between Storage and a RawCache. The default is the HC- banner format;
// wrappers (compresscache, securecache) decorate a codec rather than a
// RawCache, so compression/encryption compose cleanly with CAS (they never
// see CacheEntry, only bytes).
type EntryCodec interface {
	Encode(e *CacheEntry) ([]byte, error)
	Decode(data []byte) (*CacheEntry, error)
}

type bannerCodec struct {
	factory ResourceFactory
}

// NewEntryCodec returns the default HC- banner EntryCodec, spilling bodies
// through factory (MemoryResourceFactory{} when factory is nil).
func NewEntryCodec(factory ResourceFactory) EntryCodec {
	if factory == nil {
		factory = MemoryResourceFactory{}
	}
	return &bannerCodec{factory: factory}
}

func (c *bannerCodec) Encode(e *CacheEntry) ([]byte, error) { return serializeEntry(e) }
func (c *bannerCodec) Decode(data []byte) (*CacheEntry, error) {
	return deserializeEntry(data, c.factory)
}

// storage is the generic Storage implementation shared by every backend
// package: it wraps a RawCache (using native CAS when available, a striped
// mutex otherwise) with an EntryCodec.
type storage struct {
	raw        RawCache
	codec      EntryCodec
	cas        *mutexCAS // non-nil iff raw does not implement CASCache
	maxRetries int
}

// maxUpdateRetriesSetter is implemented by this package's own Storage so
// NewTransport can apply Config.MaxUpdateRetries to it without widening the
// Storage interface itself — a Storage supplied by a caller's own backend
// is free to ignore it and pick its own retry budget.
type maxUpdateRetriesSetter interface {
	setMaxUpdateRetries(n int)
}

func (s *storage) setMaxUpdateRetries(n int) {
	if n < 0 {
		n = 0
	}
	s.maxRetries = n
}

// NewStorage builds a Storage over raw using codec for entry serialization.
// Grounded on the teacher's per-backend Cache wrapper types (memcache.Cache,
// redis Cache, mongodb Cache, ...), generalized into one implementation
// shared by every backend.
func NewStorage(raw RawCache, codec EntryCodec) Storage {
	s := &storage{raw: raw, codec: codec, maxRetries: defaultMaxUpdateRetries}
	if _, ok := raw.(CASCache); !ok {
		s.cas = newMutexCAS()
	}
	return s
}

func (s *storage) GetEntry(ctx context.Context, key string) (*CacheEntry, error) {
	data, ok, err := s.raw.Get(ctx, key)
	if err != nil {
		return nil, newCacheError(KindStorageRead, "Storage.GetEntry", err)
	}
	if !ok {
		return nil, nil
	}
	entry, err := s.codec.Decode(data)
	if err != nil {
		return nil, newCacheError(KindStorageRead, "Storage.GetEntry", err)
	}
	return entry, nil
}

func (s *storage) PutEntry(ctx context.Context, key string, entry *CacheEntry) error {
	data, err := s.codec.Encode(entry)
	if err != nil {
		return newCacheError(KindStorageWrite, "Storage.PutEntry", err)
	}
	if err := s.raw.Put(ctx, key, data); err != nil {
		return newCacheError(KindStorageWrite, "Storage.PutEntry", err)
	}
	return nil
}

func (s *storage) RemoveEntry(ctx context.Context, key string) error {
	if err := s.raw.Delete(ctx, key); err != nil {
		return newCacheError(KindStorageWrite, "Storage.RemoveEntry", err)
	}
	return nil
}

func (s *storage) GetEntries(ctx context.Context, keys []string) (map[string]*CacheEntry, error) {
	out := make(map[string]*CacheEntry, len(keys))
	for _, k := range keys {
		e, err := s.GetEntry(ctx, k)
		if err != nil {
			return nil, err
		}
		if e != nil {
			out[k] = e
		}
	}
	return out, nil
}

const defaultMaxUpdateRetries = 1

func (s *storage) UpdateEntry(ctx context.Context, key string, fn func(cur *CacheEntry) (*CacheEntry, error)) error {
	if casCache, ok := s.raw.(CASCache); ok {
		return s.updateEntryNativeCAS(ctx, casCache, key, fn)
	}
	return s.updateEntryMutexCAS(ctx, key, fn)
}

func (s *storage) updateEntryNativeCAS(ctx context.Context, cas CASCache, key string, fn func(cur *CacheEntry) (*CacheEntry, error)) error {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		oldData, ok, err := cas.Get(ctx, key)
		if err != nil {
			return newCacheError(KindStorageRead, "Storage.UpdateEntry", err)
		}
		var cur *CacheEntry
		if ok {
			cur, err = s.codec.Decode(oldData)
			if err != nil {
				return newCacheError(KindStorageRead, "Storage.UpdateEntry", err)
			}
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		if next == nil {
			if !ok {
				return nil
			}
			swapped, err := cas.CompareAndSwap(ctx, key, oldData, nil)
			if err != nil {
				return newCacheError(KindStorageWrite, "Storage.UpdateEntry", err)
			}
			if swapped {
				return nil
			}
			continue
		}
		newData, err := s.codec.Encode(next)
		if err != nil {
			return newCacheError(KindStorageWrite, "Storage.UpdateEntry", err)
		}
		swapped, err := cas.CompareAndSwap(ctx, key, oldData, newData)
		if err != nil {
			return newCacheError(KindStorageWrite, "Storage.UpdateEntry", err)
		}
		if swapped {
			return nil
		}
		GetLogger().Debug("cache update CAS collision, retrying", "key", key, "attempt", attempt)
	}
	return newCacheError(KindCacheUpdateFailed, "Storage.UpdateEntry", ErrCacheUpdateFailed)
}

func (s *storage) updateEntryMutexCAS(ctx context.Context, key string, fn func(cur *CacheEntry) (*CacheEntry, error)) error {
	unlock := s.cas.lock(key)
	defer unlock()

	cur, err := s.GetEntry(ctx, key)
	if err != nil {
		return err
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	if next == nil {
		if cur == nil {
			return nil
		}
		return s.RemoveEntry(ctx, key)
	}
	return s.PutEntry(ctx, key, next)
}
