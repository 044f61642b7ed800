package httpcache

import (
	"context"
	"testing"
)

const benchmarkKey = "benchmark-key"

func BenchmarkMemoryCacheGet(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	value := make([]byte, 1024) // 1KB value
	cache.Put(ctx, benchmarkKey, value)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Get(ctx, benchmarkKey)
	}
}

func BenchmarkMemoryCachePut(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	value := make([]byte, 1024) // 1KB value

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Put(ctx, benchmarkKey, value)
	}
}

func BenchmarkMemoryCacheDelete(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	value := make([]byte, 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := string(rune('a' + i%26))
		cache.Put(ctx, key, value)
		cache.Delete(ctx, key)
	}
}

func BenchmarkMemoryCachePutGet(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	value := make([]byte, 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Put(ctx, benchmarkKey, value)
		cache.Get(ctx, benchmarkKey)
	}
}

func BenchmarkMemoryCacheParallelGet(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	value := make([]byte, 1024)

	for i := 0; i < 26; i++ {
		key := string(rune('a' + i))
		cache.Put(ctx, key, value)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := string(rune('a' + i%26))
			cache.Get(ctx, key)
			i++
		}
	})
}

func BenchmarkMemoryCacheParallelPut(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	value := make([]byte, 1024)

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := string(rune('a' + i%26))
			cache.Put(ctx, key, value)
			i++
		}
	})
}

func BenchmarkMemoryCachePutHTTPResponse(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	// Typical HTTP response with headers: ~2KB
	value := make([]byte, 2048)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := string(rune('a' + i%100))
		cache.Put(ctx, key, value)
	}
}

func BenchmarkMemoryCacheGetHTTPResponse(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	value := make([]byte, 2048)

	for i := 0; i < 100; i++ {
		key := string(rune('a' + i))
		cache.Put(ctx, key, value)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := string(rune('a' + i%100))
		cache.Get(ctx, key)
	}
}

func BenchmarkMemoryCachePutLargeResponse(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	// Large response: 100KB
	value := make([]byte, 100*1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := string(rune('a' + i%50))
		cache.Put(ctx, key, value)
	}
}

func BenchmarkMemoryCacheGetLargeResponse(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	value := make([]byte, 100*1024)

	for i := 0; i < 50; i++ {
		key := string(rune('a' + i))
		cache.Put(ctx, key, value)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := string(rune('a' + i%50))
		cache.Get(ctx, key)
	}
}

func BenchmarkMemoryCacheMixedOperations(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	value := make([]byte, 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := string(rune('a' + i%100))
		switch i % 3 {
		case 0:
			cache.Put(ctx, key, value)
		case 1:
			cache.Get(ctx, key)
		case 2:
			cache.Delete(ctx, key)
		}
	}
}

func BenchmarkMemoryCacheParallelMixed(b *testing.B) {
	ctx := context.Background()
	cache := NewMemoryCache()
	value := make([]byte, 1024)

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := string(rune('a' + i%100))
			switch i % 3 {
			case 0:
				cache.Put(ctx, key, value)
			case 1:
				cache.Get(ctx, key)
			case 2:
				cache.Delete(ctx, key)
			}
			i++
		}
	})
}
