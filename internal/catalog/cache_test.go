package catalog

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryCacheExpires(t *testing.T) {
	cache := NewMemoryCache(10)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	if err := cache.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if value, ok, _ := cache.Get(ctx, "k"); !ok || string(value) != "v" {
		t.Fatalf("expected hit, got %q %v", value, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := cache.Get(ctx, "k"); ok {
		t.Fatalf("expected expired entry to miss")
	}
}

func TestMemoryCacheTrimsOldest(t *testing.T) {
	cache := NewMemoryCache(2)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	for _, key := range []string{"a", "b", "c"} {
		now = now.Add(time.Second)
		_ = cache.Set(ctx, key, []byte(key), time.Hour)
	}
	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Len())
	}
	if _, ok, _ := cache.Get(ctx, "a"); ok {
		t.Fatalf("expected oldest entry evicted")
	}
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	cache := NewMemoryCache(2)
	ctx := context.Background()
	_ = cache.Set(ctx, "k", []byte("abc"), time.Hour)

	value, _, _ := cache.Get(ctx, "k")
	value[0] = 'x'
	again, _, _ := cache.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("cached value was mutated through a returned slice: %q", again)
	}
}

func TestRedisCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewRedisCache(client)
	ctx := context.Background()

	if err := cache.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, ok, err := cache.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
	if err := cache.Set(ctx, "category|drama|p=1", []byte(`[{"id":1}]`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists(redisCachePrefix + "category|drama|p=1") {
		t.Fatalf("expected prefixed key in redis")
	}
	value, ok, err := cache.Get(ctx, "category|drama|p=1")
	if err != nil || !ok || string(value) != `[{"id":1}]` {
		t.Fatalf("unexpected get: %q %v %v", value, ok, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, ok, _ := cache.Get(ctx, "category|drama|p=1"); ok {
		t.Fatalf("expected key to expire")
	}

	_ = cache.Set(ctx, "x", []byte("1"), time.Minute)
	if err := cache.Delete(ctx, "x"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "x"); ok {
		t.Fatalf("expected deleted key to miss")
	}
}

func TestBackendUsesRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var calls atomic.Int32
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"page":1,"results":[{"id":4,"title":"D"}]}`))
	}, BackendConfig{Cache: NewRedisCache(client)})

	for i := 0; i < 2; i++ {
		page, err := backend.Search(context.Background(), "dune", 1)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(page.Results) != 1 || page.Results[0].ID != 4 {
			t.Fatalf("unexpected page: %#v", page)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected second search served from redis, got %d requests", calls.Load())
	}
}
