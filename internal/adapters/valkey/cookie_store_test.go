package valkey_test

import (
	"context"
	"testing"

	"github.com/samirrijal/seoulbike/internal/adapters/valkey"
)

type memCache struct {
	data map[string][]byte
	ttls map[string]int
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]int{}}
}

func (m *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, valkey.ErrMiss
	}
	return v, nil
}

func (m *memCache) Set(ctx context.Context, key string, value []byte, ttl int) error {
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memCache) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestCookieStore(t *testing.T) {
	cache := newMemCache()
	store := valkey.NewCookieStore(cache)

	got, err := store.Load(context.Background())
	if err != nil || got != "" {
		t.Fatalf("expected empty cookie without error, got %q / %v", got, err)
	}

	if err := store.Save(context.Background(), "JSESSIONID=abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ttl := cache.ttls[valkey.CookieKey]; ttl != 0 {
		t.Errorf("cookie must not expire, got ttl %d", ttl)
	}
	got, err = store.Load(context.Background())
	if err != nil || got != "JSESSIONID=abc" {
		t.Errorf("expected saved cookie, got %q / %v", got, err)
	}
}
