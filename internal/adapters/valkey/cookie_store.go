package valkey

import (
	"context"
	"errors"

	"github.com/samirrijal/seoulbike/internal/core/ports"
)

// CookieKey holds the persisted session cookie.
const CookieKey = "seoulbike:cookie"

// CookieStore implements ports.CookieStore on top of a cache. The cookie is
// stored without expiry.
type CookieStore struct {
	cache ports.CacheService
}

// NewCookieStore creates a new CookieStore.
func NewCookieStore(cache ports.CacheService) *CookieStore {
	return &CookieStore{cache: cache}
}

// Load returns the stored cookie, or "" when none was saved.
func (s *CookieStore) Load(ctx context.Context) (string, error) {
	b, err := s.cache.Get(ctx, CookieKey)
	if errors.Is(err, ErrMiss) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Save replaces the stored cookie.
func (s *CookieStore) Save(ctx context.Context, cookie string) error {
	return s.cache.Set(ctx, CookieKey, []byte(cookie), 0)
}
