package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultMemorySize covers roughly a day of webhook deliveries with
// room for provider retry storms; deployments tune it via
// CACHE_MEMORY_SIZE.
const defaultMemorySize = 4096

type entry struct {
	value     string
	expiresAt time.Time
}

// MemoryProvider is an in-process LRU sized for the webhook
// idempotency working set. Expired entries are evicted lazily on read.
type MemoryProvider struct {
	cache *lru.Cache[string, entry]
}

func NewMemoryProvider(size int) (*MemoryProvider, error) {
	if size <= 0 {
		size = defaultMemorySize
	}
	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &MemoryProvider{cache: c}, nil
}

func (m *MemoryProvider) Get(_ context.Context, key string) (string, error) {
	cached, ok := m.cache.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	if time.Now().After(cached.expiresAt) {
		m.cache.Remove(key)
		return "", ErrNotFound
	}
	return cached.value, nil
}

func (m *MemoryProvider) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	m.cache.Add(key, entry{value: value, expiresAt: time.Now().Add(ttl)})
	return nil
}

func (m *MemoryProvider) Delete(_ context.Context, key string) error {
	m.cache.Remove(key)
	return nil
}

func (m *MemoryProvider) Close() error {
	return nil
}
