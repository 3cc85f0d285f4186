package store

import (
	"context"

	"github.com/coocood/freecache"
)

// DefaultMemoryBytes keeps a full feed document below freecache's 1/1024 entry limit.
const DefaultMemoryBytes = 32 * 1024 * 1024

// MemoryStore keeps the document in an in-process freecache shared by reference.
// Any number of banks may hold the same cache; the last writer wins.
type MemoryStore struct {
	cache *freecache.Cache
	key   []byte
}

// NewMemoryStore addresses key inside cache. A nil cache gets a private one.
func NewMemoryStore(cache *freecache.Cache, key string) *MemoryStore {
	if cache == nil {
		cache = freecache.NewCache(DefaultMemoryBytes)
	}
	return &MemoryStore{cache: cache, key: []byte(key)}
}

func (s *MemoryStore) Kind() Kind { return KindMemory }

func (s *MemoryStore) Read(ctx context.Context) ([]byte, bool) {
	raw, err := s.cache.Get(s.key)
	if err != nil || len(raw) == 0 {
		return nil, false
	}
	return raw, true
}

func (s *MemoryStore) Write(ctx context.Context, raw []byte) error {
	if err := s.cache.Set(s.key, raw, 0); err != nil {
		return invalidCache("memory:"+string(s.key), err)
	}
	return nil
}
