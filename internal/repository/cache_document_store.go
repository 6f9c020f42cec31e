package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pkgcache "FinWatch/pkg/cache"
)

// CacheDocumentStore keeps each document as one JSON value in a cache.Service
// (Redis in production, MemoryCache for the memory backend).
type CacheDocumentStore struct {
	cache  pkgcache.Service
	prefix string
}

// NewCacheDocumentStore creates a store namespacing keys under prefix.
func NewCacheDocumentStore(c pkgcache.Service, prefix string) *CacheDocumentStore {
	return &CacheDocumentStore{cache: c, prefix: prefix}
}

func (s *CacheDocumentStore) Load(ctx context.Context, key string, dest any) (bool, error) {
	var raw []byte
	if err := s.cache.Get(ctx, s.docKey(key), &raw); err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return false, nil
		}
		return false, fmt.Errorf("load document %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode document %s: %w", key, err)
	}
	return true, nil
}

func (s *CacheDocumentStore) Save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", key, err)
	}
	if err := s.cache.Set(ctx, s.docKey(key), raw, 0); err != nil {
		return fmt.Errorf("save document %s: %w", key, err)
	}
	return nil
}

func (s *CacheDocumentStore) docKey(key string) string {
	if s.prefix == "" {
		return "doc:" + key
	}
	return s.prefix + ":doc:" + key
}
