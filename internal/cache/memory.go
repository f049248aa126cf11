package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/songzhibin97/walletopt/internal/models"
)

// MemoryStore is an in-process LRU bounded by size with a per-entry TTL.
type MemoryStore struct {
	lru *expirable.LRU[string, *models.OptimizationResponse]
}

func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{lru: expirable.NewLRU[string, *models.OptimizationResponse](size, nil, ttl)}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Get(_ context.Context, key string) (*models.OptimizationResponse, bool, error) {
	resp, ok := m.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return resp.Clone(), true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, resp *models.OptimizationResponse) error {
	m.lru.Add(key, resp.Clone())
	return nil
}

func (m *MemoryStore) Len() int {
	return m.lru.Len()
}
