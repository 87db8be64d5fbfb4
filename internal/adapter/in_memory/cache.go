package in_memory

import (
	"context"
	"sync"

	"marketsim/internal/domain"
	"marketsim/internal/port"
)

var _ port.DepthCache = (*Cache)(nil)

// Cache keeps the latest depth snapshot per run in memory.
type Cache struct {
	mu    sync.Mutex
	store map[string]*domain.DepthSnapshot
}

func NewCache() *Cache {
	return &Cache{store: make(map[string]*domain.DepthSnapshot)}
}

func (c *Cache) SetDepth(ctx context.Context, runID string, snap *domain.DepthSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	copySnap := *snap
	c.store[runID] = &copySnap
	return nil
}

func (c *Cache) GetDepth(ctx context.Context, runID string) (*domain.DepthSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.store[runID]
	if !ok {
		return nil, nil
	}
	copySnap := *snap
	return &copySnap, nil
}
