// Package cache holds the routing engine's explicit caches: technician
// display names (kept until invalidated) and computed totals (short TTL).
package cache

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"pipeline_routing_backend/internal/routing/repository"
)

// TechnicianCache maps technician ids to display names. Entries live until
// Invalidate or Refresh; concurrent misses for the same id share one load.
type TechnicianCache struct {
	reader repository.TechnicianReader

	mu     sync.RWMutex
	names  map[uuid.UUID]string
	warmed bool

	group singleflight.Group
}

func NewTechnicianCache(reader repository.TechnicianReader) *TechnicianCache {
	return &TechnicianCache{
		reader: reader,
		names:  make(map[uuid.UUID]string),
	}
}

// Name returns the technician's display name. ok is false for unknown ids.
func (c *TechnicianCache) Name(ctx context.Context, id uuid.UUID) (name string, ok bool, err error) {
	c.mu.RLock()
	name, ok = c.names[id]
	c.mu.RUnlock()
	if ok {
		return name, true, nil
	}

	v, err, _ := c.group.Do(id.String(), func() (interface{}, error) {
		n, err := c.reader.GetTechnicianNameByID(ctx, id)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.names[id] = n
		c.mu.Unlock()
		return n, nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v.(string), true, nil
}

// Warm loads every technician once. Later calls are no-ops until Invalidate().
func (c *TechnicianCache) Warm(ctx context.Context) error {
	c.mu.RLock()
	warmed := c.warmed
	c.mu.RUnlock()
	if warmed {
		return nil
	}
	return c.Refresh(ctx)
}

// Refresh replaces the cached names with a fresh full load.
func (c *TechnicianCache) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("*", func() (interface{}, error) {
		names, err := c.reader.ListTechnicianNames(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.names = names
		c.warmed = true
		c.mu.Unlock()
		return nil, nil
	})
	return err
}

// Invalidate drops the given ids, or everything when none are given.
func (c *TechnicianCache) Invalidate(ids ...uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(ids) == 0 {
		c.names = make(map[uuid.UUID]string)
		c.warmed = false
		return
	}
	for _, id := range ids {
		delete(c.names, id)
	}
}

// Len reports the number of cached names.
func (c *TechnicianCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}
