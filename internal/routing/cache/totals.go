package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pipeline_routing_backend/internal/routing/domain"
	"pipeline_routing_backend/internal/routing/valuation"
	"pipeline_routing_backend/platform/logger"
)

// DefaultTotalsTTL bounds how stale a cached total may get without an invalidation.
const DefaultTotalsTTL = 30 * time.Second

const totalsKeyPrefix = "routing:totals:"

// TotalsStore persists computed breakdowns with an expiry.
type TotalsStore interface {
	Get(ctx context.Context, key string) (valuation.Breakdown, bool, error)
	Set(ctx context.Context, key string, b valuation.Breakdown, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
}

// TotalsCache memoizes per-entity totals. Store failures degrade to recomputation.
type TotalsCache struct {
	store TotalsStore
	ttl   time.Duration
	log   *logger.Logger
}

func NewTotalsCache(store TotalsStore, ttl time.Duration, log *logger.Logger) *TotalsCache {
	if ttl <= 0 {
		ttl = DefaultTotalsTTL
	}
	return &TotalsCache{store: store, ttl: ttl, log: log}
}

func totalsKey(entityType domain.EntityType, id uuid.UUID) string {
	return fmt.Sprintf("%s%s:%s", totalsKeyPrefix, entityType, id)
}

// lookupConcurrency caps parallel store round trips per call.
const lookupConcurrency = 16

// Lookup returns the cached breakdowns found for ids. Store failures count as misses.
func (c *TotalsCache) Lookup(ctx context.Context, entityType domain.EntityType, ids []uuid.UUID) map[uuid.UUID]valuation.Breakdown {
	found := make(map[uuid.UUID]valuation.Breakdown, len(ids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			key := totalsKey(entityType, id)
			b, ok, err := c.store.Get(gctx, key)
			if err != nil {
				c.log.Warn("totals cache read failed", slog.String("key", key), slog.String("error", err.Error()))
				return nil
			}
			if ok {
				mu.Lock()
				found[id] = b
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return found
}

// Store caches freshly computed breakdowns. Failures are logged.
func (c *TotalsCache) Store(ctx context.Context, entityType domain.EntityType, values map[uuid.UUID]valuation.Breakdown) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for id, b := range values {
		g.Go(func() error {
			key := totalsKey(entityType, id)
			if err := c.store.Set(gctx, key, b, c.ttl); err != nil {
				c.log.Warn("totals cache write failed", slog.String("key", key), slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Invalidate drops cached totals of the given entities, whatever their type.
// With no ids the whole cache is cleared.
func (c *TotalsCache) Invalidate(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return c.store.Clear(ctx)
	}
	keys := make([]string, 0, len(ids)*3)
	for _, id := range ids {
		keys = append(keys,
			totalsKey(domain.EntityLead, id),
			totalsKey(domain.EntityServiceFile, id),
			totalsKey(domain.EntityTray, id),
		)
	}
	return c.store.Delete(ctx, keys...)
}

// =====================================
// In-process store
// =====================================

type memoryEntry struct {
	value     valuation.Breakdown
	expiresAt time.Time
}

// MemoryTotalsStore keeps totals in process memory.
type MemoryTotalsStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryTotalsStore() *MemoryTotalsStore {
	return &MemoryTotalsStore{entries: make(map[string]memoryEntry), now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (s *MemoryTotalsStore) WithClock(now func() time.Time) *MemoryTotalsStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *MemoryTotalsStore) Get(_ context.Context, key string) (valuation.Breakdown, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return valuation.Breakdown{}, false, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return valuation.Breakdown{}, false, nil
	}
	return e.value, true, nil
}

func (s *MemoryTotalsStore) Set(_ context.Context, key string, b valuation.Breakdown, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{value: b, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryTotalsStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

func (s *MemoryTotalsStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
	return nil
}
