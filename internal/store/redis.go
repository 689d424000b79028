package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trustnet/trust-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) UpsertEntity(ctx context.Context, e *model.Entity) error {
	return s.primary.UpsertEntity(ctx, e)
}

func (s *CachedStore) CreatePosition(ctx context.Context, p *model.Position) error {
	if err := s.primary.CreatePosition(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionsKey(p.EntityID))
	return nil
}

func (s *CachedStore) UpdatePosition(ctx context.Context, p *model.Position) error {
	if err := s.primary.UpdatePosition(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionsKey(p.EntityID))
	return nil
}

func (s *CachedStore) InsertTransaction(ctx context.Context, tx *model.Transaction) error {
	return s.primary.InsertTransaction(ctx, tx)
}

func (s *CachedStore) UpsertTokenPerformance(ctx context.Context, perf *model.TokenPerformance) error {
	if err := s.primary.UpsertTokenPerformance(ctx, perf); err != nil {
		return err
	}
	s.cacheToken(ctx, perf)
	return nil
}

func (s *CachedStore) UpsertRecommenderMetrics(ctx context.Context, m *model.RecommenderMetrics) error {
	if err := s.primary.UpsertRecommenderMetrics(ctx, m); err != nil {
		return err
	}
	// Invalidate; next read re-populates with the committed row.
	s.rdb.Del(ctx, metricsKey(m.EntityID))
	return nil
}

func (s *CachedStore) AppendMetricsHistory(ctx context.Context, h *model.RecommenderMetricsHistory) error {
	return s.primary.AppendMetricsHistory(ctx, h)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetPositions(ctx context.Context, entityID string) ([]model.Position, error) {
	data, err := s.rdb.Get(ctx, positionsKey(entityID)).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.GetPositions(ctx, entityID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, positionsKey(entityID), data, s.ttl)
	}
	return positions, nil
}

func (s *CachedStore) GetTokenPerformance(ctx context.Context, chain, address string) (*model.TokenPerformance, error) {
	data, err := s.rdb.Get(ctx, tokenKey(chain, address)).Bytes()
	if err == nil {
		var perf model.TokenPerformance
		if json.Unmarshal(data, &perf) == nil {
			return &perf, nil
		}
	}

	perf, err := s.primary.GetTokenPerformance(ctx, chain, address)
	if err != nil {
		return nil, err
	}

	s.cacheToken(ctx, perf)
	return perf, nil
}

func (s *CachedStore) GetRecommenderMetrics(ctx context.Context, entityID string) (*model.RecommenderMetrics, error) {
	data, err := s.rdb.Get(ctx, metricsKey(entityID)).Bytes()
	if err == nil {
		var m model.RecommenderMetrics
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	m, err := s.primary.GetRecommenderMetrics(ctx, entityID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, metricsKey(entityID), data, s.ttl)
	}
	return m, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	return s.primary.GetEntity(ctx, id)
}

func (s *CachedStore) GetPosition(ctx context.Context, id string) (*model.Position, error) {
	return s.primary.GetPosition(ctx, id)
}

func (s *CachedStore) GetOpenPositionsWithBalance(ctx context.Context) ([]model.Position, error) {
	return s.primary.GetOpenPositionsWithBalance(ctx)
}

func (s *CachedStore) GetTransactions(ctx context.Context, positionIDs []string) ([]model.Transaction, error) {
	return s.primary.GetTransactions(ctx, positionIDs)
}

func (s *CachedStore) ListRecommenderMetrics(ctx context.Context) ([]model.RecommenderMetrics, error) {
	return s.primary.ListRecommenderMetrics(ctx)
}

func (s *CachedStore) GetMetricsHistory(ctx context.Context, entityID string, limit int) ([]model.RecommenderMetricsHistory, error) {
	return s.primary.GetMetricsHistory(ctx, entityID, limit)
}

// --- Cache helpers ---

func (s *CachedStore) cacheToken(ctx context.Context, perf *model.TokenPerformance) {
	if data, err := json.Marshal(perf); err == nil {
		s.rdb.Set(ctx, tokenKey(perf.Chain, perf.Address), data, s.ttl)
	}
}

func positionsKey(entityID string) string   { return fmt.Sprintf("positions:%s", entityID) }
func metricsKey(entityID string) string     { return fmt.Sprintf("metrics:%s", entityID) }
func tokenKey(chain, address string) string { return fmt.Sprintf("token:%s:%s", chain, address) }
