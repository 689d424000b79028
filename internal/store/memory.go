package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/trustnet/trust-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu           sync.RWMutex
	entities     map[string]model.Entity
	positions    map[string]model.Position
	transactions []model.Transaction
	tokens       map[string]model.TokenPerformance
	metrics      map[string]model.RecommenderMetrics
	history      []model.RecommenderMetricsHistory
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:  make(map[string]model.Entity),
		positions: make(map[string]model.Position),
		tokens:    make(map[string]model.TokenPerformance),
		metrics:   make(map[string]model.RecommenderMetrics),
	}
}

func (s *MemoryStore) GetEntity(_ context.Context, id string) (*model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: entity %s", ErrNotFound, id)
	}
	out := e
	return &out, nil
}

func (s *MemoryStore) UpsertEntity(_ context.Context, e *model.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities[e.ID] = *e
	return nil
}

func (s *MemoryStore) CreatePosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.positions[p.ID]; exists {
		return fmt.Errorf("position %s already exists", p.ID)
	}
	s.positions[p.ID] = *p
	return nil
}

func (s *MemoryStore) GetPosition(_ context.Context, id string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[id]
	if !ok {
		return nil, fmt.Errorf("%w: position %s", ErrNotFound, id)
	}
	out := p
	return &out, nil
}

func (s *MemoryStore) GetPositions(_ context.Context, entityID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for _, p := range s.positions {
		if p.EntityID == entityID {
			result = append(result, p)
		}
	}
	sortPositions(result)
	return result, nil
}

func (s *MemoryStore) GetOpenPositionsWithBalance(_ context.Context) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for _, p := range s.positions {
		if p.Status == model.PositionOpen && p.Balance.IsPositive() {
			result = append(result, p)
		}
	}
	sortPositions(result)
	return result, nil
}

func (s *MemoryStore) UpdatePosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[p.ID]; !ok {
		return fmt.Errorf("%w: position %s", ErrNotFound, p.ID)
	}
	s.positions[p.ID] = *p
	return nil
}

func (s *MemoryStore) InsertTransaction(_ context.Context, tx *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions = append(s.transactions, *tx)
	return nil
}

func (s *MemoryStore) GetTransactions(_ context.Context, positionIDs []string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(positionIDs))
	for _, id := range positionIDs {
		wanted[id] = true
	}

	var result []model.Transaction
	for _, tx := range s.transactions {
		if wanted[tx.PositionID] {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (s *MemoryStore) UpsertTokenPerformance(_ context.Context, perf *model.TokenPerformance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[perf.Chain+":"+perf.Address] = *perf
	return nil
}

func (s *MemoryStore) GetTokenPerformance(_ context.Context, chain, address string) (*model.TokenPerformance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perf, ok := s.tokens[chain+":"+address]
	if !ok {
		return nil, fmt.Errorf("%w: token %s:%s", ErrNotFound, chain, address)
	}
	out := perf
	return &out, nil
}

func (s *MemoryStore) GetRecommenderMetrics(_ context.Context, entityID string) (*model.RecommenderMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.metrics[entityID]
	if !ok {
		return nil, fmt.Errorf("%w: metrics for entity %s", ErrNotFound, entityID)
	}
	out := m
	return &out, nil
}

func (s *MemoryStore) UpsertRecommenderMetrics(_ context.Context, m *model.RecommenderMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics[m.EntityID] = *m
	return nil
}

func (s *MemoryStore) ListRecommenderMetrics(_ context.Context) ([]model.RecommenderMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.RecommenderMetrics, 0, len(s.metrics))
	for _, m := range s.metrics {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TrustScore != result[j].TrustScore {
			return result[i].TrustScore > result[j].TrustScore
		}
		return result[i].EntityID < result[j].EntityID
	})
	return result, nil
}

func (s *MemoryStore) AppendMetricsHistory(_ context.Context, h *model.RecommenderMetricsHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, *h)
	return nil
}

func (s *MemoryStore) GetMetricsHistory(_ context.Context, entityID string, limit int) ([]model.RecommenderMetricsHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.RecommenderMetricsHistory
	for _, h := range s.history {
		if h.EntityID == entityID {
			result = append(result, h)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// sortPositions orders by creation time then id so reads are deterministic.
func sortPositions(positions []model.Position) {
	sort.Slice(positions, func(i, j int) bool {
		if !positions[i].CreatedAt.Equal(positions[j].CreatedAt) {
			return positions[i].CreatedAt.Before(positions[j].CreatedAt)
		}
		return positions[i].ID < positions[j].ID
	})
}
