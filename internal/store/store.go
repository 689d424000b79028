// Package store defines the persistence interface for the trust engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/trustnet/trust-engine/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. The math packages never see
// this interface — they operate on values handed to them.
type Store interface {
	// --- Entities ---

	// GetEntity retrieves a recommendation source by id.
	GetEntity(ctx context.Context, id string) (*model.Entity, error)

	// UpsertEntity creates or replaces an entity record.
	UpsertEntity(ctx context.Context, e *model.Entity) error

	// --- Positions ---

	// CreatePosition persists a new position.
	CreatePosition(ctx context.Context, p *model.Position) error

	// GetPosition retrieves one position by id.
	GetPosition(ctx context.Context, id string) (*model.Position, error)

	// GetPositions returns all positions owned by an entity.
	GetPositions(ctx context.Context, entityID string) ([]model.Position, error)

	// GetOpenPositionsWithBalance returns every OPEN position holding a
	// positive balance, across all entities.
	GetOpenPositionsWithBalance(ctx context.Context) ([]model.Position, error)

	// UpdatePosition commits a new balance/status for an existing position.
	UpdatePosition(ctx context.Context, p *model.Position) error

	// --- Transactions (append-only) ---

	// InsertTransaction appends an immutable transaction record.
	InsertTransaction(ctx context.Context, tx *model.Transaction) error

	// GetTransactions returns all transactions for the given positions.
	GetTransactions(ctx context.Context, positionIDs []string) ([]model.Transaction, error)

	// --- Token performance (last-write-wins per chain+address) ---

	// UpsertTokenPerformance stores the latest snapshot for an asset.
	UpsertTokenPerformance(ctx context.Context, perf *model.TokenPerformance) error

	// GetTokenPerformance returns the stored snapshot for an asset.
	GetTokenPerformance(ctx context.Context, chain, address string) (*model.TokenPerformance, error)

	// --- Recommender metrics ---

	// GetRecommenderMetrics returns the aggregate metrics for one entity.
	GetRecommenderMetrics(ctx context.Context, entityID string) (*model.RecommenderMetrics, error)

	// UpsertRecommenderMetrics creates or replaces an entity's metrics.
	UpsertRecommenderMetrics(ctx context.Context, m *model.RecommenderMetrics) error

	// ListRecommenderMetrics returns all recommender metrics, ordered by
	// trust score descending.
	ListRecommenderMetrics(ctx context.Context) ([]model.RecommenderMetrics, error)

	// AppendMetricsHistory appends an immutable metrics snapshot.
	AppendMetricsHistory(ctx context.Context, h *model.RecommenderMetricsHistory) error

	// GetMetricsHistory returns an entity's snapshots, newest first.
	// limit <= 0 means no limit.
	GetMetricsHistory(ctx context.Context, entityID string, limit int) ([]model.RecommenderMetricsHistory, error)
}
