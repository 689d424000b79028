// Package trust scores recommendation sources from the outcomes of the
// positions their calls originated. The score is a bounded blend of
// hit-rate consistency, average realized performance, and recency, so a
// single outlier trade cannot dominate and a recommender who goes quiet
// slowly loses standing.
package trust

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trustnet/trust-engine/internal/metrics"
	"github.com/trustnet/trust-engine/internal/model"
	"github.com/trustnet/trust-engine/internal/store"
	"github.com/trustnet/trust-engine/pkg/keyed"
)

// Weights configure the trust-score blend. The three weights are
// normalized at scoring time, so any positive mix keeps the score in
// [0,1].
type Weights struct {
	Consistency float64 // weight of successfulRecs / totalRecommendations
	Performance float64 // weight of clamped average realized PnL percent
	Recency     float64 // weight of the decay term

	// PerformanceClampPct bounds the average realized-PnL percentage
	// before normalization, so one 40x trade cannot dominate the blend.
	PerformanceClampPct float64

	// DecayHorizon is the age at which a recommender's recency term has
	// decayed to 1/e. Outcomes older than several horizons contribute
	// almost nothing through recency.
	DecayHorizon time.Duration
}

// DefaultWeights are the tuned starting point; override via config.
func DefaultWeights() Weights {
	return Weights{
		Consistency:         0.5,
		Performance:         0.3,
		Recency:             0.2,
		PerformanceClampPct: 100,
		DecayHorizon:        30 * 24 * time.Hour,
	}
}

// Outcome is the closed-position result that triggers a metrics update.
type Outcome struct {
	EntityID         string
	Platform         string
	PositionID       string
	RecommendationID string
	Realized         decimal.Decimal
	RealizedPercent  float64 // realized PnL over liquidated cost basis
	ClosedAt         time.Time
}

// Scorer maintains RecommenderMetrics. Updates for one entity serialize
// on a per-entity lock because the update is read-modify-write; updates
// for different entities run in parallel.
type Scorer struct {
	store   store.Store
	weights Weights
	locks   *keyed.Mutex[string]
	now     func() time.Time
}

// NewScorer creates a scorer backed by the given store.
func NewScorer(st store.Store, w Weights) *Scorer {
	if w.Consistency+w.Performance+w.Recency <= 0 {
		w = DefaultWeights()
	}
	if w.PerformanceClampPct <= 0 {
		w.PerformanceClampPct = DefaultWeights().PerformanceClampPct
	}
	if w.DecayHorizon <= 0 {
		w.DecayHorizon = DefaultWeights().DecayHorizon
	}
	return &Scorer{
		store:   st,
		weights: w,
		locks:   keyed.NewMutex[string](),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RecordOutcome folds one closed-position outcome into the recommender's
// metrics, recomputes the scores, commits the row, and appends an
// immutable history snapshot. Returns the updated metrics.
func (s *Scorer) RecordOutcome(ctx context.Context, o Outcome) (model.RecommenderMetrics, error) {
	s.locks.Lock(o.EntityID)
	defer s.locks.Unlock(o.EntityID)

	now := s.now()

	m, err := s.store.GetRecommenderMetrics(ctx, o.EntityID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return model.RecommenderMetrics{}, fmt.Errorf("trust: load metrics: %w", err)
		}
		m = &model.RecommenderMetrics{
			EntityID:    o.EntityID,
			Platform:    o.Platform,
			TotalProfit: decimal.Zero,
			CreatedAt:   now,
		}
	}

	m.TotalRecommendations++
	if o.Realized.IsNegative() {
		m.FailedTrades++
	} else {
		m.SuccessfulRecs++
	}
	m.TotalProfit = m.TotalProfit.Add(o.Realized)

	// Running mean of per-position realized-PnL percentages.
	n := float64(m.TotalRecommendations)
	m.AvgTokenPerformance += (o.RealizedPercent - m.AvgTokenPerformance) / n

	m.ConsistencyScore = float64(m.SuccessfulRecs) / n
	m.LastUpdated = now
	m.TrustScore = s.Score(*m, now)

	if err := s.store.UpsertRecommenderMetrics(ctx, m); err != nil {
		return model.RecommenderMetrics{}, fmt.Errorf("trust: commit metrics: %w", err)
	}

	snapshot := &model.RecommenderMetricsHistory{
		ID:        uuid.New().String(),
		EntityID:  o.EntityID,
		Metrics:   *m,
		Timestamp: now,
	}
	if err := s.store.AppendMetricsHistory(ctx, snapshot); err != nil {
		return model.RecommenderMetrics{}, fmt.Errorf("trust: append history: %w", err)
	}

	metrics.TrustUpdates.Inc()
	return *m, nil
}

// Score computes the bounded trust score for metrics m as seen at time
// now. The result is always in [0,1] and is monotonically non-decreasing
// in SuccessfulRecs when everything else is held fixed.
func (s *Scorer) Score(m model.RecommenderMetrics, now time.Time) float64 {
	w := s.weights
	total := w.Consistency + w.Performance + w.Recency

	consistency := clamp01(m.ConsistencyScore)

	// Clamp the average performance, then map [-clamp, +clamp] → [0, 1].
	c := w.PerformanceClampPct
	perf := math.Max(-c, math.Min(c, m.AvgTokenPerformance))
	perfNorm := (perf + c) / (2 * c)

	age := now.Sub(m.LastUpdated)
	if age < 0 {
		age = 0
	}
	recency := math.Exp(-age.Seconds() / w.DecayHorizon.Seconds())

	score := (w.Consistency*consistency + w.Performance*perfNorm + w.Recency*recency) / total
	return clamp01(score)
}

// History returns an entity's metric snapshots, newest first.
func (s *Scorer) History(ctx context.Context, entityID string, limit int) ([]model.RecommenderMetricsHistory, error) {
	return s.store.GetMetricsHistory(ctx, entityID, limit)
}

// Ranking returns all recommender metrics ordered by trust score
// descending.
func (s *Scorer) Ranking(ctx context.Context) ([]model.RecommenderMetrics, error) {
	return s.store.ListRecommenderMetrics(ctx)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

