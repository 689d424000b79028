// Package portfolio provides the HTTP handlers and business logic for
// applying transactions to positions, building portfolio reports, and
// querying recommender trust scores.
//
// All monetary values use shopspring/decimal — never float64 for money.
package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trustnet/trust-engine/internal/ledger"
	"github.com/trustnet/trust-engine/internal/metrics"
	"github.com/trustnet/trust-engine/internal/model"
	"github.com/trustnet/trust-engine/internal/pnl"
	"github.com/trustnet/trust-engine/internal/reconcile"
	"github.com/trustnet/trust-engine/internal/report"
	"github.com/trustnet/trust-engine/internal/store"
	"github.com/trustnet/trust-engine/internal/token"
	"github.com/trustnet/trust-engine/internal/trust"
	"github.com/trustnet/trust-engine/pkg/keyed"
)

var (
	// ErrNoPositions is returned when the entity has no positions matching
	// the requested simulation flag. Distinct from an empty report: the
	// caller renders a fixed "no open positions" message.
	ErrNoPositions = errors.New("portfolio: no positions found")

	// ErrEntityNotFound is returned when the entity record does not exist.
	ErrEntityNotFound = errors.New("portfolio: entity not found")
)

// Service wires the ledger, reconciler, aggregator, trust scorer, and
// report composer behind the caller-facing API. Read-modify-write cycles
// on one entity's positions serialize on a per-entity lock; work on
// different entities runs in parallel.
type Service struct {
	store      store.Store
	aggregator *token.Aggregator
	scorer     *trust.Scorer
	locks      *keyed.Mutex[string]
	hub        *EventHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a portfolio service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, agg *token.Aggregator, scorer *trust.Scorer, hub *EventHub) *Service {
	return &Service{
		store:      st,
		aggregator: agg,
		scorer:     scorer,
		locks:      keyed.NewMutex[string](),
		hub:        hub,
	}
}

// BuildPortfolioReport reconciles the entity's positions against their
// transactions, collects token performance for every distinct asset, and
// composes the full report. Mutates nothing: recomputation from the same
// inputs always yields the same report.
func (s *Service) BuildPortfolioReport(ctx context.Context, entityID string, includeSimulation bool) (report.Report, error) {
	if _, err := s.store.GetEntity(ctx, entityID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return report.Report{}, fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
		}
		return report.Report{}, fmt.Errorf("portfolio: load entity: %w", err)
	}

	positions, err := s.store.GetPositions(ctx, entityID)
	if err != nil {
		return report.Report{}, fmt.Errorf("portfolio: load positions: %w", err)
	}

	filter := reconcile.Filter{EntityID: entityID, IncludeSimulation: includeSimulation}
	candidates := make([]model.Position, 0, len(positions))
	ids := make([]string, 0, len(positions))
	for _, p := range positions {
		if p.IsSimulation != includeSimulation {
			continue
		}
		candidates = append(candidates, p)
		ids = append(ids, p.ID)
	}
	if len(candidates) == 0 {
		metrics.ReportsBuilt.WithLabelValues("no_positions").Inc()
		return report.Report{}, ErrNoPositions
	}

	transactions, err := s.store.GetTransactions(ctx, ids)
	if err != nil {
		return report.Report{}, fmt.Errorf("portfolio: load transactions: %w", err)
	}

	groups := reconcile.Reconcile(candidates, transactions, filter)

	keys := token.Dedupe(candidates)
	tokens := s.aggregator.Collect(ctx, keys)

	// Persist refreshed snapshots so the trust pipeline and later reads
	// see the same data; last-write-wins per asset.
	for i := range tokens {
		if err := s.store.UpsertTokenPerformance(ctx, &tokens[i]); err != nil {
			slog.Warn("portfolio: token snapshot commit failed",
				"chain", tokens[i].Chain, "address", tokens[i].Address, "err", err)
		}
	}

	rep := report.Compose(tokens, groups)
	for _, line := range rep.PositionReports {
		if line.IntegrityError != "" {
			metrics.IntegrityErrors.WithLabelValues("reconcile").Inc()
			slog.Error("portfolio: position failed reconciliation",
				"position", line.Position.ID, "err", line.IntegrityError)
		}
	}

	metrics.ReportsBuilt.WithLabelValues("ok").Inc()
	return rep, nil
}

// ApplyTransaction records one transaction against its position: ledger
// apply on an in-memory copy, then commit, then — when the position
// closes — the trust scorer update and event broadcast. Nothing is
// persisted when the ledger rejects the transaction.
func (s *Service) ApplyTransaction(ctx context.Context, tx model.Transaction) (model.Position, error) {
	pos, err := s.store.GetPosition(ctx, tx.PositionID)
	if err != nil {
		return model.Position{}, fmt.Errorf("portfolio: load position: %w", err)
	}

	s.locks.Lock(pos.EntityID)
	defer s.locks.Unlock(pos.EntityID)

	// Re-read under the lock; another writer may have advanced the position.
	pos, err = s.store.GetPosition(ctx, tx.PositionID)
	if err != nil {
		return model.Position{}, fmt.Errorf("portfolio: load position: %w", err)
	}

	updated, err := ledger.Apply(*pos, tx)
	if err != nil {
		kind := "invalid"
		switch {
		case errors.Is(err, ledger.ErrBalanceUnderflow):
			kind = "balance_underflow"
		case errors.Is(err, ledger.ErrPositionClosed):
			kind = "position_closed"
		case errors.Is(err, ledger.ErrSimulationMismatch):
			kind = "simulation_mismatch"
		}
		metrics.IntegrityErrors.WithLabelValues(kind).Inc()
		return model.Position{}, err
	}

	if err := s.store.InsertTransaction(ctx, &tx); err != nil {
		return model.Position{}, fmt.Errorf("portfolio: record transaction: %w", err)
	}
	if err := s.store.UpdatePosition(ctx, &updated); err != nil {
		return model.Position{}, fmt.Errorf("portfolio: commit position: %w", err)
	}

	metrics.TransactionsApplied.WithLabelValues(string(tx.Type)).Inc()
	slog.Info("transaction applied",
		"tx", tx.ID,
		"position", updated.ID,
		"type", string(tx.Type),
		"amount", tx.Amount.String(),
		"balance", updated.Balance.String(),
		"status", string(updated.Status),
	)

	if updated.Status == model.PositionClosed && pos.Status == model.PositionOpen {
		s.onPositionClosed(ctx, updated)
	}

	return updated, nil
}

// onPositionClosed recomputes the recommender's metrics from the closed
// position's realized outcome and broadcasts the close.
func (s *Service) onPositionClosed(ctx context.Context, pos model.Position) {
	txs, err := s.store.GetTransactions(ctx, []string{pos.ID})
	if err != nil {
		slog.Error("portfolio: load transactions for closed position",
			"position", pos.ID, "err", err)
		return
	}

	groups := reconcile.Reconcile([]model.Position{pos}, txs, reconcile.Filter{
		EntityID:          pos.EntityID,
		IncludeSimulation: pos.IsSimulation,
	})
	if len(groups) == 0 {
		return
	}

	result, err := pnl.Compute(groups[0].Transactions, decimal.NullDecimal{})
	if err != nil {
		metrics.IntegrityErrors.WithLabelValues("close_pnl").Inc()
		slog.Error("portfolio: pnl on closed position", "position", pos.ID, "err", err)
		return
	}

	platform := ""
	if entity, err := s.store.GetEntity(ctx, pos.EntityID); err == nil {
		platform = entity.Platform
	}

	outcome := trust.Outcome{
		EntityID:         pos.EntityID,
		Platform:         platform,
		PositionID:       pos.ID,
		RecommendationID: pos.RecommendationID,
		Realized:         result.Realized,
		RealizedPercent:  result.RealizedPercent(pnl.CostBasis(groups[0].Transactions)),
		ClosedAt:         ledger.CloseTime(pos),
	}

	updatedMetrics, err := s.scorer.RecordOutcome(ctx, outcome)
	if err != nil {
		slog.Error("portfolio: trust update failed", "entity", pos.EntityID, "err", err)
		return
	}

	slog.Info("position closed",
		"position", pos.ID,
		"entity", pos.EntityID,
		"realized", result.Realized.String(),
		"trust_score", updatedMetrics.TrustScore,
	)

	if s.hub != nil {
		s.hub.Broadcast(Event{
			Type:       "position_closed",
			EntityID:   pos.EntityID,
			PositionID: pos.ID,
			Chain:      pos.Chain,
			Token:      pos.TokenAddress,
			Realized:   result.Realized.String(),
			TrustScore: updatedMetrics.TrustScore,
		})
	}
}

// OpenPosition creates a new OPEN position from its initial buy data.
func (s *Service) OpenPosition(ctx context.Context, pos model.Position) (model.Position, error) {
	if pos.ID == "" {
		pos.ID = uuid.New().String()
	}
	if pos.CreatedAt.IsZero() {
		pos.CreatedAt = time.Now().UTC()
	}
	pos.Status = model.PositionOpen
	pos.ClosedAt = nil
	if pos.Balance.IsNegative() {
		return model.Position{}, fmt.Errorf("portfolio: negative opening balance %s", pos.Balance)
	}

	s.locks.Lock(pos.EntityID)
	defer s.locks.Unlock(pos.EntityID)

	if err := s.store.CreatePosition(ctx, &pos); err != nil {
		return model.Position{}, fmt.Errorf("portfolio: create position: %w", err)
	}
	return pos, nil
}

// --- HTTP Handlers ---

// GetPortfolio handles GET /api/v1/portfolio/{entityID}?simulation=true|false
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")
	simulation, _ := strconv.ParseBool(r.URL.Query().Get("simulation"))

	rep, err := s.BuildPortfolioReport(r.Context(), entityID, simulation)
	switch {
	case errors.Is(err, ErrEntityNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, ErrNoPositions):
		writeError(w, "no open positions found", http.StatusNotFound)
		return
	case err != nil:
		writeError(w, "failed to build report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rep)
}

// ListPositions handles GET /api/v1/positions/{entityID}
func (s *Service) ListPositions(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")

	positions, err := s.store.GetPositions(r.Context(), entityID)
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(positions)
}

// TransactionRequest is the JSON body for POST /api/v1/transactions.
type TransactionRequest struct {
	PositionID      string          `json:"position_id"`
	Type            string          `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	Price           decimal.Decimal `json:"price"`
	IsSimulation    bool            `json:"is_simulation"`
	Timestamp       time.Time       `json:"timestamp"`
	TransactionHash string          `json:"transaction_hash"`
}

// PostTransaction handles POST /api/v1/transactions
func (s *Service) PostTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.PositionID == "" {
		writeError(w, "position_id is required", http.StatusBadRequest)
		return
	}
	txType := model.TransactionType(req.Type)
	if !txType.Valid() {
		writeError(w, "type must be BUY, SELL, TRANSFER_IN or TRANSFER_OUT", http.StatusBadRequest)
		return
	}
	if req.Amount.IsNegative() {
		writeError(w, "amount must be non-negative", http.StatusBadRequest)
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	tx := model.Transaction{
		ID:              uuid.New().String(),
		PositionID:      req.PositionID,
		Type:            txType,
		Amount:          req.Amount,
		Price:           req.Price,
		IsSimulation:    req.IsSimulation,
		Timestamp:       req.Timestamp,
		TransactionHash: req.TransactionHash,
	}

	updated, err := s.ApplyTransaction(r.Context(), tx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, "position not found", http.StatusNotFound)
		return
	case errors.Is(err, ledger.ErrBalanceUnderflow),
		errors.Is(err, ledger.ErrPositionClosed),
		errors.Is(err, ledger.ErrSimulationMismatch):
		writeError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		writeError(w, "failed to apply transaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

// GetTrust handles GET /api/v1/trust/{entityID}
func (s *Service) GetTrust(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")

	m, err := s.store.GetRecommenderMetrics(r.Context(), entityID)
	if err != nil {
		writeError(w, "no metrics for entity", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m)
}

// GetTrustHistory handles GET /api/v1/trust/{entityID}/history?limit=N
func (s *Service) GetTrustHistory(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	history, err := s.scorer.History(r.Context(), entityID, limit)
	if err != nil {
		writeError(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []model.RecommenderMetricsHistory{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(history)
}

// GetTrustRanking handles GET /api/v1/trust
// Returns all recommenders ordered by trust score descending.
func (s *Service) GetTrustRanking(w http.ResponseWriter, r *http.Request) {
	ranking, err := s.scorer.Ranking(r.Context())
	if err != nil {
		writeError(w, "failed to load ranking", http.StatusInternalServerError)
		return
	}
	if ranking == nil {
		ranking = []model.RecommenderMetrics{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ranking)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
