package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/trustnet/trust-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision
// and scanned back through their text form.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

// --- Entities ---

func (s *PostgresStore) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	var e model.Entity
	err := s.pool.QueryRow(ctx,
		`SELECT id, platform, username FROM entities WHERE id = $1`, id).
		Scan(&e.ID, &e.Platform, &e.Username)
	if err != nil {
		return nil, notFound(err, "entity "+id)
	}
	return &e, nil
}

func (s *PostgresStore) UpsertEntity(ctx context.Context, e *model.Entity) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO entities (id, platform, username)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET platform = $2, username = $3`,
		e.ID, e.Platform, e.Username)
	return err
}

// --- Positions ---

const positionColumns = `id, entity_id, chain, token_address, wallet_address,
	balance::TEXT, status, is_simulation,
	initial_price::TEXT, current_price::TEXT,
	recommendation_id, created_at, closed_at`

func (s *PostgresStore) CreatePosition(ctx context.Context, p *model.Position) error {
	var currentPrice *string
	if p.CurrentPrice.Valid {
		v := p.CurrentPrice.Decimal.String()
		currentPrice = &v
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (id, entity_id, chain, token_address, wallet_address,
		        balance, status, is_simulation, initial_price, current_price,
		        recommendation_id, created_at, closed_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8, $9::NUMERIC, $10::NUMERIC, $11, $12, $13)`,
		p.ID, p.EntityID, p.Chain, p.TokenAddress, p.WalletAddress,
		p.Balance.String(), string(p.Status), p.IsSimulation,
		p.InitialPrice.String(), currentPrice,
		p.RecommendationID, p.CreatedAt, p.ClosedAt)
	return err
}

func (s *PostgresStore) GetPosition(ctx context.Context, id string) (*model.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE id = $1`, id)
	p, err := scanPosition(row)
	if err != nil {
		return nil, notFound(err, "position "+id)
	}
	return p, nil
}

func (s *PostgresStore) GetPositions(ctx context.Context, entityID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+`
		 FROM positions WHERE entity_id = $1 ORDER BY created_at, id`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPositions(rows)
}

func (s *PostgresStore) GetOpenPositionsWithBalance(ctx context.Context) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+`
		 FROM positions WHERE status = 'OPEN' AND balance > 0 ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPositions(rows)
}

func (s *PostgresStore) UpdatePosition(ctx context.Context, p *model.Position) error {
	var currentPrice *string
	if p.CurrentPrice.Valid {
		v := p.CurrentPrice.Decimal.String()
		currentPrice = &v
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE positions
		 SET balance = $2::NUMERIC, status = $3, current_price = $4::NUMERIC, closed_at = $5
		 WHERE id = $1`,
		p.ID, p.Balance.String(), string(p.Status), currentPrice, p.ClosedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: position %s", ErrNotFound, p.ID)
	}
	return nil
}

// --- Transactions ---

func (s *PostgresStore) InsertTransaction(ctx context.Context, tx *model.Transaction) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transactions (id, position_id, type, amount, price,
		        is_simulation, timestamp, transaction_hash)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7, $8)`,
		tx.ID, tx.PositionID, string(tx.Type),
		tx.Amount.String(), tx.Price.String(),
		tx.IsSimulation, tx.Timestamp, tx.TransactionHash)
	return err
}

func (s *PostgresStore) GetTransactions(ctx context.Context, positionIDs []string) ([]model.Transaction, error) {
	if len(positionIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, position_id, type, amount::TEXT, price::TEXT,
		        is_simulation, timestamp, COALESCE(transaction_hash, '')
		 FROM transactions WHERE position_id = ANY($1)
		 ORDER BY timestamp, id`, positionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var tx model.Transaction
		var typ, amount, price string
		if err := rows.Scan(&tx.ID, &tx.PositionID, &typ, &amount, &price,
			&tx.IsSimulation, &tx.Timestamp, &tx.TransactionHash); err != nil {
			return nil, err
		}
		tx.Type = model.TransactionType(typ)
		tx.Amount, _ = decimal.NewFromString(amount)
		tx.Price, _ = decimal.NewFromString(price)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// --- Token performance ---

func (s *PostgresStore) UpsertTokenPerformance(ctx context.Context, perf *model.TokenPerformance) error {
	var price *string
	if perf.Price.Valid {
		v := perf.Price.Decimal.String()
		price = &v
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO token_performance (chain, address, name, symbol, decimals,
		        price, price_24h_change, volume, volume_24h_change, liquidity,
		        holders, holders_24h_change, rug_pull, is_scam, sustained_growth,
		        rapid_dump, suspicious_volume, validation_trust, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8, $9, $10, $11, $12,
		         $13, $14, $15, $16, $17, $18, $19)
		 ON CONFLICT (chain, address) DO UPDATE SET
		        name = $3, symbol = $4, decimals = $5,
		        price = $6::NUMERIC, price_24h_change = $7,
		        volume = $8, volume_24h_change = $9, liquidity = $10,
		        holders = $11, holders_24h_change = $12,
		        rug_pull = $13, is_scam = $14, sustained_growth = $15,
		        rapid_dump = $16, suspicious_volume = $17,
		        validation_trust = $18, updated_at = $19`,
		perf.Chain, perf.Address, perf.Name, perf.Symbol, perf.Decimals,
		price, perf.Price24hChange, perf.Volume, perf.Volume24hChange,
		perf.Liquidity, perf.Holders, perf.Holders24hChange,
		perf.RugPull, perf.IsScam, perf.SustainedGrowth,
		perf.RapidDump, perf.SuspiciousVolume,
		perf.ValidationTrust, perf.UpdatedAt)
	return err
}

func (s *PostgresStore) GetTokenPerformance(ctx context.Context, chain, address string) (*model.TokenPerformance, error) {
	var perf model.TokenPerformance
	var price *string

	err := s.pool.QueryRow(ctx,
		`SELECT chain, address, name, symbol, decimals,
		        price::TEXT, price_24h_change, volume, volume_24h_change,
		        liquidity, holders, holders_24h_change, rug_pull, is_scam,
		        sustained_growth, rapid_dump, suspicious_volume,
		        validation_trust, updated_at
		 FROM token_performance WHERE chain = $1 AND address = $2`, chain, address).
		Scan(&perf.Chain, &perf.Address, &perf.Name, &perf.Symbol, &perf.Decimals,
			&price, &perf.Price24hChange, &perf.Volume, &perf.Volume24hChange,
			&perf.Liquidity, &perf.Holders, &perf.Holders24hChange,
			&perf.RugPull, &perf.IsScam, &perf.SustainedGrowth,
			&perf.RapidDump, &perf.SuspiciousVolume,
			&perf.ValidationTrust, &perf.UpdatedAt)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("token %s:%s", chain, address))
	}

	if price != nil {
		d, _ := decimal.NewFromString(*price)
		perf.Price = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	return &perf, nil
}

// --- Recommender metrics ---

const metricsColumns = `entity_id, platform, total_recommendations,
	successful_recs, failed_trades, total_profit::TEXT,
	avg_token_performance, consistency_score, trust_score,
	created_at, last_updated`

func (s *PostgresStore) GetRecommenderMetrics(ctx context.Context, entityID string) (*model.RecommenderMetrics, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+metricsColumns+` FROM recommender_metrics WHERE entity_id = $1`, entityID)
	m, err := scanMetrics(row)
	if err != nil {
		return nil, notFound(err, "metrics for entity "+entityID)
	}
	return m, nil
}

func (s *PostgresStore) UpsertRecommenderMetrics(ctx context.Context, m *model.RecommenderMetrics) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO recommender_metrics (entity_id, platform, total_recommendations,
		        successful_recs, failed_trades, total_profit,
		        avg_token_performance, consistency_score, trust_score,
		        created_at, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8, $9, $10, $11)
		 ON CONFLICT (entity_id) DO UPDATE SET
		        platform = $2, total_recommendations = $3,
		        successful_recs = $4, failed_trades = $5,
		        total_profit = $6::NUMERIC, avg_token_performance = $7,
		        consistency_score = $8, trust_score = $9, last_updated = $11`,
		m.EntityID, m.Platform, m.TotalRecommendations,
		m.SuccessfulRecs, m.FailedTrades, m.TotalProfit.String(),
		m.AvgTokenPerformance, m.ConsistencyScore, m.TrustScore,
		m.CreatedAt, m.LastUpdated)
	return err
}

func (s *PostgresStore) ListRecommenderMetrics(ctx context.Context) ([]model.RecommenderMetrics, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+metricsColumns+`
		 FROM recommender_metrics ORDER BY trust_score DESC, entity_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.RecommenderMetrics
	for rows.Next() {
		m, err := scanMetrics(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}
	return result, rows.Err()
}

func (s *PostgresStore) AppendMetricsHistory(ctx context.Context, h *model.RecommenderMetricsHistory) error {
	m := h.Metrics
	_, err := s.pool.Exec(ctx,
		`INSERT INTO recommender_metrics_history (id, entity_id, platform,
		        total_recommendations, successful_recs, failed_trades,
		        total_profit, avg_token_performance, consistency_score,
		        trust_score, snapshot_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8, $9, $10, $11)`,
		h.ID, h.EntityID, m.Platform,
		m.TotalRecommendations, m.SuccessfulRecs, m.FailedTrades,
		m.TotalProfit.String(), m.AvgTokenPerformance, m.ConsistencyScore,
		m.TrustScore, h.Timestamp)
	return err
}

func (s *PostgresStore) GetMetricsHistory(ctx context.Context, entityID string, limit int) ([]model.RecommenderMetricsHistory, error) {
	query := `SELECT id, entity_id, platform, total_recommendations,
	        successful_recs, failed_trades, total_profit::TEXT,
	        avg_token_performance, consistency_score, trust_score, snapshot_at
	 FROM recommender_metrics_history WHERE entity_id = $1
	 ORDER BY snapshot_at DESC, id`
	args := []any{entityID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.RecommenderMetricsHistory
	for rows.Next() {
		var h model.RecommenderMetricsHistory
		var profit string
		if err := rows.Scan(&h.ID, &h.EntityID, &h.Metrics.Platform,
			&h.Metrics.TotalRecommendations, &h.Metrics.SuccessfulRecs,
			&h.Metrics.FailedTrades, &profit,
			&h.Metrics.AvgTokenPerformance, &h.Metrics.ConsistencyScore,
			&h.Metrics.TrustScore, &h.Timestamp); err != nil {
			return nil, err
		}
		h.Metrics.EntityID = h.EntityID
		h.Metrics.TotalProfit, _ = decimal.NewFromString(profit)
		h.Metrics.LastUpdated = h.Timestamp
		result = append(result, h)
	}
	return result, rows.Err()
}

// --- Scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanPosition(row scannable) (*model.Position, error) {
	var p model.Position
	var balance, initialPrice, status string
	var currentPrice *string

	if err := row.Scan(&p.ID, &p.EntityID, &p.Chain, &p.TokenAddress, &p.WalletAddress,
		&balance, &status, &p.IsSimulation,
		&initialPrice, &currentPrice,
		&p.RecommendationID, &p.CreatedAt, &p.ClosedAt); err != nil {
		return nil, err
	}

	p.Status = model.PositionStatus(status)
	p.Balance, _ = decimal.NewFromString(balance)
	p.InitialPrice, _ = decimal.NewFromString(initialPrice)
	if currentPrice != nil {
		d, _ := decimal.NewFromString(*currentPrice)
		p.CurrentPrice = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	return &p, nil
}

func scanPositions(rows pgx.Rows) ([]model.Position, error) {
	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

func scanMetrics(row scannable) (*model.RecommenderMetrics, error) {
	var m model.RecommenderMetrics
	var profit string

	if err := row.Scan(&m.EntityID, &m.Platform, &m.TotalRecommendations,
		&m.SuccessfulRecs, &m.FailedTrades, &profit,
		&m.AvgTokenPerformance, &m.ConsistencyScore, &m.TrustScore,
		&m.CreatedAt, &m.LastUpdated); err != nil {
		return nil, err
	}
	m.TotalProfit, _ = decimal.NewFromString(profit)
	return &m, nil
}
