package portfolio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/trustnet/trust-engine/internal/model"
	"github.com/trustnet/trust-engine/internal/pricefeed"
	"github.com/trustnet/trust-engine/internal/report"
	"github.com/trustnet/trust-engine/internal/store"
	"github.com/trustnet/trust-engine/internal/token"
	"github.com/trustnet/trust-engine/internal/trust"
)

const wsol = "So11111111111111111111111111111111111111112"

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type testEnv struct {
	store   *store.MemoryStore
	feed    *pricefeed.StaticFeed
	service *Service
	router  *chi.Mux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := store.NewMemoryStore()
	feed := pricefeed.NewStaticFeed()

	agg, err := token.NewAggregator(feed, token.Options{CacheTTL: time.Millisecond})
	if err != nil {
		t.Fatalf("aggregator: %v", err)
	}
	t.Cleanup(agg.Close)

	scorer := trust.NewScorer(st, trust.DefaultWeights())
	svc := NewService(st, agg, scorer, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/portfolio/{entityID}", svc.GetPortfolio)
		r.Get("/positions/{entityID}", svc.ListPositions)
		r.Post("/transactions", svc.PostTransaction)
		r.Get("/trust", svc.GetTrustRanking)
		r.Get("/trust/{entityID}", svc.GetTrust)
		r.Get("/trust/{entityID}/history", svc.GetTrustHistory)
	})

	return &testEnv{store: st, feed: feed, service: svc, router: r}
}

func (e *testEnv) seedEntity(t *testing.T, id string) {
	t.Helper()
	err := e.store.UpsertEntity(context.Background(), &model.Entity{
		ID:       id,
		Platform: "discord",
		Username: id,
	})
	if err != nil {
		t.Fatalf("seed entity: %v", err)
	}
}

func (e *testEnv) seedPosition(t *testing.T, entityID string) model.Position {
	t.Helper()
	pos, err := e.service.OpenPosition(context.Background(), model.Position{
		EntityID:     entityID,
		Chain:        "solana",
		TokenAddress: wsol,
		Balance:      decimal.Zero,
		InitialPrice: d(1.00),
		CreatedAt:    t0,
	})
	if err != nil {
		t.Fatalf("seed position: %v", err)
	}
	return pos
}

func (e *testEnv) priceAt(price float64) {
	e.feed.Set(model.TokenPerformance{
		Chain:   "solana",
		Address: wsol,
		Symbol:  "SOL",
		Price:   decimal.NullDecimal{Decimal: d(price), Valid: true},
	})
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) postTx(t *testing.T, positionID, typ string, amount, price float64, at time.Time) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, http.MethodPost, "/api/v1/transactions", TransactionRequest{
		PositionID: positionID,
		Type:       typ,
		Amount:     d(amount),
		Price:      d(price),
		Timestamp:  at,
	})
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestGetPortfolio_UnknownEntity(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/portfolio/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body)
	}
}

func TestGetPortfolio_NoPositions(t *testing.T) {
	env := newTestEnv(t)
	env.seedEntity(t, "alice")

	rec := env.do(t, http.MethodGet, "/api/v1/portfolio/alice", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body)
	}
	body := decodeAs[map[string]string](t, rec)
	if body["error"] != "no open positions found" {
		t.Errorf("expected fixed no-positions message, got %q", body["error"])
	}
}

func TestPostTransaction_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/transactions", TransactionRequest{
		PositionID: "p1", Type: "SHORT", Amount: d(1),
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown type: expected 400, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/transactions", TransactionRequest{
		Type: "BUY", Amount: d(1),
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing position_id: expected 400, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/transactions", TransactionRequest{
		PositionID: "ghost", Type: "BUY", Amount: d(1), Price: d(1),
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown position: expected 404, got %d", rec.Code)
	}
}

func TestPostTransaction_UnderflowConflict(t *testing.T) {
	env := newTestEnv(t)
	env.seedEntity(t, "alice")
	pos := env.seedPosition(t, "alice")

	rec := env.postTx(t, pos.ID, "BUY", 300, 1.00, t0)
	if rec.Code != http.StatusOK {
		t.Fatalf("buy: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rec = env.postTx(t, pos.ID, "SELL", 500, 1.00, t0.Add(time.Minute))
	if rec.Code != http.StatusConflict {
		t.Fatalf("oversell: expected 409, got %d: %s", rec.Code, rec.Body)
	}

	// Balance untouched by the rejected sell.
	got, err := env.store.GetPosition(context.Background(), pos.ID)
	if err != nil {
		t.Fatalf("reload position: %v", err)
	}
	if !got.Balance.Equal(d(300)) {
		t.Errorf("expected balance 300 after rejected sell, got %s", got.Balance)
	}
}

func TestPortfolioFlow_BuySellReport(t *testing.T) {
	env := newTestEnv(t)
	env.seedEntity(t, "alice")
	pos := env.seedPosition(t, "alice")
	env.priceAt(2.00)

	if rec := env.postTx(t, pos.ID, "BUY", 1000, 1.00, t0); rec.Code != http.StatusOK {
		t.Fatalf("buy: %d: %s", rec.Code, rec.Body)
	}
	if rec := env.postTx(t, pos.ID, "SELL", 400, 1.50, t0.Add(time.Minute)); rec.Code != http.StatusOK {
		t.Fatalf("sell: %d: %s", rec.Code, rec.Body)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/portfolio/alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("portfolio: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rep := decodeAs[report.Report](t, rec)
	if len(rep.PositionReports) != 1 {
		t.Fatalf("expected 1 position line, got %d", len(rep.PositionReports))
	}
	if !rep.TotalRealizedPnL.Equal(d(200)) {
		t.Errorf("realized: expected 200, got %s", rep.TotalRealizedPnL)
	}
	if !rep.TotalUnrealizedPnL.Equal(d(600)) {
		t.Errorf("unrealized: expected 600, got %s", rep.TotalUnrealizedPnL)
	}
	if !rep.TotalCurrentValue.Equal(d(1200)) {
		t.Errorf("current value: expected 1200, got %s", rep.TotalCurrentValue)
	}
	if len(rep.PositionsWithBalance) != 1 {
		t.Errorf("expected open holding listed, got %d", len(rep.PositionsWithBalance))
	}
}

func TestPortfolioFlow_FeedGapExcludedFromTotals(t *testing.T) {
	env := newTestEnv(t)
	env.seedEntity(t, "alice")
	pos := env.seedPosition(t, "alice")
	// No feed data at all.

	if rec := env.postTx(t, pos.ID, "BUY", 100, 1.00, t0); rec.Code != http.StatusOK {
		t.Fatalf("buy: %d: %s", rec.Code, rec.Body)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/portfolio/alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("portfolio: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rep := decodeAs[report.Report](t, rec)
	if len(rep.PositionReports) != 1 {
		t.Fatalf("gap position must still be listed")
	}
	if rep.PositionReports[0].Note == "" {
		t.Error("expected a data-gap note on the line")
	}
	if !rep.TotalCurrentValue.IsZero() || !rep.TotalPnL.IsZero() {
		t.Error("gap line must not contribute to totals")
	}
}

func TestPositionClose_UpdatesTrust(t *testing.T) {
	env := newTestEnv(t)
	env.seedEntity(t, "alice")
	pos := env.seedPosition(t, "alice")

	if rec := env.postTx(t, pos.ID, "BUY", 100, 1.00, t0); rec.Code != http.StatusOK {
		t.Fatalf("buy: %d: %s", rec.Code, rec.Body)
	}
	rec := env.postTx(t, pos.ID, "SELL", 100, 1.50, t0.Add(time.Minute))
	if rec.Code != http.StatusOK {
		t.Fatalf("closing sell: %d: %s", rec.Code, rec.Body)
	}

	closed := decodeAs[model.Position](t, rec)
	if closed.Status != model.PositionClosed {
		t.Fatalf("expected CLOSED, got %s", closed.Status)
	}
	if closed.ClosedAt == nil {
		t.Fatal("expected ClosedAt set on close")
	}

	// The close fed the trust scorer exactly once.
	rec = env.do(t, http.MethodGet, "/api/v1/trust/alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("trust: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	m := decodeAs[model.RecommenderMetrics](t, rec)
	if m.TotalRecommendations != 1 || m.SuccessfulRecs != 1 {
		t.Errorf("expected one successful outcome, got %+v", m)
	}
	if !m.TotalProfit.Equal(d(50)) {
		t.Errorf("expected profit 50, got %s", m.TotalProfit)
	}

	// Any further transaction on the closed position conflicts.
	rec = env.postTx(t, pos.ID, "BUY", 10, 1.00, t0.Add(2*time.Minute))
	if rec.Code != http.StatusConflict {
		t.Errorf("buy on closed: expected 409, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/trust/alice/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", rec.Code)
	}
	history := decodeAs[[]model.RecommenderMetricsHistory](t, rec)
	if len(history) != 1 {
		t.Errorf("expected 1 history snapshot, got %d", len(history))
	}
}

func TestGetTrustRanking(t *testing.T) {
	env := newTestEnv(t)
	env.seedEntity(t, "winner")
	env.seedEntity(t, "loser")

	for i, tc := range []struct {
		entity    string
		sellPrice float64
	}{
		{"winner", 2.00},
		{"loser", 0.50},
	} {
		pos := env.seedPosition(t, tc.entity)
		at := t0.Add(time.Duration(i) * time.Hour)
		if rec := env.postTx(t, pos.ID, "BUY", 100, 1.00, at); rec.Code != http.StatusOK {
			t.Fatalf("%s buy: %d: %s", tc.entity, rec.Code, rec.Body)
		}
		if rec := env.postTx(t, pos.ID, "SELL", 100, tc.sellPrice, at.Add(time.Minute)); rec.Code != http.StatusOK {
			t.Fatalf("%s sell: %d: %s", tc.entity, rec.Code, rec.Body)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/v1/trust", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ranking: expected 200, got %d", rec.Code)
	}
	ranking := decodeAs[[]model.RecommenderMetrics](t, rec)
	if len(ranking) != 2 {
		t.Fatalf("expected 2 recommenders, got %d", len(ranking))
	}
	if ranking[0].EntityID != "winner" || ranking[1].EntityID != "loser" {
		t.Errorf("expected winner ranked first, got %s then %s",
			ranking[0].EntityID, ranking[1].EntityID)
	}
}

func TestListPositions_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/positions/nobody", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	positions := decodeAs[[]model.Position](t, rec)
	if positions == nil || len(positions) != 0 {
		t.Errorf("expected empty array, got %v", positions)
	}
}

func TestGetPortfolio_SimulationFlagSeparatesBooks(t *testing.T) {
	env := newTestEnv(t)
	env.seedEntity(t, "alice")
	env.priceAt(1.00)

	simPos, err := env.service.OpenPosition(context.Background(), model.Position{
		EntityID:     "alice",
		Chain:        "solana",
		TokenAddress: wsol,
		Balance:      decimal.Zero,
		IsSimulation: true,
		CreatedAt:    t0,
	})
	if err != nil {
		t.Fatalf("open sim position: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/transactions", TransactionRequest{
		PositionID:   simPos.ID,
		Type:         "BUY",
		Amount:       d(100),
		Price:        d(1.00),
		IsSimulation: true,
		Timestamp:    t0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("sim buy: %d: %s", rec.Code, rec.Body)
	}

	// The real book has nothing.
	rec = env.do(t, http.MethodGet, "/api/v1/portfolio/alice", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("real book: expected 404, got %d", rec.Code)
	}

	// The simulation book has the position.
	rec = env.do(t, http.MethodGet, "/api/v1/portfolio/alice?simulation=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sim book: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	rep := decodeAs[report.Report](t, rec)
	if len(rep.PositionReports) != 1 {
		t.Errorf("sim book: expected 1 line, got %d", len(rep.PositionReports))
	}
}

func TestGetPortfolio_ManyPositionsSharedToken(t *testing.T) {
	env := newTestEnv(t)
	env.seedEntity(t, "alice")
	env.priceAt(2.00)

	for i := 0; i < 3; i++ {
		pos := env.seedPosition(t, "alice")
		at := t0.Add(time.Duration(i) * time.Hour)
		if rec := env.postTx(t, pos.ID, "BUY", 100, 1.00, at); rec.Code != http.StatusOK {
			t.Fatalf("buy %d: %d: %s", i, rec.Code, rec.Body)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/v1/portfolio/alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("portfolio: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	rep := decodeAs[report.Report](t, rec)
	if len(rep.PositionReports) != 3 {
		t.Errorf("expected 3 position lines, got %d", len(rep.PositionReports))
	}
	if len(rep.TokenReports) != 1 {
		t.Errorf("shared asset must collapse to 1 token report, got %d", len(rep.TokenReports))
	}
	if !rep.TotalCurrentValue.Equal(d(600)) {
		t.Errorf("current value: expected 600, got %s", rep.TotalCurrentValue)
	}
}

// Distinct entities do not serialize on each other's locks; a burst of
// writes across entities must all land.
func TestApplyTransaction_ParallelEntities(t *testing.T) {
	env := newTestEnv(t)

	const n = 8
	positions := make([]model.Position, n)
	for i := 0; i < n; i++ {
		entity := fmt.Sprintf("entity-%d", i)
		env.seedEntity(t, entity)
		positions[i] = env.seedPosition(t, entity)
	}

	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(pos model.Position) {
			_, err := env.service.ApplyTransaction(context.Background(), model.Transaction{
				ID:         pos.ID + "-buy",
				PositionID: pos.ID,
				Type:       model.TxBuy,
				Amount:     d(100),
				Price:      d(1.00),
				Timestamp:  t0,
			})
			done <- err
		}(positions[i])
	}
	for i := 0; i < n; i++ {
		if err := <-done; err != nil {
			t.Fatalf("parallel apply: %v", err)
		}
	}

	for _, pos := range positions {
		got, err := env.store.GetPosition(context.Background(), pos.ID)
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if !got.Balance.Equal(d(100)) {
			t.Errorf("position %s: expected balance 100, got %s", pos.ID, got.Balance)
		}
	}
}
