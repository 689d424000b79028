package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trustnet/trust-engine/internal/model"
)

// d is a test helper for creating decimals from int64 base units.
func d(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func openPosition(balance int64) model.Position {
	return model.Position{
		ID:           "pos-1",
		EntityID:     "entity-1",
		Chain:        "solana",
		TokenAddress: "TokenAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		Balance:      d(balance),
		Status:       model.PositionOpen,
		CreatedAt:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func tx(typ model.TransactionType, amount int64, at time.Time) model.Transaction {
	return model.Transaction{
		ID:         "tx-" + string(typ),
		PositionID: "pos-1",
		Type:       typ,
		Amount:     d(amount),
		Price:      decimal.NewFromFloat(1.0),
		Timestamp:  at,
	}
}

var t0 = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

// --- Apply tests ---

func TestApply_BuyIncreasesBalance(t *testing.T) {
	pos := openPosition(100)
	updated, err := Apply(pos, tx(model.TxBuy, 50, t0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated.Balance.Equal(d(150)) {
		t.Errorf("expected balance 150, got %s", updated.Balance)
	}
	if updated.Status != model.PositionOpen {
		t.Errorf("expected position to stay OPEN, got %s", updated.Status)
	}
}

func TestApply_TransferInIncreasesBalance(t *testing.T) {
	pos := openPosition(0)
	updated, err := Apply(pos, tx(model.TxTransferIn, 25, t0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated.Balance.Equal(d(25)) {
		t.Errorf("expected balance 25, got %s", updated.Balance)
	}
}

func TestApply_SellDecreasesBalance(t *testing.T) {
	pos := openPosition(100)
	updated, err := Apply(pos, tx(model.TxSell, 40, t0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated.Balance.Equal(d(60)) {
		t.Errorf("expected balance 60, got %s", updated.Balance)
	}
	if updated.Status != model.PositionOpen {
		t.Errorf("partial exit should not close the position")
	}
}

func TestApply_UnderflowRejected(t *testing.T) {
	pos := openPosition(300)
	_, err := Apply(pos, tx(model.TxSell, 500, t0))
	if !errors.Is(err, ErrBalanceUnderflow) {
		t.Fatalf("expected ErrBalanceUnderflow, got %v", err)
	}
	// The input is untouched: integrity errors never mutate state.
	if !pos.Balance.Equal(d(300)) {
		t.Errorf("balance changed after rejected transaction: %s", pos.Balance)
	}
}

func TestApply_FullExitClosesPosition(t *testing.T) {
	pos := openPosition(100)
	updated, err := Apply(pos, tx(model.TxSell, 100, t0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != model.PositionClosed {
		t.Fatalf("expected CLOSED, got %s", updated.Status)
	}
	if updated.ClosedAt == nil || !updated.ClosedAt.Equal(t0) {
		t.Errorf("expected closedAt=%v, got %v", t0, updated.ClosedAt)
	}
}

func TestApply_ClosedPositionRejectsEverything(t *testing.T) {
	pos := openPosition(100)
	closed, _ := Apply(pos, tx(model.TxSell, 100, t0))

	for _, typ := range []model.TransactionType{
		model.TxBuy, model.TxSell, model.TxTransferIn, model.TxTransferOut,
	} {
		_, err := Apply(closed, tx(typ, 10, t0.Add(time.Minute)))
		if !errors.Is(err, ErrPositionClosed) {
			t.Errorf("%s on closed position: expected ErrPositionClosed, got %v", typ, err)
		}
	}
}

func TestApply_TransferOutToZeroCloses(t *testing.T) {
	pos := openPosition(10)
	updated, err := Apply(pos, tx(model.TxTransferOut, 10, t0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != model.PositionClosed {
		t.Errorf("transfer-out to zero should close the position")
	}
}

func TestApply_WrongPosition(t *testing.T) {
	pos := openPosition(100)
	wrongTx := tx(model.TxBuy, 10, t0)
	wrongTx.PositionID = "pos-other"
	_, err := Apply(pos, wrongTx)
	if !errors.Is(err, ErrPositionMismatch) {
		t.Errorf("expected ErrPositionMismatch, got %v", err)
	}
}

func TestApply_SimulationMismatch(t *testing.T) {
	pos := openPosition(100)
	simTx := tx(model.TxBuy, 10, t0)
	simTx.IsSimulation = true
	_, err := Apply(pos, simTx)
	if !errors.Is(err, ErrSimulationMismatch) {
		t.Errorf("expected ErrSimulationMismatch, got %v", err)
	}
}

func TestApply_InvalidType(t *testing.T) {
	pos := openPosition(100)
	badTx := tx(model.TransactionType("STAKE"), 10, t0)
	_, err := Apply(pos, badTx)
	if !errors.Is(err, ErrInvalidTransaction) {
		t.Errorf("expected ErrInvalidTransaction, got %v", err)
	}
}

func TestApply_NegativeAmount(t *testing.T) {
	pos := openPosition(100)
	badTx := tx(model.TxBuy, 10, t0)
	badTx.Amount = d(-10)
	_, err := Apply(pos, badTx)
	if !errors.Is(err, ErrInvalidTransaction) {
		t.Errorf("expected ErrInvalidTransaction, got %v", err)
	}
}

// --- Sequence tests ---

func TestApplyAll_BalanceEqualsInflowsMinusOutflows(t *testing.T) {
	pos := openPosition(0)
	txs := []model.Transaction{
		tx(model.TxBuy, 1000, t0),
		tx(model.TxSell, 300, t0.Add(time.Minute)),
		tx(model.TxTransferIn, 50, t0.Add(2*time.Minute)),
		tx(model.TxTransferOut, 150, t0.Add(3*time.Minute)),
		tx(model.TxSell, 100, t0.Add(4*time.Minute)),
	}

	final, err := ApplyAll(pos, txs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 1000 + 50 - 300 - 150 - 100 = 500
	if !final.Balance.Equal(d(500)) {
		t.Errorf("expected balance 500, got %s", final.Balance)
	}
}

func TestApplyAll_StopsAtFirstIntegrityError(t *testing.T) {
	pos := openPosition(0)
	txs := []model.Transaction{
		tx(model.TxBuy, 100, t0),
		tx(model.TxSell, 200, t0.Add(time.Minute)), // underflow
		tx(model.TxBuy, 500, t0.Add(2*time.Minute)),
	}

	final, err := ApplyAll(pos, txs)
	if !errors.Is(err, ErrBalanceUnderflow) {
		t.Fatalf("expected ErrBalanceUnderflow, got %v", err)
	}
	// Only the first buy landed; the trailing buy never applied.
	if !final.Balance.Equal(d(100)) {
		t.Errorf("expected balance 100 at the failure point, got %s", final.Balance)
	}
}

func TestReplay_RebuildsFromZero(t *testing.T) {
	pos := openPosition(999) // stored balance is wrong on purpose
	txs := []model.Transaction{
		tx(model.TxBuy, 200, t0),
		tx(model.TxSell, 50, t0.Add(time.Minute)),
	}

	rebuilt, err := Replay(pos, txs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rebuilt.Balance.Equal(d(150)) {
		t.Errorf("expected replayed balance 150, got %s", rebuilt.Balance)
	}
}
