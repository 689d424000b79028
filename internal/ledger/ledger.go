// Package ledger applies transactions to positions. It is pure: Apply
// returns an updated copy and never touches storage — committing the
// result is the caller's responsibility.
//
// Balance integrity is the whole point here. An outflow that exceeds the
// known balance is surfaced as ErrBalanceUnderflow, never clamped: a
// silent clamp would hide a reconciliation bug upstream.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trustnet/trust-engine/internal/model"
)

var (
	// ErrBalanceUnderflow is returned when a SELL/TRANSFER_OUT would take
	// the position balance below zero.
	ErrBalanceUnderflow = errors.New("ledger: transaction would take balance below zero")

	// ErrPositionClosed is returned when a transaction is applied to a
	// position already in terminal state. Closed positions never reopen;
	// a new position must be created instead.
	ErrPositionClosed = errors.New("ledger: position is closed")

	// ErrPositionMismatch is returned when the transaction belongs to a
	// different position.
	ErrPositionMismatch = errors.New("ledger: transaction position id does not match")

	// ErrSimulationMismatch is returned when a simulated transaction is
	// applied to a real position or vice versa. Mixing the two on one
	// position is treated as a data-integrity violation.
	ErrSimulationMismatch = errors.New("ledger: simulation flag does not match position")

	// ErrInvalidTransaction is returned for unknown types or negative amounts.
	ErrInvalidTransaction = errors.New("ledger: invalid transaction")
)

// Apply applies a single transaction to a position and returns the
// updated position. The input position is not mutated.
//
// On success the returned position carries the new balance, and when the
// balance lands on exactly zero the position transitions OPEN→CLOSED with
// ClosedAt set to the transaction timestamp.
func Apply(pos model.Position, tx model.Transaction) (model.Position, error) {
	if tx.PositionID != pos.ID {
		return pos, fmt.Errorf("%w: tx %s targets position %s, got %s",
			ErrPositionMismatch, tx.ID, tx.PositionID, pos.ID)
	}
	if pos.Status == model.PositionClosed {
		return pos, fmt.Errorf("%w: position %s", ErrPositionClosed, pos.ID)
	}
	if tx.IsSimulation != pos.IsSimulation {
		return pos, fmt.Errorf("%w: tx %s", ErrSimulationMismatch, tx.ID)
	}
	if !tx.Type.Valid() {
		return pos, fmt.Errorf("%w: unknown type %q", ErrInvalidTransaction, tx.Type)
	}
	if tx.Amount.IsNegative() {
		return pos, fmt.Errorf("%w: negative amount %s", ErrInvalidTransaction, tx.Amount)
	}

	updated := pos
	if tx.Type.Inflow() {
		updated.Balance = pos.Balance.Add(tx.Amount)
	} else {
		newBalance := pos.Balance.Sub(tx.Amount)
		if newBalance.IsNegative() {
			return pos, fmt.Errorf("%w: position %s balance %s, outflow %s",
				ErrBalanceUnderflow, pos.ID, pos.Balance, tx.Amount)
		}
		updated.Balance = newBalance
	}

	if updated.Balance.IsZero() && tx.Type.Outflow() {
		updated.Status = model.PositionClosed
		closedAt := tx.Timestamp
		updated.ClosedAt = &closedAt
	}

	return updated, nil
}

// ApplyAll applies an ordered sequence of transactions, stopping at the
// first integrity error. The returned position reflects every transaction
// applied before the failure.
func ApplyAll(pos model.Position, txs []model.Transaction) (model.Position, error) {
	for _, tx := range txs {
		next, err := Apply(pos, tx)
		if err != nil {
			return pos, err
		}
		pos = next
	}
	return pos, nil
}

// Replay rebuilds a position's balance from scratch by applying its full
// transaction history to a zero-balance copy. Used to cross-check a
// stored balance against the ledger.
func Replay(pos model.Position, txs []model.Transaction) (model.Position, error) {
	fresh := pos
	fresh.Balance = decimal.Zero
	fresh.Status = model.PositionOpen
	fresh.ClosedAt = nil
	return ApplyAll(fresh, txs)
}

// CloseTime returns the position close time, falling back to now for
// positions closed by balance but missing the timestamp.
func CloseTime(pos model.Position) time.Time {
	if pos.ClosedAt != nil {
		return *pos.ClosedAt
	}
	return time.Now().UTC()
}
