// Package pnl computes realized and unrealized profit/loss for a
// position using the weighted-average cost method: every inflow blends
// into a single running average price, instead of tracking discrete lots.
//
// All arithmetic uses shopspring/decimal — never float64 for money.
// Division is carried out at CostScale fractional digits so rounding
// error does not compound across many small trades. Full liquidation is
// order-insensitive up to that precision: realizing 100% of a position
// always yields Σ(sellPrice·amount) − Σ(buyPrice·amount).
package pnl

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/trustnet/trust-engine/internal/model"
)

// CostScale is the number of fractional digits carried by average-cost
// division. Eight digits matches the smallest quote precision of the
// feeds we ingest.
const CostScale int32 = 8

var (
	// ErrBalanceUnderflow is returned when an outflow in the transaction
	// walk exceeds the running balance. This is a data-integrity error,
	// never corrected silently.
	ErrBalanceUnderflow = errors.New("pnl: outflow exceeds running balance")

	// ErrInvalidTransaction is returned for unknown types or negative amounts.
	ErrInvalidTransaction = errors.New("pnl: invalid transaction")
)

// Result is the PnL breakdown for one position.
//
// Unrealized and CurrentValue are null when the current market price is
// unknown — reporting zero would misrepresent an open position as
// worthless, so a data gap stays a gap.
type Result struct {
	Realized         decimal.Decimal     `json:"realized"`
	Unrealized       decimal.NullDecimal `json:"unrealized"`
	CurrentValue     decimal.NullDecimal `json:"current_value"`
	RemainingBalance decimal.Decimal     `json:"remaining_balance"`
	AvgCost          decimal.Decimal     `json:"avg_cost"`
}

// Known reports whether the mark-to-market fields are available.
func (r Result) Known() bool {
	return r.Unrealized.Valid && r.CurrentValue.Valid
}

// Total returns realized + unrealized when the market price is known,
// and a null decimal otherwise.
func (r Result) Total() decimal.NullDecimal {
	if !r.Unrealized.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{
		Decimal: r.Realized.Add(r.Unrealized.Decimal),
		Valid:   true,
	}
}

// RealizedPercent returns the realized PnL as a percentage of the cost
// basis that was liquidated, or 0 when nothing was bought.
func (r Result) RealizedPercent(costBasis decimal.Decimal) float64 {
	if costBasis.IsZero() {
		return 0
	}
	pct, _ := r.Realized.DivRound(costBasis, CostScale).
		Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// Compute walks the ordered transactions of one position and returns its
// PnL breakdown at currentPrice. Pass an invalid NullDecimal when the
// price is unavailable; the mark-to-market fields come back null.
//
// Each BUY/TRANSFER_IN re-averages the cost basis:
//
//	avg' = (avg·balance + price·amount) / (balance + amount)
//
// Each SELL/TRANSFER_OUT realizes (price − avg) · amount and reduces the
// balance without touching the average. By convention avg is 0 while the
// balance is exactly 0; the division above is only ever evaluated with a
// positive denominator.
func Compute(orderedTxs []model.Transaction, currentPrice decimal.NullDecimal) (Result, error) {
	balance := decimal.Zero
	avgCost := decimal.Zero
	realized := decimal.Zero

	for _, tx := range orderedTxs {
		if !tx.Type.Valid() {
			return Result{}, fmt.Errorf("%w: unknown type %q in tx %s",
				ErrInvalidTransaction, tx.Type, tx.ID)
		}
		if tx.Amount.IsNegative() {
			return Result{}, fmt.Errorf("%w: negative amount in tx %s",
				ErrInvalidTransaction, tx.ID)
		}

		if tx.Type.Inflow() {
			newBalance := balance.Add(tx.Amount)
			if newBalance.IsPositive() {
				oldValue := avgCost.Mul(balance)
				addValue := tx.Price.Mul(tx.Amount)
				avgCost = oldValue.Add(addValue).DivRound(newBalance, CostScale)
			}
			balance = newBalance
			continue
		}

		newBalance := balance.Sub(tx.Amount)
		if newBalance.IsNegative() {
			return Result{}, fmt.Errorf("%w: tx %s amount %s, balance %s",
				ErrBalanceUnderflow, tx.ID, tx.Amount, balance)
		}
		realized = realized.Add(tx.Price.Sub(avgCost).Mul(tx.Amount))
		balance = newBalance
		if balance.IsZero() {
			avgCost = decimal.Zero
		}
	}

	result := Result{
		Realized:         realized,
		RemainingBalance: balance,
		AvgCost:          avgCost,
	}

	if currentPrice.Valid {
		result.Unrealized = decimal.NullDecimal{
			Decimal: currentPrice.Decimal.Sub(avgCost).Mul(balance),
			Valid:   true,
		}
		result.CurrentValue = decimal.NullDecimal{
			Decimal: currentPrice.Decimal.Mul(balance),
			Valid:   true,
		}
	}

	return result, nil
}

// CostBasis returns the total value paid into a position across its
// inflow transactions. Used to express realized PnL as a percentage.
func CostBasis(orderedTxs []model.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range orderedTxs {
		if tx.Type.Inflow() {
			total = total.Add(tx.Price.Mul(tx.Amount))
		}
	}
	return total
}
