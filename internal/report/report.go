// Package report composes per-position PnL lines and portfolio totals
// into a single structure for the presentation layer. Compose is pure:
// identical inputs always produce an identical Report, so re-entry after
// a cancelled run is safe.
package report

import (
	"github.com/shopspring/decimal"

	"github.com/trustnet/trust-engine/internal/model"
	"github.com/trustnet/trust-engine/internal/pnl"
	"github.com/trustnet/trust-engine/internal/reconcile"
)

// Line notes attached to positions excluded from the totals.
const (
	NotePriceUnavailable = "market price unavailable"
)

// PositionLine is one position's entry in the report: the position, its
// resolved token, its ordered transactions, and the PnL breakdown. A
// non-empty IntegrityError means the position failed reconciliation; it
// is listed but contributes nothing to the totals. A non-empty Note
// marks a data gap handled the same way for the mark-to-market fields.
type PositionLine struct {
	Position       model.Position         `json:"position"`
	Token          model.TokenPerformance `json:"token"`
	Transactions   []model.Transaction    `json:"transactions"`
	PnL            pnl.Result             `json:"pnl"`
	Note           string                 `json:"note,omitempty"`
	IntegrityError string                 `json:"integrity_error,omitempty"`
}

// Report is the complete portfolio view handed to the caller. All
// decimal fields marshal as text. The totals always equal the sum over
// the lines included in them: a line with unknown PnL or an integrity
// error is listed with a placeholder and excluded, never silently
// folded in as zero.
type Report struct {
	PositionReports      []PositionLine           `json:"position_reports"`
	TokenReports         []model.TokenPerformance `json:"token_reports"`
	PositionsWithBalance []PositionLine           `json:"positions_with_balance"`
	TotalCurrentValue    decimal.Decimal          `json:"total_current_value"`
	TotalPnL             decimal.Decimal          `json:"total_pnl"`
	TotalRealizedPnL     decimal.Decimal          `json:"total_realized_pnl"`
	TotalUnrealizedPnL   decimal.Decimal          `json:"total_unrealized_pnl"`
}

// Compose builds the portfolio report from deduplicated token snapshots
// and reconciled position groups. Group order is preserved; token report
// order follows the tokens argument.
//
// A position is included when it still holds balance or has non-zero
// realized PnL — a fully exited position with a realized gain or loss
// still belongs in the report.
func Compose(tokens []model.TokenPerformance, groups []reconcile.Group) Report {
	byAsset := make(map[string]model.TokenPerformance, len(tokens))
	for _, tok := range tokens {
		byAsset[tok.Chain+":"+tok.Address] = tok
	}

	r := Report{
		TokenReports:       tokens,
		TotalCurrentValue:  decimal.Zero,
		TotalPnL:           decimal.Zero,
		TotalRealizedPnL:   decimal.Zero,
		TotalUnrealizedPnL: decimal.Zero,
	}

	for _, g := range groups {
		tok := byAsset[g.Position.Chain+":"+g.Position.TokenAddress]
		line := PositionLine{
			Position:     g.Position,
			Token:        tok,
			Transactions: g.Transactions,
		}

		price := resolvePrice(tok, g.Position)
		result, err := pnl.Compute(g.Transactions, price)
		if err != nil {
			line.IntegrityError = err.Error()
			r.PositionReports = append(r.PositionReports, line)
			continue
		}
		line.PnL = result

		include := result.RemainingBalance.IsPositive() || !result.Realized.IsZero()
		if !include {
			continue
		}

		if result.Known() {
			r.TotalRealizedPnL = r.TotalRealizedPnL.Add(result.Realized)
			r.TotalUnrealizedPnL = r.TotalUnrealizedPnL.Add(result.Unrealized.Decimal)
			r.TotalCurrentValue = r.TotalCurrentValue.Add(result.CurrentValue.Decimal)
		} else {
			line.Note = NotePriceUnavailable
		}

		r.PositionReports = append(r.PositionReports, line)
		if result.RemainingBalance.IsPositive() {
			r.PositionsWithBalance = append(r.PositionsWithBalance, line)
		}
	}

	r.TotalPnL = r.TotalRealizedPnL.Add(r.TotalUnrealizedPnL)
	return r
}

// resolvePrice picks the mark price for a position: the live token
// snapshot when available, else the last price stored on the position,
// else unknown.
func resolvePrice(tok model.TokenPerformance, pos model.Position) decimal.NullDecimal {
	if tok.Price.Valid {
		return tok.Price
	}
	return pos.CurrentPrice
}
