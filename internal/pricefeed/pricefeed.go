// Package pricefeed retrieves live token market data. A feed may return
// nothing for a token; callers treat that as a data gap, not an error.
package pricefeed

import (
	"context"

	"github.com/trustnet/trust-engine/internal/model"
)

// Feed is the market-data boundary. GetTokenPerformance returns nil with
// a nil error when the feed has no data for the asset — missing data is
// a gap, so the token is still reported with its static fields.
//
// Implementations must honor ctx cancellation and deadlines; the engine
// never waits on a feed beyond the caller-supplied timeout.
type Feed interface {
	GetTokenPerformance(ctx context.Context, chain, address string) (*model.TokenPerformance, error)
}
