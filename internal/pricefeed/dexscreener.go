package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trustnet/trust-engine/internal/model"
)

// DexScreenerFeed polls the DexScreener token-pairs REST endpoint.
// No API key required. One request per (chain, address) lookup; the
// aggregator's cache keeps request volume down.
type DexScreenerFeed struct {
	HTTP     *http.Client
	Endpoint string // default https://api.dexscreener.com/latest/dex/tokens
	Timeout  time.Duration
}

// NewDexScreenerFeed creates a feed with sane defaults.
func NewDexScreenerFeed(endpoint string, timeout time.Duration) *DexScreenerFeed {
	if endpoint == "" {
		endpoint = "https://api.dexscreener.com/latest/dex/tokens"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DexScreenerFeed{
		HTTP:     &http.Client{Timeout: timeout},
		Endpoint: strings.TrimRight(endpoint, "/"),
		Timeout:  timeout,
	}
}

// pairsResponse mirrors the subset of the DexScreener payload we consume.
type pairsResponse struct {
	Pairs []struct {
		ChainID   string `json:"chainId"`
		BaseToken struct {
			Address string `json:"address"`
			Name    string `json:"name"`
			Symbol  string `json:"symbol"`
		} `json:"baseToken"`
		PriceUsd    string `json:"priceUsd"`
		PriceChange struct {
			H24 float64 `json:"h24"`
		} `json:"priceChange"`
		Volume struct {
			H24 float64 `json:"h24"`
		} `json:"volume"`
		Liquidity struct {
			USD float64 `json:"usd"`
		} `json:"liquidity"`
	} `json:"pairs"`
}

// GetTokenPerformance fetches the deepest-liquidity pair for the token
// and maps it onto a TokenPerformance snapshot. Returns (nil, nil) when
// DexScreener lists no pair for the asset.
func (f *DexScreenerFeed) GetTokenPerformance(ctx context.Context, chain, address string) (*model.TokenPerformance, error) {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s", f.Endpoint, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("pricefeed: build request: %w", err)
	}

	resp, err := f.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pricefeed: fetch %s: %w", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pricefeed: fetch %s: status %d", address, resp.StatusCode)
	}

	var payload pairsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("pricefeed: decode %s: %w", address, err)
	}

	best := -1
	for i, p := range payload.Pairs {
		if !strings.EqualFold(p.ChainID, chain) {
			continue
		}
		if best < 0 || p.Liquidity.USD > payload.Pairs[best].Liquidity.USD {
			best = i
		}
	}
	if best < 0 {
		return nil, nil // no pair listed: a gap, not an error
	}

	pair := payload.Pairs[best]
	perf := &model.TokenPerformance{
		Chain:          chain,
		Address:        address,
		Name:           pair.BaseToken.Name,
		Symbol:         pair.BaseToken.Symbol,
		Price24hChange: pair.PriceChange.H24,
		Volume:         pair.Volume.H24,
		Liquidity:      pair.Liquidity.USD,
		UpdatedAt:      time.Now().UTC(),
	}

	if price, err := decimal.NewFromString(pair.PriceUsd); err == nil {
		perf.Price = decimal.NullDecimal{Decimal: price, Valid: true}
	} else {
		slog.Warn("pricefeed: unparseable price", "address", address, "price", pair.PriceUsd)
	}

	return perf, nil
}
