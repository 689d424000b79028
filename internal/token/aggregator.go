// Package token deduplicates the assets referenced by a set of positions
// and collects one TokenPerformance snapshot per distinct (chain, address)
// pair. Lookups for distinct assets are independent, so they fan out over
// a bounded worker pool and join before the report is composed.
package token

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	gocache "github.com/patrickmn/go-cache"

	"github.com/trustnet/trust-engine/internal/asset"
	"github.com/trustnet/trust-engine/internal/metrics"
	"github.com/trustnet/trust-engine/internal/model"
	"github.com/trustnet/trust-engine/internal/pricefeed"
)

// Dedupe collapses positions to their distinct asset keys, preserving
// first-seen order. Two positions on the same (chain, address) under
// different wallets yield a single key.
func Dedupe(positions []model.Position) []asset.Key {
	seen := make(map[asset.Key]bool, len(positions))
	keys := make([]asset.Key, 0, len(positions))
	for _, p := range positions {
		k := asset.Key{Chain: p.Chain, Address: p.TokenAddress}
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}

// Aggregator fetches TokenPerformance snapshots through a TTL cache and
// a bounded worker pool. A feed failure or empty answer produces a gap
// record carrying only the asset identity — the token is never dropped
// from a report because a data feed was down.
type Aggregator struct {
	feed    pricefeed.Feed
	cache   *gocache.Cache
	pool    *ants.Pool
	timeout time.Duration
}

// Options tune the aggregator. Zero values fall back to defaults.
type Options struct {
	CacheTTL     time.Duration // snapshot freshness window, default 30s
	FetchWorkers int           // fan-out bound, default 8
	FetchTimeout time.Duration // per-lookup budget, default 5s
}

// NewAggregator creates an aggregator over the given feed.
func NewAggregator(feed pricefeed.Feed, opts Options) (*Aggregator, error) {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.FetchWorkers <= 0 {
		opts.FetchWorkers = 8
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Second
	}

	pool, err := ants.NewPool(opts.FetchWorkers)
	if err != nil {
		return nil, err
	}
	return &Aggregator{
		feed:    feed,
		cache:   gocache.New(opts.CacheTTL, 2*opts.CacheTTL),
		pool:    pool,
		timeout: opts.FetchTimeout,
	}, nil
}

// Close releases the worker pool.
func (a *Aggregator) Close() {
	a.pool.Release()
}

// Collect returns one TokenPerformance per key, in key order. Fresh
// cached snapshots are served directly; the rest fan out over the pool,
// one task per distinct asset, joined before return. Refreshes are
// last-write-wins per (chain, address).
func (a *Aggregator) Collect(ctx context.Context, keys []asset.Key) []model.TokenPerformance {
	results := make([]model.TokenPerformance, len(keys))

	var wg sync.WaitGroup
	for i, key := range keys {
		if cached, ok := a.cache.Get(key.String()); ok {
			results[i] = cached.(model.TokenPerformance)
			continue
		}

		wg.Add(1)
		i, key := i, key
		task := func() {
			defer wg.Done()
			results[i] = a.fetch(ctx, key)
		}
		if err := a.pool.Submit(task); err != nil {
			// Pool exhausted or released: fetch inline rather than drop.
			task()
		}
	}
	wg.Wait()

	return results
}

// fetch performs one feed lookup with the per-lookup timeout and caches
// the snapshot on success. Any failure degrades to a gap record.
func (a *Aggregator) fetch(ctx context.Context, key asset.Key) model.TokenPerformance {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	perf, err := a.feed.GetTokenPerformance(ctx, key.Chain, key.Address)
	if err != nil {
		slog.Warn("token: performance lookup failed",
			"chain", key.Chain, "address", key.Address, "err", err)
		metrics.PriceFeedGaps.Inc()
		return gapRecord(key)
	}
	if perf == nil {
		metrics.PriceFeedGaps.Inc()
		return gapRecord(key)
	}

	// Normalize identity so dedup keys survive feed quirks.
	perf.Chain = key.Chain
	perf.Address = key.Address

	a.cache.Set(key.String(), *perf, gocache.DefaultExpiration)
	return *perf
}

// gapRecord is the snapshot used when no performance data is available:
// identity only, null price, so the position still renders.
func gapRecord(key asset.Key) model.TokenPerformance {
	return model.TokenPerformance{
		Chain:     key.Chain,
		Address:   key.Address,
		UpdatedAt: time.Now().UTC(),
	}
}
