package pricefeed

import (
	"context"
	"sync"

	"github.com/trustnet/trust-engine/internal/model"
)

// StaticFeed serves fixed snapshots from memory. Used in tests and
// development; assets without a snapshot come back as gaps.
type StaticFeed struct {
	mu        sync.RWMutex
	snapshots map[string]model.TokenPerformance
	err       error
}

// NewStaticFeed creates an empty static feed.
func NewStaticFeed() *StaticFeed {
	return &StaticFeed{snapshots: make(map[string]model.TokenPerformance)}
}

// Set stores or replaces the snapshot for one asset.
func (f *StaticFeed) Set(perf model.TokenPerformance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[perf.Chain+":"+perf.Address] = perf
}

// Fail makes every subsequent lookup return err. Pass nil to recover.
func (f *StaticFeed) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *StaticFeed) GetTokenPerformance(_ context.Context, chain, address string) (*model.TokenPerformance, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.err != nil {
		return nil, f.err
	}
	perf, ok := f.snapshots[chain+":"+address]
	if !ok {
		return nil, nil
	}
	out := perf
	return &out, nil
}
