// Package freshness implements C7: a periodic job that recomputes each
// open assignment's freshness_tier from how long it has been since the
// source was last seen bumping it. Modeled as a ticker loop — all
// instances run this independently and the underlying update is
// idempotent, so no leader election is required.
package freshness

import (
	"context"
	"log/slog"
	"time"

	"github.com/tutordex/aggregator/pkg/config"
)

// Store is the subset of pkg/store's freshness RPC the tiering job needs.
type Store interface {
	RecomputeFreshnessTiers(ctx context.Context, afterID string, greenMaxSecs, yellowMaxSecs, orangeMaxSecs float64, batchSize int) (examined int, lastID string, err error)
}

// Recomputer periodically recomputes freshness tiers in bounded batches.
type Recomputer struct {
	store Store
	cfg   config.FreshnessConfig
	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Recomputer bound to store and cfg.
func New(store Store, cfg config.FreshnessConfig) *Recomputer {
	return &Recomputer{store: store, cfg: cfg, stopCh: make(chan struct{}), doneCh: make(chan struct{})}
}

// Run blocks, ticking every cfg.Interval and draining the open set in
// cfg.BatchSize chunks on each tick, until ctx is cancelled or Stop is
// called. Intended to be run in its own goroutine from main.
func (r *Recomputer) Run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if err := r.tick(ctx); err != nil {
				slog.Error("freshness tiering pass failed", "error", err)
			}
		}
	}
}

// Stop signals Run to return and blocks until it has.
func (r *Recomputer) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

// tick walks the entire open assignment set in BatchSize chunks via
// keyset pagination, recomputing tiers, until a page comes back short
// (the set is fully drained for this tick).
func (r *Recomputer) tick(ctx context.Context) error {
	total := 0
	var afterID string
	for {
		n, lastID, err := r.store.RecomputeFreshnessTiers(ctx, afterID,
			r.cfg.GreenMax.Seconds(), r.cfg.YellowMax.Seconds(), r.cfg.OrangeMax.Seconds(), r.cfg.BatchSize)
		if err != nil {
			return err
		}
		total += n
		afterID = lastID
		if n < r.cfg.BatchSize {
			break
		}
	}
	if total > 0 {
		slog.Info("freshness tiers recomputed", "examined", total)
	}
	return nil
}
