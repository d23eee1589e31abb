// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically purges expired sessions.
//
// Expired rows are already ignored by every read; sweeping only reclaims space.
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewSweeper creates a [Sweeper] running every interval.
func NewSweeper(store Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{store: store, interval: interval, logger: logger, now: time.Now}
}

// Run sweeps until ctx is cancelled.
func (sweeper *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sweeper.interval)
	defer ticker.Stop()

	sweeper.logger.Info("session_sweeper_started", slog.Duration("interval", sweeper.interval))

	for {
		select {
		case <-ctx.Done():
			sweeper.logger.Info("session_sweeper_stopped")
			return
		case <-ticker.C:
			_, _ = sweeper.SweepOnce(ctx)
		}
	}
}

// SweepOnce deletes every session expired at the current instant.
func (sweeper *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	removed, err := sweeper.store.DeleteExpired(ctx, sweeper.now())
	if err != nil {
		if ctx.Err() == nil {
			sweeper.logger.Error("session_sweep_failed", slog.Any("error", err))
		}
		return 0, err
	}

	if removed > 0 {
		sweeper.logger.Info("session_sweep_completed", slog.Int64("removed", removed))
	}
	return removed, nil
}
