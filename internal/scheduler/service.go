// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

package scheduler

import (
	"context"
	"time"

	"github.com/depotwatch/depotwatch/internal/logging"
)

// Service adapts the scheduler to suture's Serve pattern: one batch
// shortly after startup, then a fixed multi-hour interval.
type Service struct {
	scheduler    *Scheduler
	startupDelay time.Duration
	interval     time.Duration
}

// NewService creates the supervised batch service.
func NewService(s *Scheduler, startupDelay, interval time.Duration) *Service {
	return &Service{
		scheduler:    s,
		startupDelay: startupDelay,
		interval:     interval,
	}
}

// Serve implements suture.Service. It blocks until the context is
// canceled; batch runs happen inline so a restart never overlaps a run.
func (s *Service) Serve(ctx context.Context) error {
	logging.Info().
		Dur("startup_delay", s.startupDelay).
		Dur("interval", s.interval).
		Msg("batch scheduler service starting")

	select {
	case <-time.After(s.startupDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	s.scheduler.RunBatch(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.scheduler.RunBatch(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// String implements fmt.Stringer; suture uses it in log messages.
func (s *Service) String() string {
	return "batch-scheduler"
}
