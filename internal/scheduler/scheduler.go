// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

// Package scheduler drives reconciliation: periodic full-catalog
// batches and on-demand single-title runs. Batches are intentionally
// sequential with a fixed inter-title delay; the throughput ceiling is
// a deliberate courtesy to the upstream catalog's rate limits.
package scheduler

import (
	"context"
	"time"

	"github.com/depotwatch/depotwatch/internal/logging"
	"github.com/depotwatch/depotwatch/internal/metrics"
	"github.com/depotwatch/depotwatch/internal/models"
)

// TitleSyncer is the synchronizer surface the scheduler needs.
type TitleSyncer interface {
	SyncTitle(ctx context.Context, titleID string) models.SyncResult
}

// TitleLister enumerates known titles for batch runs.
type TitleLister interface {
	List(ctx context.Context) ([]*models.TitleRecord, error)
}

// Scheduler runs batch and on-demand reconciliation.
type Scheduler struct {
	syncer     TitleSyncer
	titles     TitleLister
	titleDelay time.Duration

	now func() time.Time
}

// New creates a scheduler with the given fixed inter-title delay.
func New(syncer TitleSyncer, titles TitleLister, titleDelay time.Duration) *Scheduler {
	return &Scheduler{
		syncer:     syncer,
		titles:     titles,
		titleDelay: titleDelay,
		now:        time.Now,
	}
}

// RunBatch reconciles every known title sequentially. Per-title
// failures are collected into the summary and never abort the batch.
// Cancellation stops between titles, never mid-commit.
func (s *Scheduler) RunBatch(ctx context.Context) models.BatchSummary {
	summary := models.BatchSummary{StartedAt: s.now().UTC()}

	records, err := s.titles.List(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("batch aborted: listing titles failed")
		summary.FinishedAt = s.now().UTC()
		return summary
	}
	summary.Total = len(records)
	metrics.BatchTitles.Set(float64(len(records)))

	logging.Info().Int("titles", len(records)).Msg("batch reconciliation started")

	for i, rec := range records {
		if ctx.Err() != nil {
			logging.Warn().Int("remaining", len(records)-i).Msg("batch canceled")
			break
		}

		result := s.syncer.SyncTitle(ctx, rec.TitleID)
		switch {
		case result.Outcome == models.SyncOutcomeUpdated:
			summary.Updated++
		case result.Outcome == models.SyncOutcomeUpToDate:
			summary.UpToDate++
		default:
			summary.Failures = append(summary.Failures, result)
		}

		// Fixed spacing between titles, not a burst. Skipped after the
		// last title and cut short by cancellation.
		if i < len(records)-1 {
			select {
			case <-time.After(s.titleDelay):
			case <-ctx.Done():
			}
		}
	}

	summary.FinishedAt = s.now().UTC()
	logging.Info().
		Int("total", summary.Total).
		Int("updated", summary.Updated).
		Int("up_to_date", summary.UpToDate).
		Int("failures", len(summary.Failures)).
		Dur("elapsed", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("batch reconciliation finished")
	return summary
}

// RunOne reconciles a single title synchronously and returns its
// outcome. A first run for an unknown title creates its record and
// branch; used for on-demand refreshes.
func (s *Scheduler) RunOne(ctx context.Context, titleID string) models.SyncResult {
	return s.syncer.SyncTitle(ctx, titleID)
}
