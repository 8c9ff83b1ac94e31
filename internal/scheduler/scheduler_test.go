// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/depotwatch/depotwatch/internal/models"
)

type fakeSyncer struct {
	outcomes map[string]models.SyncOutcome
	calls    []string
	times    []time.Time
}

func (f *fakeSyncer) SyncTitle(ctx context.Context, titleID string) models.SyncResult {
	f.calls = append(f.calls, titleID)
	f.times = append(f.times, time.Now())

	outcome, ok := f.outcomes[titleID]
	if !ok {
		outcome = models.SyncOutcomeUpToDate
	}
	result := models.SyncResult{TitleID: titleID, Outcome: outcome}
	if result.Failed() {
		result.Reason = "injected failure"
	}
	return result
}

type fakeLister struct {
	ids []string
	err error
}

func (f *fakeLister) List(ctx context.Context) ([]*models.TitleRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	records := make([]*models.TitleRecord, 0, len(f.ids))
	for _, id := range f.ids {
		records = append(records, &models.TitleRecord{TitleID: id})
	}
	return records, nil
}

func TestRunBatchCountsOutcomes(t *testing.T) {
	syncer := &fakeSyncer{outcomes: map[string]models.SyncOutcome{
		"440":  models.SyncOutcomeUpdated,
		"730":  models.SyncOutcomeUpToDate,
		"2280": models.SyncOutcomeUnreachable,
		"4000": models.SyncOutcomeFailed,
	}}
	lister := &fakeLister{ids: []string{"440", "730", "2280", "4000"}}
	s := New(syncer, lister, 0)

	summary := s.RunBatch(context.Background())

	if summary.Total != 4 {
		t.Errorf("total = %d", summary.Total)
	}
	if summary.Updated != 1 || summary.UpToDate != 1 {
		t.Errorf("updated = %d, up-to-date = %d", summary.Updated, summary.UpToDate)
	}
	if len(summary.Failures) != 2 {
		t.Errorf("failures = %v", summary.Failures)
	}
}

// TestRunBatchFailureDoesNotAbort: every title is attempted even when
// earlier titles fail.
func TestRunBatchFailureDoesNotAbort(t *testing.T) {
	syncer := &fakeSyncer{outcomes: map[string]models.SyncOutcome{
		"440": models.SyncOutcomeFailed,
		"730": models.SyncOutcomeUnreachable,
	}}
	lister := &fakeLister{ids: []string{"440", "730", "2280"}}
	s := New(syncer, lister, 0)

	s.RunBatch(context.Background())

	if len(syncer.calls) != 3 {
		t.Errorf("expected all 3 titles attempted, got %v", syncer.calls)
	}
}

func TestRunBatchSequentialWithDelay(t *testing.T) {
	syncer := &fakeSyncer{}
	lister := &fakeLister{ids: []string{"1", "2", "3"}}
	const delay = 20 * time.Millisecond
	s := New(syncer, lister, delay)

	start := time.Now()
	s.RunBatch(context.Background())

	// Two inter-title gaps for three titles.
	if elapsed := time.Since(start); elapsed < 2*delay {
		t.Errorf("batch finished in %v, expected at least %v", elapsed, 2*delay)
	}
	for i := 1; i < len(syncer.times); i++ {
		if gap := syncer.times[i].Sub(syncer.times[i-1]); gap < delay {
			t.Errorf("gap between title %d and %d was %v, want >= %v", i-1, i, gap, delay)
		}
	}
}

func TestRunBatchCancelStopsBetweenTitles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	syncer := &fakeSyncer{}
	lister := &fakeLister{ids: []string{"1", "2", "3"}}
	s := New(syncer, lister, time.Hour) // would hang without cancellation

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	done := make(chan struct{})
	go func() {
		s.RunBatch(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not stop on cancellation")
	}
	if len(syncer.calls) >= 3 {
		t.Errorf("expected cancellation to skip remaining titles, calls = %v", syncer.calls)
	}
}

func TestRunBatchListFailure(t *testing.T) {
	syncer := &fakeSyncer{}
	lister := &fakeLister{err: context.DeadlineExceeded}
	s := New(syncer, lister, 0)

	summary := s.RunBatch(context.Background())
	if summary.Total != 0 || len(syncer.calls) != 0 {
		t.Errorf("expected empty summary on list failure, got %+v", summary)
	}
}

func TestRunOne(t *testing.T) {
	syncer := &fakeSyncer{outcomes: map[string]models.SyncOutcome{
		"440": models.SyncOutcomeUpdated,
	}}
	s := New(syncer, &fakeLister{}, 0)

	result := s.RunOne(context.Background(), "440")
	if result.Outcome != models.SyncOutcomeUpdated {
		t.Errorf("outcome = %s", result.Outcome)
	}
	if len(syncer.calls) != 1 || syncer.calls[0] != "440" {
		t.Errorf("calls = %v", syncer.calls)
	}
}

func TestServiceRunsStartupBatchThenTicks(t *testing.T) {
	syncer := &fakeSyncer{}
	lister := &fakeLister{ids: []string{"440"}}
	s := New(syncer, lister, 0)
	svc := NewService(s, 10*time.Millisecond, 25*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()

	err := svc.Serve(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("Serve returned %v", err)
	}

	// Startup batch plus at least one ticker batch.
	if len(syncer.calls) < 2 {
		t.Errorf("expected startup batch and a ticker batch, calls = %v", syncer.calls)
	}
}
