// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

/*
syncer.go - Drift Detector / Synchronizer

Runs the per-title reconciliation state machine to completion:

  Resolve -> Compare -> Decide -> Apply -> Persist

Ordering invariant: the title record is written only after the artifact
commit is confirmed, so the local store can never claim a manifest
identifier that was not actually written to the branch. A lost
compare-and-swap during Apply is retried a bounded number of times;
every retry resolves the branch tip again.
*/

//nolint:staticcheck // File documentation, not package doc
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/depotwatch/depotwatch/internal/gitrepo"
	"github.com/depotwatch/depotwatch/internal/logging"
	"github.com/depotwatch/depotwatch/internal/metrics"
	"github.com/depotwatch/depotwatch/internal/models"
	"github.com/depotwatch/depotwatch/internal/store"
	"github.com/depotwatch/depotwatch/internal/upstream"
)

const defaultCommitRetries = 3

// Resolver is the upstream catalog surface the synchronizer needs.
type Resolver interface {
	Info(ctx context.Context, titleID string) (*upstream.AppInfo, error)
}

// ArtifactRepo is the artifact repository surface the synchronizer needs.
type ArtifactRepo interface {
	Commit(ctx context.Context, titleID string, files []gitrepo.FileChange, message string) (gitrepo.CommitResult, error)
	ListFiles(ctx context.Context, titleID string) ([]models.ArtifactFile, error)
}

// TitleStore is the persistence surface the synchronizer needs.
type TitleStore interface {
	Get(ctx context.Context, titleID string) (*models.TitleRecord, error)
	Put(ctx context.Context, rec *models.TitleRecord) error
}

// Syncer reconciles one title at a time against the upstream catalog.
type Syncer struct {
	resolver      Resolver
	repo          ArtifactRepo
	store         TitleStore
	commitRetries int

	// now is swappable for deterministic timestamps in tests.
	now func() time.Time
}

// New creates a synchronizer. commitRetries <= 0 selects the default.
func New(resolver Resolver, repo ArtifactRepo, titles TitleStore, commitRetries int) *Syncer {
	if commitRetries <= 0 {
		commitRetries = defaultCommitRetries
	}
	return &Syncer{
		resolver:      resolver,
		repo:          repo,
		store:         titles,
		commitRetries: commitRetries,
		now:           time.Now,
	}
}

// SyncTitle runs the full reconciliation state machine for one title.
// Failures are reported in the result, never as a panic or a batch
// abort; the caller decides what a failure means.
func (s *Syncer) SyncTitle(ctx context.Context, titleID string) models.SyncResult {
	start := s.now()
	result := s.syncTitle(ctx, titleID)
	result.TitleID = titleID
	result.Duration = s.now().Sub(start)

	metrics.SyncRuns.WithLabelValues(string(result.Outcome)).Inc()
	metrics.SyncDuration.Observe(result.Duration.Seconds())

	evt := logging.Info()
	if result.Failed() {
		evt = logging.Warn()
	}
	evt.Str("title_id", titleID).
		Str("outcome", string(result.Outcome)).
		Strs("changed_depots", result.ChangedDepots).
		Str("reason", result.Reason).
		Dur("duration", result.Duration).
		Msg("title sync finished")

	return result
}

func (s *Syncer) syncTitle(ctx context.Context, titleID string) models.SyncResult {
	// Resolve.
	info, err := s.resolver.Info(ctx, titleID)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return models.SyncResult{
				Outcome: models.SyncOutcomeFailed,
				Reason:  "title not found upstream",
			}
		}
		// Unavailable is a soft failure: the batch moves on.
		return models.SyncResult{
			Outcome: models.SyncOutcomeUnreachable,
			Reason:  fmt.Sprintf("upstream unreachable: %v", err),
		}
	}

	// Compare. An absent record is an empty map: every resolved depot
	// is then a pending change.
	rec, err := s.store.Get(ctx, titleID)
	if errors.Is(err, store.ErrNotFound) {
		rec = &models.TitleRecord{
			TitleID:        titleID,
			DepotManifests: make(map[string]string),
		}
	} else if err != nil {
		return models.SyncResult{
			Outcome: models.SyncOutcomeFailed,
			Reason:  fmt.Sprintf("load title record: %v", err),
		}
	}

	var pending []string
	for depotID, manifestID := range info.Manifests {
		if rec.DepotManifests[depotID] != manifestID {
			pending = append(pending, depotID)
		}
	}
	sort.Strings(pending)

	// Decide. The up-to-date path performs no write at all.
	if len(pending) == 0 {
		return models.SyncResult{Outcome: models.SyncOutcomeUpToDate}
	}

	// Apply. Content depends only on the resolved info, so it is
	// generated once; Commit resolves the branch tip fresh each call, so
	// a retry after a lost compare-and-swap builds on the winner's tip.
	commit, err := s.apply(ctx, info)
	if err != nil {
		return models.SyncResult{
			Outcome:       models.SyncOutcomeFailed,
			ChangedDepots: pending,
			Reason:        err.Error(),
		}
	}

	// Persist, strictly after the confirmed commit.
	updated := rec.Clone()
	for _, depotID := range pending {
		updated.DepotManifests[depotID] = info.Manifests[depotID]
	}
	updated.BuildID = info.BuildID
	updated.LastSyncedAt = s.now().UTC()
	updated.AutoUpdated = true
	if err := s.store.Put(ctx, updated); err != nil {
		// The branch holds the new state; the record does not. The next
		// run re-detects the same drift and converges.
		return models.SyncResult{
			Outcome:       models.SyncOutcomeFailed,
			ChangedDepots: pending,
			BranchCreated: commit.BranchCreated,
			Reason:        fmt.Sprintf("persist title record: %v", err),
		}
	}

	files, err := s.repo.ListFiles(ctx, titleID)
	if err != nil {
		logging.Warn().Str("title_id", titleID).Err(err).Msg("list files after commit failed")
		files = nil
	}

	return models.SyncResult{
		Outcome:       models.SyncOutcomeUpdated,
		ChangedDepots: pending,
		Files:         files,
		BranchCreated: commit.BranchCreated,
	}
}

// apply commits the regenerated artifacts, retrying lost CAS races.
func (s *Syncer) apply(ctx context.Context, info *upstream.AppInfo) (gitrepo.CommitResult, error) {
	metadata, err := GenerateMetadata(info, s.now())
	if err != nil {
		return gitrepo.CommitResult{}, err
	}
	files := []gitrepo.FileChange{
		{Name: ScriptName(info.TitleID), Content: GenerateScript(info)},
		{Name: MetadataName(info.TitleID), Content: metadata},
	}

	message := commitMessage(info)

	var lastErr error
	for attempt := 1; attempt <= s.commitRetries; attempt++ {
		result, err := s.repo.Commit(ctx, info.TitleID, files, message)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, gitrepo.ErrConflict) {
			return gitrepo.CommitResult{}, fmt.Errorf("commit artifacts: %w", err)
		}
		lastErr = err
		logging.Warn().
			Str("title_id", info.TitleID).
			Int("attempt", attempt).
			Msg("commit conflict, retrying against new tip")
	}
	return gitrepo.CommitResult{}, fmt.Errorf("commit conflict retries exhausted: %w", lastErr)
}

func commitMessage(info *upstream.AppInfo) string {
	name := info.Name
	if name == "" {
		name = info.TitleID
	}
	msg := fmt.Sprintf("Update %s (%s)", name, info.TitleID)
	if info.BuildID != "" {
		msg += " build " + info.BuildID
	}
	return strings.TrimSpace(msg)
}
