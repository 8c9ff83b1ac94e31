// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/depotwatch/depotwatch/internal/gitrepo"
	"github.com/depotwatch/depotwatch/internal/models"
	"github.com/depotwatch/depotwatch/internal/store"
	"github.com/depotwatch/depotwatch/internal/upstream"
)

type fakeResolver struct {
	info *upstream.AppInfo
	err  error
}

func (f *fakeResolver) Info(ctx context.Context, titleID string) (*upstream.AppInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

type fakeRepo struct {
	commits       []string // order log of committed titles
	lastFiles     []gitrepo.FileChange
	conflictsLeft int
	commitErr     error
}

func (f *fakeRepo) Commit(ctx context.Context, titleID string, files []gitrepo.FileChange, message string) (gitrepo.CommitResult, error) {
	if f.commitErr != nil {
		return gitrepo.CommitResult{}, f.commitErr
	}
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return gitrepo.CommitResult{}, gitrepo.ErrConflict
	}
	f.commits = append(f.commits, titleID)
	f.lastFiles = files
	return gitrepo.CommitResult{SHA: fmt.Sprintf("commit-%d", len(f.commits))}, nil
}

func (f *fakeRepo) ListFiles(ctx context.Context, titleID string) ([]models.ArtifactFile, error) {
	files := make([]models.ArtifactFile, 0, len(f.lastFiles))
	for _, fc := range f.lastFiles {
		files = append(files, models.ArtifactFile{
			Name: fc.Name,
			Size: int64(len(fc.Content)),
			Type: models.DetectFileType(fc.Name),
		})
	}
	return files, nil
}

type fakeStore struct {
	records map[string]*models.TitleRecord
	// ops logs "get"/"put" so tests can assert persist ordering
	// relative to fakeRepo.commits.
	ops    []string
	putErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*models.TitleRecord)}
}

func (f *fakeStore) Get(ctx context.Context, titleID string) (*models.TitleRecord, error) {
	f.ops = append(f.ops, "get")
	rec, ok := f.records[titleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec.Clone(), nil
}

func (f *fakeStore) Put(ctx context.Context, rec *models.TitleRecord) error {
	f.ops = append(f.ops, "put")
	if f.putErr != nil {
		return f.putErr
	}
	f.records[rec.TitleID] = rec.Clone()
	return nil
}

func testInfo() *upstream.AppInfo {
	return &upstream.AppInfo{
		TitleID: "440",
		Name:    "Team Fortress 2",
		BuildID: "19817968",
		Manifests: map[string]string{
			"440": "1118032470228587934",
			"441": "7707612755534478338",
		},
		DLCIDs:    []string{"629330"},
		HasDepots: true,
	}
}

func newTestSyncer(resolver *fakeResolver, repo *fakeRepo, titles *fakeStore) *Syncer {
	return New(resolver, repo, titles, 3)
}

func TestSyncCreatesAndConverges(t *testing.T) {
	resolver := &fakeResolver{info: testInfo()}
	repo := &fakeRepo{}
	titles := newFakeStore()
	s := newTestSyncer(resolver, repo, titles)

	result := s.SyncTitle(context.Background(), "440")
	if result.Outcome != models.SyncOutcomeUpdated {
		t.Fatalf("outcome = %s, reason = %s", result.Outcome, result.Reason)
	}
	if len(result.ChangedDepots) != 2 {
		t.Errorf("changed depots = %v", result.ChangedDepots)
	}
	if len(result.Files) != 2 {
		t.Errorf("expected script and metadata in file list, got %v", result.Files)
	}

	// Convergence: the record mirrors every resolved depot.
	rec := titles.records["440"]
	if rec == nil {
		t.Fatal("expected a persisted record")
	}
	for depotID, manifestID := range resolver.info.Manifests {
		if rec.DepotManifests[depotID] != manifestID {
			t.Errorf("record depot %s = %q, want %q", depotID, rec.DepotManifests[depotID], manifestID)
		}
	}
	if !rec.AutoUpdated {
		t.Error("expected autoUpdated to be set")
	}
	if rec.BuildID != "19817968" {
		t.Errorf("record build id = %q", rec.BuildID)
	}
}

// TestNoOpIdempotence: a second run with no upstream change performs
// zero commits.
func TestNoOpIdempotence(t *testing.T) {
	resolver := &fakeResolver{info: testInfo()}
	repo := &fakeRepo{}
	titles := newFakeStore()
	s := newTestSyncer(resolver, repo, titles)

	first := s.SyncTitle(context.Background(), "440")
	if first.Outcome != models.SyncOutcomeUpdated {
		t.Fatalf("first run outcome = %s", first.Outcome)
	}
	commitsAfterFirst := len(repo.commits)

	second := s.SyncTitle(context.Background(), "440")
	if second.Outcome != models.SyncOutcomeUpToDate {
		t.Fatalf("second run outcome = %s", second.Outcome)
	}
	if len(repo.commits) != commitsAfterFirst {
		t.Errorf("second run committed: %v", repo.commits)
	}
}

func TestPartialDriftCommitsOnlyChangedDepots(t *testing.T) {
	resolver := &fakeResolver{info: testInfo()}
	repo := &fakeRepo{}
	titles := newFakeStore()
	titles.records["440"] = &models.TitleRecord{
		TitleID: "440",
		DepotManifests: map[string]string{
			"440": "1118032470228587934", // current
			"441": "stale-manifest",
		},
	}
	s := newTestSyncer(resolver, repo, titles)

	result := s.SyncTitle(context.Background(), "440")
	if result.Outcome != models.SyncOutcomeUpdated {
		t.Fatalf("outcome = %s, reason = %s", result.Outcome, result.Reason)
	}
	if len(result.ChangedDepots) != 1 || result.ChangedDepots[0] != "441" {
		t.Errorf("changed depots = %v, want [441]", result.ChangedDepots)
	}
}

func TestUpstreamUnreachableIsSoftFailure(t *testing.T) {
	resolver := &fakeResolver{err: fmt.Errorf("%w: connection refused", upstream.ErrUnavailable)}
	repo := &fakeRepo{}
	titles := newFakeStore()
	s := newTestSyncer(resolver, repo, titles)

	result := s.SyncTitle(context.Background(), "440")
	if result.Outcome != models.SyncOutcomeUnreachable {
		t.Fatalf("outcome = %s", result.Outcome)
	}
	if len(repo.commits) != 0 {
		t.Error("unreachable upstream must not commit")
	}
	if len(titles.records) != 0 {
		t.Error("unreachable upstream must not persist")
	}
}

func TestTitleNotFoundUpstream(t *testing.T) {
	resolver := &fakeResolver{err: upstream.ErrNotFound}
	s := newTestSyncer(resolver, &fakeRepo{}, newFakeStore())

	result := s.SyncTitle(context.Background(), "999999")
	if result.Outcome != models.SyncOutcomeFailed {
		t.Fatalf("outcome = %s", result.Outcome)
	}
}

func TestConflictRetrySucceeds(t *testing.T) {
	resolver := &fakeResolver{info: testInfo()}
	repo := &fakeRepo{conflictsLeft: 2}
	titles := newFakeStore()
	s := newTestSyncer(resolver, repo, titles)

	result := s.SyncTitle(context.Background(), "440")
	if result.Outcome != models.SyncOutcomeUpdated {
		t.Fatalf("expected success after conflict retries, got %s (%s)", result.Outcome, result.Reason)
	}
	if len(repo.commits) != 1 {
		t.Errorf("expected exactly one landed commit, got %d", len(repo.commits))
	}
}

func TestConflictRetriesExhausted(t *testing.T) {
	resolver := &fakeResolver{info: testInfo()}
	repo := &fakeRepo{conflictsLeft: 3}
	titles := newFakeStore()
	s := newTestSyncer(resolver, repo, titles)

	result := s.SyncTitle(context.Background(), "440")
	if result.Outcome != models.SyncOutcomeFailed {
		t.Fatalf("outcome = %s", result.Outcome)
	}

	// Ordering invariant: no commit landed, so no record may exist.
	if len(titles.records) != 0 {
		t.Error("record persisted without a confirmed commit")
	}
}

// TestPersistOnlyAfterCommit asserts the write ordering: the store put
// happens strictly after the artifact commit.
func TestPersistOnlyAfterCommit(t *testing.T) {
	resolver := &fakeResolver{info: testInfo()}
	titles := newFakeStore()
	repo := &fakeRepo{}
	s := newTestSyncer(resolver, repo, titles)

	result := s.SyncTitle(context.Background(), "440")
	if result.Outcome != models.SyncOutcomeUpdated {
		t.Fatalf("outcome = %s", result.Outcome)
	}

	// The store log must be get-then-put, with the commit in between
	// (the fake repo recorded exactly one commit).
	if len(titles.ops) != 2 || titles.ops[0] != "get" || titles.ops[1] != "put" {
		t.Errorf("store ops = %v", titles.ops)
	}
	if len(repo.commits) != 1 {
		t.Errorf("commits = %v", repo.commits)
	}
}

func TestPersistFailureReportsFailed(t *testing.T) {
	resolver := &fakeResolver{info: testInfo()}
	repo := &fakeRepo{}
	titles := newFakeStore()
	titles.putErr = errors.New("disk full")
	s := newTestSyncer(resolver, repo, titles)

	result := s.SyncTitle(context.Background(), "440")
	if result.Outcome != models.SyncOutcomeFailed {
		t.Fatalf("outcome = %s", result.Outcome)
	}
	// The commit landed; the next run re-detects the same drift.
	if len(repo.commits) != 1 {
		t.Errorf("commits = %v", repo.commits)
	}
}

func TestNonConflictCommitErrorFailsFast(t *testing.T) {
	resolver := &fakeResolver{info: testInfo()}
	repo := &fakeRepo{commitErr: errors.New("hosting API rejected token")}
	titles := newFakeStore()
	s := newTestSyncer(resolver, repo, titles)

	result := s.SyncTitle(context.Background(), "440")
	if result.Outcome != models.SyncOutcomeFailed {
		t.Fatalf("outcome = %s", result.Outcome)
	}
	if len(titles.records) != 0 {
		t.Error("record persisted despite failed commit")
	}
}
