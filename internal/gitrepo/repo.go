// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

/*
repo.go - Branch-Per-Title Artifact Repository

Client for the hosting provider's git data API. Each tracked title owns
one branch named after its title ID; the branch carries the generated
script, metadata document and manifest files.

Commit protocol (linearizable per title):
 (a) resolve the branch tip, creating the branch from the configured
     base when absent
 (b) create one blob per changed file
 (c) create one tree referencing the new blobs on top of the previous
     tree, so unchanged files carry over
 (d) create one commit pointing at the new tree with the old tip as
     parent
 (e) advance the branch ref with force=false, a compare-and-swap
     against the tip read in (a)

A lost CAS surfaces ErrConflict; the synchronizer owns the retry
decision. Steps (b)-(d) only create unreferenced objects, so a failure
anywhere before (e) leaves the branch untouched.
*/

//nolint:staticcheck // File documentation, not package doc
package gitrepo

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/depotwatch/depotwatch/internal/config"
	"github.com/depotwatch/depotwatch/internal/fetcher"
	"github.com/depotwatch/depotwatch/internal/logging"
	"github.com/depotwatch/depotwatch/internal/metrics"
	"github.com/depotwatch/depotwatch/internal/models"
)

var (
	// ErrConflict means the branch tip moved between resolve and the
	// ref update. Nothing was written to the branch.
	ErrConflict = errors.New("branch tip moved concurrently")
	// ErrNotFound covers missing branches and missing files.
	ErrNotFound = errors.New("not found in artifact repository")
)

// maxFileBytes caps file content reads. Manifest files run to a few MB.
const maxFileBytes = 64 << 20

// FileChange is one file in a commit batch.
type FileChange struct {
	Name    string
	Content []byte
}

// CommitResult reports a successful commit.
type CommitResult struct {
	// SHA is the new tip commit.
	SHA string
	// BranchCreated is true when the title branch was created by this
	// commit, from the configured base branch.
	BranchCreated bool
}

// Repo talks to the hosting provider's git data API for one content
// repository. All HTTP goes through the shared fetcher under the
// hosting endpoint class.
type Repo struct {
	apiURL      string
	owner       string
	repo        string
	baseBranch  string
	token       string
	authorName  string
	authorEmail string
	fetcher     *fetcher.Fetcher

	// now is swappable for deterministic commit timestamps in tests.
	now func() time.Time
}

// New creates an artifact repository client from the hosting config.
func New(cfg *config.HostingConfig, f *fetcher.Fetcher) *Repo {
	return &Repo{
		apiURL:      strings.TrimRight(cfg.APIURL, "/"),
		owner:       cfg.Owner,
		repo:        cfg.Repo,
		baseBranch:  cfg.BaseBranch,
		token:       cfg.Token,
		authorName:  cfg.AuthorName,
		authorEmail: cfg.AuthorEmail,
		fetcher:     f,
		now:         time.Now,
	}
}

// BranchExists reports whether the title's branch exists.
func (r *Repo) BranchExists(ctx context.Context, titleID string) (bool, error) {
	_, err := r.refSHA(ctx, titleID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListFiles returns metadata for every file on the title's branch.
// Content is not fetched; use ReadFile for that.
func (r *Repo) ListFiles(ctx context.Context, titleID string) ([]models.ArtifactFile, error) {
	tip, err := r.refSHA(ctx, titleID)
	if err != nil {
		return nil, err
	}

	treeSHA, err := r.commitTreeSHA(ctx, tip)
	if err != nil {
		return nil, err
	}

	var tree struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
			SHA  string `json:"sha"`
			Size int64  `json:"size"`
		} `json:"tree"`
		Truncated bool `json:"truncated"`
	}
	path := fmt.Sprintf("/git/trees/%s?recursive=1", treeSHA)
	if err := r.api(ctx, http.MethodGet, path, nil, &tree); err != nil {
		return nil, err
	}
	if tree.Truncated {
		logging.Warn().Str("title_id", titleID).Msg("tree listing truncated by hosting API")
	}

	files := make([]models.ArtifactFile, 0, len(tree.Tree))
	for _, entry := range tree.Tree {
		if entry.Type != "blob" {
			continue
		}
		files = append(files, models.ArtifactFile{
			Name: entry.Path,
			Size: entry.Size,
			Type: models.DetectFileType(entry.Path),
			SHA:  entry.SHA,
		})
	}
	return files, nil
}

// ReadFile returns the raw content of one file on the title's branch.
func (r *Repo) ReadFile(ctx context.Context, titleID, name string) ([]byte, error) {
	var content struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	path := fmt.Sprintf("/contents/%s?ref=%s", url.PathEscape(name), url.QueryEscape(titleID))
	if err := r.api(ctx, http.MethodGet, path, nil, &content); err != nil {
		return nil, err
	}

	if content.Encoding != "base64" {
		return nil, fmt.Errorf("unexpected content encoding %q for %s", content.Encoding, name)
	}
	// The API wraps base64 content at 60 columns.
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("decode content of %s: %w", name, err)
	}
	return decoded, nil
}

// Commit writes a batch of files to the title's branch as one new
// history point. Atomic: either every file lands in the new commit or
// the branch is untouched.
func (r *Repo) Commit(ctx context.Context, titleID string, files []FileChange, message string) (CommitResult, error) {
	if len(files) == 0 {
		return CommitResult{}, errors.New("commit requires at least one file")
	}

	// (a) resolve the tip, bootstrapping the branch when absent.
	tip, created, err := r.resolveTip(ctx, titleID)
	if err != nil {
		return CommitResult{}, err
	}

	// (b) one blob per file.
	entries := make([]treeEntry, 0, len(files))
	for _, fc := range files {
		blobSHA, err := r.createBlob(ctx, fc.Content)
		if err != nil {
			return CommitResult{}, fmt.Errorf("create blob for %s: %w", fc.Name, err)
		}
		entries = append(entries, treeEntry{
			Path: fc.Name,
			Mode: "100644",
			Type: "blob",
			SHA:  blobSHA,
		})
	}

	// (c) one tree on top of the previous commit's tree.
	baseTree, err := r.commitTreeSHA(ctx, tip)
	if err != nil {
		return CommitResult{}, err
	}
	treeSHA, err := r.createTree(ctx, baseTree, entries)
	if err != nil {
		return CommitResult{}, err
	}

	// (d) one commit with the old tip as parent.
	commitSHA, err := r.createCommit(ctx, message, treeSHA, tip)
	if err != nil {
		return CommitResult{}, err
	}

	// (e) CAS the ref forward.
	if err := r.updateRef(ctx, titleID, commitSHA); err != nil {
		return CommitResult{}, err
	}

	logging.Info().
		Str("title_id", titleID).
		Str("commit", commitSHA).
		Int("files", len(files)).
		Bool("branch_created", created).
		Msg("artifact commit applied")
	return CommitResult{SHA: commitSHA, BranchCreated: created}, nil
}

// resolveTip returns the current tip of the title branch, creating the
// branch from the base branch when it does not exist yet.
func (r *Repo) resolveTip(ctx context.Context, titleID string) (sha string, created bool, err error) {
	tip, err := r.refSHA(ctx, titleID)
	if err == nil {
		return tip, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", false, err
	}

	baseSHA, err := r.refSHA(ctx, r.baseBranch)
	if err != nil {
		return "", false, fmt.Errorf("resolve base branch %s: %w", r.baseBranch, err)
	}

	body := map[string]string{
		"ref": "refs/heads/" + titleID,
		"sha": baseSHA,
	}
	if err := r.api(ctx, http.MethodPost, "/git/refs", body, nil); err != nil {
		// Lost a create race: another writer made the branch first.
		// Re-read and continue against their tip.
		if errors.Is(err, ErrConflict) {
			tip, rerr := r.refSHA(ctx, titleID)
			if rerr != nil {
				return "", false, rerr
			}
			return tip, false, nil
		}
		return "", false, fmt.Errorf("create branch %s: %w", titleID, err)
	}
	return baseSHA, true, nil
}

func (r *Repo) refSHA(ctx context.Context, branch string) (string, error) {
	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	path := "/git/ref/heads/" + url.PathEscape(branch)
	if err := r.api(ctx, http.MethodGet, path, nil, &ref); err != nil {
		return "", err
	}
	return ref.Object.SHA, nil
}

func (r *Repo) commitTreeSHA(ctx context.Context, commitSHA string) (string, error) {
	var commit struct {
		Tree struct {
			SHA string `json:"sha"`
		} `json:"tree"`
	}
	if err := r.api(ctx, http.MethodGet, "/git/commits/"+commitSHA, nil, &commit); err != nil {
		return "", fmt.Errorf("resolve tree of %s: %w", commitSHA, err)
	}
	return commit.Tree.SHA, nil
}

func (r *Repo) createBlob(ctx context.Context, content []byte) (string, error) {
	body := map[string]string{
		"content":  base64.StdEncoding.EncodeToString(content),
		"encoding": "base64",
	}
	var blob struct {
		SHA string `json:"sha"`
	}
	if err := r.api(ctx, http.MethodPost, "/git/blobs", body, &blob); err != nil {
		return "", err
	}
	return blob.SHA, nil
}

type treeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

func (r *Repo) createTree(ctx context.Context, baseTree string, entries []treeEntry) (string, error) {
	body := map[string]interface{}{
		"base_tree": baseTree,
		"tree":      entries,
	}
	var tree struct {
		SHA string `json:"sha"`
	}
	if err := r.api(ctx, http.MethodPost, "/git/trees", body, &tree); err != nil {
		return "", fmt.Errorf("create tree: %w", err)
	}
	return tree.SHA, nil
}

func (r *Repo) createCommit(ctx context.Context, message, treeSHA, parent string) (string, error) {
	body := map[string]interface{}{
		"message": message,
		"tree":    treeSHA,
		"parents": []string{parent},
		"author": map[string]string{
			"name":  r.authorName,
			"email": r.authorEmail,
			"date":  r.now().UTC().Format(time.RFC3339),
		},
	}
	var commit struct {
		SHA string `json:"sha"`
	}
	if err := r.api(ctx, http.MethodPost, "/git/commits", body, &commit); err != nil {
		return "", fmt.Errorf("create commit: %w", err)
	}
	return commit.SHA, nil
}

func (r *Repo) updateRef(ctx context.Context, branch, sha string) error {
	body := map[string]interface{}{
		"sha": sha,
		// force=false is the compare-and-swap: the update is rejected
		// unless it fast-forwards the tip we built on.
		"force": false,
	}
	path := "/git/refs/heads/" + url.PathEscape(branch)
	err := r.api(ctx, http.MethodPatch, path, body, nil)
	if errors.Is(err, ErrConflict) {
		metrics.CommitConflicts.Inc()
		logging.Warn().Str("branch", branch).Msg("ref update lost compare-and-swap")
	}
	return err
}

// api performs one hosting API call. Non-2xx statuses map to the
// package sentinels: 404 -> ErrNotFound, 409/422 -> ErrConflict.
func (r *Repo) api(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	header := http.Header{}
	header.Set("Accept", "application/vnd.github+json")
	if r.token != "" {
		header.Set("Authorization", "Bearer "+r.token)
	}
	if payload != nil {
		header.Set("Content-Type", "application/json")
	}

	fullURL := fmt.Sprintf("%s/repos/%s/%s%s", r.apiURL, r.owner, r.repo, path)
	resp, err := r.fetcher.Do(ctx, fetcher.ClassHosting, method, fullURL, header, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fallthrough to decode
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s %s", ErrConflict, method, path)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("hosting API %s %s: status %d: %s", method, path, resp.StatusCode, snippet)
	}

	if out == nil {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response of %s %s: %w", method, path, err)
	}
	return nil
}
