// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/depotwatch/depotwatch/internal/gitrepo"
	"github.com/depotwatch/depotwatch/internal/logging"
	"github.com/depotwatch/depotwatch/internal/models"
	"github.com/depotwatch/depotwatch/internal/store"
	"github.com/depotwatch/depotwatch/internal/syncer"
	"github.com/depotwatch/depotwatch/internal/upstream"
	"github.com/depotwatch/depotwatch/internal/validation"
)

// TitleReader is the store surface the handlers need.
type TitleReader interface {
	Get(ctx context.Context, titleID string) (*models.TitleRecord, error)
	List(ctx context.Context) ([]*models.TitleRecord, error)
}

// ArtifactReader is the repository surface the handlers need.
type ArtifactReader interface {
	ListFiles(ctx context.Context, titleID string) ([]models.ArtifactFile, error)
	ReadFile(ctx context.Context, titleID, name string) ([]byte, error)
}

// SyncRunner triggers one on-demand reconciliation.
type SyncRunner interface {
	RunOne(ctx context.Context, titleID string) models.SyncResult
}

// DlcAnalyzer builds completeness reports.
type DlcAnalyzer interface {
	Analyze(ctx context.Context, titleID string) (*models.DlcReport, error)
}

// CatalogResolver is the upstream surface the depot view needs.
type CatalogResolver interface {
	Info(ctx context.Context, titleID string) (*upstream.AppInfo, error)
}

// Handler carries the collaborators behind the HTTP surface.
type Handler struct {
	titles   TitleReader
	repo     ArtifactReader
	runner   SyncRunner
	analyzer DlcAnalyzer
	resolver CatalogResolver
}

// NewHandler wires the API handlers.
func NewHandler(titles TitleReader, repo ArtifactReader, runner SyncRunner, analyzer DlcAnalyzer, resolver CatalogResolver) *Handler {
	return &Handler{titles: titles, repo: repo, runner: runner, analyzer: analyzer, resolver: resolver}
}

// apiResponse is the envelope every JSON endpoint returns.
type apiResponse struct {
	Status    string      `json:"status"`
	Data      interface{} `json:"data,omitempty"`
	Error     *apiError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")

	body, err := json.Marshal(apiResponse{
		Status:    "ok",
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		logging.Error().Err(err).Msg("marshal API response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")

	body, _ := json.Marshal(apiResponse{
		Status:    "error",
		Error:     &apiError{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	})
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// titleIDParam extracts and validates the {id} route parameter.
// Responds with 400 and returns false on an invalid identifier.
func titleIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !validation.IsTitleID(id) {
		respondError(w, http.StatusBadRequest, "INVALID_TITLE_ID", "title id must be a decimal digit string")
		return "", false
	}
	return id, true
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ListTitles returns all known title records.
func (h *Handler) ListTitles(w http.ResponseWriter, r *http.Request) {
	records, err := h.titles.List(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("list titles")
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to list titles")
		return
	}
	if records == nil {
		records = []*models.TitleRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}

// GetTitle returns one title record.
func (h *Handler) GetTitle(w http.ResponseWriter, r *http.Request) {
	id, ok := titleIDParam(w, r)
	if !ok {
		return
	}

	rec, err := h.titles.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "TITLE_NOT_FOUND", "title is not tracked")
		return
	}
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("title_id", id).Msg("get title")
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to load title")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// ListTitleFiles returns file metadata for a title's branch.
func (h *Handler) ListTitleFiles(w http.ResponseWriter, r *http.Request) {
	id, ok := titleIDParam(w, r)
	if !ok {
		return
	}

	files, err := h.repo.ListFiles(r.Context(), id)
	if errors.Is(err, gitrepo.ErrNotFound) {
		respondError(w, http.StatusNotFound, "BRANCH_NOT_FOUND", "title has no branch yet")
		return
	}
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("title_id", id).Msg("list files")
		respondError(w, http.StatusBadGateway, "REPOSITORY_ERROR", "failed to list branch files")
		return
	}
	respondJSON(w, http.StatusOK, files)
}

// GetTitleFile streams one file's raw content.
func (h *Handler) GetTitleFile(w http.ResponseWriter, r *http.Request) {
	id, ok := titleIDParam(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")

	content, err := h.repo.ReadFile(r.Context(), id, name)
	if errors.Is(err, gitrepo.ErrNotFound) {
		respondError(w, http.StatusNotFound, "FILE_NOT_FOUND", "file is not on the title branch")
		return
	}
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("title_id", id).Str("file", name).Msg("read file")
		respondError(w, http.StatusBadGateway, "REPOSITORY_ERROR", "failed to read file")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

// GetTitleDLC returns the DLC completeness report for a title.
func (h *Handler) GetTitleDLC(w http.ResponseWriter, r *http.Request) {
	id, ok := titleIDParam(w, r)
	if !ok {
		return
	}

	report, err := h.analyzer.Analyze(r.Context(), id)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("title_id", id).Msg("dlc analysis")
		respondError(w, http.StatusBadGateway, "ANALYSIS_ERROR", "failed to analyze DLC completeness")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// GetTitleDepots returns the depot view for a title: the upstream
// depot table joined with the manifest state recorded on the title's
// branch. Recomputed on every read, never persisted.
func (h *Handler) GetTitleDepots(w http.ResponseWriter, r *http.Request) {
	id, ok := titleIDParam(w, r)
	if !ok {
		return
	}

	info, err := h.resolver.Info(r.Context(), id)
	if errors.Is(err, upstream.ErrNotFound) {
		respondError(w, http.StatusNotFound, "TITLE_NOT_FOUND", "title is unknown upstream")
		return
	}
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("title_id", id).Msg("resolve depot table")
		respondError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "failed to resolve depot table")
		return
	}

	depots := make([]models.DepotInfo, len(info.Depots))
	copy(depots, info.Depots)

	// Join with the branch: a mirrored depot shows the manifest the
	// branch actually holds, which may trail the upstream declaration
	// until the next reconciliation.
	raw, err := h.repo.ReadFile(r.Context(), id, syncer.MetadataName(id))
	switch {
	case err == nil:
		meta, perr := syncer.ParseMetadata(raw)
		if perr != nil {
			logging.Ctx(r.Context()).Warn().Err(perr).Str("title_id", id).Msg("unreadable branch metadata, serving upstream view")
			break
		}
		for i := range depots {
			if gid, ok := meta.DepotManifests[depots[i].DepotID]; ok {
				depots[i].ManifestID = gid
			}
		}
	case errors.Is(err, gitrepo.ErrNotFound):
		// No branch yet; the upstream declaration is the whole view.
	default:
		logging.Ctx(r.Context()).Warn().Err(err).Str("title_id", id).Msg("branch metadata unavailable, serving upstream view")
	}

	respondJSON(w, http.StatusOK, depots)
}

// SyncTitle triggers an on-demand reconciliation and reports the
// outcome synchronously, including the file list now available.
func (h *Handler) SyncTitle(w http.ResponseWriter, r *http.Request) {
	id, ok := titleIDParam(w, r)
	if !ok {
		return
	}

	result := h.runner.RunOne(r.Context(), id)
	status := http.StatusOK
	if result.Failed() {
		// Soft failure still answers with the structured result; the
		// command layer renders the reason.
		status = http.StatusBadGateway
	}
	respondJSON(w, status, result)
}
