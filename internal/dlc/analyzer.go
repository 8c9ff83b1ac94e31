// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

// Package dlc analyzes how completely a title's downloadable content is
// mirrored. DLC is classified by display name into content vs extras
// (soundtracks, cosmetics, art books); completion percentage counts
// content DLC only.
package dlc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/depotwatch/depotwatch/internal/cache"
	"github.com/depotwatch/depotwatch/internal/gitrepo"
	"github.com/depotwatch/depotwatch/internal/logging"
	"github.com/depotwatch/depotwatch/internal/models"
	"github.com/depotwatch/depotwatch/internal/syncer"
	"github.com/depotwatch/depotwatch/internal/upstream"
)

// extraKeywords classifies a DLC as a cosmetic extra when its name
// matches any entry case-insensitively.
var extraKeywords = []string{
	"soundtrack",
	"cosmetic",
	"skin",
	"costume",
	"artbook",
	"art book",
	"wallpaper",
	"preorder",
	"pre-order",
	"bonus pack",
	"deluxe upgrade",
	"digital deluxe",
	"credits",
}

// Resolver is the upstream surface the analyzer needs.
type Resolver interface {
	Info(ctx context.Context, titleID string) (*upstream.AppInfo, error)
}

// ArtifactRepo is the repository surface the analyzer needs.
type ArtifactRepo interface {
	BranchExists(ctx context.Context, titleID string) (bool, error)
	ReadFile(ctx context.Context, titleID, name string) ([]byte, error)
}

// Analyzer computes DLC completeness reports.
type Analyzer struct {
	resolver Resolver
	repo     ArtifactRepo
	cache    cache.Store
	ttl      time.Duration

	now func() time.Time
}

// New creates an analyzer. Reports are cached in the injected store for
// ttl; a zero ttl disables report caching.
func New(resolver Resolver, repo ArtifactRepo, c cache.Store, ttl time.Duration) *Analyzer {
	return &Analyzer{
		resolver: resolver,
		repo:     repo,
		cache:    c,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Analyze builds a completeness report for one title's DLC.
//
// Tracked status checks the parent's generated script first (free, the
// file is fetched once per report), and falls back to a per-DLC branch
// existence check. Repository errors during the fallback degrade that
// DLC to isTracked=false rather than failing the report.
func (a *Analyzer) Analyze(ctx context.Context, titleID string) (*models.DlcReport, error) {
	cacheKey := "dlcreport:" + titleID
	if cached, ok := a.cache.Get(cacheKey); ok {
		if report, ok := cached.(*models.DlcReport); ok {
			return report, nil
		}
	}

	info, err := a.resolver.Info(ctx, titleID)
	if err != nil {
		return nil, fmt.Errorf("resolve title %s: %w", titleID, err)
	}

	// The parent script is the free tracked-status signal. A missing
	// branch or file just means no script references exist yet.
	script, err := a.repo.ReadFile(ctx, titleID, syncer.ScriptName(titleID))
	if err != nil && !errors.Is(err, gitrepo.ErrNotFound) {
		logging.Warn().Str("title_id", titleID).Err(err).Msg("parent script unavailable for tracked check")
		script = nil
	}

	// The resolver's ID list is a set with an order; a DLC declared both
	// in the catalog list and on its depot must count once.
	dlcIDs := uniqueIDs(info.DLCIDs)

	report := &models.DlcReport{
		TitleID:     titleID,
		TotalDlc:    len(dlcIDs),
		DlcList:     make([]models.DlcInfo, 0, len(dlcIDs)),
		GeneratedAt: a.now().UTC(),
	}

	for _, dlcID := range dlcIDs {
		dlcInfo := a.describe(ctx, dlcID, script)
		report.DlcList = append(report.DlcList, dlcInfo)

		if dlcInfo.DlcType == models.DlcTypeExtra {
			report.ExtraDlcCount++
			continue
		}
		report.ContentDlcCount++
		if dlcInfo.IsTracked {
			report.TrackedContentDlc++
		}
	}

	report.CompletionPercent = completionPercent(report.TrackedContentDlc, report.ContentDlcCount)

	if a.ttl > 0 {
		a.cache.SetWithTTL(cacheKey, report, a.ttl)
	}
	return report, nil
}

// describe builds the DlcInfo for one DLC identifier. Lookup failures
// degrade to an untracked content DLC under the bare identifier so one
// bad DLC cannot sink the whole report.
func (a *Analyzer) describe(ctx context.Context, dlcID string, parentScript []byte) models.DlcInfo {
	dlcInfo := models.DlcInfo{AppID: dlcID, Name: dlcID, DlcType: models.DlcTypeContent}

	if info, err := a.resolver.Info(ctx, dlcID); err == nil {
		if info.Name != "" {
			dlcInfo.Name = info.Name
		}
		dlcInfo.HasOwnDepot = info.HasDepots
	} else {
		logging.Debug().Str("dlc_id", dlcID).Err(err).Msg("dlc lookup failed, using bare identifier")
	}

	dlcInfo.DlcType = Classify(dlcInfo.Name)

	if syncer.ScriptReferences(parentScript, dlcID) {
		dlcInfo.IsTracked = true
		return dlcInfo
	}

	exists, err := a.repo.BranchExists(ctx, dlcID)
	if err != nil {
		// Graceful degradation: report untracked instead of raising.
		logging.Warn().Str("dlc_id", dlcID).Err(err).Msg("branch check failed, reporting untracked")
		return dlcInfo
	}
	dlcInfo.IsTracked = exists
	return dlcInfo
}

// Classify maps a DLC display name to content or extra.
func Classify(name string) models.DlcType {
	lower := strings.ToLower(name)
	for _, keyword := range extraKeywords {
		if strings.Contains(lower, keyword) {
			return models.DlcTypeExtra
		}
	}
	return models.DlcTypeContent
}

// uniqueIDs drops duplicate identifiers, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// completionPercent is round(tracked/content*100, 2), defined as 100
// when there is no content DLC at all.
func completionPercent(tracked, content int) float64 {
	if content == 0 {
		return 100
	}
	return math.Round(float64(tracked)/float64(content)*100*100) / 100
}
