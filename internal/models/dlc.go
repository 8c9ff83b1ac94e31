// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

package models

import "time"

// DlcType separates real content DLC from cosmetic extras (soundtracks,
// art books, skins). Completion percentages only count content DLC.
type DlcType string

const (
	DlcTypeContent DlcType = "content"
	DlcTypeExtra   DlcType = "extra"
)

// DlcInfo is one downloadable-content title associated with a parent
// title. Constructed fresh on every completeness query.
type DlcInfo struct {
	AppID       string  `json:"app_id"`
	Name        string  `json:"name"`
	IsTracked   bool    `json:"is_tracked"`
	HasOwnDepot bool    `json:"has_own_depot"`
	DlcType     DlcType `json:"dlc_type"`
}

// DlcReport is the result of a DLC completeness analysis for one title.
type DlcReport struct {
	TitleID           string    `json:"title_id"`
	TotalDlc          int       `json:"total_dlc"`
	ContentDlcCount   int       `json:"content_dlc_count"`
	ExtraDlcCount     int       `json:"extra_dlc_count"`
	TrackedContentDlc int       `json:"tracked_content_dlc"`
	CompletionPercent float64   `json:"completion_percent"`
	DlcList           []DlcInfo `json:"dlc_list"`
	GeneratedAt       time.Time `json:"generated_at"`
}
