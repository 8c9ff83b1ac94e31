// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

package models

import "time"

// TitleRecord is the last-known sync state for one catalog title.
//
// DepotManifests must only ever contain manifest identifiers that the
// synchronizer has confirmed were committed to the title's artifact
// branch. The record is written after the commit succeeds, never before.
type TitleRecord struct {
	TitleID        string            `json:"title_id"`
	DepotManifests map[string]string `json:"depot_manifests"`
	BuildID        string            `json:"build_id,omitempty"`
	LastSyncedAt   time.Time         `json:"last_synced_at"`
	AutoUpdated    bool              `json:"auto_updated"`
}

// Clone returns a deep copy so callers can mutate the depot map freely.
func (r *TitleRecord) Clone() *TitleRecord {
	out := *r
	out.DepotManifests = make(map[string]string, len(r.DepotManifests))
	for k, v := range r.DepotManifests {
		out.DepotManifests[k] = v
	}
	return &out
}

// DepotInfo describes one upstream-declared content unit of a title.
// It is recomputed on every read and never persisted.
type DepotInfo struct {
	DepotID          string `json:"depot_id"`
	ManifestID       string `json:"manifest_id,omitempty"` // empty when no public track manifest exists
	Size             int64  `json:"size"`
	DownloadSize     int64  `json:"download_size"`
	OSList           string `json:"oslist,omitempty"`
	Language         string `json:"language,omitempty"`
	IsShared         bool   `json:"is_shared"`
	SharedFromApp    string `json:"shared_from_app,omitempty"`
	IsOptional       bool   `json:"is_optional"`
	HasDecryptionKey bool   `json:"has_decryption_key"`
}
