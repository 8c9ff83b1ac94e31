// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

// Package models defines the shared data types for depotwatch.
//
// TitleRecord is the only persisted entity; it is owned by the local state
// store and mutated exclusively by the synchronizer after a confirmed
// artifact repository commit. DepotInfo, DlcInfo and ArtifactFile are
// derived views computed on demand from branch contents and upstream
// catalog output.
package models
