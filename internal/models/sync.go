// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

package models

import "time"

// SyncOutcome describes how a single-title reconciliation ended.
type SyncOutcome string

const (
	// SyncOutcomeUpdated means pending changes were committed to the branch.
	SyncOutcomeUpdated SyncOutcome = "updated"
	// SyncOutcomeUpToDate means no drift was detected; no write was performed.
	SyncOutcomeUpToDate SyncOutcome = "up-to-date"
	// SyncOutcomeUnreachable means the upstream catalog could not be resolved.
	// Soft failure: the batch continues with the next title.
	SyncOutcomeUnreachable SyncOutcome = "upstream-unreachable"
	// SyncOutcomeFailed means the write path failed (e.g. commit retries exhausted).
	SyncOutcomeFailed SyncOutcome = "failed"
)

// SyncResult is the outcome of one synchronizer run for one title.
type SyncResult struct {
	TitleID       string         `json:"title_id"`
	Outcome       SyncOutcome    `json:"outcome"`
	ChangedDepots []string       `json:"changed_depots,omitempty"`
	Files         []ArtifactFile `json:"files,omitempty"` // files now available, on update
	BranchCreated bool           `json:"branch_created,omitempty"`
	Reason        string         `json:"reason,omitempty"` // failure reason, human readable
	Duration      time.Duration  `json:"duration_ns"`
}

// Failed reports whether the run ended in a soft or hard failure.
func (r SyncResult) Failed() bool {
	return r.Outcome == SyncOutcomeUnreachable || r.Outcome == SyncOutcomeFailed
}

// BatchSummary aggregates the outcomes of one full-catalog reconciliation.
// Per-title failures are collected here and never abort the batch.
type BatchSummary struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Total      int          `json:"total"`
	Updated    int          `json:"updated"`
	UpToDate   int          `json:"up_to_date"`
	Failures   []SyncResult `json:"failures,omitempty"`
}
