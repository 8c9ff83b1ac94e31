// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

package syncer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/depotwatch/depotwatch/internal/upstream"
)

// ScriptName returns the branch filename of a title's generated script.
func ScriptName(titleID string) string { return titleID + ".lua" }

// MetadataName returns the branch filename of a title's metadata document.
func MetadataName(titleID string) string { return titleID + ".json" }

// GenerateScript renders the loader script for a title: the title and
// every depot registered with addappid, each depot pinned to its
// public-track manifest with setManifestid, and every declared DLC
// referenced with its own addappid line. Regenerated wholesale on every
// applied change; never patched in place.
func GenerateScript(info *upstream.AppInfo) []byte {
	var b strings.Builder

	b.WriteString("-- ")
	b.WriteString(info.TitleID)
	if info.Name != "" {
		b.WriteString(" - ")
		b.WriteString(info.Name)
	}
	b.WriteByte('\n')
	fmt.Fprintf(&b, "addappid(%s)\n", info.TitleID)

	for _, depotID := range sortedNumeric(keys(info.Manifests)) {
		fmt.Fprintf(&b, "addappid(%s)\n", depotID)
		fmt.Fprintf(&b, "setManifestid(%s, \"%s\")\n", depotID, info.Manifests[depotID])
	}

	for _, dlcID := range info.DLCIDs {
		fmt.Fprintf(&b, "addappid(%s)\n", dlcID)
	}

	return []byte(b.String())
}

// Metadata is the shape of the <titleID>.json document committed
// alongside the script. It records the manifest state the branch
// actually holds; readers join it with live upstream data.
type Metadata struct {
	TitleID        string            `json:"title_id"`
	Name           string            `json:"name,omitempty"`
	BuildID        string            `json:"build_id,omitempty"`
	DepotManifests map[string]string `json:"depot_manifests"`
	DLCIDs         []string          `json:"dlc_ids,omitempty"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

// ParseMetadata decodes a committed metadata document.
func ParseMetadata(data []byte) (*Metadata, error) {
	var doc Metadata
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode metadata document: %w", err)
	}
	return &doc, nil
}

// GenerateMetadata renders the metadata document for a title.
func GenerateMetadata(info *upstream.AppInfo, generatedAt time.Time) ([]byte, error) {
	doc := Metadata{
		TitleID:        info.TitleID,
		Name:           info.Name,
		BuildID:        info.BuildID,
		DepotManifests: info.Manifests,
		DLCIDs:         info.DLCIDs,
		GeneratedAt:    generatedAt.UTC(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata for %s: %w", info.TitleID, err)
	}
	return append(data, '\n'), nil
}

// ScriptReferences reports whether a generated script contains an
// addappid reference to the given identifier. The DLC analyzer uses
// this as its free tracked-status signal before falling back to a
// branch-existence check.
func ScriptReferences(script []byte, id string) bool {
	needle := "addappid(" + id + ")"
	for _, line := range strings.Split(string(script), "\n") {
		if strings.TrimSpace(line) == needle {
			return true
		}
	}
	return false
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// sortedNumeric orders digit-string identifiers numerically so script
// output is deterministic across runs.
func sortedNumeric(ids []string) []string {
	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) < len(ids[j])
		}
		return ids[i] < ids[j]
	})
	return ids
}
