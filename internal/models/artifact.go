// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

package models

import "strings"

// FileType classifies an artifact file inside a title branch.
type FileType string

const (
	FileTypeScript       FileType = "script"
	FileTypeManifest     FileType = "manifest-binary"
	FileTypeMetadataJSON FileType = "metadata-json"
	FileTypeOther        FileType = "other"
)

// ArtifactFile is one file inside a title's branch. Content is fetched
// lazily; listing endpoints populate metadata only.
type ArtifactFile struct {
	Name    string   `json:"name"`
	Size    int64    `json:"size"`
	Type    FileType `json:"type"`
	SHA     string   `json:"sha,omitempty"`
	Content []byte   `json:"content,omitempty"`
}

// DetectFileType classifies a branch file by its name.
// Depot manifests are named "<depot>_<manifest>.manifest".
func DetectFileType(name string) FileType {
	switch {
	case strings.HasSuffix(name, ".lua"):
		return FileTypeScript
	case strings.HasSuffix(name, ".manifest"):
		return FileTypeManifest
	case strings.HasSuffix(name, ".json"):
		return FileTypeMetadataJSON
	default:
		return FileTypeOther
	}
}
