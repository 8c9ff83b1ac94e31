// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

/*
client.go - Upstream Catalog Resolver

Resolves title metadata from the upstream catalog info endpoint: the
current depot -> manifest mapping on the public release track, the
declared DLC identifiers, and display names.

Payload notes:
  - The depot table interleaves configuration keys ("branches",
    "baseinstallfolder", ...) with numeric depot identifiers; only
    numeric keys are depot entries.
  - A depot without a public-track manifest is skipped entirely. Falling
    back to another track would mirror a manifest from a different
    release channel, which is worse than a gap.
  - Manifest identifiers appear both as bare strings and as {"gid": ...}
    objects depending on payload vintage; both are accepted.

One fetch per title is shared by all resolver operations through the
injected TTL cache.
*/

//nolint:staticcheck // File documentation, not package doc
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/depotwatch/depotwatch/internal/cache"
	"github.com/depotwatch/depotwatch/internal/fetcher"
	"github.com/depotwatch/depotwatch/internal/logging"
	"github.com/depotwatch/depotwatch/internal/models"
	"github.com/depotwatch/depotwatch/internal/validation"
)

var (
	// ErrUnavailable means the upstream endpoint could not produce a
	// usable payload (transport failure, retries exhausted, malformed
	// body). The caller must not treat this as "title has no depots".
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrNotFound means the upstream endpoint answered and does not know
	// the title.
	ErrNotFound = errors.New("title not found upstream")
)

// maxPayloadBytes caps how much of an appinfo response is read into
// memory. Catalog payloads for large titles run a few hundred KB.
const maxPayloadBytes = 16 << 20

// AppInfo is the resolver's view of one catalog title.
type AppInfo struct {
	TitleID string
	Name    string
	Type    string
	// BuildID is the public-track build identifier, empty if the title
	// has no branch table.
	BuildID string
	// Manifests maps depot ID to the public-track manifest ID. Depots
	// without a public track are absent.
	Manifests map[string]string
	// DLCIDs lists declared DLC identifiers in upstream order.
	DLCIDs []string
	// Depots holds the full declared depot table in numeric order,
	// public track or not. ManifestID carries the public-track manifest
	// and is empty for depots on other tracks only.
	Depots []models.DepotInfo
	// HasDepots reports whether the title declares any depot entries at
	// all, public track or not.
	HasDepots bool
}

// Client resolves title metadata from the catalog info endpoint. All
// HTTP goes through the shared rate-limited fetcher; decoded payloads
// are cached so ResolveManifests, ResolveDLCIDs and AppName share one
// upstream request per title.
type Client struct {
	baseURL string
	fetcher *fetcher.Fetcher
	cache   cache.Store
}

// NewClient creates a catalog resolver. The fetcher must have the
// upstream endpoint class registered.
func NewClient(baseURL string, f *fetcher.Fetcher, c cache.Store) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		fetcher: f,
		cache:   c,
	}
}

// Info returns the full resolver view of a title.
func (c *Client) Info(ctx context.Context, titleID string) (*AppInfo, error) {
	if !validation.IsTitleID(titleID) {
		return nil, fmt.Errorf("%w: invalid title id %q", ErrNotFound, titleID)
	}

	cacheKey := "appinfo:" + titleID
	if cached, ok := c.cache.Get(cacheKey); ok {
		if info, ok := cached.(*AppInfo); ok {
			return info, nil
		}
	}

	info, err := c.fetchInfo(ctx, titleID)
	if err != nil {
		return nil, err
	}

	c.cache.Set(cacheKey, info)
	return info, nil
}

// ResolveManifests returns the depot -> public-track manifest mapping
// for a title. Depots without a public track are absent from the result.
func (c *Client) ResolveManifests(ctx context.Context, titleID string) (map[string]string, error) {
	info, err := c.Info(ctx, titleID)
	if err != nil {
		return nil, err
	}
	return info.Manifests, nil
}

// ResolveDLCIDs returns the declared DLC identifiers for a title in
// upstream order. Callers treat the result as a set.
func (c *Client) ResolveDLCIDs(ctx context.Context, titleID string) ([]string, error) {
	info, err := c.Info(ctx, titleID)
	if err != nil {
		return nil, err
	}
	return info.DLCIDs, nil
}

// AppName returns the display name of a title, or the bare ID when the
// payload carries no name.
func (c *Client) AppName(ctx context.Context, titleID string) (string, error) {
	info, err := c.Info(ctx, titleID)
	if err != nil {
		return "", err
	}
	if info.Name == "" {
		return titleID, nil
	}
	return info.Name, nil
}

func (c *Client) fetchInfo(ctx context.Context, titleID string) (*AppInfo, error) {
	url := fmt.Sprintf("%s/v1/info/%s", c.baseURL, titleID)

	resp, err := c.fetcher.Do(ctx, fetcher.ClassUpstream, http.MethodGet, url, nil, nil)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fallthrough to decode
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, titleID)
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	var envelope struct {
		Status string                     `json:"status"`
		Data   map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", ErrUnavailable, err)
	}

	raw, ok := envelope.Data[titleID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, titleID)
	}

	var payload appPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode title payload: %v", ErrUnavailable, err)
	}

	info := buildAppInfo(titleID, &payload)
	logging.Debug().
		Str("title_id", titleID).
		Int("depots", len(info.Manifests)).
		Int("dlc", len(info.DLCIDs)).
		Str("build_id", info.BuildID).
		Msg("resolved upstream title info")
	return info, nil
}

type appPayload struct {
	Common struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"common"`
	Extended struct {
		ListOfDLC string `json:"listofdlc"`
	} `json:"extended"`
	Depots map[string]json.RawMessage `json:"depots"`
}

type depotEntry struct {
	DLCAppID string `json:"dlcappid"`
	Config   struct {
		OSList   string `json:"oslist"`
		Language string `json:"language"`
	} `json:"config"`
	Optional           string                     `json:"optional"`
	SharedInstall      string                     `json:"sharedinstall"`
	DepotFromApp       string                     `json:"depotfromapp"`
	MaxSize            string                     `json:"maxsize"`
	Manifests          map[string]json.RawMessage `json:"manifests"`
	EncryptedManifests map[string]json.RawMessage `json:"encryptedmanifests"`
}

type branchTable struct {
	Public struct {
		BuildID string `json:"buildid"`
	} `json:"public"`
}

// buildAppInfo extracts the resolver view from a decoded payload.
// Depot keys are walked in numeric order so results are deterministic
// across runs.
func buildAppInfo(titleID string, p *appPayload) *AppInfo {
	info := &AppInfo{
		TitleID:   titleID,
		Name:      p.Common.Name,
		Type:      p.Common.Type,
		Manifests: make(map[string]string),
	}

	depotIDs := make([]string, 0, len(p.Depots))
	for key := range p.Depots {
		if key == "branches" {
			var branches branchTable
			if err := json.Unmarshal(p.Depots[key], &branches); err == nil {
				info.BuildID = branches.Public.BuildID
			}
			continue
		}
		// Configuration keys interleave with depot IDs; only numeric
		// keys are depots.
		if !validation.IsTitleID(key) {
			continue
		}
		depotIDs = append(depotIDs, key)
	}
	sort.Slice(depotIDs, func(i, j int) bool {
		if len(depotIDs[i]) != len(depotIDs[j]) {
			return len(depotIDs[i]) < len(depotIDs[j])
		}
		return depotIDs[i] < depotIDs[j]
	})

	info.HasDepots = len(depotIDs) > 0

	var depotDLC []string
	for _, id := range depotIDs {
		var entry depotEntry
		if err := json.Unmarshal(p.Depots[id], &entry); err != nil {
			continue
		}
		if entry.DLCAppID != "" {
			depotDLC = append(depotDLC, entry.DLCAppID)
		}

		public := decodeManifest(entry.Manifests["public"])
		if public.GID != "" {
			info.Manifests[id] = public.GID
		}

		depot := models.DepotInfo{
			DepotID:          id,
			ManifestID:       public.GID,
			Size:             public.Size,
			DownloadSize:     public.Download,
			OSList:           entry.Config.OSList,
			Language:         entry.Config.Language,
			IsShared:         entry.SharedInstall == "1" || entry.DepotFromApp != "",
			SharedFromApp:    entry.DepotFromApp,
			IsOptional:       entry.Optional == "1",
			HasDecryptionKey: len(entry.EncryptedManifests) > 0,
		}
		// Older payloads carry the size at the depot level only.
		if depot.Size == 0 {
			depot.Size = parseSize(entry.MaxSize)
		}
		info.Depots = append(info.Depots, depot)
	}

	// listofdlc leads in upstream order, depot-level declarations follow.
	// An ID declared both ways appears once.
	seen := make(map[string]struct{})
	for _, id := range strings.Split(p.Extended.ListOfDLC, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		info.DLCIDs = append(info.DLCIDs, id)
	}
	for _, id := range depotDLC {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		info.DLCIDs = append(info.DLCIDs, id)
	}

	return info
}

// manifestInfo is one decoded manifest-track entry.
type manifestInfo struct {
	GID      string
	Size     int64
	Download int64
}

// decodeManifest decodes a manifest-track entry that may be a bare GID
// string or a {"gid": ..., "size": ..., "download": ...} object. Sizes
// are only present in the object form.
func decodeManifest(raw json.RawMessage) manifestInfo {
	if len(raw) == 0 {
		return manifestInfo{}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return manifestInfo{GID: s}
	}

	var obj struct {
		GID      string `json:"gid"`
		Size     string `json:"size"`
		Download string `json:"download"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return manifestInfo{
			GID:      obj.GID,
			Size:     parseSize(obj.Size),
			Download: parseSize(obj.Download),
		}
	}
	return manifestInfo{}
}

// manifestGID is the identifier-only view of decodeManifest.
func manifestGID(raw json.RawMessage) string {
	return decodeManifest(raw).GID
}

// parseSize decodes the decimal-string byte counts the payload uses.
// Malformed or absent values read as zero.
func parseSize(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
