// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

// Package config provides layered configuration for depotwatch using
// Koanf v2: struct defaults, then an optional YAML file, then
// environment variables (highest priority).
package config

import "time"

// Config is the root configuration for the depotwatch server.
type Config struct {
	Upstream UpstreamConfig `koanf:"upstream"`
	Hosting  HostingConfig  `koanf:"hosting"`
	Store    StoreConfig    `koanf:"store"`
	Sync     SyncConfig     `koanf:"sync"`
	Server   ServerConfig   `koanf:"server"`
	Cache    CacheConfig    `koanf:"cache"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// UpstreamConfig configures the upstream catalog service client.
type UpstreamConfig struct {
	// URL is the base URL of the catalog info endpoint.
	URL string `koanf:"url"`
	// MinInterval is the minimum spacing between requests to the
	// upstream endpoint class. The rate-limited fetcher enforces it
	// globally across batch and on-demand callers.
	MinInterval time.Duration `koanf:"min_interval"`
	// Timeout bounds a single HTTP request.
	Timeout time.Duration `koanf:"timeout"`
	// MaxRetries bounds transient-failure retries per logical request.
	MaxRetries int `koanf:"max_retries"`
	// RetryBaseDelay is the first backoff delay; it doubles each attempt.
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`
	// RetryMaxDelay caps the exponential backoff.
	RetryMaxDelay time.Duration `koanf:"retry_max_delay"`
}

// HostingConfig configures the version-control hosting API that stores
// the branch-per-title artifact repository.
type HostingConfig struct {
	// APIURL is the hosting API base URL.
	APIURL string `koanf:"api_url"`
	// Token authenticates API calls. Required: no reconciliation can
	// proceed without it.
	Token string `koanf:"token"`
	// Owner and Repo identify the content repository.
	Owner string `koanf:"owner"`
	Repo  string `koanf:"repo"`
	// BaseBranch is the well-known base new title branches start from.
	BaseBranch string `koanf:"base_branch"`
	// AuthorName/AuthorEmail are stamped on generated commits.
	AuthorName  string `koanf:"author_name"`
	AuthorEmail string `koanf:"author_email"`
	// MinInterval is the request spacing for the hosting endpoint class.
	MinInterval time.Duration `koanf:"min_interval"`
	Timeout     time.Duration `koanf:"timeout"`
}

// StoreConfig configures the local state store (BadgerDB).
type StoreConfig struct {
	// Path is the on-disk badger directory.
	Path string `koanf:"path"`
	// InMemory runs badger without disk persistence. Test use only.
	InMemory bool `koanf:"in_memory"`
}

// SyncConfig configures the scheduler and synchronizer.
type SyncConfig struct {
	// BatchInterval is how often the full catalog is reconciled.
	BatchInterval time.Duration `koanf:"batch_interval"`
	// StartupDelay postpones the first batch after process start.
	StartupDelay time.Duration `koanf:"startup_delay"`
	// TitleDelay is the fixed pause between titles within a batch.
	TitleDelay time.Duration `koanf:"title_delay"`
	// CommitRetries bounds conflict retries inside one Apply step.
	CommitRetries int `koanf:"commit_retries"`
}

// ServerConfig configures the HTTP read surface.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// CacheConfig configures the injected TTL caches.
type CacheConfig struct {
	// NameTTL bounds cached upstream name lookups.
	NameTTL time.Duration `koanf:"name_ttl"`
	// ReportTTL bounds cached DLC completeness reports.
	ReportTTL time.Duration `koanf:"report_ttl"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			URL:            "",
			MinInterval:    1 * time.Second,
			Timeout:        30 * time.Second,
			MaxRetries:     4,
			RetryBaseDelay: 1 * time.Second,
			RetryMaxDelay:  30 * time.Second,
		},
		Hosting: HostingConfig{
			APIURL:      "https://api.github.com",
			Token:       "",
			Owner:       "",
			Repo:        "",
			BaseBranch:  "main",
			AuthorName:  "depotwatch",
			AuthorEmail: "bot@depotwatch.dev",
			MinInterval: 750 * time.Millisecond,
			Timeout:     30 * time.Second,
		},
		Store: StoreConfig{
			Path:     "/data/depotwatch/state",
			InMemory: false,
		},
		Sync: SyncConfig{
			BatchInterval: 6 * time.Hour,
			StartupDelay:  30 * time.Second,
			TitleDelay:    5 * time.Second,
			CommitRetries: 3,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8480,
			Timeout:         30 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: 1 * time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Cache: CacheConfig{
			NameTTL:   1 * time.Hour,
			ReportTTL: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
