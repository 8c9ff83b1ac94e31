// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// validConfig returns a config that passes validation, for mutation in tests.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Upstream.URL = "https://catalog.example.com"
	cfg.Hosting.Token = "token"
	cfg.Hosting.Owner = "owner"
	cfg.Hosting.Repo = "repo"
	return cfg
}

func TestValidateOK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidateFatalConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"missing upstream url", func(c *Config) { c.Upstream.URL = "" }, "UPSTREAM_URL"},
		{"bad upstream scheme", func(c *Config) { c.Upstream.URL = "ftp://x.example.com" }, "http or https"},
		{"zero min interval", func(c *Config) { c.Upstream.MinInterval = 0 }, "UPSTREAM_MIN_INTERVAL"},
		{"missing token", func(c *Config) { c.Hosting.Token = "" }, "HOSTING_TOKEN"},
		{"missing owner", func(c *Config) { c.Hosting.Owner = "" }, "HOSTING_OWNER"},
		{"missing repo", func(c *Config) { c.Hosting.Repo = "" }, "HOSTING_OWNER"},
		{"empty base branch", func(c *Config) { c.Hosting.BaseBranch = "" }, "HOSTING_BASE_BRANCH"},
		{"zero batch interval", func(c *Config) { c.Sync.BatchInterval = 0 }, "SYNC_BATCH_INTERVAL"},
		{"zero commit retries", func(c *Config) { c.Sync.CommitRetries = 0 }, "SYNC_COMMIT_RETRIES"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "HTTP_PORT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !errors.Is(err, ErrFatalConfig) {
				t.Errorf("expected ErrFatalConfig, got: %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected error mentioning %q, got: %v", tt.wantMsg, err)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Upstream.MinInterval != time.Second {
		t.Errorf("expected 1s upstream min interval, got %v", cfg.Upstream.MinInterval)
	}
	if cfg.Sync.CommitRetries != 3 {
		t.Errorf("expected 3 commit retries, got %d", cfg.Sync.CommitRetries)
	}
	if cfg.Hosting.BaseBranch != "main" {
		t.Errorf("expected main base branch, got %q", cfg.Hosting.BaseBranch)
	}
	if cfg.Sync.BatchInterval < time.Hour {
		t.Errorf("batch interval should be multi-hour, got %v", cfg.Sync.BatchInterval)
	}
}

func TestEnvLayering(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "https://catalog.example.com")
	t.Setenv("HOSTING_TOKEN", "tkn")
	t.Setenv("HOSTING_OWNER", "acme")
	t.Setenv("HOSTING_REPO", "depot-data")
	t.Setenv("SYNC_TITLE_DELAY", "2s")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Hosting.Owner != "acme" {
		t.Errorf("expected env override for owner, got %q", cfg.Hosting.Owner)
	}
	if cfg.Sync.TitleDelay != 2*time.Second {
		t.Errorf("expected 2s title delay, got %v", cfg.Sync.TitleDelay)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example.com" {
		t.Errorf("expected comma-split cors origins, got %v", cfg.Server.CORSOrigins)
	}
}

func TestEnvTransformDropsUnknown(t *testing.T) {
	if got := envTransformFunc("PATH"); got != "" {
		t.Errorf("expected unmapped env var to be dropped, got %q", got)
	}
	if got := envTransformFunc("UPSTREAM_URL"); got != "upstream.url" {
		t.Errorf("expected upstream.url, got %q", got)
	}
}
