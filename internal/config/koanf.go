// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/depotwatch/config.yaml",
	"/etc/depotwatch/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds configuration from layered sources:
//  1. Struct defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// UPSTREAM_URL -> upstream.url, HOSTING_TOKEN -> hosting.token, ...
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the first file found, or empty string if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when they arrive from env vars as plain strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated string values to slices
// for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config
// paths. Unknown variables are dropped so unrelated process env never
// leaks into the configuration.
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		// Upstream catalog service
		"UPSTREAM_URL":              "upstream.url",
		"UPSTREAM_MIN_INTERVAL":     "upstream.min_interval",
		"UPSTREAM_TIMEOUT":          "upstream.timeout",
		"UPSTREAM_MAX_RETRIES":      "upstream.max_retries",
		"UPSTREAM_RETRY_BASE_DELAY": "upstream.retry_base_delay",
		"UPSTREAM_RETRY_MAX_DELAY":  "upstream.retry_max_delay",

		// Artifact repository hosting API
		"HOSTING_API_URL":      "hosting.api_url",
		"HOSTING_TOKEN":        "hosting.token",
		"HOSTING_OWNER":        "hosting.owner",
		"HOSTING_REPO":         "hosting.repo",
		"HOSTING_BASE_BRANCH":  "hosting.base_branch",
		"HOSTING_AUTHOR_NAME":  "hosting.author_name",
		"HOSTING_AUTHOR_EMAIL": "hosting.author_email",
		"HOSTING_MIN_INTERVAL": "hosting.min_interval",
		"HOSTING_TIMEOUT":      "hosting.timeout",

		// Local state store
		"STORE_PATH":      "store.path",
		"STORE_IN_MEMORY": "store.in_memory",

		// Scheduler / synchronizer
		"SYNC_BATCH_INTERVAL": "sync.batch_interval",
		"SYNC_STARTUP_DELAY":  "sync.startup_delay",
		"SYNC_TITLE_DELAY":    "sync.title_delay",
		"SYNC_COMMIT_RETRIES": "sync.commit_retries",

		// HTTP server
		"HTTP_HOST":         "server.host",
		"HTTP_PORT":         "server.port",
		"HTTP_TIMEOUT":      "server.timeout",
		"RATE_LIMIT_REQS":   "server.rate_limit_reqs",
		"RATE_LIMIT_WINDOW": "server.rate_limit_window",
		"CORS_ORIGINS":      "server.cors_origins",

		// Caches
		"CACHE_NAME_TTL":   "cache.name_ttl",
		"CACHE_REPORT_TTL": "cache.report_ttl",

		// Logging
		"LOG_LEVEL":  "logging.level",
		"LOG_FORMAT": "logging.format",
		"LOG_CALLER": "logging.caller",
	}

	if path, ok := envMappings[key]; ok {
		return path
	}
	return "" // drop unmapped variables
}
