// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

package config

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrFatalConfig marks configuration errors that prevent the subsystem
// from starting at all: no reconciliation can proceed without upstream
// and hosting credentials.
var ErrFatalConfig = errors.New("fatal configuration error")

// Validate checks that required configuration is present and valid.
// Missing credentials or identifiers wrap ErrFatalConfig.
func (c *Config) Validate() error {
	if err := c.validateUpstream(); err != nil {
		return err
	}
	if err := c.validateHosting(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	return c.validateServer()
}

func (c *Config) validateUpstream() error {
	if c.Upstream.URL == "" {
		return fmt.Errorf("%w: UPSTREAM_URL is required", ErrFatalConfig)
	}
	if err := validateHTTPURL(c.Upstream.URL, "UPSTREAM_URL"); err != nil {
		return fmt.Errorf("%w: %v", ErrFatalConfig, err)
	}
	if c.Upstream.MinInterval <= 0 {
		return fmt.Errorf("%w: UPSTREAM_MIN_INTERVAL must be positive", ErrFatalConfig)
	}
	if c.Upstream.MaxRetries < 0 {
		return fmt.Errorf("%w: UPSTREAM_MAX_RETRIES must not be negative", ErrFatalConfig)
	}
	return nil
}

func (c *Config) validateHosting() error {
	if c.Hosting.Token == "" {
		return fmt.Errorf("%w: HOSTING_TOKEN is required", ErrFatalConfig)
	}
	if c.Hosting.Owner == "" || c.Hosting.Repo == "" {
		return fmt.Errorf("%w: HOSTING_OWNER and HOSTING_REPO are required", ErrFatalConfig)
	}
	if err := validateHTTPURL(c.Hosting.APIURL, "HOSTING_API_URL"); err != nil {
		return fmt.Errorf("%w: %v", ErrFatalConfig, err)
	}
	if c.Hosting.BaseBranch == "" {
		return fmt.Errorf("%w: HOSTING_BASE_BRANCH must not be empty", ErrFatalConfig)
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.BatchInterval <= 0 {
		return fmt.Errorf("%w: SYNC_BATCH_INTERVAL must be positive", ErrFatalConfig)
	}
	if c.Sync.TitleDelay < 0 {
		return fmt.Errorf("%w: SYNC_TITLE_DELAY must not be negative", ErrFatalConfig)
	}
	if c.Sync.CommitRetries < 1 {
		return fmt.Errorf("%w: SYNC_COMMIT_RETRIES must be at least 1", ErrFatalConfig)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: HTTP_PORT must be between 1 and 65535", ErrFatalConfig)
	}
	return nil
}

// validateHTTPURL checks a URL is parseable and uses http or https.
func validateHTTPURL(raw, name string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", name)
	}
	return nil
}
