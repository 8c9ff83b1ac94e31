// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

// Command server runs the depotwatch daemon: the batch scheduler that
// keeps every tracked title's branch current, and the HTTP API serving
// the dashboard and the command layer.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/depotwatch/depotwatch/internal/api"
	"github.com/depotwatch/depotwatch/internal/cache"
	"github.com/depotwatch/depotwatch/internal/config"
	"github.com/depotwatch/depotwatch/internal/dlc"
	"github.com/depotwatch/depotwatch/internal/fetcher"
	"github.com/depotwatch/depotwatch/internal/gitrepo"
	"github.com/depotwatch/depotwatch/internal/logging"
	"github.com/depotwatch/depotwatch/internal/scheduler"
	"github.com/depotwatch/depotwatch/internal/store"
	"github.com/depotwatch/depotwatch/internal/supervisor"
	"github.com/depotwatch/depotwatch/internal/syncer"
	"github.com/depotwatch/depotwatch/internal/upstream"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("depotwatch exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("upstream", cfg.Upstream.URL).
		Str("repository", cfg.Hosting.Owner+"/"+cfg.Hosting.Repo).
		Msg("depotwatch starting")

	// One fetcher instance: batch and on-demand callers share the same
	// spacing gates.
	f := fetcher.New()
	f.Register(fetcher.ClassUpstream, fetcher.Options{
		MinInterval:    cfg.Upstream.MinInterval,
		Timeout:        cfg.Upstream.Timeout,
		MaxRetries:     cfg.Upstream.MaxRetries,
		RetryBaseDelay: cfg.Upstream.RetryBaseDelay,
		RetryMaxDelay:  cfg.Upstream.RetryMaxDelay,
	})
	f.Register(fetcher.ClassHosting, fetcher.Options{
		MinInterval: cfg.Hosting.MinInterval,
		Timeout:     cfg.Hosting.Timeout,
	})

	nameCache := cache.NewNamed("appinfo", cfg.Cache.NameTTL)
	resolver := upstream.NewBreakerClient(upstream.NewClient(cfg.Upstream.URL, f, nameCache))
	repo := gitrepo.New(&cfg.Hosting, f)

	storePath := cfg.Store.Path
	if cfg.Store.InMemory {
		storePath = ""
	}
	titles, err := store.Open(storePath)
	if err != nil {
		return fmt.Errorf("open title store: %w", err)
	}
	defer func() {
		if err := titles.Close(); err != nil {
			logging.Error().Err(err).Msg("close title store")
		}
	}()

	sync := syncer.New(resolver, repo, titles, cfg.Sync.CommitRetries)
	sched := scheduler.New(sync, titles, cfg.Sync.TitleDelay)
	analyzer := dlc.New(resolver, repo, cache.NewNamed("dlc-report", cfg.Cache.ReportTTL), cfg.Cache.ReportTTL)

	handler := api.NewHandler(titles, repo, sched, analyzer, resolver)
	router := api.NewRouter(handler, api.MiddlewareConfig{
		CORSOrigins:     cfg.Server.CORSOrigins,
		RateLimitReqs:   cfg.Server.RateLimitReqs,
		RateLimitWindow: cfg.Server.RateLimitWindow,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(slog.Default(), supervisor.DefaultTreeConfig())
	tree.AddSyncService(scheduler.NewService(sched, cfg.Sync.StartupDelay, cfg.Sync.BatchInterval))
	tree.AddAPIService(supervisor.NewHTTPService(server, 15*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("supervision tree starting")
	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervision tree: %w", err)
	}

	logging.Info().Msg("depotwatch stopped")
	return nil
}
