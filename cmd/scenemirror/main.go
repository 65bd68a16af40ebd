// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

// Package main is the SceneMirror core process.
//
// SceneMirror keeps a fleet of OBS Studio instances on one LAN in lockstep:
// a master instance propagates scene selection, scene-item transforms,
// filter settings, and image source contents to any number of slaves, and
// each slave continuously verifies its local OBS against the state the
// master intended.
//
// The process hosts a loopback HTTP control API that the desktop shell
// drives; all role behavior (master or slave) is switched at runtime via
// that API. Configuration is loaded via Koanf v2 with layered sources
// (highest priority wins):
//   - Environment variables (OBS_HOST, MASTER_PORT, LOG_LEVEL, ...)
//   - Config file (config.yaml, override with CONFIG_PATH)
//   - Built-in defaults
//
// Shutdown on SIGINT/SIGTERM stops the sync server (freeing its port),
// drops the OBS and master connections, and drains the control API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/scenemirror/scenemirror/internal/api"
	"github.com/scenemirror/scenemirror/internal/config"
	"github.com/scenemirror/scenemirror/internal/engine"
	"github.com/scenemirror/scenemirror/internal/logging"
	"github.com/scenemirror/scenemirror/internal/supervisor"
	"github.com/scenemirror/scenemirror/internal/version"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("fatal")
		os.Exit(1)
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
		Output: os.Stderr,
	})
	logging.Info().
		Str("version", version.Version).
		Str("commit", version.Commit).
		Msg("scenemirror starting")

	eng := engine.New(cfg)
	defer eng.Shutdown()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	apiAddr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	tree.AddControlService(supervisor.NewAPIService(apiAddr, api.NewHandler(eng).Routes()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = tree.Serve(ctx)
	if err != nil && err != context.Canceled {
		return err
	}
	logging.Info().Msg("scenemirror stopped")
	return nil
}
