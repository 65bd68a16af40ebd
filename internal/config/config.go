// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

// Package config loads the process configuration from layered sources
// (built-in defaults, an optional YAML file, environment variables) and
// manages the persisted operator settings record.
package config

import (
	"fmt"
	"strings"
)

// Config is the full process configuration.
type Config struct {
	OBS     OBSConfig     `koanf:"obs"`
	Master  MasterConfig  `koanf:"master"`
	Slave   SlaveConfig   `koanf:"slave"`
	Sync    SyncConfig    `koanf:"sync"`
	API     APIConfig     `koanf:"api"`
	Logging LoggingConfig `koanf:"logging"`
}

// OBSConfig points at the local OBS Studio WebSocket server.
type OBSConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Password string `koanf:"password"`
}

// MasterConfig configures the sync server when this instance runs as master.
type MasterConfig struct {
	// Port the sync WebSocket server listens on.
	Port int `koanf:"port"`
	// Instance names this master in LAN discovery. Empty means hostname.
	Instance string `koanf:"instance"`
	// Advertise controls mDNS advertisement of the running server.
	Advertise bool `koanf:"advertise"`
}

// SlaveConfig holds the default master endpoint when this instance runs
// as slave. The operator can override both at connect time.
type SlaveConfig struct {
	MasterHost string `koanf:"master_host"`
	MasterPort int    `koanf:"master_port"`
}

// SyncConfig tunes payload handling shared by both roles.
type SyncConfig struct {
	// ImageMaxBytes caps inline image payloads. Larger files are
	// propagated by path reference only.
	ImageMaxBytes int `koanf:"image_max_bytes"`
	// StagingDir is where slaves write received image files. Empty
	// selects <tempdir>/obs-sync.
	StagingDir string `koanf:"staging_dir"`
}

// APIConfig configures the local control API the shell talks to.
type APIConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// LoggingConfig mirrors the logging package knobs.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// defaultConfig returns a Config with all default values. These are applied
// first, then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		OBS: OBSConfig{
			Host:     "localhost",
			Port:     4455, // obs-websocket default
			Password: "",
		},
		Master: MasterConfig{
			Port:      4456,
			Instance:  "",
			Advertise: true,
		},
		Slave: SlaveConfig{
			MasterHost: "localhost",
			MasterPort: 4456,
		},
		Sync: SyncConfig{
			ImageMaxBytes: 16 << 20, // 16MB
			StagingDir:    "",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 4460,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for values that cannot work at runtime.
func (c *Config) Validate() error {
	if err := validPort("obs.port", c.OBS.Port); err != nil {
		return err
	}
	if err := validPort("master.port", c.Master.Port); err != nil {
		return err
	}
	if err := validPort("slave.master_port", c.Slave.MasterPort); err != nil {
		return err
	}
	if err := validPort("api.port", c.API.Port); err != nil {
		return err
	}
	if c.OBS.Host == "" {
		return fmt.Errorf("obs.host must not be empty")
	}
	if c.Sync.ImageMaxBytes <= 0 {
		return fmt.Errorf("sync.image_max_bytes must be positive, got %d", c.Sync.ImageMaxBytes)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not a known level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q must be json or console", c.Logging.Format)
	}
	return nil
}

func validPort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be in 1..65535, got %d", name, port)
	}
	return nil
}
