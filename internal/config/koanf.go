// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

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
	"/etc/scenemirror/config.yaml",
	"/etc/scenemirror/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the configuration in three layers:
//
//  1. Defaults: built-in values from defaultConfig
//  2. Config file: optional YAML file (if one exists)
//  3. Environment variables: override any setting
//
// The result is validated before it is returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
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

// findConfigFile returns the first config file that exists, checking the
// CONFIG_PATH override before the default search paths.
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

// envKeyMap maps environment variable names to koanf config paths.
// Unlisted variables are ignored so unrelated environment noise cannot
// leak into the configuration.
var envKeyMap = map[string]string{
	"OBS_HOST":             "obs.host",
	"OBS_PORT":             "obs.port",
	"OBS_PASSWORD":         "obs.password",
	"MASTER_PORT":          "master.port",
	"MASTER_INSTANCE":      "master.instance",
	"MASTER_ADVERTISE":     "master.advertise",
	"SLAVE_MASTER_HOST":    "slave.master_host",
	"SLAVE_MASTER_PORT":    "slave.master_port",
	"SYNC_IMAGE_MAX_BYTES": "sync.image_max_bytes",
	"SYNC_STAGING_DIR":     "sync.staging_dir",
	"API_HOST":             "api.host",
	"API_PORT":             "api.port",
	"LOG_LEVEL":            "logging.level",
	"LOG_FORMAT":           "logging.format",
}

// envTransformFunc maps an environment variable name to its koanf path.
// Variables may carry an optional SCENEMIRROR_ prefix, so both OBS_HOST
// and SCENEMIRROR_OBS_HOST address obs.host.
func envTransformFunc(key string) string {
	key = strings.TrimPrefix(strings.ToUpper(key), "SCENEMIRROR_")
	if path, ok := envKeyMap[key]; ok {
		return path
	}
	return ""
}
