// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package config

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// Settings is the persisted operator settings record. It remembers the
// values last entered in the shell so dialogs come prefilled across
// restarts. Distinct from Config: Settings is written by the app,
// Config only read.
type Settings struct {
	OBSHost     string `json:"obsHost"`
	OBSPort     int    `json:"obsPort"`
	OBSPassword string `json:"obsPassword"`
	MasterPort  int    `json:"masterPort"`
	SlaveHost   string `json:"slaveHost"`
	SlavePort   int    `json:"slavePort"`
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	d := defaultConfig()
	return Settings{
		OBSHost:    d.OBS.Host,
		OBSPort:    d.OBS.Port,
		MasterPort: d.Master.Port,
		SlaveHost:  d.Slave.MasterHost,
		SlavePort:  d.Slave.MasterPort,
	}
}

// DefaultSettingsPath is the per-user location of the settings record.
func DefaultSettingsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "scenemirror", "settings.json"), nil
}

// LoadSettings reads the settings record at path. A missing file is not an
// error and yields the defaults.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return Settings{}, fmt.Errorf("read settings %s: %w", path, err)
	}
	s := DefaultSettings()
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

// SaveSettings writes the settings record, creating the directory on first
// use. The file is user-only since it may hold the OBS password.
func SaveSettings(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write settings %s: %w", path, err)
	}
	return nil
}
