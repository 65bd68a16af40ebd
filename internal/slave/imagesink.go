// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package slave

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/scenemirror/scenemirror/internal/metrics"
)

// ImageSink stages inbound image bytes under a per-slave directory so the
// local OBS can point its image sources at them. The file name derives
// from the source name, so repeated updates for the same source overwrite
// in place and the path fed to OBS stays stable.
type ImageSink struct {
	dir string
}

// NewImageSink stages under dir; empty means <tempdir>/obs-sync.
func NewImageSink(dir string) *ImageSink {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "obs-sync")
	}
	return &ImageSink{dir: dir}
}

// Stage writes data and returns the staged path. The extension comes from
// the content's magic bytes; unknown content gets .bin and is still staged.
func (s *ImageSink) Stage(sourceName string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating staging dir: %w", err)
	}
	path := filepath.Join(s.dir, stableName(sourceName)+SniffExtension(data))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("staging image for %q: %w", sourceName, err)
	}
	metrics.ImagesStaged.Inc()
	return path, nil
}

// stableName maps a source name to a filesystem-safe stem.
func stableName(sourceName string) string {
	var b strings.Builder
	for _, r := range sourceName {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "source"
	}
	return b.String()
}

// SniffExtension classifies image bytes by magic number.
func SniffExtension(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47}):
		return ".png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return ".jpg"
	case bytes.HasPrefix(data, []byte{0x47, 0x49, 0x46, 0x38}):
		return ".gif"
	case bytes.HasPrefix(data, []byte{0x42, 0x4D}):
		return ".bmp"
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return ".webp"
	default:
		return ".bin"
	}
}
