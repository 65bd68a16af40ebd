// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

// Package drift compares the state a slave's OBS instance should be in
// against what it actually is. The comparison is pure: callers gather both
// sides, Compare only judges them.
//
// Filter settings and image contents are deliberately not compared; filter
// settings are opaque blobs and staged image files legitimately differ in
// path between runs.
package drift

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/scenemirror/scenemirror/internal/models"
)

// Tolerance is the maximum absolute difference on continuous transform
// fields before they count as drifted. Discrete fields compare exactly.
const Tolerance = 0.5

// Categories attached to DesyncDetail entries.
const (
	CategoryScene     = "scene_mismatch"
	CategorySource    = "source_missing"
	CategoryTransform = "transform_mismatch"
)

// SourceState is one tracked source with the transform the master intended.
type SourceState struct {
	SceneName  string
	SourceName string
	Transform  models.Transform
}

// State is the expected side of a comparison.
type State struct {
	ProgramScene string
	PreviewScene *string
	Sources      []SourceState
}

// Observation is what the local OBS instance reported. Transforms is keyed
// by scene name then source name; a missing entry means the source was not
// found in that scene.
type Observation struct {
	ProgramScene string
	PreviewScene *string
	Transforms   map[string]map[string]models.Transform
}

// Compare returns one DesyncDetail per disagreement. A clean state returns
// an empty slice. Preview scenes are compared only when both sides report
// one; a slave without Studio Mode is not drift.
func Compare(expected State, observed Observation) []models.DesyncDetail {
	details := []models.DesyncDetail{}

	if expected.ProgramScene != "" && expected.ProgramScene != observed.ProgramScene {
		details = append(details, models.DesyncDetail{
			Category:  CategoryScene,
			SceneName: expected.ProgramScene,
			Description: fmt.Sprintf("program scene is %q, expected %q",
				observed.ProgramScene, expected.ProgramScene),
			Severity: string(models.SeverityCritical),
		})
	}

	if expected.PreviewScene != nil && observed.PreviewScene != nil &&
		*expected.PreviewScene != *observed.PreviewScene {
		details = append(details, models.DesyncDetail{
			Category:  CategoryScene,
			SceneName: *expected.PreviewScene,
			Description: fmt.Sprintf("preview scene is %q, expected %q",
				*observed.PreviewScene, *expected.PreviewScene),
			Severity: string(models.SeverityCritical),
		})
	}

	for _, src := range expected.Sources {
		actual, found := lookup(observed.Transforms, src.SceneName, src.SourceName)
		if !found {
			details = append(details, models.DesyncDetail{
				Category:   CategorySource,
				SceneName:  src.SceneName,
				SourceName: src.SourceName,
				Description: fmt.Sprintf("source %q not found in scene %q",
					src.SourceName, src.SceneName),
				Severity: string(models.SeverityWarning),
			})
			continue
		}

		if fields := TransformDrift(src.Transform, actual); len(fields) > 0 {
			details = append(details, models.DesyncDetail{
				Category:   CategoryTransform,
				SceneName:  src.SceneName,
				SourceName: src.SourceName,
				Description: fmt.Sprintf("transform drifted on %s",
					strings.Join(fields, ", ")),
				Severity: string(models.SeverityWarning),
			})
		}
	}

	return details
}

func lookup(transforms map[string]map[string]models.Transform, scene, source string) (models.Transform, bool) {
	bySource, ok := transforms[scene]
	if !ok {
		return models.Transform{}, false
	}
	t, ok := bySource[source]
	return t, ok
}

// TransformDrift returns the names of fields where actual differs from
// expected beyond tolerance. Fields the expected side never set are
// skipped; the master has expressed no intent about them.
func TransformDrift(expected, actual models.Transform) []string {
	var fields []string

	continuous := []struct {
		name             string
		expected, actual *float64
	}{
		{"positionX", expected.PositionX, actual.PositionX},
		{"positionY", expected.PositionY, actual.PositionY},
		{"rotation", expected.Rotation, actual.Rotation},
		{"scaleX", expected.ScaleX, actual.ScaleX},
		{"scaleY", expected.ScaleY, actual.ScaleY},
		{"width", expected.Width, actual.Width},
		{"height", expected.Height, actual.Height},
		{"boundsWidth", expected.BoundsWidth, actual.BoundsWidth},
		{"boundsHeight", expected.BoundsHeight, actual.BoundsHeight},
	}
	for _, f := range continuous {
		if f.expected == nil {
			continue
		}
		if f.actual == nil || math.Abs(*f.expected-*f.actual) > Tolerance {
			fields = append(fields, f.name)
		}
	}

	discrete := []struct {
		name   string
		differ bool
	}{
		{"alignment", expected.Alignment != nil &&
			(actual.Alignment == nil || *expected.Alignment != *actual.Alignment)},
		{"boundsType", expected.BoundsType != nil &&
			(actual.BoundsType == nil || *expected.BoundsType != *actual.BoundsType)},
		{"boundsAlignment", expected.BoundsAlignment != nil &&
			(actual.BoundsAlignment == nil || *expected.BoundsAlignment != *actual.BoundsAlignment)},
	}
	for _, f := range discrete {
		if f.differ {
			fields = append(fields, f.name)
		}
	}

	sort.Strings(fields)
	return fields
}
