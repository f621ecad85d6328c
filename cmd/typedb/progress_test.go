// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"bytes"
	"os"
	"testing"
)

func TestNewProgressConfig(t *testing.T) {
	tests := []struct {
		name            string
		globals         GlobalFlags
		expectedNoColor bool
	}{
		{name: "default flags", globals: GlobalFlags{}},
		{name: "quiet mode", globals: GlobalFlags{Quiet: true}},
		{name: "JSON mode (quiet auto-set)", globals: GlobalFlags{JSON: true, Quiet: true}},
		{name: "noColor flag propagates", globals: GlobalFlags{NoColor: true}, expectedNoColor: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			cfg := NewProgressConfig(tt.globals, &buf)
			if cfg.Enabled {
				t.Error("progress should be disabled for a non-terminal writer")
			}
			if cfg.NoColor != tt.expectedNoColor {
				t.Errorf("NoColor = %v, want %v", cfg.NoColor, tt.expectedNoColor)
			}
			if cfg.Writer != &buf {
				t.Error("Writer should be the given writer")
			}
		})
	}

	// stderr is not a TTY under go test
	if cfg := NewProgressConfig(GlobalFlags{Quiet: true}, os.Stderr); cfg.Enabled {
		t.Error("quiet mode should disable progress on stderr")
	}
}

func TestNewProgressBar(t *testing.T) {
	t.Run("disabled config returns nil", func(t *testing.T) {
		if bar := NewProgressBar(ProgressConfig{}, 100, "Test"); bar != nil {
			t.Error("NewProgressBar() should return nil when disabled")
		}
	})

	t.Run("enabled config returns a usable bar", func(t *testing.T) {
		var buf bytes.Buffer
		bar := NewProgressBar(ProgressConfig{Enabled: true, Writer: &buf}, 3, "Deleting")
		if bar == nil {
			t.Fatal("NewProgressBar() should return non-nil when enabled")
		}
		bar.Describe("person")
		_ = bar.Set(2)
		_ = bar.Finish()
	})

	t.Run("zero total creates valid bar", func(t *testing.T) {
		var buf bytes.Buffer
		bar := NewProgressBar(ProgressConfig{Enabled: true, Writer: &buf, NoColor: true}, 0, "Empty")
		if bar == nil {
			t.Fatal("NewProgressBar() should handle zero total")
		}
		_ = bar.Finish()
	})
}

func TestNewSpinner(t *testing.T) {
	if s := NewSpinner(ProgressConfig{}, "Waiting"); s != nil {
		t.Error("NewSpinner() should return nil when disabled")
	}

	var buf bytes.Buffer
	s := NewSpinner(ProgressConfig{Enabled: true, Writer: &buf}, "Waiting")
	if s == nil {
		t.Fatal("NewSpinner() should return non-nil when enabled")
	}
	_ = s.Add(1)
	_ = s.Finish()
}
