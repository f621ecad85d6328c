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
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// ProgressConfig determines if and how progress should be displayed.
type ProgressConfig struct {
	// Enabled is false under --json or -q, or when Writer is not a terminal.
	Enabled bool
	Writer  io.Writer
	NoColor bool
}

// NewProgressConfig creates a progress configuration for writes to w.
func NewProgressConfig(globals GlobalFlags, w io.Writer) ProgressConfig {
	enabled := false
	if f, ok := w.(*os.File); ok && !globals.Quiet {
		enabled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return ProgressConfig{
		Enabled: enabled,
		Writer:  w,
		NoColor: globals.NoColor,
	}
}

// NewProgressBar returns a bar over total steps, or nil when progress is
// disabled. wipe advances it once per deleted type.
func NewProgressBar(cfg ProgressConfig, total int64, description string) *progressbar.ProgressBar {
	if !cfg.Enabled {
		return nil
	}
	return progressbar.NewOptions64(total, append(progressOptions(cfg, description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)...)
}

// NewSpinner returns a spinner for steps of unknown length, or nil.
func NewSpinner(cfg ProgressConfig, description string) *progressbar.ProgressBar {
	if !cfg.Enabled {
		return nil
	}
	return progressbar.NewOptions(-1, append(progressOptions(cfg, description),
		progressbar.OptionSpinnerType(14),
	)...)
}

func progressOptions(cfg ProgressConfig, description string) []progressbar.Option {
	return []progressbar.Option{
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(cfg.Writer),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionEnableColorCodes(!cfg.NoColor),
	}
}
