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

// Package ui provides user interface utilities for the typedb CLI.
//
// Output goes through a Printer bound to a writer so commands can be run
// against buffers in tests. Colors respect the --no-color flag and the
// NO_COLOR environment variable.
//
// Color usage guidelines:
//   - Red: Errors, failures
//   - Yellow: Warnings, cautions
//   - Green: Success, completions
//   - Cyan: Info, neutral messages
//   - Bold: Headers, important labels
//   - Dim: Less important details, paths
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Pre-configured color instances for consistent CLI output.
var (
	// Red is used for error messages and failures.
	Red = color.New(color.FgRed)

	// Yellow is used for warnings and cautions.
	Yellow = color.New(color.FgYellow)

	// Green is used for success messages and completions.
	Green = color.New(color.FgGreen)

	// Cyan is used for informational messages.
	Cyan = color.New(color.FgCyan)

	// Bold is used for headers and important labels.
	Bold = color.New(color.Bold)

	// Dim is used for less important details like paths.
	Dim = color.New(color.Faint)
)

// InitColors configures global color output based on the noColor flag.
//
// This should be called early, after parsing flags.
func InitColors(noColor bool) {
	color.NoColor = noColor
}

// Printer writes status messages to a single writer. A quiet Printer
// drops everything except errors and warnings.
type Printer struct {
	w     io.Writer
	quiet bool
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer, quiet bool) *Printer {
	return &Printer{w: w, quiet: quiet}
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer { return p.w }

// Success prints a green success message with a checkmark prefix.
//
// Example output: "✓ Created database social"
func (p *Printer) Success(msg string) {
	if p.quiet {
		return
	}
	_, _ = Green.Fprintln(p.w, "✓ "+msg)
}

// Successf prints a formatted green success message.
func (p *Printer) Successf(format string, args ...any) {
	p.Success(fmt.Sprintf(format, args...))
}

// Warning prints a yellow warning message. Quiet mode does not hide it.
//
// Example output: "⚠ 2 instances remain after wipe"
func (p *Printer) Warning(msg string) {
	_, _ = Yellow.Fprintln(p.w, "⚠ "+msg)
}

// Warningf prints a formatted yellow warning message.
func (p *Printer) Warningf(format string, args ...any) {
	p.Warning(fmt.Sprintf(format, args...))
}

// Error prints a red error message with an X prefix.
func (p *Printer) Error(msg string) {
	_, _ = Red.Fprintln(p.w, "✗ "+msg)
}

// Info prints a cyan informational message.
//
// Example output: "ℹ Deletion order: employment, company, person"
func (p *Printer) Info(msg string) {
	if p.quiet {
		return
	}
	_, _ = Cyan.Fprintln(p.w, "ℹ "+msg)
}

// Infof prints a formatted cyan informational message.
func (p *Printer) Infof(format string, args ...any) {
	p.Info(fmt.Sprintf(format, args...))
}

// Header prints a bold header with an underline separator.
//
//	Wipe social
//	===========
func (p *Printer) Header(text string) {
	if p.quiet {
		return
	}
	_, _ = Bold.Fprintln(p.w, text)
	fmt.Fprintln(p.w, strings.Repeat("=", len(text)))
}

// SubHeader prints a bold sub-header without an underline.
func (p *Printer) SubHeader(text string) {
	if p.quiet {
		return
	}
	_, _ = Bold.Fprintln(p.w, text)
}

// Label returns a bold-formatted label string for inline use.
func Label(text string) string {
	return Bold.Sprint(text)
}

// DimText returns a dim-formatted string for less important text.
func DimText(text string) string {
	return Dim.Sprint(text)
}

// CountText returns a cyan-formatted count value.
func CountText(count int64) string {
	return Cyan.Sprint(count)
}
