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
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/kraklabs/typedb-go/internal/errors"
	"github.com/kraklabs/typedb-go/internal/output"
	"github.com/kraklabs/typedb-go/pkg/typedb"
)

// WipeOutput is the --json form of the wipe command.
type WipeOutput struct {
	Database  string           `json:"database"`
	Order     []string         `json:"order"`
	Deleted   map[string]int64 `json:"deleted"`
	Remaining map[string]int64 `json:"remaining,omitempty"`
	Total     int64            `json:"total"`
	Cycles    []string         `json:"cycles,omitempty"`
	TookMs    int64            `json:"took_ms"`
}

func runWipe(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("wipe", `Usage: typedb wipe <database> --yes [options]

Deletes every entity and relation instance in a database and keeps the
schema. Types are read from the live schema and deleted in dependency
order (relations before the types playing their roles) in a single
write transaction: a failure leaves the data untouched.

WARNING: This operation is destructive and cannot be undone!

Examples:
  typedb wipe social --yes
  typedb wipe social --yes --verify --attributes
`)
	confirm := fs.Bool("yes", false, "Confirm the wipe (required)")
	verify := fs.Bool("verify", false, "Count remaining instances after commit")
	attrs := fs.Bool("attributes", false, "Also delete attribute instances")
	if err := parse(fs, args); err != nil {
		return err
	}
	db, _, err := a.database(fs.Args())
	if err != nil {
		return err
	}
	if !*confirm {
		return errors.NewInputError("Refusing to wipe "+db+" without confirmation",
			"This deletes every instance in the database",
			"Pass --yes to confirm")
	}

	a.out.Header("Wipe " + db)
	progress := NewProgressConfig(a.globals, a.stderr)
	var bar *progressbar.ProgressBar
	report, err := a.client.Wipe(ctx, db, typedb.WipeOptions{
		Verify:            *verify,
		IncludeAttributes: *attrs,
		Progress: func(s typedb.WipeStep) {
			if bar == nil {
				bar = NewProgressBar(progress, int64(s.Total), "Deleting")
			}
			if bar != nil {
				bar.Describe(s.Type)
				_ = bar.Set(s.Index)
			}
		},
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		if report != nil && len(report.Remaining) > 0 {
			a.out.Warningf("Committed, but instances remain: %s", remaining(report))
		}
		return errors.FromError(err, "Cannot wipe "+db)
	}

	for _, c := range report.Cycles {
		a.out.Warningf("Role cycle %s broken at %s", strings.Join(c.Types, " -> "), c.Broken)
	}
	if a.globals.JSON {
		out := WipeOutput{
			Database:  db,
			Order:     report.Order,
			Deleted:   report.Deleted,
			Remaining: report.Remaining,
			Total:     report.Total(),
			TookMs:    report.Took.Milliseconds(),
		}
		for _, c := range report.Cycles {
			out.Cycles = append(out.Cycles, strings.Join(c.Types, " -> "))
		}
		return output.JSONTo(a.stdout, out)
	}

	if !a.globals.Quiet && len(report.Order) > 0 {
		rows := make([][]string, 0, len(report.Order))
		for _, typ := range report.Order {
			rows = append(rows, []string{typ, strconv.FormatInt(report.Deleted[typ], 10)})
		}
		if err := output.Table(a.stdout, []string{"TYPE", "DELETED"}, rows); err != nil {
			return err
		}
	}
	a.out.Successf("Deleted %d instances from %s in %s", report.Total(), db, report.Took.Round(time.Millisecond))
	return nil
}

func remaining(r *typedb.WipeReport) string {
	var parts []string
	for _, typ := range r.Order {
		if n := r.Remaining[typ]; n > 0 {
			parts = append(parts, typ+"="+strconv.FormatInt(n, 10))
		}
	}
	return strings.Join(parts, ", ")
}
