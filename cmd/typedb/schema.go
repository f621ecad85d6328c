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
	"fmt"
	"strings"

	"github.com/kraklabs/typedb-go/internal/errors"
	"github.com/kraklabs/typedb-go/internal/output"
	"github.com/kraklabs/typedb-go/pkg/schema"
	"github.com/kraklabs/typedb-go/pkg/typedb"
)

// TypeOutput is one row of "schema --types".
type TypeOutput struct {
	Label    string   `json:"label"`
	Kind     string   `json:"kind"`
	Parent   string   `json:"parent,omitempty"`
	Abstract bool     `json:"abstract,omitempty"`
	Owns     []string `json:"owns,omitempty"`
	Keys     []string `json:"keys,omitempty"`
	Plays    []string `json:"plays,omitempty"`
	Relates  []string `json:"relates,omitempty"`
}

func runSchema(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("schema", `Usage: typedb schema <database> [options]

Prints the schema of a database as TypeQL. With --types the schema is
parsed and listed one type per line.
`)
	types := fs.Bool("types", false, "List parsed types instead of raw TypeQL")
	if err := parse(fs, args); err != nil {
		return err
	}
	db, _, err := a.database(fs.Args())
	if err != nil {
		return err
	}

	if !*types {
		text, err := a.client.Schema(ctx, db)
		if err != nil {
			return errors.FromError(err, "Cannot read schema of "+db)
		}
		if a.globals.JSON {
			return output.JSONTo(a.stdout, map[string]string{"database": db, "schema": text})
		}
		fmt.Fprintln(a.stdout, strings.TrimRight(text, "\n"))
		return nil
	}

	g, err := a.client.TypeSchema(ctx, db)
	if err != nil {
		return errors.FromError(err, "Cannot parse schema of "+db)
	}
	rows := describeTypes(g)
	if a.globals.JSON {
		return output.JSONTo(a.stdout, rows)
	}
	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		label := r.Label
		if r.Abstract {
			label += " (abstract)"
		}
		table = append(table, []string{label, r.Kind, r.Parent, strings.Join(r.Owns, ","), strings.Join(r.Plays, ",")})
	}
	return output.Table(a.stdout, []string{"TYPE", "KIND", "SUPERTYPE", "OWNS", "PLAYS"}, table)
}

func describeTypes(g *schema.Graph) []TypeOutput {
	labels := g.Labels()
	out := make([]TypeOutput, 0, len(labels))
	for _, l := range labels {
		t, _ := g.Type(l)
		row := TypeOutput{
			Label:    t.Label,
			Kind:     string(t.Kind),
			Parent:   t.Parent,
			Abstract: t.Abstract,
			Owns:     t.Owns,
			Keys:     t.Keys,
			Relates:  t.Relates,
		}
		for _, p := range t.Plays {
			row.Plays = append(row.Plays, p.String())
		}
		out = append(out, row)
	}
	return out
}

func runLoadSchema(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("load-schema", `Usage: typedb load-schema <database> <file-or-typeql>

Applies a schema in one schema transaction. The argument is read as a
file when such a file exists, otherwise as inline TypeQL. A leading
"define" is added when missing.

Examples:
  typedb load-schema social schema.tql
  typedb load-schema social 'entity robot, owns serial @key;'
`)
	if err := parse(fs, args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 2 {
		return errors.NewInputError("Missing schema",
			"load-schema takes a database and a schema file or text",
			"Run: typedb load-schema <database> <file-or-typeql>")
	}
	db := rest[0]

	spinner := NewSpinner(NewProgressConfig(a.globals, a.stderr), "Applying schema")
	err := a.client.LoadSchema(ctx, db, typedb.DetectSource(rest[1]))
	if spinner != nil {
		_ = spinner.Finish()
	}
	if err != nil {
		return errors.FromError(err, "Cannot load schema into "+db)
	}
	a.out.Successf("Schema applied to %s", db)
	if a.globals.JSON {
		return output.JSONTo(a.stdout, map[string]any{"database": db, "loaded": true})
	}
	return nil
}
