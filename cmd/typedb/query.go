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
	"os"
	"strconv"
	"strings"

	"github.com/kraklabs/typedb-go/internal/errors"
	"github.com/kraklabs/typedb-go/internal/output"
	"github.com/kraklabs/typedb-go/pkg/typedb"
	"github.com/kraklabs/typedb-go/pkg/typeql"
)

func runQuery(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("query", `Usage: typedb query <database> <typeql> [options]

Runs one TypeQL query in a one-shot transaction. The transaction type is
inferred from the query unless --type is given; write and schema queries
are committed.

Examples:
  typedb query social 'match $p isa person; fetch { "email": $p.email };'
  typedb query social 'insert $p isa person, has email "ann@x.io";'
  typedb query social --file report.tql
`)
	txType := fs.String("type", "", "Transaction type: read, write or schema (default: inferred)")
	file := fs.StringP("file", "f", "", "Read the query from a file")
	if err := parse(fs, args); err != nil {
		return err
	}
	db, rest, err := a.database(fs.Args())
	if err != nil {
		return err
	}

	var q string
	switch {
	case *file != "":
		data, err := os.ReadFile(*file)
		if err != nil {
			return errors.NewInputError("Cannot read query file", err.Error(), "Check the --file path")
		}
		q = string(data)
	case len(rest) > 0:
		q = strings.Join(rest, " ")
	}
	if strings.TrimSpace(q) == "" {
		return errors.NewInputError("No query given", "query needs TypeQL text or --file",
			"Run: typedb query <database> '<typeql>'")
	}

	typ, err := queryType(*txType, q)
	if err != nil {
		return err
	}
	ans, err := a.client.ExecuteOneShot(ctx, db, typ, typedb.Raw(q))
	if err != nil {
		return errors.FromError(err, "Query failed")
	}
	if a.globals.JSON {
		return output.JSONTo(a.stdout, output.NewAnswerJSON(ans))
	}
	return output.Answer(a.stdout, ans)
}

func queryType(flagValue, q string) (typedb.TxType, error) {
	if flagValue != "" {
		t, err := typedb.ParseTxType(flagValue)
		if err != nil {
			return 0, errors.FromError(err, "Invalid --type")
		}
		return t, nil
	}
	kind, err := typeql.Classify(q)
	if err != nil {
		return 0, errors.FromError(err, "Cannot parse query")
	}
	switch kind {
	case typeql.StatementSchema:
		return typedb.Schema, nil
	case typeql.StatementWrite:
		return typedb.Write, nil
	}
	return typedb.Read, nil
}

func runCount(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("count", `Usage: typedb count <database> [type...]

Counts instances of the given types, subtypes included. Without types,
every concrete entity and relation type in the schema is counted.
`)
	if err := parse(fs, args); err != nil {
		return err
	}
	db, types, err := a.database(fs.Args())
	if err != nil {
		return err
	}
	if len(types) == 0 {
		g, err := a.client.TypeSchema(ctx, db)
		if err != nil {
			return errors.FromError(err, "Cannot read schema of "+db)
		}
		types = g.ConcreteTypes()
	}

	counts, err := a.client.CountInstances(ctx, db, types...)
	if err != nil {
		return errors.FromError(err, "Cannot count instances in "+db)
	}
	if a.globals.JSON {
		return output.JSONTo(a.stdout, counts)
	}
	rows := make([][]string, 0, len(types))
	for _, typ := range types {
		rows = append(rows, []string{typ, strconv.FormatInt(counts[typ], 10)})
	}
	return output.Table(a.stdout, []string{"TYPE", "COUNT"}, rows)
}
