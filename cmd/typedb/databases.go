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

	"github.com/kraklabs/typedb-go/internal/errors"
	"github.com/kraklabs/typedb-go/internal/output"
	"github.com/kraklabs/typedb-go/pkg/typedb"
)

// DatabasesOutput is the --json form of the databases command.
type DatabasesOutput struct {
	Databases []string `json:"databases"`
}

func runDatabases(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("databases", `Usage: typedb databases

Lists the databases on the server in name order.
`)
	if err := parse(fs, args); err != nil {
		return err
	}

	names, err := a.client.ListDatabases(ctx)
	if err != nil {
		return errors.FromError(err, "Cannot list databases")
	}
	if a.globals.JSON {
		if names == nil {
			names = []string{}
		}
		return output.JSONTo(a.stdout, DatabasesOutput{Databases: names})
	}
	for _, n := range names {
		fmt.Fprintln(a.stdout, n)
	}
	return nil
}

func runCreate(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("create", `Usage: typedb create <database> [options]

Creates an empty database. With --schema the schema is applied right
after creation; the value is a file path or inline TypeQL.

Examples:
  typedb create social
  typedb create social --schema schema.tql
`)
	schemaArg := fs.String("schema", "", "Schema file or inline TypeQL to load after creating")
	if err := parse(fs, args); err != nil {
		return err
	}
	db, _, err := a.database(fs.Args())
	if err != nil {
		return err
	}

	if err := a.client.CreateDatabase(ctx, db); err != nil {
		return errors.FromError(err, "Cannot create database "+db)
	}
	a.out.Successf("Created database %s", db)

	if *schemaArg != "" {
		if err := a.client.LoadSchema(ctx, db, typedb.DetectSource(*schemaArg)); err != nil {
			return errors.FromError(err, "Database created but the schema was rejected")
		}
		a.out.Success("Schema loaded")
	}
	if a.globals.JSON {
		return output.JSONTo(a.stdout, map[string]any{"database": db, "created": true, "schema_loaded": *schemaArg != ""})
	}
	return nil
}

func runDelete(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("delete", `Usage: typedb delete <database> --yes

Deletes a database with its schema and data.

WARNING: This operation is destructive and cannot be undone!
`)
	confirm := fs.Bool("yes", false, "Confirm the deletion (required)")
	if err := parse(fs, args); err != nil {
		return err
	}
	db, _, err := a.database(fs.Args())
	if err != nil {
		return err
	}
	if !*confirm {
		return errors.NewInputError("Refusing to delete "+db+" without confirmation",
			"This deletes the schema and every instance in the database",
			"Pass --yes to confirm")
	}

	if err := a.client.DeleteDatabase(ctx, db); err != nil {
		return errors.FromError(err, "Cannot delete database "+db)
	}
	a.out.Successf("Deleted database %s", db)
	if a.globals.JSON {
		return output.JSONTo(a.stdout, map[string]any{"database": db, "deleted": true})
	}
	return nil
}

// ExistsOutput is the --json form of the exists command.
type ExistsOutput struct {
	Database string `json:"database"`
	Exists   bool   `json:"exists"`
}

func runExists(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("exists", `Usage: typedb exists <database>

Prints whether the database exists. Exits with status 6 when it does not.
`)
	if err := parse(fs, args); err != nil {
		return err
	}
	db, _, err := a.database(fs.Args())
	if err != nil {
		return err
	}

	ok, err := a.client.DatabaseExists(ctx, db)
	if err != nil {
		return errors.FromError(err, "Cannot check database "+db)
	}
	if a.globals.JSON {
		if err := output.JSONTo(a.stdout, ExistsOutput{Database: db, Exists: ok}); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(a.stdout, ok)
	}
	if !ok {
		return &errors.UserError{ExitCode: errors.ExitNotFound, Message: "Database " + db + " does not exist"}
	}
	return nil
}
