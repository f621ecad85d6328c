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

package typedb

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/kraklabs/typedb-go/pkg/conn"
	"github.com/kraklabs/typedb-go/pkg/errs"
	"github.com/kraklabs/typedb-go/pkg/schema"
	"github.com/kraklabs/typedb-go/pkg/transport"
	"github.com/kraklabs/typedb-go/pkg/typeql"
)

// ValidateDatabaseName rejects empty names and characters outside
// [A-Za-z0-9_.-].
func ValidateDatabaseName(name string) error {
	if name == "" {
		return errs.Validation("database.name", "database name is required")
	}
	for _, r := range name {
		ok := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			r == '_' || r == '-' || r == '.'
		if !ok {
			return errs.Validation("database.name", "invalid database name %q", name)
		}
	}
	return nil
}

func dbPath(name string) string {
	return "/v1/databases/" + url.PathEscape(name)
}

type databasesResponse struct {
	Databases []struct {
		Name string `json:"name"`
	} `json:"databases"`
}

// ListDatabases returns database names in sorted order.
func (c *Client) ListDatabases(ctx context.Context) ([]string, error) {
	resp, err := c.do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/v1/databases",
		Op:     "database.list",
	})
	if err != nil {
		return nil, err
	}
	var out databasesResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.Databases))
	for _, d := range out.Databases {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names, nil
}

func statusOf(err error) int {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

func attemptsOf(err error) int {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Attempts
	}
	return 0
}

// DatabaseExists reports whether db exists.
func (c *Client) DatabaseExists(ctx context.Context, db string) (bool, error) {
	if err := ValidateDatabaseName(db); err != nil {
		return false, err
	}
	_, err := c.do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   dbPath(db),
		Op:     "database.exists",
	})
	if err == nil {
		return true, nil
	}
	if statusOf(err) == http.StatusNotFound {
		return false, nil
	}
	return false, err
}

// CreateDatabase creates db. An existing database is a validation error.
func (c *Client) CreateDatabase(ctx context.Context, db string) error {
	exists, err := c.DatabaseExists(ctx, db)
	if err != nil {
		return err
	}
	if exists {
		return errs.Validation("database.create", "database %q already exists", db)
	}
	_, err = c.do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   dbPath(db),
		Class:  conn.ClassSchema,
		Op:     "database.create",
	})
	if statusOf(err) == http.StatusConflict {
		return errs.Validation("database.create", "database %q already exists", db)
	}
	if err == nil {
		c.logger.Info().Str("db", db).Msg("database.create")
	}
	return err
}

// DeleteDatabase drops db and all its data. A missing database is a
// validation error.
func (c *Client) DeleteDatabase(ctx context.Context, db string) error {
	exists, err := c.DatabaseExists(ctx, db)
	if err != nil {
		return err
	}
	if !exists {
		return errs.Validation("database.delete", "database %q does not exist", db)
	}
	_, err = c.do(ctx, transport.Request{
		Method: http.MethodDelete,
		Path:   dbPath(db),
		Class:  conn.ClassSchema,
		Op:     "database.delete",
	})
	// A 404 on a retry means an earlier attempt deleted it.
	if statusOf(err) == http.StatusNotFound && attemptsOf(err) > 1 {
		err = nil
	}
	if statusOf(err) == http.StatusNotFound {
		return errs.Validation("database.delete", "database %q does not exist", db)
	}
	if err == nil {
		c.logger.Info().Str("db", db).Msg("database.delete")
	}
	return err
}

// Schema returns the schema of db as TypeQL define text.
func (c *Client) Schema(ctx context.Context, db string) (string, error) {
	if err := ValidateDatabaseName(db); err != nil {
		return "", err
	}
	resp, err := c.do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   dbPath(db) + "/schema",
		Op:     "database.schema",
	})
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

// TypeSchema parses the schema of db into a type graph.
func (c *Client) TypeSchema(ctx context.Context, db string) (*schema.Graph, error) {
	text, err := c.Schema(ctx, db)
	if err != nil {
		return nil, err
	}
	return schema.Parse(text)
}

// SchemaSource supplies schema text from a file or a literal.
type SchemaSource struct {
	path string
	text string
}

// FromFile reads the schema from path.
func FromFile(path string) SchemaSource { return SchemaSource{path: path} }

// FromText uses text as the schema.
func FromText(text string) SchemaSource { return SchemaSource{text: text} }

// DetectSource treats s as a path when a file of that name exists and as
// schema text otherwise.
func DetectSource(s string) SchemaSource {
	if !strings.ContainsAny(s, "\n;") {
		if st, err := os.Stat(s); err == nil && !st.IsDir() {
			return FromFile(s)
		}
	}
	return FromText(s)
}

// Text resolves the source to a define statement.
func (s SchemaSource) Text() (string, error) {
	text := s.text
	if s.path != "" {
		data, err := os.ReadFile(s.path)
		if err != nil {
			return "", errs.Wrap(errs.KindValidation, "schema.load", "read schema file", err)
		}
		text = string(data)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errs.Validation("schema.load", "schema is empty")
	}
	kind, err := typeql.Classify(text)
	if err != nil {
		return "", err
	}
	if kind != typeql.StatementSchema {
		text = "define\n" + text
	}
	return text, nil
}

// LoadSchema runs the source's define statement in a schema transaction
// and commits it.
func (c *Client) LoadSchema(ctx context.Context, db string, src SchemaSource) error {
	text, err := src.Text()
	if err != nil {
		return err
	}
	if strings.HasPrefix(text, "define") {
		if _, err := schema.Parse(text); err != nil {
			return err
		}
	}
	err = c.WithTransaction(ctx, db, Schema, func(tx *Tx) error {
		_, err := tx.ExecuteRaw(ctx, text)
		return err
	})
	if err == nil {
		c.logger.Info().Str("db", db).Int("bytes", len(text)).Msg("schema.load")
	}
	return err
}
