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
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/typedb-go/internal/errors"
	typedbtest "github.com/kraklabs/typedb-go/internal/testing"
)

const testPassword = "s3cr3t-pw"

type result struct {
	code   int
	stdout string
	stderr string
}

func newServer(t *testing.T) *typedbtest.FakeServer {
	t.Helper()
	srv := typedbtest.NewFakeServer(t, typedbtest.WithUser("admin", testPassword))
	srv.CreateDatabase(t, "social", typedbtest.SocialSchema)
	return srv
}

// runCLI runs the CLI against srv with credentials in the environment.
// extra entries override or add environment variables.
func runCLI(t *testing.T, srv *typedbtest.FakeServer, extra map[string]string, args ...string) result {
	t.Helper()
	env := map[string]string{
		"TYPEDB_USERNAME":  "admin",
		"TYPEDB_PASSWORD":  testPassword,
		"TYPEDB_LOG_LEVEL": "disabled",
	}
	if srv != nil {
		env["TYPEDB_ADDRESS"] = srv.URL
	}
	for k, v := range extra {
		env[k] = v
	}
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"--no-color"}, args...), &stdout, &stderr,
		func(k string) string { return env[k] })
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestRun_Usage(t *testing.T) {
	r := runCLI(t, nil, nil, "--version")
	assert.Equal(t, errors.ExitSuccess, r.code)
	assert.Contains(t, r.stdout, "typedb version dev")

	r = runCLI(t, nil, nil)
	assert.Equal(t, errors.ExitInput, r.code)
	assert.Contains(t, r.stderr, "Commands:")

	r = runCLI(t, nil, nil, "frobnicate")
	assert.Equal(t, errors.ExitInput, r.code)
	assert.Contains(t, r.stderr, "Unknown command: frobnicate")

	r = runCLI(t, nil, nil, "--bogus")
	assert.Equal(t, errors.ExitInput, r.code)

	r = runCLI(t, nil, nil, "--help")
	assert.Equal(t, errors.ExitSuccess, r.code)
	assert.Contains(t, r.stderr, "TYPEDB_PASSWORD")
}

func TestDatabases(t *testing.T) {
	srv := newServer(t)

	r := runCLI(t, srv, nil, "databases")
	require.Equal(t, errors.ExitSuccess, r.code, r.stderr)
	assert.Equal(t, "social\n", r.stdout)

	r = runCLI(t, srv, nil, "--json", "databases")
	require.Equal(t, errors.ExitSuccess, r.code, r.stderr)
	var out DatabasesOutput
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &out))
	assert.Equal(t, []string{"social"}, out.Databases)
}

func TestCreateExistsDelete(t *testing.T) {
	srv := newServer(t)

	r := runCLI(t, srv, nil, "create", "fleet", "--schema", "entity robot;")
	require.Equal(t, errors.ExitSuccess, r.code, r.stderr)
	assert.True(t, srv.HasDatabase("fleet"))
	assert.Contains(t, srv.SchemaText("fleet"), "entity robot")
	assert.Contains(t, r.stderr, "Created database fleet")

	r = runCLI(t, srv, nil, "create", "fleet")
	assert.Equal(t, errors.ExitInput, r.code)
	assert.Contains(t, r.stderr, "already exists")

	r = runCLI(t, srv, nil, "exists", "fleet")
	assert.Equal(t, errors.ExitSuccess, r.code)
	assert.Equal(t, "true\n", r.stdout)

	r = runCLI(t, srv, nil, "delete", "fleet")
	assert.Equal(t, errors.ExitInput, r.code)
	assert.Contains(t, r.stderr, "--yes")
	assert.True(t, srv.HasDatabase("fleet"))

	r = runCLI(t, srv, nil, "delete", "fleet", "--yes")
	require.Equal(t, errors.ExitSuccess, r.code, r.stderr)
	assert.False(t, srv.HasDatabase("fleet"))

	r = runCLI(t, srv, nil, "--json", "exists", "fleet")
	assert.Equal(t, errors.ExitNotFound, r.code)
	var out ExistsOutput
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &out))
	assert.Equal(t, ExistsOutput{Database: "fleet"}, out)

	r = runCLI(t, srv, nil, "create", "bad/name")
	assert.Equal(t, errors.ExitInput, r.code)
}

func TestSchemaCommands(t *testing.T) {
	srv := newServer(t)

	r := runCLI(t, srv, nil, "schema", "social")
	require.Equal(t, errors.ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "entity person")

	r = runCLI(t, srv, nil, "--json", "schema", "social", "--types")
	require.Equal(t, errors.ExitSuccess, r.code, r.stderr)
	var types []TypeOutput
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &types))
	byLabel := map[string]TypeOutput{}
	for _, typ := range types {
		byLabel[typ.Label] = typ
	}
	assert.Equal(t, "entity", byLabel["person"].Kind)
	assert.Equal(t, []string{"email"}, byLabel["person"].Keys)
	assert.Equal(t, []string{"employment:employee"}, byLabel["person"].Plays)
	assert.Equal(t, []string{"employee", "employer"}, byLabel["employment"].Relates)

	r = runCLI(t, srv, nil, "schema", "social", "--types")
	require.Equal(t, errors.ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "SUPERTYPE")

	path := filepath.Join(t.TempDir(), "robot.tql")
	require.NoError(t, os.WriteFile(path, []byte("attribute serial, value string;\nentity robot, owns serial @key;\n"), 0o600))
	r = runCLI(t, srv, nil, "load-schema", "social", path)
	require.Equal(t, errors.ExitSuccess, r.code, r.stderr)
	assert.Contains(t, srv.SchemaText("social"), "entity robot")

	r = runCLI(t, srv, nil, "load-schema", "social")
	assert.Equal(t, errors.ExitInput, r.code)

	r = runCLI(t, srv, nil, "load-schema", "social", "entity robot, owns;")
	assert.Equal(t, errors.ExitQuery, r.code)
}

func TestQuery(t *testing.T) {
	srv := newServer(t)

	r := runCLI(t, srv, nil, "query", "social", `insert $p isa person, has email "ann@x.io";`)
	require.Equal(t, errors.ExitSuccess, r.code, r.stderr)
	assert.Equal(t, 1, srv.Count(t, "social", "person"))

	r = runCLI(t, srv, nil, "query", "social", `match $p isa person, has email $e;`)
	require.Equal(t, errors.ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "$e")
	assert.Contains(t, r.stdout, "ann@x.io")

	path := filepath.Join(t.TempDir(), "q.tql")
	require.NoError(t, os.WriteFile(path, []byte(`match $p isa person, has email $e;`), 0o600))
	r = runCLI(t, srv, nil, "--json", "query", "social", "--file", path)
	require.Equal(t, errors.ExitSuccess, r.code, r.stderr)
	var ans struct {
		AnswerType string                       `json:"answer_type"`
		Rows       []map[string]json.RawMessage `json:"rows"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &ans))
	assert.Equal(t, "conceptRows", ans.AnswerType)
	assert.Len(t, ans.Rows, 1)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no query", []string{"query", "social"}, errors.ExitInput},
		{"bad type", []string{"query", "social", "--type", "admin", "match $p isa person;"}, errors.ExitInput},
		{"write in read", []string{"query", "social", "--type", "read", `insert $p isa person, has email "b@x.io";`}, errors.ExitQuery},
		{"unknown type", []string{"query", "social", "insert $r isa robot;"}, errors.ExitQuery},
		{"missing file", []string{"query", "social", "--file", filepath.Join(t.TempDir(), "nope.tql")}, errors.ExitInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := runCLI(t, srv, nil, tt.args...)
			assert.Equal(t, tt.want, r.code, r.stderr)
		})
	}
	assert.Equal(t, 1, srv.Count(t, "social", "person"))
}

func TestCount(t *testing.T) {
	srv := newServer(t)
	srv.Seed(t, "social", `insert $p isa person, has email "ann@x.io"; $q isa person, has email "bob@x.io";`)

	r := runCLI(t, srv, nil, "count", "social")
	require.Equal(t, errors.ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "TYPE")
	var personLine string
	for _, line := range strings.Split(r.stdout, "\n") {
		if strings.HasPrefix(line, "person") {
			personLine = line
		}
	}
	assert.Equal(t, []string{"person", "2"}, strings.Fields(personLine))

	r = runCLI(t, srv, map[string]string{"TYPEDB_DATABASE": "social"}, "--json", "count", "", "company")
	require.Equal(t, errors.ExitSuccess, r.code, r.stderr)
	var counts map[string]int64
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &counts))
	assert.Equal(t, map[string]int64{"company": 0}, counts)
}

func TestDatabaseFallback(t *testing.T) {
	srv := newServer(t)

	r := runCLI(t, srv, map[string]string{"TYPEDB_DATABASE": "social"}, "exists")
	assert.Equal(t, errors.ExitSuccess, r.code, r.stderr)

	r = runCLI(t, srv, nil, "--database", "social", "exists")
	assert.Equal(t, errors.ExitSuccess, r.code, r.stderr)

	r = runCLI(t, srv, nil, "exists")
	assert.Equal(t, errors.ExitInput, r.code)
	assert.Contains(t, r.stderr, "No database given")
}

func TestWipe(t *testing.T) {
	srv := newServer(t)
	srv.Seed(t, "social", `insert $p isa person, has email "ann@x.io"; $c isa company, has name "Acme";
$e isa employment, links (employee: $p, employer: $c);`)
	srv.Seed(t, "social", `insert $p isa person, has email "bob@x.io";`)

	r := runCLI(t, srv, nil, "wipe", "social")
	assert.Equal(t, errors.ExitInput, r.code)
	assert.Equal(t, 2, srv.Count(t, "social", "person"))

	r = runCLI(t, srv, nil, "--json", "wipe", "social", "--yes", "--verify")
	require.Equal(t, errors.ExitSuccess, r.code, r.stderr)
	var out WipeOutput
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &out))
	assert.Equal(t, []string{"employment", "company", "person"}, out.Order)
	assert.Equal(t, int64(4), out.Total)
	assert.Equal(t, map[string]int64{"employment": 0, "company": 0, "person": 0}, out.Remaining)
	assert.Zero(t, srv.Count(t, "social", "person"))
	assert.Contains(t, srv.SchemaText("social"), "entity person")

	r = runCLI(t, srv, nil, "wipe", "social", "--yes")
	require.Equal(t, errors.ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "DELETED")
	assert.Contains(t, r.stderr, "Deleted 0 instances from social")

	r = runCLI(t, srv, nil, "wipe", "missing", "--yes")
	assert.NotEqual(t, errors.ExitSuccess, r.code)
}

func TestHealthAndVersion(t *testing.T) {
	srv := newServer(t)

	r := runCLI(t, srv, nil, "health")
	require.Equal(t, errors.ExitSuccess, r.code, r.stderr)
	assert.True(t, strings.HasPrefix(r.stdout, "ok "))

	r = runCLI(t, srv, nil, "--json", "version")
	require.Equal(t, errors.ExitSuccess, r.code, r.stderr)
	var v VersionOutput
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &v))
	assert.Equal(t, VersionOutput{Client: "dev", Commit: "unknown", Distribution: "TypeDB", Server: "3.4.0"}, v)
}

func TestAuthFailure(t *testing.T) {
	srv := newServer(t)

	r := runCLI(t, srv, map[string]string{"TYPEDB_PASSWORD": "wrong-pw"}, "--json", "databases")
	assert.Equal(t, errors.ExitAuth, r.code)
	assert.NotContains(t, r.stderr, "wrong-pw")
	var e errors.ErrorJSON
	require.NoError(t, json.Unmarshal([]byte(r.stderr), &e))
	assert.Equal(t, "authentication", e.Kind)
}

func TestConfigFileAndErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typedb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`address: http://127.0.0.1:1
username: admin
password: ${TEST_PW}
timeout: 2
transport:
  max_retries: 0
`), 0o600))

	r := runCLI(t, nil, map[string]string{"TEST_PW": "from-file-pw", "TYPEDB_PASSWORD": ""}, "--config", path, "config")
	require.Equal(t, errors.ExitSuccess, r.code, r.stderr)
	assert.Contains(t, r.stdout, "address: http://127.0.0.1:1")
	assert.Contains(t, r.stdout, "[REDACTED]")
	assert.NotContains(t, r.stdout, "from-file-pw")

	r = runCLI(t, nil, nil, "--config", path, "health")
	assert.Equal(t, errors.ExitNetwork, r.code, r.stderr)

	r = runCLI(t, nil, map[string]string{"TYPEDB_PASSWORD": ""}, "databases")
	assert.Equal(t, errors.ExitConfig, r.code)
	assert.Contains(t, r.stderr, "password")

	r = runCLI(t, nil, nil, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "config")
	assert.Equal(t, errors.ExitConfig, r.code)

	r = runCLI(t, nil, nil, "--log-level", "chatty", "config")
	assert.Equal(t, errors.ExitConfig, r.code)
}
