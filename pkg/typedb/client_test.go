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
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	typedbtest "github.com/kraklabs/typedb-go/internal/testing"
	"github.com/kraklabs/typedb-go/pkg/conn"
	"github.com/kraklabs/typedb-go/pkg/errs"
	"github.com/kraklabs/typedb-go/pkg/transport"
)

const testPassword = "s3cr3t-pw"

func noSleep(context.Context, time.Duration) error { return nil }

// newTestClient starts a fake server with one user and the social schema.
func newTestClient(t *testing.T, opts ...Option) (*Client, *typedbtest.FakeServer) {
	t.Helper()
	srv := typedbtest.NewFakeServer(t, typedbtest.WithUser("admin", testPassword))
	srv.CreateDatabase(t, "social", typedbtest.SocialSchema)
	opts = append([]Option{WithBackoffSleep(noSleep)}, opts...)
	c, err := New(srv.Params("admin", testPassword), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, srv
}

func TestNew_Validation(t *testing.T) {
	user := "admin"
	tests := []struct {
		name string
		p    conn.Params
	}{
		{"bad scheme", conn.Params{Address: "ftp://localhost:8000"}},
		{"bad port", conn.Params{Address: "localhost:99999"}},
		{"half credentials", conn.Params{Address: "localhost:8000", Username: &user}},
		{"zero timeout", conn.Params{Address: "localhost:8000", Timeout: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.p)
			assert.True(t, errs.IsValidation(err), "got %v", err)
		})
	}
}

func TestNew_NoIO(t *testing.T) {
	srv := typedbtest.NewFakeServer(t, typedbtest.WithUser("admin", testPassword))
	c, err := New(srv.Params("admin", testPassword))
	require.NoError(t, err)
	defer c.Close()

	assert.Empty(t, srv.Requests())
}

func TestClient_StringRedacted(t *testing.T) {
	c, _ := newTestClient(t)
	require.NoError(t, c.SignIn(context.Background()))

	for _, s := range []string{c.String(), fmt.Sprintf("%v", c), fmt.Sprintf("%#v", c), fmt.Sprintf("%+v", c.Config())} {
		assert.NotContains(t, s, testPassword)
	}
	assert.Contains(t, c.String(), "user=admin")
}

func TestClient_LazySignin(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	names, err := c.ListDatabases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"social"}, names)
	_, err = c.ListDatabases(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, srv.CountRequests(http.MethodPost, "/v1/signin"))
	for _, r := range srv.Requests() {
		if r.Path == "/v1/databases" {
			assert.True(t, strings.HasPrefix(r.Authorization, "Bearer "))
			assert.NotEmpty(t, r.RequestID)
		}
	}
}

// TestClient_ReauthOnce tests that an expired token is refreshed exactly
// once and the request then succeeds.
func TestClient_ReauthOnce(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.SignIn(ctx))

	srv.ExpireTokens()
	_, err := c.ListDatabases(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, srv.CountRequests(http.MethodPost, "/v1/signin"))
	assert.Equal(t, 2, srv.CountRequests(http.MethodGet, "/v1/databases"))
}

func TestClient_ReauthConcurrent(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.SignIn(ctx))
	srv.ExpireTokens()

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := c.ListDatabases(ctx)
			return err
		})
	}
	require.NoError(t, g.Wait())
}

func TestClient_BadCredentials(t *testing.T) {
	srv := typedbtest.NewFakeServer(t, typedbtest.WithUser("admin", testPassword))
	c, err := New(srv.Params("admin", "wrong"), WithBackoffSleep(noSleep))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.ListDatabases(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsAuthentication(err), "got %v", err)
	assert.NotContains(t, err.Error(), "wrong")
}

func TestClient_Anonymous(t *testing.T) {
	srv := typedbtest.NewFakeServer(t)
	srv.CreateDatabase(t, "open", "")
	c, err := New(srv.Params())
	require.NoError(t, err)
	defer c.Close()

	names, err := c.ListDatabases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"open"}, names)
	assert.Equal(t, 0, srv.CountRequests("", "/v1/signin"))
}

func TestClient_HealthAndVersion(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))
	v, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "TypeDB", v.Distribution)
	assert.Equal(t, "TypeDB 3.4.0", v.String())
	assert.Equal(t, 0, srv.CountRequests("", "/v1/signin"))
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.SignIn(ctx))

	srv.FailNext(http.MethodGet, "/v1/databases", http.StatusServiceUnavailable, 2)
	names, err := c.ListDatabases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"social"}, names)
	assert.Equal(t, 3, srv.CountRequests(http.MethodGet, "/v1/databases"))
}

func TestClient_RetriesExhausted(t *testing.T) {
	opts := transport.DefaultOptions()
	opts.MaxRetries = 2
	c, srv := newTestClient(t, WithTransport(opts))
	ctx := context.Background()
	require.NoError(t, c.SignIn(ctx))

	srv.FailNext(http.MethodGet, "/v1/databases", http.StatusServiceUnavailable, 10)
	_, err := c.ListDatabases(ctx)
	require.Error(t, err)
	assert.True(t, errs.IsConnection(err))

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 2, e.RetryCount)
	assert.Equal(t, 3, e.Attempts)
	assert.Equal(t, http.StatusServiceUnavailable, e.Status)
}

func TestClient_Close(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.SignIn(ctx))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	srv.ResetRequests()

	_, err := c.ListDatabases(ctx)
	assert.True(t, errs.IsConnection(err))
	assert.Contains(t, err.Error(), "client closed")
	_, err = c.Open(ctx, "social", Read)
	assert.True(t, errs.IsConnection(err))
	assert.Empty(t, srv.Requests())
}

func TestClient_AuditLog(t *testing.T) {
	c, _ := newTestClient(t, WithAuditLimit(2))
	ctx := context.Background()

	for _, q := range []string{
		"match $p isa person;",
		"match $c isa company;",
		"match $e isa employment;",
	} {
		_, err := c.ExecuteOneShot(ctx, "social", Read, Raw(q))
		require.NoError(t, err)
	}
	log := c.AuditLog()
	require.Len(t, log, 2)
	assert.Equal(t, "match $c isa company;", log[0].Query)
	assert.Equal(t, "match $e isa employment;", log[1].Query)
	assert.Equal(t, Read, log[1].TxType)
	assert.Equal(t, "social", log[1].Database)
	assert.Empty(t, log[1].Err)
}
