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

// Package typedb is a client for the TypeDB 3.x HTTP API.
//
// A Client validates its configuration up front and performs no I/O until the
// first call. Sign-in is lazy; the bearer token lives sealed inside a
// credential.Guard and is refreshed once on a 401.
//
//	c, err := typedb.New(conn.Params{Address: "localhost:8000", Username: &u, Password: &p})
//	err = c.WithTransaction(ctx, "social", typedb.Write, func(tx *typedb.Tx) error {
//	    _, err := tx.Execute(ctx, typeql.New().Insert().Variable("p", "person", attrs))
//	    return err
//	})
package typedb

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kraklabs/typedb-go/pkg/conn"
	"github.com/kraklabs/typedb-go/pkg/credential"
	"github.com/kraklabs/typedb-go/pkg/errs"
	"github.com/kraklabs/typedb-go/pkg/transport"
)

// Statement is anything that renders to TypeQL. *typeql.Builder satisfies it.
type Statement interface {
	Build() (string, error)
}

// Raw is literal TypeQL text.
type Raw string

// Build returns the text unchanged.
func (r Raw) Build() (string, error) { return string(r), nil }

// Option configures a Client.
type Option func(*options)

type options struct {
	transport  transport.Options
	logger     zerolog.Logger
	auditLimit int
	sleep      func(context.Context, time.Duration) error
	guardOpts  []credential.Option
}

// WithTransport sets pool, retry and rate-limit options.
func WithTransport(o transport.Options) Option {
	return func(c *options) { c.transport = o }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(c *options) { c.logger = l }
}

// WithAuditLimit bounds the in-memory audit log.
func WithAuditLimit(n int) Option {
	return func(c *options) {
		if n > 0 {
			c.auditLimit = n
		}
	}
}

// WithBackoffSleep replaces the wait between retries. Tests use it to avoid
// real sleeps.
func WithBackoffSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *options) { c.sleep = fn }
}

// WithGuardOptions passes options to the credential guard.
func WithGuardOptions(opts ...credential.Option) Option {
	return func(c *options) { c.guardOpts = append(c.guardOpts, opts...) }
}

// Client talks to one TypeDB server. It is safe for concurrent use.
type Client struct {
	cfg    *conn.Config
	sess   *transport.Session
	guard  *credential.Guard
	auth   *authenticator
	audit  *auditLog
	logger zerolog.Logger
	closed atomic.Bool
}

// New validates p and builds a client. It does not contact the server.
func New(p conn.Params, opts ...Option) (*Client, error) {
	cfg, err := conn.Parse(p)
	if err != nil {
		return nil, err
	}
	o := options{
		transport:  transport.DefaultOptions(),
		logger:     zerolog.Nop(),
		auditLimit: DefaultAuditLimit,
	}
	for _, opt := range opts {
		opt(&o)
	}
	guard, err := credential.NewGuard(o.guardOpts...)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		guard:  guard,
		audit:  newAuditLog(o.auditLimit),
		logger: o.logger,
	}
	c.sess = transport.New(cfg, nil, o.transport, o.logger)
	if o.sleep != nil {
		c.sess.SetSleep(o.sleep)
	}
	c.auth = &authenticator{cfg: cfg, sess: c.sess, guard: guard, logger: o.logger}
	if cfg.HasCredentials() {
		c.sess.SetAuthenticator(c.auth)
	}
	return c, nil
}

// Config returns the validated connection configuration.
func (c *Client) Config() *conn.Config { return c.cfg }

// Session exposes the underlying transport.
func (c *Client) Session() *transport.Session { return c.sess }

func (c *Client) check(op string) error {
	if c.closed.Load() {
		return errs.New(errs.KindConnection, op, "client closed")
	}
	return nil
}

func (c *Client) do(ctx context.Context, req transport.Request) (*transport.Response, error) {
	if err := c.check(req.Op); err != nil {
		return nil, err
	}
	return c.sess.Do(ctx, req)
}

// SignIn authenticates eagerly. Calls sign in on demand otherwise.
func (c *Client) SignIn(ctx context.Context) error {
	if err := c.check("signin"); err != nil {
		return err
	}
	if !c.cfg.HasCredentials() {
		return nil
	}
	_, err := c.auth.Token(ctx)
	return err
}

// Health reports whether the server answers its health probe.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/health",
		NoAuth: true,
		Op:     "health",
	})
	return err
}

// ServerVersion identifies the server build.
type ServerVersion struct {
	Distribution string `json:"distribution"`
	Version      string `json:"version"`
}

func (v ServerVersion) String() string {
	return v.Distribution + " " + v.Version
}

// Version asks the server for its distribution and version.
func (c *Client) Version(ctx context.Context) (ServerVersion, error) {
	var v ServerVersion
	resp, err := c.do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/v1/version",
		NoAuth: true,
		Op:     "version",
	})
	if err != nil {
		return v, err
	}
	err = resp.Decode(&v)
	return v, err
}

// AuditLog returns a copy of recorded queries, oldest first.
func (c *Client) AuditLog() []AuditEntry { return c.audit.entries() }

// Close forgets the token and releases idle connections. Later calls fail
// with a connection error.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.guard.Clear()
	c.sess.Close()
	c.logger.Debug().Str("address", c.cfg.Address()).Msg("client.close")
	return nil
}

func (c *Client) String() string {
	user := c.cfg.Username()
	if user == "" {
		user = "anonymous"
	}
	return fmt.Sprintf("typedb.Client{address=%s, user=%s, closed=%t}", c.cfg.Address(), user, c.closed.Load())
}

// GoString matches String so %#v stays redacted.
func (c *Client) GoString() string { return c.String() }
