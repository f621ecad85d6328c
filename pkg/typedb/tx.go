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
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kraklabs/typedb-go/pkg/conn"
	"github.com/kraklabs/typedb-go/pkg/errs"
	"github.com/kraklabs/typedb-go/pkg/transport"
	"github.com/kraklabs/typedb-go/pkg/typeql"
)

// TxType selects what a transaction may do.
type TxType int

const (
	Read TxType = iota
	Write
	Schema
)

func (t TxType) String() string {
	switch t {
	case Read:
		return "read"
	case Write:
		return "write"
	case Schema:
		return "schema"
	}
	return "unknown"
}

// Class maps the transaction type onto a timeout tier.
func (t TxType) Class() conn.Class {
	switch t {
	case Write:
		return conn.ClassWrite
	case Schema:
		return conn.ClassSchema
	}
	return conn.ClassRead
}

// ParseTxType accepts read, write or schema in any case.
func ParseTxType(s string) (TxType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read":
		return Read, nil
	case "write":
		return Write, nil
	case "schema":
		return Schema, nil
	}
	return Read, errs.Validation("tx.type", "unknown transaction type %q (want read, write or schema)", s)
}

// allows reports whether a statement of kind k may run in a t transaction.
func (t TxType) allows(k typeql.StatementKind) bool {
	switch t {
	case Read:
		return k == typeql.StatementRead
	case Write:
		return k != typeql.StatementSchema
	}
	return true
}

// TxState is where a transaction is in its lifecycle.
type TxState int

const (
	TxOpen TxState = iota
	TxCommitted
	TxRolledBack
	TxFailed
	TxClosed
)

func (s TxState) String() string {
	switch s {
	case TxOpen:
		return "open"
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolled back"
	case TxFailed:
		return "failed"
	case TxClosed:
		return "closed"
	}
	return "unknown"
}

// Tx is one server transaction. It is owned by a single goroutine and may
// not be reused once it leaves the open state.
type Tx struct {
	c      *Client
	db     string
	typ    TxType
	id     string
	state  TxState
	logger zerolog.Logger
}

type openRequest struct {
	DatabaseName       string             `json:"databaseName"`
	TransactionType    string             `json:"transactionType"`
	TransactionOptions transactionOptions `json:"transactionOptions"`
}

type transactionOptions struct {
	TransactionTimeoutMillis int64 `json:"transactionTimeoutMillis,omitempty"`
}

type openResponse struct {
	TransactionID string `json:"transactionId"`
}

type queryRequest struct {
	Query        string       `json:"query"`
	QueryOptions queryOptions `json:"queryOptions"`
}

type queryOptions struct {
	IncludeInstanceTypes bool `json:"includeInstanceTypes"`
}

type oneShotRequest struct {
	DatabaseName    string       `json:"databaseName"`
	TransactionType string       `json:"transactionType"`
	Query           string       `json:"query"`
	Commit          bool         `json:"commit"`
	QueryOptions    queryOptions `json:"queryOptions"`
}

// Open starts a transaction on db. Callers must Commit, Rollback or Close it;
// `defer tx.Close(ctx)` is always safe.
func (c *Client) Open(ctx context.Context, db string, typ TxType) (*Tx, error) {
	if err := ValidateDatabaseName(db); err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "/v1/transactions/open",
		Body: openRequest{
			DatabaseName:    db,
			TransactionType: typ.String(),
			TransactionOptions: transactionOptions{
				TransactionTimeoutMillis: c.cfg.TimeoutFor(typ.Class()).Milliseconds(),
			},
		},
		// A retried open could leave the first transaction orphaned on the
		// server, so only failures before the request was sent are retried.
		Class: typ.Class(),
		Op:    "tx.open",
	})
	if err != nil {
		return nil, err
	}
	var out openResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	if out.TransactionID == "" {
		return nil, errs.New(errs.KindServer, "tx.open", "server returned no transaction id")
	}
	tx := &Tx{
		c:      c,
		db:     db,
		typ:    typ,
		id:     out.TransactionID,
		logger: c.logger.With().Str("db", db).Str("tx", out.TransactionID).Logger(),
	}
	tx.logger.Debug().Stringer("type", typ).Msg("tx.open")
	return tx, nil
}

// ID is the server transaction id.
func (t *Tx) ID() string { return t.id }

// Type is the transaction type.
func (t *Tx) Type() TxType { return t.typ }

// Database is the database the transaction runs against.
func (t *Tx) Database() string { return t.db }

// State reports the lifecycle state.
func (t *Tx) State() TxState { return t.state }

// Done reports whether the transaction can no longer be used.
func (t *Tx) Done() bool { return t.state != TxOpen }

func (t *Tx) path(op string) string {
	return "/v1/transactions/" + url.PathEscape(t.id) + "/" + op
}

func (t *Tx) closedErr(op string) error {
	return errs.Newf(errs.KindQuery, op, "transaction %s", t.state)
}

// Execute renders st and runs it.
func (t *Tx) Execute(ctx context.Context, st Statement) (*Answer, error) {
	q, err := st.Build()
	if err != nil {
		return nil, err
	}
	return t.ExecuteRaw(ctx, q)
}

// ExecuteRaw runs a TypeQL statement. A statement the transaction type does
// not permit is rejected locally. A statement the server rejects rolls the
// transaction back.
func (t *Tx) ExecuteRaw(ctx context.Context, q string) (*Answer, error) {
	if t.state != TxOpen {
		return nil, t.closedErr("tx.execute")
	}
	kind, err := checkStatement(t.typ, q)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := t.c.do(ctx, transport.Request{
		Method:    http.MethodPost,
		Path:      t.path("query"),
		Body:      queryRequest{Query: q, QueryOptions: queryOptions{IncludeInstanceTypes: true}},
		Class:     t.typ.Class(),
		RetrySafe: kind == typeql.StatementRead,
		Op:        "tx.query",
	})
	t.c.record(t.db, t.typ, q, start, err)
	if err != nil {
		t.logger.Warn().Err(err).Msg("tx.query.failed")
		t.abort(ctx)
		return nil, err
	}
	return decodeAnswer(resp.Body)
}

func checkStatement(typ TxType, q string) (typeql.StatementKind, error) {
	kind, err := typeql.Classify(q)
	if err != nil {
		return kind, err
	}
	if !typ.allows(kind) {
		return kind, errs.Newf(errs.KindQuery, "tx.execute", "%s transaction cannot run a %s statement", typ, kind)
	}
	return kind, nil
}

// abort rolls back after a failed statement. Errors are logged only.
func (t *Tx) abort(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if t.typ != Read {
		if err := t.post(ctx, "rollback"); err != nil {
			t.logger.Warn().Err(err).Msg("tx.rollback.failed")
		}
	}
	if err := t.post(ctx, "close"); err != nil {
		t.logger.Debug().Err(err).Msg("tx.close.failed")
	}
	t.state = TxFailed
}

func (t *Tx) post(ctx context.Context, op string) error {
	_, err := t.c.sess.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   t.path(op),
		Class:  t.typ.Class(),
		Op:     "tx." + op,
	})
	return err
}

// Commit makes the writes durable. It may be called once; read
// transactions have nothing to commit.
func (t *Tx) Commit(ctx context.Context) error {
	if t.state != TxOpen {
		return t.closedErr("tx.commit")
	}
	if t.typ == Read {
		return errs.New(errs.KindQuery, "tx.commit", "read transaction cannot commit")
	}
	if err := t.c.check("tx.commit"); err != nil {
		return err
	}
	start := time.Now()
	if err := t.post(ctx, "commit"); err != nil {
		t.state = TxFailed
		t.logger.Warn().Err(err).Msg("tx.commit.failed")
		if cerr := t.post(context.WithoutCancel(ctx), "close"); cerr != nil {
			t.logger.Debug().Err(cerr).Msg("tx.close.failed")
		}
		return err
	}
	t.state = TxCommitted
	t.logger.Debug().Dur("took", time.Since(start)).Msg("tx.commit")
	return nil
}

// Rollback discards the writes and closes the transaction. It may be called
// once.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.state != TxOpen {
		return t.closedErr("tx.rollback")
	}
	return t.rollback(ctx)
}

func (t *Tx) rollback(ctx context.Context) error {
	var err error
	if t.typ != Read {
		err = t.post(ctx, "rollback")
	}
	if cerr := t.post(ctx, "close"); err == nil {
		err = cerr
	}
	if t.typ == Read {
		t.state = TxClosed
	} else {
		t.state = TxRolledBack
	}
	t.logger.Debug().Err(err).Msg("tx.rollback")
	return err
}

// Close rolls back an open transaction and is a no-op otherwise.
func (t *Tx) Close(ctx context.Context) error {
	if t.state != TxOpen {
		return nil
	}
	return t.rollback(ctx)
}

// WithTransaction runs fn inside a transaction. A nil return commits (read
// transactions just close); an error or panic rolls back. Cleanup ignores
// cancellation of ctx.
func (c *Client) WithTransaction(ctx context.Context, db string, typ TxType, fn func(*Tx) error) (err error) {
	tx, err := c.Open(ctx, db, typ)
	if err != nil {
		return err
	}
	cleanup := context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			if cerr := tx.Close(cleanup); cerr != nil {
				tx.logger.Warn().Err(cerr).Msg("tx.rollback.failed")
			}
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if cerr := tx.Close(cleanup); cerr != nil {
			tx.logger.Warn().Err(cerr).Msg("tx.rollback.failed")
		}
		return err
	}
	switch tx.State() {
	case TxFailed:
		return errs.New(errs.KindQuery, "tx.run", "transaction failed and was rolled back")
	case TxCommitted, TxRolledBack, TxClosed:
		return nil
	}
	if typ == Read {
		return tx.Close(cleanup)
	}
	return tx.Commit(ctx)
}

// ExecuteOneShot opens, runs one statement, commits (unless read) and closes
// in a single request.
func (c *Client) ExecuteOneShot(ctx context.Context, db string, typ TxType, st Statement) (*Answer, error) {
	if err := ValidateDatabaseName(db); err != nil {
		return nil, err
	}
	q, err := st.Build()
	if err != nil {
		return nil, err
	}
	kind, err := checkStatement(typ, q)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := c.do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "/v1/query",
		Body: oneShotRequest{
			DatabaseName:    db,
			TransactionType: typ.String(),
			Query:           q,
			Commit:          typ != Read,
			QueryOptions:    queryOptions{IncludeInstanceTypes: true},
		},
		Class:     typ.Class(),
		RetrySafe: kind == typeql.StatementRead,
		Op:        "query.oneshot",
	})
	c.record(db, typ, q, start, err)
	if err != nil {
		return nil, err
	}
	return decodeAnswer(resp.Body)
}

func (c *Client) record(db string, typ TxType, q string, start time.Time, err error) {
	e := AuditEntry{Time: start, Database: db, TxType: typ, Query: q, Duration: time.Since(start)}
	if err != nil {
		e.Err = err.Error()
	}
	c.audit.add(e)
}
