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

// Package transport sends authenticated HTTP requests to a TypeDB server.
//
// A Session owns one pooled http.Client. Every request carries an
// operation class that selects its timeout from conn.Config. Failed
// attempts go through an explicit retry state machine:
//
//	attempt -> done | fail | reauth (once, on 401) | retry (bounded, with backoff)
//
// Connection failures before the request reached the server are always
// retried. Timeouts and 5xx responses are retried only for retry-safe
// requests, so an ambiguous write is never replayed. A Session is safe for
// concurrent use.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/kraklabs/typedb-go/pkg/conn"
	"github.com/kraklabs/typedb-go/pkg/errs"
)

// Authenticator supplies bearer tokens.
type Authenticator interface {
	// Token returns the current token, signing in when none is held.
	Token(ctx context.Context) (string, error)
	// Refresh discards stale and signs in again.
	Refresh(ctx context.Context, stale string) (string, error)
}

// Request describes one logical call.
type Request struct {
	Method string
	Path   string
	// Body is JSON-encoded unless it is a string or []byte.
	Body  any
	Class conn.Class
	// RetrySafe allows retrying after a timeout or 5xx. GET, HEAD and
	// DELETE are always retry-safe.
	RetrySafe bool
	// NoAuth skips the Authorization header.
	NoAuth bool
	// Op names the call in errors and logs.
	Op string
}

func (r Request) op() string {
	if r.Op != "" {
		return r.Op
	}
	return r.Method + " " + r.Path
}

func (r Request) retrySafe() bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodDelete:
		return true
	}
	return r.RetrySafe
}

// Response is a successful reply.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	// Attempts is the number of requests sent.
	Attempts int
}

// Decode unmarshals the JSON body into v. Unknown fields are ignored.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errs.Wrap(errs.KindServer, "decode", "malformed response body", err)
	}
	return nil
}

// Session is a pooled, retrying HTTP client bound to one server.
type Session struct {
	cfg       *conn.Config
	auth      Authenticator
	opts      Options
	client    *http.Client
	transport *http.Transport
	limiter   *rate.Limiter
	logger    zerolog.Logger
	sleep     func(context.Context, time.Duration) error
	closed    atomic.Bool
}

// New builds a session. auth may be nil for anonymous servers.
func New(cfg *conn.Config, auth Authenticator, opts Options, logger zerolog.Logger) *Session {
	opts = opts.normalize()
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConns = opts.PoolSize
	tr.MaxIdleConnsPerHost = opts.MaxConnsPerPool
	tr.MaxConnsPerHost = opts.MaxConnsPerPool

	s := &Session{
		cfg:       cfg,
		auth:      auth,
		opts:      opts,
		transport: tr,
		client:    &http.Client{Transport: tr},
		logger:    logger,
		sleep:     sleepContext,
	}
	if opts.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst)
	}
	return s
}

// SetSleep replaces the backoff wait.
func (s *Session) SetSleep(fn func(context.Context, time.Duration) error) {
	if fn != nil {
		s.sleep = fn
	}
}

// SetAuthenticator replaces the token source.
func (s *Session) SetAuthenticator(a Authenticator) { s.auth = a }

// Options returns the effective options.
func (s *Session) Options() Options { return s.opts }

// Config returns the connection configuration.
func (s *Session) Config() *conn.Config { return s.cfg }

// Close drops idle connections. Later calls fail.
func (s *Session) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.transport.CloseIdleConnections()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type outcomeKind int

const (
	outcomeDone outcomeKind = iota
	outcomeFail
	outcomeRetry
	outcomeReauth
)

// outcome is the result of one attempt.
type outcome struct {
	kind   outcomeKind
	resp   *Response
	err    error
	status int
}

// retryState tracks one call across attempts.
type retryState struct {
	attempts int
	retries  int
	reauthed bool
	token    string
}

// Do sends req, retrying as allowed, and returns a 2xx response.
func (s *Session) Do(ctx context.Context, req Request) (*Response, error) {
	if s.closed.Load() {
		return nil, errs.New(errs.KindConnection, req.op(), "session closed")
	}
	if req.Class == "" {
		req.Class = conn.ClassRead
	}
	payload, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, req.op(), "encode request body", err)
	}

	st := &retryState{}
	for {
		out := s.attempt(ctx, req, payload, contentType, st)
		switch out.kind {
		case outcomeDone:
			out.resp.Attempts = st.attempts
			return out.resp, nil
		case outcomeFail:
			return nil, annotate(out.err, req, st)
		case outcomeReauth:
			continue
		case outcomeRetry:
			if st.retries >= s.opts.MaxRetries {
				return nil, &errs.Error{
					Kind:       errs.KindConnection,
					Op:         req.op(),
					Class:      string(req.Class),
					Status:     out.status,
					Message:    "retries exhausted",
					Attempts:   st.attempts,
					RetryCount: st.retries,
					Cause:      out.err,
				}
			}
			delay := s.opts.Backoff(st.retries)
			st.retries++
			recordRetry(string(req.Class))
			s.logger.Warn().
				Str("op", req.op()).
				Int("retry", st.retries).
				Dur("backoff", delay).
				Err(out.err).
				Msg("transport.retry")
			if err := s.sleep(ctx, delay); err != nil {
				return nil, &errs.Error{
					Kind: errs.KindConnection, Op: req.op(), Class: string(req.Class),
					Message: "cancelled during backoff", Attempts: st.attempts, RetryCount: st.retries, Cause: err,
				}
			}
		}
	}
}

func annotate(err error, req Request, st *retryState) error {
	var src *errs.Error
	if errors.As(err, &src) {
		e := *src
		if e.Op == "" {
			e.Op = req.op()
		}
		if e.Class == "" {
			e.Class = string(req.Class)
		}
		if e.Attempts == 0 {
			e.Attempts = st.attempts
		}
		if e.RetryCount == 0 {
			e.RetryCount = st.retries
		}
		return &e
	}
	return err
}

func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return b, "text/plain; charset=utf-8", nil
	case string:
		return []byte(b), "text/plain; charset=utf-8", nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

func (s *Session) attempt(ctx context.Context, req Request, payload []byte, contentType string, st *retryState) outcome {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return outcome{kind: outcomeFail, err: errs.Wrap(errs.KindConnection, "", "rate limiter", err)}
		}
	}

	if !req.NoAuth && s.auth != nil && st.token == "" {
		tok, err := s.auth.Token(ctx)
		if err != nil {
			return outcome{kind: outcomeFail, err: err}
		}
		st.token = tok
	}

	actx, cancel := context.WithTimeout(ctx, s.cfg.TimeoutFor(req.Class))
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	hreq, err := http.NewRequestWithContext(actx, req.Method, s.cfg.Address()+req.Path, body)
	if err != nil {
		return outcome{kind: outcomeFail, err: errs.Wrap(errs.KindValidation, "", "build request", err)}
	}
	reqID := uuid.NewString()
	hreq.Header.Set("X-Request-Id", reqID)
	hreq.Header.Set("User-Agent", s.opts.UserAgent)
	hreq.Header.Set("Accept", "application/json")
	if contentType != "" {
		hreq.Header.Set("Content-Type", contentType)
	}
	if st.token != "" {
		hreq.Header.Set("Authorization", "Bearer "+st.token)
	}

	st.attempts++
	start := time.Now()
	resp, err := s.client.Do(hreq)
	if err != nil {
		recordAttempt(string(req.Class), 0, time.Since(start))
		return s.classifyNetErr(ctx, req, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	recordAttempt(string(req.Class), resp.StatusCode, time.Since(start))
	if err != nil {
		return s.classifyNetErr(ctx, req, err)
	}

	s.logger.Debug().
		Str("op", req.op()).
		Str("request_id", reqID).
		Int("status", resp.StatusCode).
		Int("attempt", st.attempts).
		Dur("took", time.Since(start)).
		Msg("transport.request")

	status := resp.StatusCode
	if status >= 200 && status < 300 {
		return outcome{kind: outcomeDone, resp: &Response{Status: status, Header: resp.Header, Body: data}}
	}

	serr := serverError(status, data)
	switch {
	case status == http.StatusUnauthorized:
		if req.NoAuth || s.auth == nil || st.reauthed {
			serr.Kind = errs.KindAuthentication
			return outcome{kind: outcomeFail, err: serr, status: status}
		}
		st.reauthed = true
		recordReauth()
		s.logger.Info().Str("op", req.op()).Msg("transport.reauth")
		tok, err := s.auth.Refresh(ctx, st.token)
		if err != nil {
			return outcome{kind: outcomeFail, err: err, status: status}
		}
		st.token = tok
		return outcome{kind: outcomeReauth}
	case status == http.StatusForbidden:
		serr.Kind = errs.KindAuthentication
		return outcome{kind: outcomeFail, err: serr, status: status}
	case status == http.StatusTooManyRequests:
		serr.Kind = errs.KindConnection
		return outcome{kind: outcomeRetry, err: serr, status: status}
	case status == http.StatusRequestTimeout, status == http.StatusInternalServerError,
		status == http.StatusBadGateway, status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout:
		serr.Kind = errs.KindServer
		if req.retrySafe() {
			return outcome{kind: outcomeRetry, err: serr, status: status}
		}
		return outcome{kind: outcomeFail, err: serr, status: status}
	case status >= 500:
		serr.Kind = errs.KindServer
		return outcome{kind: outcomeFail, err: serr, status: status}
	default:
		serr.Kind = errs.KindQuery
		return outcome{kind: outcomeFail, err: serr, status: status}
	}
}

// classifyNetErr decides whether a transport failure may be retried.
func (s *Session) classifyNetErr(ctx context.Context, req Request, err error) outcome {
	if ctx.Err() != nil {
		return outcome{kind: outcomeFail, err: errs.Wrap(errs.KindConnection, "", "request cancelled", ctx.Err())}
	}
	if isDialError(err) {
		return outcome{kind: outcomeRetry, err: errs.Wrap(errs.KindConnection, "", "connect failed", err)}
	}
	msg := "request failed"
	if isTimeout(err) {
		msg = fmt.Sprintf("request timed out after %s", s.cfg.TimeoutFor(req.Class))
	}
	cerr := errs.Wrap(errs.KindConnection, "", msg, err)
	if req.retrySafe() {
		return outcome{kind: outcomeRetry, err: cerr}
	}
	return outcome{kind: outcomeFail, err: cerr}
}

func isDialError(err error) bool {
	var op *net.OpError
	return errors.As(err, &op) && op.Op == "dial"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func serverError(status int, body []byte) *errs.Error {
	e := &errs.Error{Status: status}
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && (eb.Code != "" || eb.Message != "") {
		e.Code, e.Message = eb.Code, eb.Message
		return e
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512] + "..."
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	e.Message = msg
	return e
}
