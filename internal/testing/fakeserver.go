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

package testing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kraklabs/typedb-go/pkg/typeql"
)

// FakeServer is an in-process TypeDB HTTP server backed by memory.
type FakeServer struct {
	URL string

	srv    *httptest.Server
	mu     sync.Mutex
	users  map[string]string
	tokens map[string]string // token -> user
	dbs    map[string]*store
	txs    map[string]*fakeTx
	faults []*fault
	log    []Recorded
	seq    int
}

type fakeTx struct {
	id   string
	db   string
	typ  string
	work *store
}

// Recorded is one request seen by the server.
type Recorded struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
	Body          string
}

type fault struct {
	method string
	prefix string
	status int
	times  int
	delay  time.Duration
	// served requests are handled before status is returned.
	served bool
}

// FakeOption configures a FakeServer.
type FakeOption func(*FakeServer)

// WithUser requires sign-in and accepts name/password.
func WithUser(name, password string) FakeOption {
	return func(s *FakeServer) { s.users[name] = password }
}

// NewFakeServer starts a server and stops it when the test ends.
func NewFakeServer(t testing.TB, opts ...FakeOption) *FakeServer {
	t.Helper()
	s := &FakeServer{
		users:  map[string]string{},
		tokens: map[string]string{},
		dbs:    map[string]*store{},
		txs:    map[string]*fakeTx{},
	}
	for _, o := range opts {
		o(s)
	}
	s.srv = httptest.NewServer(s.routes())
	s.URL = s.srv.URL
	t.Cleanup(s.srv.Close)
	return s
}

func (s *FakeServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record, s.inject)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	r.Get("/v1/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"distribution": "TypeDB", "version": "3.4.0"})
	})
	r.Post("/v1/signin", s.signin)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/v1/databases", s.listDatabases)
		r.Get("/v1/databases/{db}", s.getDatabase)
		r.Post("/v1/databases/{db}", s.createDatabase)
		r.Delete("/v1/databases/{db}", s.deleteDatabase)
		r.Get("/v1/databases/{db}/schema", s.getSchema)
		r.Post("/v1/transactions/open", s.openTx)
		r.Post("/v1/transactions/{id}/query", s.queryTx)
		r.Post("/v1/transactions/{id}/commit", s.commitTx)
		r.Post("/v1/transactions/{id}/rollback", s.rollbackTx)
		r.Post("/v1/transactions/{id}/close", s.closeTx)
		r.Post("/v1/query", s.oneShot)
	})
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, e *apiError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": e.code, "message": e.message})
}

func (s *FakeServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
		}
		s.mu.Lock()
		s.log = append(s.log, Recorded{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-Id"),
			Body:          string(body),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *FakeServer) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		var hit *fault
		for _, f := range s.faults {
			if f.times > 0 && (f.method == "" || f.method == r.Method) && strings.HasPrefix(r.URL.Path, f.prefix) {
				f.times--
				hit = f
				break
			}
		}
		s.mu.Unlock()
		if hit == nil {
			next.ServeHTTP(w, r)
			return
		}
		if hit.delay > 0 {
			select {
			case <-time.After(hit.delay):
			case <-r.Context().Done():
				return
			}
		}
		if hit.status == 0 {
			next.ServeHTTP(w, r)
			return
		}
		if hit.served {
			next.ServeHTTP(httptest.NewRecorder(), r)
		}
		writeError(w, &apiError{status: hit.status, code: "FLT1", message: "injected failure"})
	})
}

func (s *FakeServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.users) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		_, ok := s.tokens[tok]
		s.mu.Unlock()
		if !ok {
			writeError(w, &apiError{status: http.StatusUnauthorized, code: "AUT2", message: "invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *FakeServer) signin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, queryErr("bad sign-in body"))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if pass, ok := s.users[in.Username]; !ok || pass != in.Password {
		writeError(w, &apiError{status: http.StatusUnauthorized, code: "AUT1", message: "invalid credentials"})
		return
	}
	tok := uuid.NewString()
	s.tokens[tok] = in.Username
	writeJSON(w, map[string]string{"token": tok})
}

func notFound(what, name string) *apiError {
	return &apiError{status: http.StatusNotFound, code: "NFD1", message: fmt.Sprintf("%s %q not found", what, name)}
}

func (s *FakeServer) listDatabases(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	names := make([]string, 0, len(s.dbs))
	for n := range s.dbs {
		names = append(names, n)
	}
	s.mu.Unlock()
	sort.Strings(names)
	out := make([]map[string]string, len(names))
	for i, n := range names {
		out[i] = map[string]string{"name": n}
	}
	writeJSON(w, map[string]any{"databases": out})
}

func (s *FakeServer) getDatabase(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "db")
	s.mu.Lock()
	_, ok := s.dbs[name]
	s.mu.Unlock()
	if !ok {
		writeError(w, notFound("database", name))
		return
	}
	writeJSON(w, map[string]string{"name": name})
}

func (s *FakeServer) createDatabase(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "db")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dbs[name]; ok {
		writeError(w, &apiError{status: http.StatusConflict, code: "DBE1", message: fmt.Sprintf("database %q already exists", name)})
		return
	}
	s.dbs[name] = newStore()
	w.WriteHeader(http.StatusOK)
}

func (s *FakeServer) deleteDatabase(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "db")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dbs[name]; !ok {
		writeError(w, notFound("database", name))
		return
	}
	delete(s.dbs, name)
	w.WriteHeader(http.StatusOK)
}

func (s *FakeServer) getSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "db")
	s.mu.Lock()
	db, ok := s.dbs[name]
	var text string
	if ok {
		text = db.schemaText()
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, notFound("database", name))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text))
}

func (s *FakeServer) openTx(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DatabaseName    string `json:"databaseName"`
		TransactionType string `json:"transactionType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, queryErr("bad open body"))
		return
	}
	switch in.TransactionType {
	case "read", "write", "schema":
	default:
		writeError(w, queryErr("unknown transaction type %q", in.TransactionType))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.dbs[in.DatabaseName]
	if !ok {
		writeError(w, notFound("database", in.DatabaseName))
		return
	}
	tx := &fakeTx{id: uuid.NewString(), db: in.DatabaseName, typ: in.TransactionType, work: db.clone()}
	s.txs[tx.id] = tx
	writeJSON(w, map[string]string{"transactionId": tx.id})
}

func (s *FakeServer) nextIID() string {
	s.seq++
	return fmt.Sprintf("0x%016x", s.seq)
}

// execute runs q on st. The caller holds s.mu.
func (s *FakeServer) execute(st *store, txType, q string) (map[string]any, *apiError) {
	kind, err := typeql.Classify(q)
	if err != nil {
		return nil, queryErr("%v", err)
	}
	switch {
	case txType == "read" && kind != typeql.StatementRead,
		txType == "write" && kind == typeql.StatementSchema:
		return nil, &apiError{status: http.StatusBadRequest, code: "TXN1", message: fmt.Sprintf("%s query in %s transaction", kind, txType)}
	}
	m := &machine{st: st, next: s.nextIID}
	res, aerr := m.run(q)
	if aerr != nil {
		return nil, aerr
	}
	return map[string]any{
		"queryType":  res.queryType,
		"answerType": res.answerType,
		"answers":    m.answers(res),
		"warning":    nil,
	}, nil
}

func (s *FakeServer) queryTx(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, queryErr("bad query body"))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[chi.URLParam(r, "id")]
	if !ok {
		writeError(w, notFound("transaction", chi.URLParam(r, "id")))
		return
	}
	out, aerr := s.execute(tx.work, tx.typ, in.Query)
	if aerr != nil {
		writeError(w, aerr)
		return
	}
	writeJSON(w, out)
}

func (s *FakeServer) commitTx(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "id")
	tx, ok := s.txs[id]
	if !ok {
		writeError(w, notFound("transaction", id))
		return
	}
	if tx.typ == "read" {
		writeError(w, &apiError{status: http.StatusBadRequest, code: "TXN2", message: "read transactions cannot commit"})
		return
	}
	if _, ok := s.dbs[tx.db]; ok {
		s.dbs[tx.db] = tx.work
	}
	delete(s.txs, id)
	w.WriteHeader(http.StatusOK)
}

func (s *FakeServer) rollbackTx(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "id")
	tx, ok := s.txs[id]
	if !ok {
		writeError(w, notFound("transaction", id))
		return
	}
	if db, ok := s.dbs[tx.db]; ok {
		tx.work = db.clone()
	}
	w.WriteHeader(http.StatusOK)
}

func (s *FakeServer) closeTx(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "id")
	if _, ok := s.txs[id]; !ok {
		writeError(w, notFound("transaction", id))
		return
	}
	delete(s.txs, id)
	w.WriteHeader(http.StatusOK)
}

func (s *FakeServer) oneShot(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DatabaseName    string `json:"databaseName"`
		TransactionType string `json:"transactionType"`
		Query           string `json:"query"`
		Commit          bool   `json:"commit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, queryErr("bad query body"))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.dbs[in.DatabaseName]
	if !ok {
		writeError(w, notFound("database", in.DatabaseName))
		return
	}
	work := db.clone()
	out, aerr := s.execute(work, in.TransactionType, in.Query)
	if aerr != nil {
		writeError(w, aerr)
		return
	}
	if in.Commit && in.TransactionType != "read" {
		s.dbs[in.DatabaseName] = work
	}
	writeJSON(w, out)
}
