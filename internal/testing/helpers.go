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
	"strings"
	"testing"
	"time"

	"github.com/kraklabs/typedb-go/pkg/conn"
)

// SocialSchema is a small schema with two entity types and one relation
// between them.
const SocialSchema = `define
attribute name, value string;
attribute email, value string;
attribute age, value integer;
attribute since, value datetime;
entity person, owns email @key, owns name, owns age, plays employment:employee;
entity company, owns name @key, plays employment:employer;
relation employment, relates employee, relates employer, owns since;
`

// Params returns connection parameters for the server. With a user and
// password the client signs in.
//
// Example:
//
//	srv := testing.NewFakeServer(t, testing.WithUser("admin", "password"))
//	c, err := typedb.New(srv.Params("admin", "password"))
func (s *FakeServer) Params(userPass ...string) conn.Params {
	p := conn.Params{Address: s.URL}
	if len(userPass) == 2 {
		u, pw := userPass[0], userPass[1]
		p.Username, p.Password = &u, &pw
	}
	return p
}

// CreateDatabase adds a database with the given schema, bypassing HTTP.
//
// Example:
//
//	srv.CreateDatabase(t, "social", testing.SocialSchema)
func (s *FakeServer) CreateDatabase(t testing.TB, name, schemaText string) {
	t.Helper()
	st := newStore()
	if strings.TrimSpace(schemaText) != "" {
		if err := st.define(schemaText); err != nil {
			t.Fatalf("failed to define schema for %s: %v", name, err)
		}
	}
	s.mu.Lock()
	s.dbs[name] = st
	s.mu.Unlock()
}

// Seed runs a write query against name and commits it.
//
// Example:
//
//	srv.Seed(t, "social", `insert $p isa person, has email "a@x.io";`)
func (s *FakeServer) Seed(t testing.TB, name string, query string) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.dbs[name]
	if !ok {
		t.Fatalf("failed to seed: no database %s", name)
	}
	work := db.clone()
	if _, err := s.execute(work, "write", query); err != nil {
		t.Fatalf("failed to seed %s: %v", name, err)
	}
	s.dbs[name] = work
}

// Count returns the committed number of instances of typ, subtypes
// included.
func (s *FakeServer) Count(t testing.TB, name, typ string) int {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.dbs[name]
	if !ok {
		t.Fatalf("failed to count: no database %s", name)
	}
	return db.count(typ)
}

// HasDatabase reports whether name exists.
func (s *FakeServer) HasDatabase(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dbs[name]
	return ok
}

// SchemaText returns the committed schema of name.
func (s *FakeServer) SchemaText(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[name]; ok {
		return db.schemaText()
	}
	return ""
}

// OpenTransactions is the number of transactions not yet closed.
func (s *FakeServer) OpenTransactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txs)
}

// FailNext makes the next times requests whose path starts with prefix
// fail with status. An empty method matches any method.
func (s *FakeServer) FailNext(method, prefix string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &fault{method: method, prefix: prefix, status: status, times: times})
}

// LoseResponse handles the next times matching requests normally but
// answers them with status, as if the reply was lost on the way back.
func (s *FakeServer) LoseResponse(method, prefix string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &fault{method: method, prefix: prefix, status: status, times: times, served: true})
}

// Delay holds the next times matching requests for d before serving them.
func (s *FakeServer) Delay(method, prefix string, d time.Duration, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &fault{method: method, prefix: prefix, delay: d, times: times})
}

// ExpireTokens invalidates every issued token, forcing a re-sign-in.
func (s *FakeServer) ExpireTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = map[string]string{}
}

// Requests returns a copy of the request log.
func (s *FakeServer) Requests() []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Recorded(nil), s.log...)
}

// CountRequests counts logged requests by method and path prefix. An empty
// method matches any method.
func (s *FakeServer) CountRequests(method, prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.log {
		if (method == "" || r.Method == method) && strings.HasPrefix(r.Path, prefix) {
			n++
		}
	}
	return n
}

// ResetRequests clears the request log.
func (s *FakeServer) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = nil
}
