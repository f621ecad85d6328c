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

// Package testing provides an in-process TypeDB HTTP server for tests.
//
// # Quick Start
//
// Use NewFakeServer to start a server and CreateDatabase to give it a
// schema:
//
//	func TestMyFeature(t *testing.T) {
//	    srv := typedbtest.NewFakeServer(t, typedbtest.WithUser("admin", "password"))
//	    srv.CreateDatabase(t, "social", typedbtest.SocialSchema)
//
//	    c, err := typedb.New(srv.Params("admin", "password"))
//	    require.NoError(t, err)
//	    // Run your tests...
//	}
//
// # What the Server Understands
//
// The server implements the HTTP routes of TypeDB 3.x: sign-in, database
// management, transactions (open, query, commit, rollback, close) and
// one-shot queries. Queries run against an in-memory store through a small
// interpreter covering:
//   - match patterns with isa, isa!, has, links and label
//   - insert, put and delete (instances and attribute ownerships)
//   - sort, offset, limit, select, reduce (with groupby) and fetch
//   - define, appended to the schema
//
// Key attributes are unique per type hierarchy, and an instance that still
// plays a role in a relation cannot be deleted.
//
// # Failure Injection
//
// FailNext, LoseResponse and Delay change how the next matching requests are served;
// ExpireTokens forces clients to sign in again; Requests and CountRequests
// expose what the server saw.
package testing
