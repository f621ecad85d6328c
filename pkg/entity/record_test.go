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

package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/typedb-go/pkg/errs"
	"github.com/kraklabs/typedb-go/pkg/typeql"
)

var (
	personType     = NewEntity("person", "email", "name", "age")
	companyType    = NewEntity("company", "name")
	employmentType = NewRelation("employment", "", "employee", "employer").WithAttributes("since")
)

func mustBuild(t *testing.T, b *typeql.Builder, err error) string {
	t.Helper()
	require.NoError(t, err)
	s, err := b.Build()
	require.NoError(t, err)
	return s
}

func TestType_Validate(t *testing.T) {
	require.NoError(t, personType.Validate())
	require.NoError(t, employmentType.Validate())
	assert.Equal(t, []string{"email", "name", "age"}, personType.Attributes)

	tests := []struct {
		name string
		typ  Type
	}{
		{"bad name", NewEntity("per son", "email")},
		{"entity without key", NewEntity("person", "")},
		{"key not owned", Type{Name: "person", Key: "email", Attributes: []string{"name"}}},
		{"bad attribute", NewEntity("person", "email", "na;me")},
		{"relation without roles", NewRelation("employment", "")},
		{"entity with roles", Type{Name: "person", Key: "email", Attributes: []string{"email"}, Roles: []string{"x"}}},
		{"bad role", NewRelation("employment", "", "emp loyee")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errs.IsValidation(tt.typ.Validate()))
		})
	}
}

func TestRecord_InsertQuery(t *testing.T) {
	r, err := personType.Record(map[string]any{
		"email": "ann@x.io",
		"name":  `Ann "the" Admin`,
		"age":   nil,
	})
	require.NoError(t, err)

	q, err := r.InsertQuery()
	assert.Equal(t, "insert\n$x isa person, has email \"ann@x.io\", has name \"Ann \\\"the\\\" Admin\";", mustBuild(t, q, err))
}

func TestRecord_MatchAndDelete(t *testing.T) {
	r, err := personType.Record(map[string]any{"email": "ann@x.io", "name": "Ann", "age": 42})
	require.NoError(t, err)

	q, err := r.MatchQuery()
	assert.Equal(t, "match\n$x isa person, has email \"ann@x.io\";", mustBuild(t, q, err))

	q, err = r.DeleteQuery()
	assert.Equal(t, "match\n$x isa person, has email \"ann@x.io\";\ndelete\n$x;", mustBuild(t, q, err))

	q, err = r.PutQuery()
	assert.Equal(t, "put\n$x isa person, has age 42, has email \"ann@x.io\", has name \"Ann\";", mustBuild(t, q, err))
}

func TestRecord_KeyRequired(t *testing.T) {
	r, err := personType.Record(map[string]any{"name": "Ann"})
	require.NoError(t, err)

	_, err = r.InsertQuery()
	assert.True(t, errs.IsValidation(err))
	_, err = r.MatchQuery()
	assert.True(t, errs.IsValidation(err))
	_, err = r.DeleteQuery()
	assert.True(t, errs.IsValidation(err))
}

func TestRecord_UnknownAttribute(t *testing.T) {
	_, err := personType.Record(map[string]any{"email": "a@x.io", "salary": 1})
	assert.True(t, errs.IsValidation(err))

	r, err := personType.Record(nil)
	require.NoError(t, err)
	assert.True(t, errs.IsValidation(r.Set("salary", 1)))
	require.NoError(t, r.Set("email", "a@x.io"))
	assert.Equal(t, typeql.String("a@x.io"), r.Key())
}

func TestRecord_DecodedNumbers(t *testing.T) {
	r, err := personType.Record(map[string]any{"email": "a@x.io", "age": json.Number("42")})
	require.NoError(t, err)
	assert.Equal(t, typeql.KindInteger, r.Get("age").Kind())
	assert.Equal(t, "42", r.Get("age").String())

	assert.True(t, errs.IsQuery(r.Set("age", json.Number("forty"))))
}

func TestRecord_RelationInsert(t *testing.T) {
	r, err := employmentType.Record(nil)
	require.NoError(t, err)

	_, err = r.InsertQuery()
	assert.True(t, errs.IsValidation(err), "no players")

	r.Players = map[string]string{"employer": "c", "employee": "p"}
	q, err := r.InsertQuery()
	assert.Equal(t, "insert\n$x isa employment, links (employee: $p, employer: $c);", mustBuild(t, q, err))

	r.Players["boss"] = "b"
	_, err = r.InsertQuery()
	assert.True(t, errs.IsValidation(err))

	_, err = r.MatchQuery()
	assert.True(t, errs.IsValidation(err), "relation without key")
	_, err = r.PutQuery()
	assert.True(t, errs.IsValidation(err))
}

func TestRecord_UpdateQueries(t *testing.T) {
	r, err := personType.Record(map[string]any{"email": "ann@x.io", "age": 43, "name": nil})
	require.NoError(t, err)

	qs, err := r.updateQueries()
	require.NoError(t, err)
	require.Len(t, qs, 3)
	got := make([]string, len(qs))
	for i, q := range qs {
		got[i] = q.MustBuild()
	}
	assert.Equal(t, []string{
		"match\n$x isa person, has email \"ann@x.io\";\n$x has age $old;\ndelete\nhas $old of $x;",
		"match\n$x isa person, has email \"ann@x.io\";\n$x has name $old;\ndelete\nhas $old of $x;",
		"match\n$x isa person, has email \"ann@x.io\";\ninsert\n$x has age 43;",
	}, got)
}
