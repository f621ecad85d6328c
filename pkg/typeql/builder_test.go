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

package typeql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/typedb-go/pkg/errs"
)

type attrs = map[string]Value

func build(t *testing.T, b *Builder) string {
	t.Helper()
	s, err := b.Build()
	require.NoError(t, err)
	return s
}

func TestBuilder_Match(t *testing.T) {
	q := New().Match().
		Variable("p", "person", attrs{"name": String("Alice"), "age": Int(30), "nick": Null()}).
		Relation("employment").As("e").Role("employee", "p").Role("employer", "c").End().
		Variable("c", "company", nil).
		OrderBy("p", true).
		Offset(5).
		Limit(10)

	want := "match\n" +
		"$p isa person, has age 30, has name \"Alice\";\n" +
		"$c isa company;\n" +
		"$e isa employment, links (employee: $p, employer: $c);\n" +
		"sort $p desc;\n" +
		"offset 5;\n" +
		"limit 10;"
	assert.Equal(t, want, build(t, q))
}

func TestBuilder_InsertWithBoundPlayers(t *testing.T) {
	q := New().Insert().
		Bind("p", "person", attrs{"email": String("a@x.io")}).
		Bind("c", "company", attrs{"name": String("Acme")}).
		Relation("employment").Role("employee", "p").Role("employer", "c").Has("since", Int(2020)).End()

	want := "match\n" +
		"$p isa person, has email \"a@x.io\";\n" +
		"$c isa company, has name \"Acme\";\n" +
		"insert\n" +
		"$_ isa employment, links (employee: $p, employer: $c), has since 2020;"
	assert.Equal(t, want, build(t, q))
}

func TestBuilder_InsertPlain(t *testing.T) {
	q := New().Insert().Variable("p", "person", attrs{
		"name":   String(`Bob "the builder"`),
		"active": Bool(true),
		"score":  Double(3),
	})
	assert.Equal(t,
		"insert\n$p isa person, has active true, has name \"Bob \\\"the builder\\\"\", has score 3.0;",
		build(t, q))
}

func TestBuilder_Put(t *testing.T) {
	q := New().Put().Variable("p", "person", attrs{"email": String("a@x.io")})
	assert.Equal(t, "put\n$p isa person, has email \"a@x.io\";", build(t, q))
}

func TestBuilder_Delete(t *testing.T) {
	q := New().Delete().Variable("p", "person", attrs{"email": String("a@x.io")})
	assert.Equal(t, "match\n$p isa person, has email \"a@x.io\";\ndelete\n$p;", build(t, q))

	q = New().Delete().
		Variable("p", "person", attrs{"email": String("a@x.io"), "nick": Var("n")}).
		DeleteHas("n", "p")
	assert.Equal(t,
		"match\n$p isa person, has email \"a@x.io\", has nick $n;\ndelete\nhas $n of $p;",
		build(t, q))
}

func TestBuilder_DeleteRelationAlias(t *testing.T) {
	q := New().Delete().
		Bind("p", "person", attrs{"email": String("a@x.io")}).
		Relation("employment").As("e").Role("employee", "p").End()
	assert.Equal(t,
		"match\n$p isa person, has email \"a@x.io\";\n$e isa employment, links (employee: $p);\ndelete\n$e;",
		build(t, q))
}

func TestBuilder_TypeVariable(t *testing.T) {
	q := New().Match().TypeVariable("t", "person").Where("$x isa $t").Reduce("count", "count", "")
	assert.Equal(t, "match\n$t label person;\n$x isa $t;\nreduce $count = count;", build(t, q))
}

func TestBuilder_ReduceGroupBy(t *testing.T) {
	q := New().Match().
		Variable("p", "person", attrs{"age": Var("a"), "city": Var("c")}).
		Reduce("total", "sum", "a").
		Reduce("n", "count", "p").
		GroupBy("c")
	assert.Equal(t,
		"match\n$p isa person, has age $a, has city $c;\nreduce $total = sum($a), $n = count($p) groupby $c;",
		build(t, q))
}

func TestBuilder_Fetch(t *testing.T) {
	q := New().Match().
		Variable("p", "person", attrs{"name": Var("n")}).
		OrderBy("n", false).
		Fetch("p.name", "p")
	want := "match\n" +
		"$p isa person, has name $n;\n" +
		"sort $n asc;\n" +
		"fetch {\n" +
		"  \"name\": $p.name,\n" +
		"  \"p\": { $p.* }\n" +
		"};"
	assert.Equal(t, want, build(t, q))
}

func TestBuilder_FetchMapNested(t *testing.T) {
	q := New().Match().
		Variable("p", "person", nil).
		FetchMap(Projection{
			"person": Projection{"name": "$p.name", "all": "$p.*"},
			"id":     "$p",
		})
	want := "match\n" +
		"$p isa person;\n" +
		"fetch {\n" +
		"  \"id\": $p,\n" +
		"  \"person\": {\n" +
		"    \"all\": { $p.* },\n" +
		"    \"name\": $p.name\n" +
		"  }\n" +
		"};"
	assert.Equal(t, want, build(t, q))
}

func TestBuilder_WithFunction(t *testing.T) {
	q := New().Match().
		WithFunction("fun adults() -> { person }: match $p isa person, has age $a; $a >= 18; return { $p };").
		Where("let $p in adults()")
	s := build(t, q)
	assert.True(t, strings.HasPrefix(s, "with fun adults() -> { person }:"))
	assert.Contains(t, s, "\nmatch\nlet $p in adults();")
}

func TestBuilder_Define(t *testing.T) {
	q := New().Define()
	q.Attribute("email", "string")
	q.Attribute("name", "string")
	q.Entity("person").Owns("email", true).Owns("name", false).Plays("employment", "employee")
	q.Entity("student").Sub("person")
	q.RelationType("employment").Relates("employee").Relates("employer")
	q.Entity("thing").Abstract()

	want := "define\n" +
		"attribute email, value string;\n" +
		"attribute name, value string;\n" +
		"entity person, owns email @key, owns name, plays employment:employee;\n" +
		"entity student sub person;\n" +
		"relation employment, relates employee, relates employer;\n" +
		"entity thing @abstract;"
	assert.Equal(t, want, build(t, q))
}

func TestBuilder_Undefine(t *testing.T) {
	q := New().Undefine()
	q.Entity("person").Owns("nickname", false)
	q.Entity("legacy")
	assert.Equal(t, "undefine\nowns nickname from person;\nlegacy;", build(t, q))
}

func TestBuilder_ModeLastWins(t *testing.T) {
	q := New().Insert().Variable("p", "person", attrs{"name": String("A")})
	q.Put()
	assert.Equal(t, ModePut, q.Mode())
	assert.Equal(t, "put\n$p isa person, has name \"A\";", build(t, q))
}

func TestBuilder_VariableOverwrite(t *testing.T) {
	q := New().Match().
		Variable("p", "person", attrs{"name": String("A")}).
		Variable("p", "employee", nil)
	assert.Equal(t, "match\n$p isa employee;", build(t, q))
}

func TestBuilder_Errors(t *testing.T) {
	tests := []struct {
		name string
		b    *Builder
	}{
		{"no mode", New().Variable("p", "person", nil)},
		{"relation without roles", New().Match().Relation("employment").As("e").End()},
		{"empty match", New().Match()},
		{"empty insert", New().Insert().Bind("p", "person", nil)},
		{"bad variable", New().Match().Variable("p q", "person", nil)},
		{"bad type", New().Match().Variable("p", "per;son", nil)},
		{"bad attribute", New().Match().Variable("p", "person", attrs{"a b": Int(1)})},
		{"negative limit", New().Match().Variable("p", "person", nil).Limit(-1)},
		{"negative offset", New().Match().Variable("p", "person", nil).Offset(-2)},
		{"fetch and reduce", New().Match().Variable("p", "person", nil).Fetch("p").Reduce("n", "count", "")},
		{"unknown reducer", New().Match().Variable("p", "person", nil).Reduce("n", "avg", "p")},
		{"groupby alone", New().Match().Variable("p", "person", nil).GroupBy("p")},
		{"define with patterns", New().Define().Variable("p", "person", nil)},
		{"define with limit", New().Define().Statement("entity x").Limit(1)},
		{"empty define", New().Define()},
		{"defs outside schema mode", func() *Builder { b := New().Match().Variable("p", "person", nil); b.Entity("x"); return b }()},
		{"nan literal", New().Insert().Variable("p", "m", attrs{"v": Double(nanValue())})},
		{"untyped bare variable", New().Match().Variable("p", "", nil)},
		{"delete without targets", New().Delete().Bind("p", "person", nil)},
		{"bad fetch ref", New().Match().Variable("p", "person", nil).FetchMap(Projection{"x": "p.name"})},
		{"bad function", New().Match().Variable("p", "person", nil).WithFunction("match $x;")},
		{"bad value type", New().Define().Attribute("a", "text").End()},
		{"relates on entity", func() *Builder { b := New().Define(); b.Entity("p").Relates("r"); return b }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := tt.b.Build()
			require.Error(t, err)
			assert.True(t, errs.IsQuery(err), "got %v", err)
			assert.Empty(t, s)
		})
	}
}

// TestBuilder_Idempotent tests that repeated builds are byte-identical and
// that mutation invalidates the cached text.
func TestBuilder_Idempotent(t *testing.T) {
	q := New().Match().Variable("p", "person", attrs{"name": String("A")})
	first := build(t, q)
	assert.Equal(t, first, build(t, q))
	assert.Equal(t, first, q.String())

	q.Limit(3)
	third := build(t, q)
	assert.NotEqual(t, first, third)
	assert.True(t, strings.HasSuffix(third, "limit 3;"))

	q.Relation("employment").Role("employee", "p")
	assert.Contains(t, build(t, q), "links (employee: $p)")

	q.Limit(-1)
	_, err := q.Build()
	assert.Error(t, err)
}

// TestBuilder_CloneIsolation tests that mutating a clone leaves the
// original untouched.
func TestBuilder_CloneIsolation(t *testing.T) {
	base := New().Match().
		Variable("p", "person", attrs{"name": String("A")}).
		Relation("employment").As("e").Role("employee", "p").End().
		FetchMap(Projection{"p": Projection{"name": "$p.name"}})
	before := build(t, base)

	c := base.Clone()
	c.Variable("p", "person", attrs{"name": String("B")}).
		Variable("q", "company", nil).
		Limit(1)
	c.relations[0].Role("employer", "q").Has("since", Int(1))
	c.fetch["p"].(Projection)["name"] = "$q.name"
	c.Delete()

	assert.Equal(t, before, build(t, base))
	assert.NotEqual(t, before, build(t, c))
}

func TestBuilder_CloneCarriesErrors(t *testing.T) {
	base := New().Match().Variable("p", "person", nil).Limit(-1)
	_, err := base.Clone().Build()
	assert.True(t, errs.IsQuery(err))
}

func TestMode_Predicates(t *testing.T) {
	assert.True(t, ModeDefine.IsSchema())
	assert.True(t, ModeRedefine.IsSchema())
	assert.False(t, ModeInsert.IsSchema())
	assert.True(t, ModeDelete.IsWrite())
	assert.False(t, ModeMatch.IsWrite())
	assert.Equal(t, "none", ModeNone.String())
}
