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
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/typedb-go/pkg/errs"
)

func nanValue() float64 { return math.NaN() }

func TestQuoteUnquote_RoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"plain",
		`say "hi"`,
		`back\slash`,
		`trailing\`,
		"multi\nline\r\n\ttabbed",
		`\"already escaped\"`,
		"unicode: héllo ✓",
		`"`,
	}
	for _, in := range inputs {
		lit := Quote(in)
		assert.Equal(t, byte('"'), lit[0])
		assert.Equal(t, byte('"'), lit[len(lit)-1])
		out, err := Unquote(lit)
		require.NoError(t, err, lit)
		assert.Equal(t, in, out)
	}
}

func TestQuote_Escapes(t *testing.T) {
	assert.Equal(t, `"a\"b"`, Quote(`a"b`))
	assert.Equal(t, `"a\\b"`, Quote(`a\b`))
	assert.Equal(t, `"a\nb"`, Quote("a\nb"))
}

func TestUnquote_Errors(t *testing.T) {
	for _, lit := range []string{``, `"`, `abc`, `"a"b"`, `"dangling\"`, `"bad \q"`} {
		_, err := Unquote(lit)
		assert.True(t, errs.IsQuery(err), lit)
	}
}

func TestLiteral(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("X", 3600))
	tests := []struct {
		v    Value
		want string
	}{
		{String("x"), `"x"`},
		{Int(-42), "-42"},
		{Double(1.5), "1.5"},
		{Double(2), "2.0"},
		{Double(-0.25), "-0.25"},
		{Double(1e21), "1000000000000000000000.0"},
		{Bool(false), "false"},
		{Datetime(ts), "2024-03-01T11:30:00"},
		{Datetime(ts.Add(1500 * time.Millisecond)), "2024-03-01T11:30:01.5"},
		{Var("$n"), "$n"},
	}
	for _, tt := range tests {
		got, err := Literal(tt.v)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.want, tt.v.String())
	}

	for _, bad := range []Value{Null(), Double(math.Inf(1)), Double(math.NaN()), Var("a b")} {
		_, err := Literal(bad)
		assert.True(t, errs.IsQuery(err))
		assert.Equal(t, "<invalid>", bad.String())
	}
}

type label string

func (l label) String() string { return "label:" + string(l) }

type level int

func (l level) String() string { return "level-" + strconv.Itoa(int(l)) }

type point struct{ x, y int }

func (p point) String() string { return fmt.Sprintf("%d,%d", p.x, p.y) }

func TestValueOf(t *testing.T) {
	n := 7
	var nilPtr *int
	tests := []struct {
		in   any
		want Value
	}{
		{nil, Null()},
		{"s", String("s")},
		{true, Bool(true)},
		{int8(3), Int(3)},
		{uint32(9), Int(9)},
		{float32(0.5), Double(0.5)},
		{&n, Int(7)},
		{nilPtr, Null()},
		{label("x"), String("x")},
		{level(3), Int(3)},
		{5 * time.Second, Int(int64(5 * time.Second))},
		{json.Number("42"), Int(42)},
		{json.Number("-2.5"), Double(-2.5)},
		{point{1, 2}, String("1,2")},
		{Int(5), Int(5)},
	}
	for _, tt := range tests {
		got, err := ValueOf(tt.in)
		require.NoError(t, err)
		assert.True(t, tt.want.Equal(got), "%v: got %v", tt.in, got)
	}

	_, err := ValueOf([]int{1})
	assert.True(t, errs.IsQuery(err))
	_, err = ValueOf(json.Number("4x"))
	assert.True(t, errs.IsQuery(err))
	_, err = ValueOf(uint64(math.MaxUint64))
	assert.True(t, errs.IsQuery(err))
	assert.Panics(t, func() { MustValueOf(struct{}{}) })
}

func TestValue_Accessors(t *testing.T) {
	assert.Equal(t, KindNull, Value{}.Kind())
	assert.True(t, Value{}.IsNull())
	assert.Nil(t, Null().Interface())
	assert.Equal(t, int64(3), Int(3).Interface())
	assert.Equal(t, "n", Var("$n").Interface())
	assert.Equal(t, "double", KindDouble.String())
	assert.False(t, Int(1).Equal(Double(1)))
}

func TestValidIdent(t *testing.T) {
	for _, ok := range []string{"person", "_", "date-of-birth", "x1", "Person_2"} {
		assert.True(t, ValidIdent(ok), ok)
	}
	for _, bad := range []string{"", "1x", "-x", "a b", "a;b", "a:b", `a"`} {
		assert.False(t, ValidIdent(bad), bad)
	}
}
