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
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/kraklabs/typedb-go/pkg/errs"
)

// ValueKind tags a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindInteger
	KindDouble
	KindBoolean
	KindDatetime
	// KindVar references another variable instead of a literal.
	KindVar
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindDouble:
		return "double"
	case KindBoolean:
		return "boolean"
	case KindDatetime:
		return "datetime"
	case KindVar:
		return "variable"
	default:
		return "null"
	}
}

// Value is an attribute value. The zero Value is Null.
type Value struct {
	kind ValueKind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
}

// String returns a string literal value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int returns an integer literal value.
func Int(i int64) Value { return Value{kind: KindInteger, i: i} }

// Double returns a double literal value.
func Double(f float64) Value { return Value{kind: KindDouble, f: f} }

// Bool returns a boolean literal value.
func Bool(b bool) Value { return Value{kind: KindBoolean, b: b} }

// Datetime returns a datetime literal value. It renders in UTC.
func Datetime(t time.Time) Value { return Value{kind: KindDatetime, t: t} }

// Null returns the absent value. Null attributes are not rendered.
func Null() Value { return Value{} }

// Var references the variable name (without the leading $).
func Var(name string) Value { return Value{kind: KindVar, s: strings.TrimPrefix(name, "$")} }

// ValueOf converts a Go value. nil and nil pointers become Null. Values of
// numeric, bool or string kind keep their kind even when they implement
// fmt.Stringer; other Stringers render as strings.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case json.Number:
		return numberValue(x)
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case time.Time:
		return Datetime(x), nil
	case float32:
		return Double(float64(x)), nil
	case float64:
		return Double(x), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		return ValueOf(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Value{}, errs.Query("typeql.value", "integer %d overflows int64", u)
		}
		return Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return Double(rv.Float()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	}
	if s, ok := v.(fmt.Stringer); ok {
		return String(s.String()), nil
	}
	return Value{}, errs.Query("typeql.value", "unsupported attribute value type %T", v)
}

// numberValue keeps integral numbers as integers.
func numberValue(n json.Number) (Value, error) {
	if i, err := n.Int64(); err == nil {
		return Int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return Value{}, errs.Query("typeql.value", "invalid number %q", n.String())
	}
	return Double(f), nil
}

// MustValueOf panics on unsupported types.
func MustValueOf(v any) Value {
	val, err := ValueOf(v)
	if err != nil {
		panic(err)
	}
	return val
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }

// Interface returns the Go value held, nil for Null.
func (v Value) Interface() any {
	switch v.kind {
	case KindString, KindVar:
		return v.s
	case KindInteger:
		return v.i
	case KindDouble:
		return v.f
	case KindBoolean:
		return v.b
	case KindDatetime:
		return v.t
	}
	return nil
}

// String renders the literal, or "<invalid>" if it cannot be rendered.
func (v Value) String() string {
	lit, err := Literal(v)
	if err != nil {
		return "<invalid>"
	}
	return lit
}

// Equal compares kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindDatetime:
		return v.t.Equal(o.t)
	case KindDouble:
		return v.f == o.f
	}
	return v.s == o.s && v.i == o.i && v.b == o.b
}

const datetimeLayout = "2006-01-02T15:04:05.999999999"

// Literal renders v as query text.
func Literal(v Value) (string, error) {
	switch v.kind {
	case KindString:
		return Quote(v.s), nil
	case KindInteger:
		return strconv.FormatInt(v.i, 10), nil
	case KindDouble:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return "", errs.Query("typeql.literal", "double %v has no literal form", v.f)
		}
		s := strconv.FormatFloat(v.f, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s, nil
	case KindBoolean:
		return strconv.FormatBool(v.b), nil
	case KindDatetime:
		return v.t.UTC().Format(datetimeLayout), nil
	case KindVar:
		if !validIdent(v.s) {
			return "", errs.Query("typeql.literal", "invalid variable name %q", v.s)
		}
		return "$" + v.s, nil
	}
	return "", errs.Query("typeql.literal", "null has no literal form")
}

// Quote renders s as a double-quoted string literal.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// Unquote reverses Quote.
func Unquote(lit string) (string, error) {
	const op = "typeql.unquote"
	if len(lit) < 2 || lit[0] != '"' || lit[len(lit)-1] != '"' {
		return "", errs.Query(op, "not a string literal: %s", lit)
	}
	body := lit[1 : len(lit)-1]
	var b strings.Builder
	b.Grow(len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch c {
		case '"':
			return "", errs.Query(op, "unescaped quote at offset %d", i+1)
		case '\\':
			i++
			if i >= len(body) {
				return "", errs.Query(op, "dangling escape")
			}
			switch body[i] {
			case '\\':
				b.WriteByte('\\')
			case '"':
				b.WriteByte('"')
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			default:
				return "", errs.Query(op, "unknown escape \\%c", body[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// validIdent accepts type labels, attribute names and variable names.
func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '-'):
		default:
			return false
		}
	}
	return true
}

// ValidIdent reports whether s is usable as a type label or variable name.
func ValidIdent(s string) bool { return validIdent(s) }
