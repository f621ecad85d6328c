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

// Package typeql assembles TypeQL statements from structured input.
//
// A Builder is a mutable, fluent description of one statement:
//
//	q := typeql.New().Match().
//	    Variable("p", "person", map[string]typeql.Value{"name": typeql.String("Alice")}).
//	    Relation("employment").As("e").Role("employee", "p").Role("employer", "c").End().
//	    OrderBy("p", false).
//	    Limit(10)
//	text, err := q.Build()
//
// Setter errors (bad identifiers, negative limits) are deferred and
// reported by Build, which never returns partial text. Build output is
// cached until the next mutation. Builders are not safe for concurrent
// use; Clone gives an independent copy.
package typeql

import (
	"sort"
	"strconv"
	"strings"

	"github.com/kraklabs/typedb-go/pkg/errs"
)

// Mode is the statement kind.
type Mode int

const (
	ModeNone Mode = iota
	ModeMatch
	ModeInsert
	ModePut
	ModeDelete
	ModeDefine
	ModeUndefine
	ModeRedefine
)

func (m Mode) String() string {
	switch m {
	case ModeMatch:
		return "match"
	case ModeInsert:
		return "insert"
	case ModePut:
		return "put"
	case ModeDelete:
		return "delete"
	case ModeDefine:
		return "define"
	case ModeUndefine:
		return "undefine"
	case ModeRedefine:
		return "redefine"
	}
	return "none"
}

// IsSchema reports whether m edits the schema.
func (m Mode) IsSchema() bool {
	return m == ModeDefine || m == ModeUndefine || m == ModeRedefine
}

// IsWrite reports whether m writes data.
func (m Mode) IsWrite() bool {
	return m == ModeInsert || m == ModePut || m == ModeDelete
}

type variable struct {
	name  string
	typ   string
	label string
	attrs map[string]Value
	// bound variables belong to the match preamble of write modes.
	bound bool
}

type sortKey struct {
	v    string
	desc bool
}

type reducer struct {
	alias string
	fn    string
	arg   string
}

// Builder assembles one TypeQL statement.
type Builder struct {
	mode      Mode
	vars      []*variable
	index     map[string]int
	relations []*RelationBuilder
	where     []string
	body      []string
	defs      []*TypeDef
	deletes   []string
	fetch     Projection
	fetchSet  bool
	sorts     []sortKey
	offset    *int
	limit     *int
	reducers  []reducer
	groupBy   []string
	funcs     []string

	err    error
	cached string
	valid  bool
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{index: map[string]int{}}
}

func (b *Builder) touch() { b.valid = false }

func (b *Builder) fail(format string, args ...any) {
	b.valid = false
	if b.err == nil {
		b.err = errs.Query("typeql.build", format, args...)
	}
}

func (b *Builder) setMode(m Mode) *Builder {
	b.mode = m
	b.touch()
	return b
}

// Match, Insert, Put, Delete, Define, Undefine and Redefine select the
// statement mode. Selecting again replaces the previous mode.
func (b *Builder) Match() *Builder    { return b.setMode(ModeMatch) }
func (b *Builder) Insert() *Builder   { return b.setMode(ModeInsert) }
func (b *Builder) Put() *Builder      { return b.setMode(ModePut) }
func (b *Builder) Delete() *Builder   { return b.setMode(ModeDelete) }
func (b *Builder) Define() *Builder   { return b.setMode(ModeDefine) }
func (b *Builder) Undefine() *Builder { return b.setMode(ModeUndefine) }
func (b *Builder) Redefine() *Builder { return b.setMode(ModeRedefine) }

// Mode returns the selected mode.
func (b *Builder) Mode() Mode { return b.mode }

func (b *Builder) declare(v *variable) *Builder {
	name := strings.TrimPrefix(v.name, "$")
	if !validIdent(name) {
		b.fail("invalid variable name %q", v.name)
		return b
	}
	v.name = name
	if v.typ != "" && !validIdent(v.typ) {
		b.fail("invalid type label %q for $%s", v.typ, name)
		return b
	}
	if v.label != "" && !validIdent(v.label) {
		b.fail("invalid type label %q for $%s", v.label, name)
		return b
	}
	for k := range v.attrs {
		if !validIdent(k) {
			b.fail("invalid attribute name %q on $%s", k, name)
			return b
		}
	}
	if i, ok := b.index[name]; ok {
		b.vars[i] = v
	} else {
		b.index[name] = len(b.vars)
		b.vars = append(b.vars, v)
	}
	b.touch()
	return b
}

func copyAttrs(attrs map[string]Value) map[string]Value {
	out := make(map[string]Value, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// Variable declares or overwrites $name with an optional type and
// attributes. In write modes the variable is written; in match and delete
// modes it is matched.
func (b *Builder) Variable(name, typ string, attrs map[string]Value) *Builder {
	return b.declare(&variable{name: name, typ: typ, attrs: copyAttrs(attrs)})
}

// Bind declares a variable matched before an insert, put or delete body.
// In match mode it is the same as Variable.
func (b *Builder) Bind(name, typ string, attrs map[string]Value) *Builder {
	return b.declare(&variable{name: name, typ: typ, attrs: copyAttrs(attrs), bound: true})
}

// TypeVariable binds $name to the type with the given label.
func (b *Builder) TypeVariable(name, label string) *Builder {
	return b.declare(&variable{name: name, label: label, bound: true})
}

// Where appends a raw pattern to the match section.
func (b *Builder) Where(pattern string) *Builder {
	p := strings.TrimRight(strings.TrimSpace(pattern), ";")
	if p == "" {
		b.fail("empty pattern")
		return b
	}
	b.where = append(b.where, p)
	b.touch()
	return b
}

// Statement appends a raw statement to the body of the query: the insert
// or put body in write modes, the definitions in schema modes.
func (b *Builder) Statement(stmt string) *Builder {
	s := strings.TrimRight(strings.TrimSpace(stmt), ";")
	if s == "" {
		b.fail("empty statement")
		return b
	}
	b.body = append(b.body, s)
	b.touch()
	return b
}

// DeleteVar marks variables for deletion in delete mode. When none are
// marked, every declared variable and relation alias is deleted.
func (b *Builder) DeleteVar(names ...string) *Builder {
	for _, n := range names {
		n = strings.TrimPrefix(n, "$")
		if !validIdent(n) {
			b.fail("invalid variable name %q", n)
			return b
		}
		b.deletes = append(b.deletes, "$"+n)
	}
	b.touch()
	return b
}

// DeleteHas removes the ownership of attribute $attr by $owner.
func (b *Builder) DeleteHas(attr, owner string) *Builder {
	attr, owner = strings.TrimPrefix(attr, "$"), strings.TrimPrefix(owner, "$")
	if !validIdent(attr) || !validIdent(owner) {
		b.fail("invalid variable in has deletion: %q of %q", attr, owner)
		return b
	}
	b.deletes = append(b.deletes, "has $"+attr+" of $"+owner)
	b.touch()
	return b
}

// Fetch projects variables. "p" fetches all attributes of $p, "p.name"
// fetches one attribute under the key "name".
func (b *Builder) Fetch(refs ...string) *Builder {
	p := Projection{}
	for _, r := range refs {
		r = strings.TrimPrefix(r, "$")
		v, attr, ok := strings.Cut(r, ".")
		if !validIdent(v) || (ok && attr != "*" && !validIdent(attr)) {
			b.fail("invalid fetch reference %q", r)
			return b
		}
		switch {
		case !ok || attr == "*":
			p[v] = "$" + v + ".*"
		default:
			p[attr] = "$" + r
		}
	}
	return b.FetchMap(p)
}

// FetchMap sets a nested projection, replacing any earlier fetch.
func (b *Builder) FetchMap(p Projection) *Builder {
	if err := p.validate(); err != nil {
		b.fail("%s", err)
		return b
	}
	b.fetch = p.clone()
	b.fetchSet = true
	b.touch()
	return b
}

// OrderBy appends a sort key.
func (b *Builder) OrderBy(v string, desc bool) *Builder {
	v = strings.TrimPrefix(v, "$")
	if !validIdent(v) {
		b.fail("invalid sort variable %q", v)
		return b
	}
	b.sorts = append(b.sorts, sortKey{v: v, desc: desc})
	b.touch()
	return b
}

// Offset skips n answers.
func (b *Builder) Offset(n int) *Builder {
	if n < 0 {
		b.fail("offset must not be negative, got %d", n)
		return b
	}
	b.offset = &n
	b.touch()
	return b
}

// Limit caps the answers at n.
func (b *Builder) Limit(n int) *Builder {
	if n < 0 {
		b.fail("limit must not be negative, got %d", n)
		return b
	}
	b.limit = &n
	b.touch()
	return b
}

var reducers = map[string]bool{
	"count": true, "sum": true, "max": true, "min": true,
	"mean": true, "median": true, "std": true,
}

// Reduce appends an aggregation $alias = fn($arg). arg may be empty for
// count.
func (b *Builder) Reduce(alias, fn, arg string) *Builder {
	alias, arg = strings.TrimPrefix(alias, "$"), strings.TrimPrefix(arg, "$")
	fn = strings.ToLower(fn)
	switch {
	case !validIdent(alias):
		b.fail("invalid reduce alias %q", alias)
	case !reducers[fn]:
		b.fail("unknown reducer %q", fn)
	case arg == "" && fn != "count":
		b.fail("reducer %s needs a variable", fn)
	case arg != "" && !validIdent(arg):
		b.fail("invalid reduce variable %q", arg)
	default:
		b.reducers = append(b.reducers, reducer{alias: alias, fn: fn, arg: arg})
		b.touch()
	}
	return b
}

// GroupBy sets the grouping variables of the reduction.
func (b *Builder) GroupBy(vars ...string) *Builder {
	out := make([]string, 0, len(vars))
	for _, v := range vars {
		v = strings.TrimPrefix(v, "$")
		if !validIdent(v) {
			b.fail("invalid groupby variable %q", v)
			return b
		}
		out = append(out, v)
	}
	b.groupBy = out
	b.touch()
	return b
}

// WithFunction adds a function definition to the query preamble. The
// leading "with" is optional.
func (b *Builder) WithFunction(def string) *Builder {
	d := strings.TrimSpace(def)
	d = strings.TrimSpace(strings.TrimPrefix(d, "with "))
	if !strings.HasPrefix(d, "fun ") {
		b.fail("function definition must start with \"fun\"")
		return b
	}
	if !strings.HasSuffix(d, ";") {
		d += ";"
	}
	b.funcs = append(b.funcs, d)
	b.touch()
	return b
}

// Relation starts a relation pattern. It is appended to the builder
// immediately; End returns to the builder.
func (b *Builder) Relation(typ string) *RelationBuilder {
	if !validIdent(typ) {
		b.fail("invalid relation type %q", typ)
	}
	r := &RelationBuilder{parent: b, typ: typ, attrs: map[string]Value{}}
	b.relations = append(b.relations, r)
	b.touch()
	return r
}

// Err returns the first deferred setter error.
func (b *Builder) Err() error { return b.err }

// Build renders the statement.
func (b *Builder) Build() (string, error) {
	if b.valid {
		return b.cached, nil
	}
	if b.err != nil {
		return "", b.err
	}
	text, err := b.render()
	if err != nil {
		return "", err
	}
	b.cached, b.valid = text, true
	return text, nil
}

// MustBuild panics when Build fails. Meant for static templates.
func (b *Builder) MustBuild() string {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

// String renders the statement or the build error.
func (b *Builder) String() string {
	s, err := b.Build()
	if err != nil {
		return "<invalid query: " + err.Error() + ">"
	}
	return s
}

// Clone returns a deep copy that shares nothing with b.
func (b *Builder) Clone() *Builder {
	c := &Builder{
		mode:     b.mode,
		index:    make(map[string]int, len(b.index)),
		where:    append([]string(nil), b.where...),
		body:     append([]string(nil), b.body...),
		deletes:  append([]string(nil), b.deletes...),
		fetch:    b.fetch.clone(),
		fetchSet: b.fetchSet,
		sorts:    append([]sortKey(nil), b.sorts...),
		reducers: append([]reducer(nil), b.reducers...),
		groupBy:  append([]string(nil), b.groupBy...),
		funcs:    append([]string(nil), b.funcs...),
		err:      b.err,
		cached:   b.cached,
		valid:    b.valid,
	}
	for k, v := range b.index {
		c.index[k] = v
	}
	for _, v := range b.vars {
		cp := *v
		cp.attrs = copyAttrs(v.attrs)
		c.vars = append(c.vars, &cp)
	}
	for _, r := range b.relations {
		c.relations = append(c.relations, r.clone(c))
	}
	for _, d := range b.defs {
		c.defs = append(c.defs, d.clone(c))
	}
	if b.offset != nil {
		n := *b.offset
		c.offset = &n
	}
	if b.limit != nil {
		n := *b.limit
		c.limit = &n
	}
	return c
}

func (b *Builder) render() (string, error) {
	switch {
	case b.mode == ModeNone:
		return "", errs.Query("typeql.build", "no query mode selected")
	case b.mode.IsSchema():
		return b.renderSchema()
	}
	for _, r := range b.relations {
		if len(r.roles) == 0 {
			return "", errs.Query("typeql.build", "relation %s has no role players", r.typ)
		}
	}
	if b.fetchSet && len(b.reducers) > 0 {
		return "", errs.Query("typeql.build", "fetch and reduce cannot be combined")
	}
	if len(b.groupBy) > 0 && len(b.reducers) == 0 {
		return "", errs.Query("typeql.build", "groupby without reduce")
	}
	if len(b.defs) > 0 {
		return "", errs.Query("typeql.build", "type definitions need define, undefine or redefine mode")
	}

	var matched, written []string
	add := func(dst *[]string, s string) { *dst = append(*dst, s) }
	for _, v := range b.vars {
		s, err := v.render()
		if err != nil {
			return "", err
		}
		if v.bound || b.mode == ModeMatch || b.mode == ModeDelete {
			add(&matched, s)
		} else {
			add(&written, s)
		}
	}
	matched = append(matched, b.where...)
	for _, r := range b.relations {
		s, err := r.render()
		if err != nil {
			return "", err
		}
		if b.mode == ModeMatch || b.mode == ModeDelete {
			add(&matched, s)
		} else {
			add(&written, s)
		}
	}
	if b.mode == ModeMatch {
		matched = append(matched, b.body...)
	} else {
		written = append(written, b.body...)
	}

	var sb strings.Builder
	for _, f := range b.funcs {
		sb.WriteString("with ")
		sb.WriteString(f)
		sb.WriteByte('\n')
	}
	writeSection := func(kw string, lines []string) {
		sb.WriteString(kw)
		sb.WriteByte('\n')
		for _, l := range lines {
			sb.WriteString(l)
			sb.WriteString(";\n")
		}
	}

	switch b.mode {
	case ModeMatch:
		if len(matched) == 0 {
			return "", errs.Query("typeql.build", "match query has no patterns")
		}
		writeSection("match", matched)
	case ModeInsert, ModePut:
		if len(written) == 0 {
			return "", errs.Query("typeql.build", "%s query has nothing to write", b.mode)
		}
		if len(matched) > 0 {
			writeSection("match", matched)
		}
		writeSection(b.mode.String(), written)
	case ModeDelete:
		if len(matched) == 0 {
			return "", errs.Query("typeql.build", "delete query has no patterns")
		}
		targets := b.deleteTargets()
		if len(targets) == 0 {
			return "", errs.Query("typeql.build", "delete query has no targets")
		}
		writeSection("match", matched)
		writeSection("delete", targets)
	}
	b.renderModifiers(&sb)
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (b *Builder) deleteTargets() []string {
	if len(b.deletes) > 0 {
		return b.deletes
	}
	var out []string
	for _, v := range b.vars {
		if v.label == "" && !v.bound {
			out = append(out, "$"+v.name)
		}
	}
	for _, r := range b.relations {
		if r.alias != "" {
			out = append(out, "$"+r.alias)
		}
	}
	return out
}

func (b *Builder) renderModifiers(sb *strings.Builder) {
	if len(b.sorts) > 0 {
		keys := make([]string, len(b.sorts))
		for i, k := range b.sorts {
			dir := "asc"
			if k.desc {
				dir = "desc"
			}
			keys[i] = "$" + k.v + " " + dir
		}
		sb.WriteString("sort " + strings.Join(keys, ", ") + ";\n")
	}
	if b.offset != nil {
		sb.WriteString("offset " + strconv.Itoa(*b.offset) + ";\n")
	}
	if b.limit != nil {
		sb.WriteString("limit " + strconv.Itoa(*b.limit) + ";\n")
	}
	if len(b.reducers) > 0 {
		parts := make([]string, len(b.reducers))
		for i, r := range b.reducers {
			expr := r.fn
			if r.arg != "" {
				expr += "($" + r.arg + ")"
			}
			parts[i] = "$" + r.alias + " = " + expr
		}
		sb.WriteString("reduce " + strings.Join(parts, ", "))
		if len(b.groupBy) > 0 {
			gb := make([]string, len(b.groupBy))
			for i, g := range b.groupBy {
				gb[i] = "$" + g
			}
			sb.WriteString(" groupby " + strings.Join(gb, ", "))
		}
		sb.WriteString(";\n")
	}
	if b.fetchSet {
		sb.WriteString("fetch ")
		b.fetch.render(sb, 0)
		sb.WriteString(";\n")
	}
}

func (b *Builder) renderSchema() (string, error) {
	if len(b.vars) > 0 || len(b.relations) > 0 || len(b.where) > 0 || len(b.deletes) > 0 {
		return "", errs.Query("typeql.build", "%s query cannot contain data patterns", b.mode)
	}
	if b.fetchSet || len(b.sorts) > 0 || b.offset != nil || b.limit != nil || len(b.reducers) > 0 || len(b.funcs) > 0 {
		return "", errs.Query("typeql.build", "%s query cannot contain query modifiers", b.mode)
	}
	var lines []string
	for _, d := range b.defs {
		s, err := d.render(b.mode)
		if err != nil {
			return "", err
		}
		lines = append(lines, s...)
	}
	lines = append(lines, b.body...)
	if len(lines) == 0 {
		return "", errs.Query("typeql.build", "%s query has no definitions", b.mode)
	}
	var sb strings.Builder
	sb.WriteString(b.mode.String())
	sb.WriteByte('\n')
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteString(";\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (v *variable) render() (string, error) {
	if v.label != "" {
		return "$" + v.name + " label " + v.label, nil
	}
	parts, err := renderHas(v.attrs)
	if err != nil {
		return "", err
	}
	head := "$" + v.name
	if v.typ != "" {
		head += " isa " + v.typ
	}
	if v.typ == "" && len(parts) == 0 {
		return "", errs.Query("typeql.build", "variable $%s has neither a type nor attributes", v.name)
	}
	if v.typ == "" {
		return head + " " + strings.Join(parts, ", "), nil
	}
	if len(parts) == 0 {
		return head, nil
	}
	return head + ", " + strings.Join(parts, ", "), nil
}

// renderHas renders "has key value" for every non-null attribute, sorted
// by key.
func renderHas(attrs map[string]Value) ([]string, error) {
	keys := make([]string, 0, len(attrs))
	for k, v := range attrs {
		if !v.IsNull() {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		lit, err := Literal(attrs[k])
		if err != nil {
			return nil, err
		}
		out = append(out, "has "+k+" "+lit)
	}
	return out, nil
}
