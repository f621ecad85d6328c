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

// Package schema reads TypeQL define text into a type graph.
//
// It understands the type-level statements a database schema export
// contains: entity, relation and attribute declarations in both the
//
//	entity person, owns name;        (TypeDB 3)
//	person sub entity, owns name;    (TypeDB 2)
//
// forms, sub, @abstract, owns (with @key), relates (with "as"), plays and
// value. Function and struct definitions are skipped. The graph answers
// which types are concrete and in which order their instances can be
// deleted without dangling role players.
package schema

import (
	"sort"
	"strings"

	"github.com/kraklabs/typedb-go/pkg/errs"
	"github.com/kraklabs/typedb-go/pkg/typeql"
)

// Kind is the root kind of a type.
type Kind string

const (
	KindUnknown   Kind = ""
	KindEntity    Kind = "entity"
	KindRelation  Kind = "relation"
	KindAttribute Kind = "attribute"
)

func rootKind(s string) Kind {
	switch s {
	case "entity":
		return KindEntity
	case "relation":
		return KindRelation
	case "attribute":
		return KindAttribute
	}
	return KindUnknown
}

// RoleRef is a scoped role, relation:role.
type RoleRef struct {
	Relation string
	Role     string
}

func (r RoleRef) String() string { return r.Relation + ":" + r.Role }

// Type is one declared type.
type Type struct {
	Label     string
	Kind      Kind
	Parent    string
	Abstract  bool
	Owns      []string
	Keys      []string
	Plays     []RoleRef
	Relates   []string
	ValueType string
}

// Graph is a parsed schema.
type Graph struct {
	types map[string]*Type
}

// Parse reads define text. A leading "define" keyword is optional.
func Parse(text string) (*Graph, error) {
	toks, err := typeql.Tokenize(text)
	if err != nil {
		return nil, err
	}
	g := &Graph{types: map[string]*Type{}}
	stmts := splitStatements(toks)
	for i := 0; i < len(stmts); i++ {
		st := stmts[i]
		if len(st) > 0 && st[0].Is("define") {
			st = st[1:]
		}
		if len(st) == 0 {
			continue
		}
		switch {
		case st[0].Is("fun"):
			// skip to the end of the function body
			for i < len(stmts) && !hasReturn(stmts[i]) {
				i++
			}
			continue
		case st[0].Is("struct"):
			continue
		}
		if err := g.statement(st); err != nil {
			return nil, err
		}
	}
	g.resolveKinds()
	return g, nil
}

func hasReturn(st []typeql.Token) bool {
	for _, t := range st {
		if t.Is("return") {
			return true
		}
	}
	return false
}

func splitStatements(toks []typeql.Token) [][]typeql.Token {
	var out [][]typeql.Token
	var cur []typeql.Token
	depth := 0
	for _, t := range toks {
		switch {
		case t.Is("(") || t.Is("{") || t.Is("["):
			depth++
		case t.Is(")") || t.Is("}") || t.Is("]"):
			depth--
		case t.Is(";") && depth <= 0:
			out = append(out, cur)
			cur = nil
			continue
		}
		cur = append(cur, t)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

func splitClauses(st []typeql.Token) [][]typeql.Token {
	var out [][]typeql.Token
	var cur []typeql.Token
	depth := 0
	for _, t := range st {
		switch {
		case t.Is("("):
			depth++
		case t.Is(")"):
			depth--
		case t.Is(",") && depth == 0:
			out = append(out, cur)
			cur = nil
			continue
		}
		cur = append(cur, t)
	}
	return append(out, cur)
}

func (g *Graph) get(label string) *Type {
	t, ok := g.types[label]
	if !ok {
		t = &Type{Label: label}
		g.types[label] = t
	}
	return t
}

func (g *Graph) statement(st []typeql.Token) error {
	clauses := splitClauses(st)
	head := clauses[0]
	if len(head) == 0 || head[0].Kind != typeql.TokWord {
		return parseErr(st, "expected a type label")
	}
	var t *Type
	rest := head[1:]
	if k := rootKind(head[0].Text); k != KindUnknown && len(head) > 1 && head[1].Kind == typeql.TokWord && !isKeyword(head[1].Text) {
		t = g.get(head[1].Text)
		t.Kind = k
		rest = head[2:]
	} else {
		t = g.get(head[0].Text)
	}
	if err := g.clause(t, rest, st); err != nil {
		return err
	}
	for _, c := range clauses[1:] {
		if err := g.clause(t, c, st); err != nil {
			return err
		}
	}
	return nil
}

func isKeyword(s string) bool {
	switch s {
	case "sub", "owns", "plays", "relates", "value", "abstract":
		return true
	}
	return false
}

func (g *Graph) clause(t *Type, c []typeql.Token, st []typeql.Token) error {
	for len(c) > 0 {
		tok := c[0]
		switch {
		case tok.Kind == typeql.TokAnnotation:
			if tok.Text == "abstract" {
				t.Abstract = true
			}
			c = skipAnnotationArgs(c[1:])
		case tok.Is("abstract"):
			t.Abstract = true
			c = c[1:]
		case tok.Is("sub"):
			if len(c) > 1 && c[1].Is("!") {
				c = c[1:]
			}
			if len(c) < 2 || c[1].Kind != typeql.TokWord {
				return parseErr(st, "sub needs a supertype")
			}
			if k := rootKind(c[1].Text); k != KindUnknown {
				t.Kind = k
			} else {
				t.Parent = c[1].Text
			}
			c = c[2:]
		case tok.Is("owns"):
			if len(c) < 2 || c[1].Kind != typeql.TokWord {
				return parseErr(st, "owns needs an attribute")
			}
			attr := c[1].Text
			c = c[2:]
			if len(c) > 0 && c[0].Is("as") && len(c) > 1 {
				c = c[2:]
			}
			key := false
			for len(c) > 0 && c[0].Kind == typeql.TokAnnotation {
				if c[0].Text == "key" {
					key = true
				}
				c = skipAnnotationArgs(c[1:])
			}
			t.Owns = appendUnique(t.Owns, attr)
			if key {
				t.Keys = appendUnique(t.Keys, attr)
			}
		case tok.Is("plays"):
			if len(c) < 4 || c[1].Kind != typeql.TokWord || !c[2].Is(":") || c[3].Kind != typeql.TokWord {
				return parseErr(st, "plays needs relation:role")
			}
			ref := RoleRef{Relation: c[1].Text, Role: c[3].Text}
			if !containsRole(t.Plays, ref) {
				t.Plays = append(t.Plays, ref)
			}
			c = c[4:]
			if len(c) > 0 && c[0].Is("as") && len(c) > 1 {
				c = c[2:]
			}
		case tok.Is("relates"):
			if len(c) < 2 || c[1].Kind != typeql.TokWord {
				return parseErr(st, "relates needs a role")
			}
			if t.Kind == KindUnknown {
				t.Kind = KindRelation
			}
			t.Relates = appendUnique(t.Relates, c[1].Text)
			c = c[2:]
			if len(c) > 0 && c[0].Is("[") {
				// list role: relates member[]
				for len(c) > 0 && !c[0].Is("]") {
					c = c[1:]
				}
				if len(c) > 0 {
					c = c[1:]
				}
			}
			if len(c) > 1 && c[0].Is("as") {
				c = c[2:]
			}
		case tok.Is("value"):
			if len(c) < 2 || c[1].Kind != typeql.TokWord {
				return parseErr(st, "value needs a value type")
			}
			t.Kind = KindAttribute
			t.ValueType = c[1].Text
			c = c[2:]
		case tok.Is("regex") || tok.Is("values"):
			// 2.x value constraints
			c = nil
		default:
			return parseErr(st, "unexpected %q", tok.Text)
		}
	}
	return nil
}

// skipAnnotationArgs drops "(…)" following an annotation such as @card(0..1).
func skipAnnotationArgs(c []typeql.Token) []typeql.Token {
	if len(c) == 0 || !c[0].Is("(") {
		return c
	}
	depth := 0
	for i, t := range c {
		switch {
		case t.Is("("):
			depth++
		case t.Is(")"):
			depth--
			if depth == 0 {
				return c[i+1:]
			}
		}
	}
	return nil
}

func parseErr(st []typeql.Token, format string, args ...any) error {
	parts := make([]string, 0, len(st))
	for _, t := range st {
		parts = append(parts, t.Text)
	}
	e := errs.Query("schema.parse", format, args...)
	e.Message += " in: " + strings.Join(parts, " ")
	return e
}

func appendUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

func containsRole(s []RoleRef, r RoleRef) bool {
	for _, x := range s {
		if x == r {
			return true
		}
	}
	return false
}

// resolveKinds inherits root kinds down sub chains.
func (g *Graph) resolveKinds() {
	for changed := true; changed; {
		changed = false
		for _, t := range g.types {
			if t.Kind != KindUnknown || t.Parent == "" {
				continue
			}
			if p, ok := g.types[t.Parent]; ok && p.Kind != KindUnknown {
				t.Kind = p.Kind
				changed = true
			}
		}
	}
}

// Type returns the named type.
func (g *Graph) Type(label string) (*Type, bool) {
	t, ok := g.types[label]
	return t, ok
}

// Labels returns every type label, sorted.
func (g *Graph) Labels() []string {
	out := make([]string, 0, len(g.types))
	for l := range g.types {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Ancestors returns the supertypes of label, nearest first.
func (g *Graph) Ancestors(label string) []string {
	var out []string
	seen := map[string]bool{label: true}
	for t, ok := g.types[label]; ok && t.Parent != ""; t, ok = g.types[t.Parent] {
		if seen[t.Parent] {
			break
		}
		seen[t.Parent] = true
		out = append(out, t.Parent)
	}
	return out
}

// IsSubtype reports whether label is sup or one of its subtypes.
func (g *Graph) IsSubtype(label, sup string) bool {
	if label == sup {
		return true
	}
	for _, a := range g.Ancestors(label) {
		if a == sup {
			return true
		}
	}
	return false
}

// Descendants returns label and all its subtypes, sorted.
func (g *Graph) Descendants(label string) []string {
	var out []string
	for l := range g.types {
		if g.IsSubtype(l, label) {
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

// KeysOf returns key attributes declared on label or its supertypes.
func (g *Graph) KeysOf(label string) []string {
	var out []string
	for _, l := range append([]string{label}, g.Ancestors(label)...) {
		if t, ok := g.types[l]; ok {
			for _, k := range t.Keys {
				out = appendUnique(out, k)
			}
		}
	}
	return out
}

// ConcreteTypes returns non-abstract entity and relation labels, sorted.
func (g *Graph) ConcreteTypes() []string {
	var out []string
	for l, t := range g.types {
		if !t.Abstract && (t.Kind == KindEntity || t.Kind == KindRelation) {
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

// ConcreteAttributes returns non-abstract attribute labels, sorted.
func (g *Graph) ConcreteAttributes() []string {
	var out []string
	for l, t := range g.types {
		if !t.Abstract && t.Kind == KindAttribute {
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

// roles returns the roles of relation label, inherited ones included.
func (g *Graph) roles(label string) []RoleRef {
	var out []RoleRef
	for _, l := range append([]string{label}, g.Ancestors(label)...) {
		if t, ok := g.types[l]; ok {
			for _, r := range t.Relates {
				out = append(out, RoleRef{Relation: l, Role: r})
			}
		}
	}
	return out
}

// Players returns the concrete types that can play a role of relation
// label, subtypes of declared players included.
func (g *Graph) Players(label string) []string {
	set := map[string]bool{}
	for _, role := range g.roles(label) {
		for l, t := range g.types {
			if containsRole(t.Plays, role) {
				for _, d := range g.Descendants(l) {
					set[d] = true
				}
			}
		}
	}
	var out []string
	for l := range set {
		if t := g.types[l]; !t.Abstract && (t.Kind == KindEntity || t.Kind == KindRelation) {
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

// Cycle reports types whose mutual role references had to be broken.
type Cycle struct {
	// Types still mutually dependent when the cycle was broken.
	Types []string
	// Broken is the type deleted first to break it.
	Broken string
}

// DeletionOrder returns concrete entity and relation types ordered so that
// every relation precedes the types playing its roles. Ties are broken
// alphabetically. Cycles (relations playing roles in each other) are
// broken at the alphabetically smallest type and reported.
func (g *Graph) DeletionOrder() ([]string, []Cycle) {
	nodes := g.ConcreteTypes()
	// before[a][b]: a must be deleted before b.
	before := map[string]map[string]bool{}
	indeg := map[string]int{}
	for _, n := range nodes {
		before[n] = map[string]bool{}
		indeg[n] = 0
	}
	for _, n := range nodes {
		if g.types[n].Kind != KindRelation {
			continue
		}
		for _, p := range g.Players(n) {
			if p == n || before[n][p] {
				continue
			}
			before[n][p] = true
			indeg[p]++
		}
	}

	var order []string
	var cycles []Cycle
	done := map[string]bool{}
	for len(order) < len(nodes) {
		var ready []string
		for _, n := range nodes {
			if !done[n] && indeg[n] == 0 {
				ready = append(ready, n)
			}
		}
		if len(ready) == 0 {
			var remaining []string
			for _, n := range nodes {
				if !done[n] {
					remaining = append(remaining, n)
				}
			}
			cycles = append(cycles, Cycle{Types: remaining, Broken: remaining[0]})
			ready = remaining[:1]
		}
		n := ready[0]
		done[n] = true
		order = append(order, n)
		for p := range before[n] {
			indeg[p]--
		}
	}
	return order, cycles
}
