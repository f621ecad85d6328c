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
	"strconv"
	"strings"

	"github.com/kraklabs/typedb-go/pkg/schema"
)

// attrValue is an attribute value in canonical text form.
type attrValue struct {
	vt string // string, integer, double, boolean, datetime
	s  string
}

func (v attrValue) equal(o attrValue) bool {
	return v.vt == o.vt && v.s == o.s
}

func (v attrValue) json() any {
	switch v.vt {
	case "integer":
		n, _ := strconv.ParseInt(v.s, 10, 64)
		return n
	case "double":
		f, _ := strconv.ParseFloat(v.s, 64)
		return f
	case "boolean":
		return v.s == "true"
	}
	return v.s
}

func (v attrValue) number() (float64, bool) {
	if v.vt != "integer" && v.vt != "double" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.s, 64)
	return f, err == nil
}

// coerce converts v to the attribute's declared value type where TypeQL
// allows it.
func (v attrValue) coerce(vt string) (attrValue, bool) {
	if vt == "" || vt == v.vt {
		return v, true
	}
	if vt == "double" && v.vt == "integer" {
		f, _ := strconv.ParseFloat(v.s, 64)
		return attrValue{vt: "double", s: strconv.FormatFloat(f, 'g', -1, 64)}, true
	}
	if vt == "datetime" && v.vt == "string" {
		return attrValue{vt: "datetime", s: v.s}, true
	}
	return v, false
}

type rolePlayer struct {
	role string
	iid  string
}

type instance struct {
	iid   string
	typ   string
	attrs map[string][]attrValue
	roles []rolePlayer
}

func (in *instance) clone() *instance {
	c := &instance{iid: in.iid, typ: in.typ, attrs: make(map[string][]attrValue, len(in.attrs))}
	for k, v := range in.attrs {
		c.attrs[k] = append([]attrValue(nil), v...)
	}
	c.roles = append([]rolePlayer(nil), in.roles...)
	return c
}

func (in *instance) hasValue(attr string, v attrValue) bool {
	for _, x := range in.attrs[attr] {
		if x.equal(v) {
			return true
		}
	}
	return false
}

// store is the committed or working state of one database.
type store struct {
	schemaParts []string
	graph       *schema.Graph
	insts       map[string]*instance
	order       []string
}

func newStore() *store {
	g, _ := schema.Parse("")
	return &store{graph: g, insts: map[string]*instance{}}
}

func (s *store) clone() *store {
	c := &store{
		schemaParts: append([]string(nil), s.schemaParts...),
		graph:       s.graph,
		insts:       make(map[string]*instance, len(s.insts)),
		order:       append([]string(nil), s.order...),
	}
	for k, v := range s.insts {
		c.insts[k] = v.clone()
	}
	return c
}

func (s *store) schemaText() string {
	if len(s.schemaParts) == 0 {
		return ""
	}
	return "define\n" + strings.Join(s.schemaParts, "\n") + "\n"
}

// define appends a define statement and re-parses the whole schema.
func (s *store) define(text string) error {
	body := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "define"))
	parts := append(append([]string(nil), s.schemaParts...), body)
	g, err := schema.Parse("define\n" + strings.Join(parts, "\n"))
	if err != nil {
		return err
	}
	s.schemaParts, s.graph = parts, g
	return nil
}

func (s *store) add(in *instance) {
	s.insts[in.iid] = in
	s.order = append(s.order, in.iid)
}

func (s *store) remove(iid string) {
	if _, ok := s.insts[iid]; !ok {
		return
	}
	delete(s.insts, iid)
	for i, id := range s.order {
		if id == iid {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// each visits instances in insertion order.
func (s *store) each(fn func(*instance)) {
	for _, id := range s.order {
		fn(s.insts[id])
	}
}

// playsIn returns a relation that iid plays a role in, if any.
func (s *store) playsIn(iid string) *instance {
	for _, id := range s.order {
		in := s.insts[id]
		for _, rp := range in.roles {
			if rp.iid == iid {
				return in
			}
		}
	}
	return nil
}

// count returns the number of instances of typ, subtypes included.
func (s *store) count(typ string) int {
	n := 0
	s.each(func(in *instance) {
		if s.graph.IsSubtype(in.typ, typ) {
			n++
		}
	})
	return n
}

func (s *store) valueType(attr string) string {
	t, ok := s.graph.Type(attr)
	if !ok {
		return ""
	}
	for _, l := range append([]string{attr}, s.graph.Ancestors(attr)...) {
		if a, ok := s.graph.Type(l); ok && a.ValueType != "" {
			return a.ValueType
		}
	}
	return t.ValueType
}

func (s *store) owns(typ, attr string) bool {
	for _, l := range append([]string{typ}, s.graph.Ancestors(typ)...) {
		t, ok := s.graph.Type(l)
		if !ok {
			continue
		}
		for _, o := range t.Owns {
			if o == attr {
				return true
			}
		}
	}
	return false
}

func (s *store) relates(typ, role string) bool {
	for _, l := range append([]string{typ}, s.graph.Ancestors(typ)...) {
		t, ok := s.graph.Type(l)
		if !ok {
			continue
		}
		for _, r := range t.Relates {
			if r == role {
				return true
			}
		}
	}
	return false
}
