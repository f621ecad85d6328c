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

	"github.com/kraklabs/typedb-go/pkg/errs"
)

// TypeDef is one type definition in a define, undefine or redefine query.
type TypeDef struct {
	parent   *Builder
	kind     string
	name     string
	sub      string
	abstract bool
	parts    []string
}

var valueTypes = map[string]bool{
	"boolean": true, "integer": true, "double": true, "decimal": true,
	"string": true, "date": true, "datetime": true, "datetime-tz": true,
	"duration": true,
}

func (b *Builder) typeDef(kind, name string) *TypeDef {
	if !validIdent(name) {
		b.fail("invalid %s label %q", kind, name)
	}
	d := &TypeDef{parent: b, kind: kind, name: name}
	b.defs = append(b.defs, d)
	b.touch()
	return d
}

// Entity starts an entity type definition.
func (b *Builder) Entity(name string) *TypeDef { return b.typeDef("entity", name) }

// RelationType starts a relation type definition.
func (b *Builder) RelationType(name string) *TypeDef { return b.typeDef("relation", name) }

// Attribute starts an attribute type definition with a value type. An empty
// value type leaves it unset, which only abstract attributes allow.
func (b *Builder) Attribute(name, valueType string) *TypeDef {
	d := b.typeDef("attribute", name)
	if valueType != "" {
		if !valueTypes[valueType] {
			b.fail("unknown value type %q for attribute %s", valueType, name)
			return d
		}
		d.parts = append(d.parts, "value "+valueType)
	}
	return d
}

func (d *TypeDef) add(part string) *TypeDef {
	d.parts = append(d.parts, part)
	d.parent.touch()
	return d
}

// Sub sets the supertype.
func (d *TypeDef) Sub(parent string) *TypeDef {
	if !validIdent(parent) {
		d.parent.fail("invalid supertype %q for %s", parent, d.name)
		return d
	}
	d.sub = parent
	d.parent.touch()
	return d
}

// Abstract marks the type abstract.
func (d *TypeDef) Abstract() *TypeDef {
	d.abstract = true
	d.parent.touch()
	return d
}

// Owns declares an owned attribute, optionally as the key.
func (d *TypeDef) Owns(attr string, key bool) *TypeDef {
	if !validIdent(attr) {
		d.parent.fail("invalid owned attribute %q on %s", attr, d.name)
		return d
	}
	if key {
		return d.add("owns " + attr + " @key")
	}
	return d.add("owns " + attr)
}

// Relates declares a role of a relation type.
func (d *TypeDef) Relates(role string) *TypeDef {
	if d.kind != "relation" {
		d.parent.fail("%s %s cannot relate roles", d.kind, d.name)
		return d
	}
	if !validIdent(role) {
		d.parent.fail("invalid role %q on %s", role, d.name)
		return d
	}
	return d.add("relates " + role)
}

// Plays declares that the type plays relation:role.
func (d *TypeDef) Plays(relation, role string) *TypeDef {
	if !validIdent(relation) || !validIdent(role) {
		d.parent.fail("invalid played role %s:%s on %s", relation, role, d.name)
		return d
	}
	return d.add("plays " + relation + ":" + role)
}

// End returns the parent builder.
func (d *TypeDef) End() *Builder { return d.parent }

func (d *TypeDef) clone(parent *Builder) *TypeDef {
	cp := *d
	cp.parent = parent
	cp.parts = append([]string(nil), d.parts...)
	return &cp
}

// render emits one statement per line. Undefine removes whole types when
// no capabilities are listed, otherwise each capability "from" the type.
func (d *TypeDef) render(mode Mode) ([]string, error) {
	if mode == ModeUndefine {
		if len(d.parts) == 0 && d.sub == "" && !d.abstract {
			return []string{d.name}, nil
		}
		var out []string
		if d.abstract {
			out = append(out, "@abstract from "+d.name)
		}
		if d.sub != "" {
			out = append(out, "sub "+d.sub+" from "+d.name)
		}
		for _, p := range d.parts {
			if strings.HasPrefix(p, "value ") {
				return nil, errs.Query("typeql.build", "cannot undefine the value type of %s", d.name)
			}
			out = append(out, p+" from "+d.name)
		}
		return out, nil
	}
	s := d.kind + " " + d.name
	if d.sub != "" {
		s += " sub " + d.sub
	}
	if d.abstract {
		s += " @abstract"
	}
	for _, p := range d.parts {
		s += ", " + p
	}
	return []string{s}, nil
}
