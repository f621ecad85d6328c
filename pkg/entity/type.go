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

// Package entity maps domain records onto TypeDB entity and relation
// types. Every query it sends is assembled with the typeql builder, so
// values are always escaped by typeql.Literal.
//
// Example:
//
//	person := entity.NewEntity("person", "email", "name", "age")
//	rec, _ := person.Record(map[string]any{"email": "ann@x.io", "name": "Ann"})
//	store, _ := entity.NewStore(client, "social")
//	err := store.Insert(ctx, rec)
package entity

import (
	"slices"

	"github.com/kraklabs/typedb-go/pkg/errs"
	"github.com/kraklabs/typedb-go/pkg/typeql"
)

// Type describes how records of one schema type are stored.
type Type struct {
	// Name is the schema type label.
	Name string
	// Key is the attribute that identifies an instance. Relations may
	// leave it empty, in which case they cannot be matched by key.
	Key string
	// Attributes lists the owned attributes, key included.
	Attributes []string
	// Relation marks relation types.
	Relation bool
	// Roles are the roles of a relation in insertion order.
	Roles []string
}

// NewEntity describes an entity type identified by key.
func NewEntity(name, key string, attrs ...string) Type {
	return Type{Name: name, Key: key, Attributes: withKey(key, attrs)}
}

// NewRelation describes a relation type with the given roles. key may be
// empty.
func NewRelation(name, key string, roles ...string) Type {
	return Type{Name: name, Key: key, Attributes: withKey(key, nil), Relation: true, Roles: roles}
}

// WithAttributes returns a copy of t owning the extra attributes.
func (t Type) WithAttributes(attrs ...string) Type {
	out := t
	out.Attributes = withKey(t.Key, append(slices.Clone(t.Attributes), attrs...))
	out.Roles = slices.Clone(t.Roles)
	return out
}

func withKey(key string, attrs []string) []string {
	var out []string
	if key != "" {
		out = append(out, key)
	}
	for _, a := range attrs {
		if !slices.Contains(out, a) {
			out = append(out, a)
		}
	}
	return out
}

// Validate checks labels and the shape of the type.
func (t Type) Validate() error {
	if !typeql.ValidIdent(t.Name) {
		return errs.Validation("entity.type", "invalid type name %q", t.Name)
	}
	if t.Key == "" && !t.Relation {
		return errs.Validation("entity.type", "entity type %s needs a key attribute", t.Name)
	}
	if t.Key != "" && !slices.Contains(t.Attributes, t.Key) {
		return errs.Validation("entity.type", "key %s is not an attribute of %s", t.Key, t.Name)
	}
	for _, a := range t.Attributes {
		if !typeql.ValidIdent(a) {
			return errs.Validation("entity.type", "invalid attribute name %q on %s", a, t.Name)
		}
	}
	switch {
	case t.Relation && len(t.Roles) == 0:
		return errs.Validation("entity.type", "relation type %s needs at least one role", t.Name)
	case !t.Relation && len(t.Roles) > 0:
		return errs.Validation("entity.type", "entity type %s cannot declare roles", t.Name)
	}
	for _, r := range t.Roles {
		if !typeql.ValidIdent(r) {
			return errs.Validation("entity.type", "invalid role name %q on %s", r, t.Name)
		}
	}
	return nil
}

// HasAttribute reports whether t owns attr.
func (t Type) HasAttribute(attr string) bool {
	return slices.Contains(t.Attributes, attr)
}

// Record builds a record of type t. Values go through typeql.ValueOf;
// nil values are kept as Null and skipped when rendering.
func (t Type) Record(attrs map[string]any) (*Record, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	r := &Record{Type: t, Attrs: make(map[string]typeql.Value, len(attrs))}
	for k, v := range attrs {
		if !t.HasAttribute(k) {
			return nil, errs.Validation("entity.record", "%s has no attribute %s", t.Name, k)
		}
		val, err := typeql.ValueOf(v)
		if err != nil {
			return nil, err
		}
		r.Attrs[k] = val
	}
	return r, nil
}

// HasRole reports whether relation t declares role.
func (t Type) HasRole(role string) bool {
	return slices.Contains(t.Roles, role)
}
