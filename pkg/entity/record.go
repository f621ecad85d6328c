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
	"slices"
	"sort"

	"github.com/kraklabs/typedb-go/pkg/errs"
	"github.com/kraklabs/typedb-go/pkg/typeql"
)

// recordVar is the variable every generated query binds the record to.
const recordVar = "x"

// Record is one instance of a Type.
type Record struct {
	Type  Type
	Attrs map[string]typeql.Value
	// Players maps relation roles to the variables of their players.
	// The variables must be bound by the caller; Store.InsertRelation
	// does this from records.
	Players map[string]string
}

// Key returns the key value, Null when unset.
func (r *Record) Key() typeql.Value {
	if r.Type.Key == "" {
		return typeql.Null()
	}
	return r.Attrs[r.Type.Key]
}

// Get returns the value of attr, Null when unset.
func (r *Record) Get(attr string) typeql.Value {
	return r.Attrs[attr]
}

// Set assigns attr.
func (r *Record) Set(attr string, v any) error {
	if !r.Type.HasAttribute(attr) {
		return errs.Validation("entity.record", "%s has no attribute %s", r.Type.Name, attr)
	}
	val, err := typeql.ValueOf(v)
	if err != nil {
		return err
	}
	if r.Attrs == nil {
		r.Attrs = map[string]typeql.Value{}
	}
	r.Attrs[attr] = val
	return nil
}

func (r *Record) keyAttrs() (map[string]typeql.Value, error) {
	if err := r.Type.Validate(); err != nil {
		return nil, err
	}
	if r.Type.Key == "" {
		return nil, errs.Validation("entity.record", "%s has no key attribute", r.Type.Name)
	}
	k := r.Key()
	if k.IsNull() {
		return nil, errs.Validation("entity.record", "%s record has no %s", r.Type.Name, r.Type.Key)
	}
	return map[string]typeql.Value{r.Type.Key: k}, nil
}

// keyPattern renders "$x isa T, has key <literal>" for match sections.
func (r *Record) keyPattern() (string, error) {
	if _, err := r.keyAttrs(); err != nil {
		return "", err
	}
	lit, err := typeql.Literal(r.Key())
	if err != nil {
		return "", err
	}
	return "$" + recordVar + " isa " + r.Type.Name + ", has " + r.Type.Key + " " + lit, nil
}

// values returns the non-null attributes.
func (r *Record) values() map[string]typeql.Value {
	out := make(map[string]typeql.Value, len(r.Attrs))
	for k, v := range r.Attrs {
		if !v.IsNull() {
			out[k] = v
		}
	}
	return out
}

// InsertQuery renders an insert binding every non-null attribute once.
// Entity records need their key.
func (r *Record) InsertQuery() (*typeql.Builder, error) {
	b := typeql.New().Insert()
	if err := r.addTo(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Record) addTo(b *typeql.Builder) error {
	if err := r.Type.Validate(); err != nil {
		return err
	}
	if !r.Type.Relation {
		if _, err := r.keyAttrs(); err != nil {
			return err
		}
		b.Variable(recordVar, r.Type.Name, r.values())
		return b.Err()
	}
	if len(r.Players) == 0 {
		return errs.Validation("entity.record", "%s record has no role players", r.Type.Name)
	}
	rel := b.Relation(r.Type.Name).As(recordVar)
	for _, role := range r.Type.Roles {
		if v, ok := r.Players[role]; ok {
			rel.Role(role, v)
		}
	}
	for role := range r.Players {
		if !slices.Contains(r.Type.Roles, role) {
			return errs.Validation("entity.record", "%s has no role %s", r.Type.Name, role)
		}
	}
	vals := r.values()
	attrs := make([]string, 0, len(vals))
	for k := range vals {
		attrs = append(attrs, k)
	}
	sort.Strings(attrs)
	for _, k := range attrs {
		rel.Has(k, vals[k])
	}
	return b.Err()
}

// MatchQuery renders a match keyed only on the key attribute.
func (r *Record) MatchQuery() (*typeql.Builder, error) {
	key, err := r.keyAttrs()
	if err != nil {
		return nil, err
	}
	b := typeql.New().Match().Variable(recordVar, r.Type.Name, key)
	return b, b.Err()
}

// PutQuery renders a put of the full record: it matches an identical
// instance or inserts one.
func (r *Record) PutQuery() (*typeql.Builder, error) {
	if r.Type.Relation {
		return nil, errs.Validation("entity.record", "put is not supported for relation %s", r.Type.Name)
	}
	if _, err := r.keyAttrs(); err != nil {
		return nil, err
	}
	b := typeql.New().Put().Variable(recordVar, r.Type.Name, r.values())
	return b, b.Err()
}

// DeleteQuery renders a delete of the instance with this record's key.
func (r *Record) DeleteQuery() (*typeql.Builder, error) {
	key, err := r.keyAttrs()
	if err != nil {
		return nil, err
	}
	b := typeql.New().Delete().Variable(recordVar, r.Type.Name, key)
	return b, b.Err()
}

// updateQueries renders the statements that replace the non-key
// attributes of an existing instance: one has-deletion per attribute
// followed by a single insert of the new values.
func (r *Record) updateQueries() ([]*typeql.Builder, error) {
	match, err := r.keyPattern()
	if err != nil {
		return nil, err
	}
	attrs := make([]string, 0, len(r.Attrs))
	for k := range r.Attrs {
		if k != r.Type.Key {
			attrs = append(attrs, k)
		}
	}
	sort.Strings(attrs)

	var out []*typeql.Builder
	set := map[string]typeql.Value{}
	for _, k := range attrs {
		out = append(out, typeql.New().Delete().
			Where(match).
			Where("$"+recordVar+" has "+k+" $old").
			DeleteHas("old", recordVar))
		if v := r.Attrs[k]; !v.IsNull() {
			set[k] = v
		}
	}
	if len(set) > 0 {
		out = append(out, typeql.New().Insert().Where(match).Variable(recordVar, "", set))
	}
	return out, nil
}
