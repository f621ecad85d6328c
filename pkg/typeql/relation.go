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
)

type roleBinding struct {
	role   string
	player string
}

// RelationBuilder accumulates the role players of one relation pattern.
type RelationBuilder struct {
	parent *Builder
	typ    string
	alias  string
	roles  []roleBinding
	attrs  map[string]Value
}

// Role binds $player to role. Bindings render in the order added.
func (r *RelationBuilder) Role(role, player string) *RelationBuilder {
	player = strings.TrimPrefix(player, "$")
	if !validIdent(role) || !validIdent(player) {
		r.parent.fail("invalid role binding %s: $%s on %s", role, player, r.typ)
		return r
	}
	r.roles = append(r.roles, roleBinding{role: role, player: player})
	r.parent.touch()
	return r
}

// As names the relation variable. Without it the relation is anonymous.
func (r *RelationBuilder) As(alias string) *RelationBuilder {
	alias = strings.TrimPrefix(alias, "$")
	if !validIdent(alias) {
		r.parent.fail("invalid relation alias %q", alias)
		return r
	}
	r.alias = alias
	r.parent.touch()
	return r
}

// Has attaches an attribute to the relation.
func (r *RelationBuilder) Has(attr string, v Value) *RelationBuilder {
	if !validIdent(attr) {
		r.parent.fail("invalid attribute name %q on %s", attr, r.typ)
		return r
	}
	r.attrs[attr] = v
	r.parent.touch()
	return r
}

// End returns the parent builder.
func (r *RelationBuilder) End() *Builder { return r.parent }

func (r *RelationBuilder) clone(parent *Builder) *RelationBuilder {
	return &RelationBuilder{
		parent: parent,
		typ:    r.typ,
		alias:  r.alias,
		roles:  append([]roleBinding(nil), r.roles...),
		attrs:  copyAttrs(r.attrs),
	}
}

// render produces "$e isa employment, links (employee: $p), has since 2020".
// Anonymous relations use the $_ variable.
func (r *RelationBuilder) render() (string, error) {
	players := make([]string, len(r.roles))
	for i, rb := range r.roles {
		players[i] = rb.role + ": $" + rb.player
	}
	alias := r.alias
	if alias == "" {
		alias = "_"
	}
	s := "$" + alias + " isa " + r.typ + ", links (" + strings.Join(players, ", ") + ")"
	has, err := renderHas(r.attrs)
	if err != nil {
		return "", err
	}
	if len(has) > 0 {
		s += ", " + strings.Join(has, ", ")
	}
	return s, nil
}
