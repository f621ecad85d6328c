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
	"fmt"
	"sort"
	"strings"
)

// Projection is a fetch document. Values are either a reference string
// ("$p", "$p.name", "$p.*") or a nested Projection. Keys render sorted.
//
//	typeql.Projection{
//	    "name": "$p.name",
//	    "employer": typeql.Projection{"name": "$c.name"},
//	}
type Projection map[string]any

func (p Projection) validate() error {
	if len(p) == 0 {
		return fmt.Errorf("fetch projection is empty")
	}
	for k, v := range p {
		if k == "" {
			return fmt.Errorf("fetch projection has an empty key")
		}
		switch x := v.(type) {
		case string:
			if !validRef(x) {
				return fmt.Errorf("invalid fetch reference %q under %q", x, k)
			}
		case Projection:
			if err := x.validate(); err != nil {
				return err
			}
		case map[string]any:
			if err := Projection(x).validate(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported fetch value %T under %q", v, k)
		}
	}
	return nil
}

func validRef(s string) bool {
	if !strings.HasPrefix(s, "$") {
		return false
	}
	v, attr, ok := strings.Cut(s[1:], ".")
	if !validIdent(v) {
		return false
	}
	return !ok || attr == "*" || validIdent(attr)
}

func (p Projection) clone() Projection {
	if p == nil {
		return nil
	}
	out := make(Projection, len(p))
	for k, v := range p {
		switch x := v.(type) {
		case Projection:
			out[k] = x.clone()
		case map[string]any:
			out[k] = Projection(x).clone()
		default:
			out[k] = v
		}
	}
	return out
}

func (p Projection) render(sb *strings.Builder, depth int) {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	indent := strings.Repeat("  ", depth+1)
	sb.WriteString("{\n")
	for i, k := range keys {
		sb.WriteString(indent)
		sb.WriteString(Quote(k))
		sb.WriteString(": ")
		switch x := p[k].(type) {
		case string:
			if strings.HasSuffix(x, ".*") {
				sb.WriteString("{ " + x + " }")
			} else {
				sb.WriteString(x)
			}
		case Projection:
			x.render(sb, depth+1)
		case map[string]any:
			Projection(x).render(sb, depth+1)
		}
		if i < len(keys)-1 {
			sb.WriteByte(',')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString("}")
}
