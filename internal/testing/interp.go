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
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/kraklabs/typedb-go/pkg/schema"
	"github.com/kraklabs/typedb-go/pkg/typeql"
)

// The interpreter understands the subset of TypeQL the client emits:
// isa/isa!, has, links and label patterns; insert, put and delete; sort,
// offset, limit, reduce and fetch; and define.

// apiError is a failed request as the server reports it.
type apiError struct {
	status  int
	code    string
	message string
}

func (e *apiError) Error() string { return e.code + ": " + e.message }

func queryErr(format string, args ...any) *apiError {
	return &apiError{status: http.StatusBadRequest, code: "QRY1", message: fmt.Sprintf(format, args...)}
}

type binding struct {
	inst  string     // instance iid
	val   *attrValue // attribute or computed value
	attr  string     // attribute type of val; empty for computed values
	label string     // type label
}

type row map[string]binding

func (r row) with(v string, b binding) row {
	out := make(row, len(r)+1)
	for k, x := range r {
		out[k] = x
	}
	out[v] = b
	return out
}

type hasCons struct {
	attr string
	lit  *attrValue
	v    string
}

type roleCons struct {
	role string
	v    string
}

type pattern struct {
	v     string
	typ   string
	exact bool
	label string
	has   []hasCons
	links []roleCons
}

type clause struct {
	kw   string
	toks []typeql.Token
}

var clauseWords = map[string]bool{
	"with": true, "match": true, "insert": true, "put": true, "delete": true,
	"update": true, "define": true, "undefine": true, "redefine": true,
	"sort": true, "offset": true, "limit": true, "reduce": true,
	"fetch": true, "select": true,
}

func splitClauses(toks []typeql.Token) ([]clause, *apiError) {
	var out []clause
	depth := 0
	start := true
	for _, t := range toks {
		if depth == 0 && start && t.Kind == typeql.TokWord && clauseWords[t.Text] {
			out = append(out, clause{kw: t.Text})
			start = false
			continue
		}
		if len(out) == 0 {
			return nil, queryErr("query must start with a clause, got %q", t.Text)
		}
		switch {
		case t.Is("(") || t.Is("{") || t.Is("["):
			depth++
		case t.Is(")") || t.Is("}") || t.Is("]"):
			depth--
		}
		out[len(out)-1].toks = append(out[len(out)-1].toks, t)
		start = depth == 0 && (t.Is(";") || t.Is("}"))
	}
	return out, nil
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
		}
		if depth == 0 && t.Is(";") {
			if len(cur) > 0 {
				out = append(out, cur)
			}
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

func splitCommas(toks []typeql.Token) [][]typeql.Token {
	var out [][]typeql.Token
	var cur []typeql.Token
	depth := 0
	for _, t := range toks {
		switch {
		case t.Is("(") || t.Is("{") || t.Is("["):
			depth++
		case t.Is(")") || t.Is("}") || t.Is("]"):
			depth--
		}
		if depth == 0 && t.Is(",") {
			out = append(out, cur)
			cur = nil
			continue
		}
		cur = append(cur, t)
	}
	return append(out, cur)
}

func literal(t typeql.Token) (*attrValue, bool) {
	switch t.Kind {
	case typeql.TokString:
		s, err := typeql.Unquote(t.Text)
		if err != nil {
			return nil, false
		}
		return &attrValue{vt: "string", s: s}, true
	case typeql.TokNumber:
		txt := t.Text
		body := strings.TrimPrefix(txt, "-")
		switch {
		case strings.ContainsAny(body, "T:") || strings.Count(body, "-") >= 2:
			return &attrValue{vt: "datetime", s: txt}, true
		case strings.ContainsAny(body, ".eE"):
			f, err := strconv.ParseFloat(txt, 64)
			if err != nil {
				return nil, false
			}
			return &attrValue{vt: "double", s: strconv.FormatFloat(f, 'g', -1, 64)}, true
		}
		n, err := strconv.ParseInt(txt, 10, 64)
		if err != nil {
			return nil, false
		}
		return &attrValue{vt: "integer", s: strconv.FormatInt(n, 10)}, true
	case typeql.TokWord:
		if t.Text == "true" || t.Text == "false" {
			return &attrValue{vt: "boolean", s: t.Text}, true
		}
	}
	return nil, false
}

func parsePattern(st []typeql.Token) (pattern, *apiError) {
	var p pattern
	if len(st) == 0 || st[0].Kind != typeql.TokVar {
		return p, queryErr("unsupported pattern %s", render(st))
	}
	p.v = st[0].Text
	for _, part := range splitCommas(st[1:]) {
		if len(part) == 0 {
			return p, queryErr("empty constraint in %s", render(st))
		}
		switch {
		case part[0].Is("isa"):
			rest := part[1:]
			if len(rest) > 0 && rest[0].Is("!") {
				p.exact = true
				rest = rest[1:]
			}
			if len(rest) != 1 || rest[0].Kind != typeql.TokWord {
				return p, queryErr("bad isa in %s", render(st))
			}
			p.typ = rest[0].Text
		case part[0].Is("label"):
			if len(part) != 2 {
				return p, queryErr("bad label in %s", render(st))
			}
			p.label = part[1].Text
		case part[0].Is("has"):
			if len(part) != 3 || part[1].Kind != typeql.TokWord {
				return p, queryErr("bad has in %s", render(st))
			}
			h := hasCons{attr: part[1].Text}
			if part[2].Kind == typeql.TokVar {
				h.v = part[2].Text
			} else if lit, ok := literal(part[2]); ok {
				h.lit = lit
			} else {
				return p, queryErr("bad value in %s", render(st))
			}
			p.has = append(p.has, h)
		case part[0].Is("links"):
			if len(part) < 3 || !part[1].Is("(") || !part[len(part)-1].Is(")") {
				return p, queryErr("bad links in %s", render(st))
			}
			for _, rp := range splitCommas(part[2 : len(part)-1]) {
				switch {
				case len(rp) == 3 && rp[1].Is(":") && rp[2].Kind == typeql.TokVar:
					p.links = append(p.links, roleCons{role: rp[0].Text, v: rp[2].Text})
				case len(rp) == 5 && rp[1].Is(":") && rp[3].Is(":") && rp[4].Kind == typeql.TokVar:
					p.links = append(p.links, roleCons{role: rp[2].Text, v: rp[4].Text})
				default:
					return p, queryErr("bad role player in %s", render(st))
				}
			}
		default:
			return p, queryErr("unsupported constraint %q", part[0].Text)
		}
	}
	return p, nil
}

func render(toks []typeql.Token) string {
	parts := make([]string, len(toks))
	for i, t := range toks {
		switch t.Kind {
		case typeql.TokVar:
			parts[i] = "$" + t.Text
		case typeql.TokAnnotation:
			parts[i] = "@" + t.Text
		default:
			parts[i] = t.Text
		}
	}
	return strings.Join(parts, " ")
}

// machine runs one query against a store.
type machine struct {
	st   *store
	next func() string
	anon int
}

type result struct {
	queryType  string
	answerType string
	rows       []row
	docs       []map[string]any
}

func (m *machine) run(query string) (*result, *apiError) {
	toks, err := typeql.Tokenize(query)
	if err != nil {
		return nil, queryErr("%v", err)
	}
	clauses, aerr := splitClauses(toks)
	if aerr != nil {
		return nil, aerr
	}
	if len(clauses) == 0 {
		return nil, queryErr("empty query")
	}
	switch clauses[0].kw {
	case "define":
		if err := m.st.define(query); err != nil {
			return nil, queryErr("%v", err)
		}
		return &result{queryType: "schema", answerType: "ok"}, nil
	case "undefine", "redefine":
		return nil, queryErr("%s is not supported", clauses[0].kw)
	}

	res := &result{queryType: "read", answerType: "conceptRows"}
	rows := []row{{}}
	for _, c := range clauses {
		var aerr *apiError
		switch c.kw {
		case "with":
		case "match":
			rows, aerr = m.match(rows, c.toks)
		case "insert":
			res.queryType = "write"
			rows, aerr = m.insert(rows, c.toks)
		case "put":
			res.queryType = "write"
			rows, aerr = m.put(rows, c.toks)
		case "delete":
			res.queryType = "write"
			rows, aerr = m.delete(rows, c.toks)
		case "sort":
			aerr = m.sort(rows, c.toks)
		case "offset", "limit":
			rows, aerr = window(c.kw, rows, c.toks)
		case "reduce":
			rows, aerr = m.reduce(rows, c.toks)
		case "select":
			rows, aerr = selectVars(rows, c.toks)
		case "fetch":
			res.answerType = "conceptDocuments"
			res.docs, aerr = m.fetch(rows, c.toks)
		default:
			aerr = queryErr("%s is not supported", c.kw)
		}
		if aerr != nil {
			return nil, aerr
		}
	}
	res.rows = rows
	return res, nil
}

func (m *machine) patterns(toks []typeql.Token) ([]pattern, *apiError) {
	var out []pattern
	for _, st := range splitStatements(toks) {
		p, err := parsePattern(st)
		if err != nil {
			return nil, err
		}
		if p.v == "_" {
			m.anon++
			p.v = "_" + strconv.Itoa(m.anon)
		}
		if p.typ != "" {
			if _, ok := m.st.graph.Type(p.typ); !ok {
				return nil, queryErr("type %q not found", p.typ)
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *machine) match(rows []row, toks []typeql.Token) ([]row, *apiError) {
	pats, err := m.patterns(toks)
	if err != nil {
		return nil, err
	}
	return m.matchPatterns(rows, pats), nil
}

func (m *machine) matchPatterns(rows []row, pats []pattern) []row {
	for _, p := range pats {
		var next []row
		for _, r := range rows {
			next = append(next, m.extend(r, p)...)
		}
		rows = next
	}
	return rows
}

func (m *machine) extend(r row, p pattern) []row {
	if p.label != "" {
		if b, ok := r[p.v]; ok {
			if b.label == p.label {
				return []row{r}
			}
			return nil
		}
		return []row{r.with(p.v, binding{label: p.label})}
	}

	var cands []*instance
	if b, ok := r[p.v]; ok {
		if in := m.st.insts[b.inst]; in != nil {
			cands = append(cands, in)
		}
	} else {
		m.st.each(func(in *instance) { cands = append(cands, in) })
	}

	var out []row
	for _, in := range cands {
		if p.typ != "" {
			if p.exact && in.typ != p.typ || !p.exact && !m.st.graph.IsSubtype(in.typ, p.typ) {
				continue
			}
		}
		branch := []row{r.with(p.v, binding{inst: in.iid})}
		for _, h := range p.has {
			branch = m.matchHas(branch, in, h)
		}
		for _, l := range p.links {
			branch = m.matchLink(branch, in, l)
		}
		out = append(out, branch...)
	}
	return out
}

func (m *machine) matchHas(rows []row, in *instance, h hasCons) []row {
	var out []row
	for _, r := range rows {
		switch {
		case h.lit != nil:
			lit, _ := h.lit.coerce(m.st.valueType(h.attr))
			if in.hasValue(h.attr, lit) {
				out = append(out, r)
			}
		default:
			if b, ok := r[h.v]; ok {
				if b.val != nil && in.hasValue(h.attr, *b.val) {
					out = append(out, r)
				}
				continue
			}
			for _, v := range in.attrs[h.attr] {
				v := v
				out = append(out, r.with(h.v, binding{val: &v, attr: h.attr}))
			}
		}
	}
	return out
}

func (m *machine) matchLink(rows []row, in *instance, l roleCons) []row {
	var out []row
	for _, r := range rows {
		bound, isBound := r[l.v]
		for _, rp := range in.roles {
			if rp.role != l.role {
				continue
			}
			if isBound {
				if bound.inst == rp.iid {
					out = append(out, r)
					break
				}
				continue
			}
			out = append(out, r.with(l.v, binding{inst: rp.iid}))
		}
	}
	return out
}

func (m *machine) insert(rows []row, toks []typeql.Token) ([]row, *apiError) {
	pats, err := m.patterns(toks)
	if err != nil {
		return nil, err
	}
	out := make([]row, 0, len(rows))
	for _, r := range rows {
		r, err := m.insertRow(r, pats)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *machine) put(rows []row, toks []typeql.Token) ([]row, *apiError) {
	pats, err := m.patterns(toks)
	if err != nil {
		return nil, err
	}
	var out []row
	for _, r := range rows {
		if found := m.matchPatterns([]row{r}, pats); len(found) > 0 {
			out = append(out, found[0])
			continue
		}
		r, err := m.insertRow(r, pats)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *machine) insertRow(r row, pats []pattern) (row, *apiError) {
	for _, p := range pats {
		b, bound := r[p.v]
		var in *instance
		switch {
		case bound && p.typ != "":
			return nil, queryErr("$%s is already bound", p.v)
		case bound:
			in = m.st.insts[b.inst]
			if in == nil {
				return nil, queryErr("$%s is not an instance", p.v)
			}
		default:
			if p.typ == "" {
				return nil, queryErr("$%s needs a type to be inserted", p.v)
			}
			t, _ := m.st.graph.Type(p.typ)
			if t.Abstract || t.Kind == schema.KindAttribute {
				return nil, queryErr("cannot insert an instance of %s", p.typ)
			}
			in = &instance{iid: m.next(), typ: p.typ, attrs: map[string][]attrValue{}}
		}
		for _, h := range p.has {
			v := h.lit
			if v == nil {
				hb, ok := r[h.v]
				if !ok || hb.val == nil {
					return nil, queryErr("$%s is not bound to a value", h.v)
				}
				v = hb.val
			}
			if !m.st.owns(in.typ, h.attr) {
				return nil, queryErr("%s does not own %s", in.typ, h.attr)
			}
			cv, ok := v.coerce(m.st.valueType(h.attr))
			if !ok {
				return nil, queryErr("%s expects %s, got %s", h.attr, m.st.valueType(h.attr), v.vt)
			}
			if !in.hasValue(h.attr, cv) {
				in.attrs[h.attr] = append(in.attrs[h.attr], cv)
			}
		}
		for _, l := range p.links {
			pb, ok := r[l.v]
			if !ok || pb.inst == "" {
				return nil, queryErr("role player $%s is not bound", l.v)
			}
			if !m.st.relates(in.typ, l.role) {
				return nil, queryErr("%s has no role %s", in.typ, l.role)
			}
			in.roles = append(in.roles, rolePlayer{role: l.role, iid: pb.inst})
		}
		if err := m.checkKeys(in); err != nil {
			return nil, err
		}
		if !bound {
			m.st.add(in)
			r = r.with(p.v, binding{inst: in.iid})
		}
	}
	return r, nil
}

func (m *machine) checkKeys(in *instance) *apiError {
	for _, key := range m.st.graph.KeysOf(in.typ) {
		if len(in.attrs[key]) > 1 {
			return &apiError{status: http.StatusBadRequest, code: "CNT2", message: fmt.Sprintf("%s has more than one key %s", in.typ, key)}
		}
		for _, v := range in.attrs[key] {
			var clash bool
			m.st.each(func(o *instance) {
				if o.iid != in.iid && o.hasValue(key, v) && containsStr(m.st.graph.KeysOf(o.typ), key) {
					clash = true
				}
			})
			if clash {
				return &apiError{status: http.StatusBadRequest, code: "CNT1", message: fmt.Sprintf("key %s %q is already taken", key, v.s)}
			}
		}
	}
	return nil
}

func containsStr(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func (m *machine) delete(rows []row, toks []typeql.Token) ([]row, *apiError) {
	stmts := splitStatements(toks)
	for _, r := range rows {
		for _, st := range stmts {
			switch {
			case len(st) == 1 && st[0].Kind == typeql.TokVar:
				b, ok := r[st[0].Text]
				if !ok {
					return nil, queryErr("$%s is not bound", st[0].Text)
				}
				if _, live := m.st.insts[b.inst]; !live {
					continue
				}
				if rel := m.st.playsIn(b.inst); rel != nil {
					return nil, &apiError{
						status:  http.StatusBadRequest,
						code:    "DEL1",
						message: fmt.Sprintf("instance of %s still plays a role in %s", m.st.insts[b.inst].typ, rel.typ),
					}
				}
				m.st.remove(b.inst)
			case len(st) == 4 && st[0].Is("has") && st[1].Kind == typeql.TokVar && st[2].Is("of") && st[3].Kind == typeql.TokVar:
				ab, ok1 := r[st[1].Text]
				ob, ok2 := r[st[3].Text]
				if !ok1 || !ok2 || ab.val == nil {
					return nil, queryErr("unbound variable in %s", render(st))
				}
				in := m.st.insts[ob.inst]
				if in == nil {
					continue
				}
				vals := in.attrs[ab.attr]
				for i, v := range vals {
					if v.equal(*ab.val) {
						in.attrs[ab.attr] = append(vals[:i:i], vals[i+1:]...)
						break
					}
				}
			default:
				return nil, queryErr("unsupported delete %s", render(st))
			}
		}
	}
	return rows, nil
}

func (m *machine) sortKey(b binding) (string, float64, bool) {
	if b.val != nil {
		if f, ok := b.val.number(); ok {
			return "", f, true
		}
		return b.val.s, 0, false
	}
	if b.label != "" {
		return b.label, 0, false
	}
	return b.inst, 0, false
}

func (m *machine) sort(rows []row, toks []typeql.Token) *apiError {
	type key struct {
		v    string
		desc bool
	}
	var keys []key
	for _, part := range splitCommas(trimSemi(toks)) {
		if len(part) == 0 || part[0].Kind != typeql.TokVar || len(part) > 2 {
			return queryErr("bad sort %s", render(toks))
		}
		k := key{v: part[0].Text}
		if len(part) == 2 {
			k.desc = part[1].Is("desc")
		}
		keys = append(keys, k)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			si, fi, ni := m.sortKey(rows[i][k.v])
			sj, fj, nj := m.sortKey(rows[j][k.v])
			var less, greater bool
			if ni && nj {
				less, greater = fi < fj, fi > fj
			} else {
				less, greater = si < sj, si > sj
			}
			if k.desc {
				less, greater = greater, less
			}
			if less {
				return true
			}
			if greater {
				return false
			}
		}
		return false
	})
	return nil
}

func trimSemi(toks []typeql.Token) []typeql.Token {
	if n := len(toks); n > 0 && toks[n-1].Is(";") {
		return toks[:n-1]
	}
	return toks
}

func window(kw string, rows []row, toks []typeql.Token) ([]row, *apiError) {
	toks = trimSemi(toks)
	if len(toks) != 1 {
		return nil, queryErr("bad %s", kw)
	}
	n, err := strconv.Atoi(toks[0].Text)
	if err != nil || n < 0 {
		return nil, queryErr("bad %s %q", kw, toks[0].Text)
	}
	if kw == "offset" {
		if n > len(rows) {
			n = len(rows)
		}
		return rows[n:], nil
	}
	if n < len(rows) {
		rows = rows[:n]
	}
	return rows, nil
}

func selectVars(rows []row, toks []typeql.Token) ([]row, *apiError) {
	keep := map[string]bool{}
	for _, part := range splitCommas(trimSemi(toks)) {
		if len(part) != 1 || part[0].Kind != typeql.TokVar {
			return nil, queryErr("bad select %s", render(toks))
		}
		keep[part[0].Text] = true
	}
	out := make([]row, len(rows))
	for i, r := range rows {
		out[i] = row{}
		for k, v := range r {
			if keep[k] {
				out[i][k] = v
			}
		}
	}
	return out, nil
}

type reduceOp struct {
	alias, fn, arg string
}

func (m *machine) reduce(rows []row, toks []typeql.Token) ([]row, *apiError) {
	toks = trimSemi(toks)
	var groupBy []string
	for i, t := range toks {
		if t.Is("groupby") {
			for _, part := range splitCommas(toks[i+1:]) {
				if len(part) != 1 || part[0].Kind != typeql.TokVar {
					return nil, queryErr("bad groupby")
				}
				groupBy = append(groupBy, part[0].Text)
			}
			toks = toks[:i]
			break
		}
	}
	var ops []reduceOp
	for _, part := range splitCommas(toks) {
		if len(part) < 3 || part[0].Kind != typeql.TokVar || !part[1].Is("=") {
			return nil, queryErr("bad reduce %s", render(part))
		}
		op := reduceOp{alias: part[0].Text, fn: part[2].Text}
		if len(part) == 6 && part[3].Is("(") && part[4].Kind == typeql.TokVar && part[5].Is(")") {
			op.arg = part[4].Text
		} else if len(part) != 3 {
			return nil, queryErr("bad reduce %s", render(part))
		}
		ops = append(ops, op)
	}

	groups := map[string][]row{}
	var keys []string
	for _, r := range rows {
		var sb strings.Builder
		for _, g := range groupBy {
			s, f, _ := m.sortKey(r[g])
			fmt.Fprintf(&sb, "%s|%g|", s, f)
		}
		k := sb.String()
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], r)
	}
	if len(groupBy) == 0 && len(keys) == 0 {
		keys, groups[""] = []string{""}, nil
	}

	out := make([]row, 0, len(keys))
	for _, k := range keys {
		grp := groups[k]
		res := row{}
		if len(grp) > 0 {
			for _, g := range groupBy {
				res[g] = grp[0][g]
			}
		}
		for _, op := range ops {
			if v, ok := aggregate(op, grp); ok {
				res[op.alias] = binding{val: &v}
			}
		}
		out = append(out, res)
	}
	return out, nil
}

func aggregate(op reduceOp, rows []row) (attrValue, bool) {
	if op.fn == "count" {
		n := 0
		for _, r := range rows {
			if _, ok := r[op.arg]; op.arg == "" || ok {
				n++
			}
		}
		return attrValue{vt: "integer", s: strconv.Itoa(n)}, true
	}
	var nums []float64
	isInt := true
	for _, r := range rows {
		b, ok := r[op.arg]
		if !ok || b.val == nil {
			continue
		}
		f, ok := b.val.number()
		if !ok {
			continue
		}
		if b.val.vt != "integer" {
			isInt = false
		}
		nums = append(nums, f)
	}
	if len(nums) == 0 && op.fn != "sum" {
		return attrValue{}, false
	}
	var v float64
	switch op.fn {
	case "sum", "mean":
		for _, n := range nums {
			v += n
		}
		if op.fn == "mean" {
			v /= float64(len(nums))
			isInt = false
		}
	case "max", "min":
		v = nums[0]
		for _, n := range nums[1:] {
			if op.fn == "max" && n > v || op.fn == "min" && n < v {
				v = n
			}
		}
	default:
		return attrValue{}, false
	}
	if isInt {
		return attrValue{vt: "integer", s: strconv.FormatInt(int64(v), 10)}, true
	}
	return attrValue{vt: "double", s: strconv.FormatFloat(v, 'g', -1, 64)}, true
}

// fetchNode is an object (keys set) or a variable reference.
type fetchNode struct {
	keys []string
	vals []fetchNode
	v    string
	attr string
	all  bool
}

func parseFetch(toks []typeql.Token, i int) (fetchNode, int, *apiError) {
	if i >= len(toks) {
		return fetchNode{}, i, queryErr("truncated fetch")
	}
	if toks[i].Kind == typeql.TokVar {
		n := fetchNode{v: toks[i].Text}
		i++
		if i+1 < len(toks) && toks[i].Is(".") {
			if toks[i+1].Is("*") {
				n.all = true
			} else {
				n.attr = toks[i+1].Text
			}
			i += 2
		}
		return n, i, nil
	}
	if !toks[i].Is("{") {
		return fetchNode{}, i, queryErr("unexpected %q in fetch", toks[i].Text)
	}
	i++
	if i < len(toks) && toks[i].Kind == typeql.TokVar {
		n, j, err := parseFetch(toks, i)
		if err != nil {
			return n, j, err
		}
		if j >= len(toks) || !toks[j].Is("}") || !n.all {
			return n, j, queryErr("expected { $v.* }")
		}
		return n, j + 1, nil
	}
	obj := fetchNode{keys: []string{}}
	for i < len(toks) && !toks[i].Is("}") {
		if toks[i].Kind != typeql.TokString || i+1 >= len(toks) || !toks[i+1].Is(":") {
			return obj, i, queryErr("expected \"key\": in fetch")
		}
		key, _ := typeql.Unquote(toks[i].Text)
		val, j, err := parseFetch(toks, i+2)
		if err != nil {
			return obj, j, err
		}
		obj.keys = append(obj.keys, key)
		obj.vals = append(obj.vals, val)
		i = j
		if i < len(toks) && toks[i].Is(",") {
			i++
		}
	}
	if i >= len(toks) {
		return obj, i, queryErr("unterminated fetch")
	}
	return obj, i + 1, nil
}

func (m *machine) fetch(rows []row, toks []typeql.Token) ([]map[string]any, *apiError) {
	node, _, err := parseFetch(trimSemi(toks), 0)
	if err != nil {
		return nil, err
	}
	docs := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		doc, ok := m.evalFetch(node, r).(map[string]any)
		if !ok {
			return nil, queryErr("fetch must produce an object")
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func attrJSON(vals []attrValue) any {
	switch len(vals) {
	case 0:
		return nil
	case 1:
		return vals[0].json()
	}
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v.json()
	}
	return out
}

func (m *machine) evalFetch(n fetchNode, r row) any {
	if n.keys != nil {
		obj := make(map[string]any, len(n.keys))
		for i, k := range n.keys {
			obj[k] = m.evalFetch(n.vals[i], r)
		}
		return obj
	}
	b := r[n.v]
	if b.val != nil {
		return b.val.json()
	}
	in := m.st.insts[b.inst]
	if in == nil {
		return nil
	}
	switch {
	case n.all:
		obj := map[string]any{}
		for k, vals := range in.attrs {
			if len(vals) > 0 {
				obj[k] = attrJSON(vals)
			}
		}
		return obj
	case n.attr != "":
		return attrJSON(in.attrs[n.attr])
	}
	return map[string]any{"type": map[string]any{"label": in.typ}}
}

func (m *machine) concept(b binding) map[string]any {
	switch {
	case b.label != "":
		kind := "entityType"
		if t, ok := m.st.graph.Type(b.label); ok {
			kind = string(t.Kind) + "Type"
		}
		return map[string]any{"kind": kind, "label": b.label}
	case b.val != nil && b.attr != "":
		return map[string]any{
			"kind":      "attribute",
			"value":     b.val.json(),
			"valueType": b.val.vt,
			"type":      map[string]any{"kind": "attributeType", "label": b.attr, "valueType": b.val.vt},
		}
	case b.val != nil:
		return map[string]any{"kind": "value", "value": b.val.json(), "valueType": b.val.vt}
	}
	kind := "entity"
	label := ""
	if in := m.st.insts[b.inst]; in != nil {
		label = in.typ
		if t, ok := m.st.graph.Type(in.typ); ok && t.Kind == schema.KindRelation {
			kind = "relation"
		}
	}
	return map[string]any{
		"kind": kind,
		"iid":  b.inst,
		"type": map[string]any{"kind": kind + "Type", "label": label},
	}
}

func (m *machine) answers(res *result) []any {
	if res.answerType == "conceptDocuments" {
		out := make([]any, len(res.docs))
		for i, d := range res.docs {
			out[i] = d
		}
		return out
	}
	if res.answerType == "ok" {
		return nil
	}
	out := make([]any, 0, len(res.rows))
	for _, r := range res.rows {
		data := map[string]any{}
		for k, b := range r {
			if strings.HasPrefix(k, "_") {
				continue
			}
			data[k] = m.concept(b)
		}
		out = append(out, map[string]any{"data": data, "involvedBlocks": []int{0}})
	}
	return out
}
