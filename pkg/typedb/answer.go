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

package typedb

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/kraklabs/typedb-go/pkg/errs"
)

// Answer types reported by the server.
const (
	AnswerOK        = "ok"
	AnswerRows      = "conceptRows"
	AnswerDocuments = "conceptDocuments"
)

// ConceptType describes the type of an instance concept.
type ConceptType struct {
	Kind      string `json:"kind"`
	Label     string `json:"label"`
	ValueType string `json:"valueType,omitempty"`
}

// Concept is one value in a row: an instance, a type or a plain value.
type Concept struct {
	Kind      string          `json:"kind"`
	IID       string          `json:"iid,omitempty"`
	Label     string          `json:"label,omitempty"`
	Type      *ConceptType    `json:"type,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	ValueType string          `json:"valueType,omitempty"`
}

// TypeLabel returns the label of a type concept or the type of an instance.
func (c Concept) TypeLabel() string {
	if c.Label != "" {
		return c.Label
	}
	if c.Type != nil {
		return c.Type.Label
	}
	return ""
}

// Int returns an integer value.
func (c Concept) Int() (int64, bool) {
	if len(c.Value) == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(string(bytes.TrimSpace(c.Value)), 10, 64)
	return n, err == nil
}

// String returns a string value.
func (c Concept) String() (string, bool) {
	var s string
	if len(c.Value) == 0 || json.Unmarshal(c.Value, &s) != nil {
		return "", false
	}
	return s, true
}

// Interface decodes the value generically. Numbers become json.Number.
func (c Concept) Interface() any {
	if len(c.Value) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(c.Value))
	dec.UseNumber()
	var v any
	if dec.Decode(&v) != nil {
		return nil
	}
	return v
}

// Row maps variable names (without $) to concepts.
type Row map[string]Concept

type rowWire struct {
	Data Row `json:"data"`
}

// Answer is the decoded result of one query.
type Answer struct {
	QueryType  string
	AnswerType string
	Rows       []Row
	Documents  []map[string]any
	Warning    string
}

type answerWire struct {
	QueryType  string            `json:"queryType"`
	AnswerType string            `json:"answerType"`
	Answers    []json.RawMessage `json:"answers"`
	Warning    *string           `json:"warning"`
}

func decodeAnswer(body []byte) (*Answer, error) {
	var w answerWire
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return nil, errs.Wrap(errs.KindServer, "answer.decode", "malformed query answer", err)
	}
	a := &Answer{QueryType: w.QueryType, AnswerType: w.AnswerType}
	if w.Warning != nil {
		a.Warning = *w.Warning
	}
	switch w.AnswerType {
	case AnswerRows:
		for _, raw := range w.Answers {
			var r rowWire
			if err := json.Unmarshal(raw, &r); err != nil {
				return nil, errs.Wrap(errs.KindServer, "answer.decode", "malformed concept row", err)
			}
			a.Rows = append(a.Rows, r.Data)
		}
	case AnswerDocuments:
		for _, raw := range w.Answers {
			d := json.NewDecoder(bytes.NewReader(raw))
			d.UseNumber()
			var doc map[string]any
			if err := d.Decode(&doc); err != nil {
				return nil, errs.Wrap(errs.KindServer, "answer.decode", "malformed concept document", err)
			}
			a.Documents = append(a.Documents, doc)
		}
	}
	return a, nil
}

// Len is the number of rows or documents.
func (a *Answer) Len() int {
	return len(a.Rows) + len(a.Documents)
}

// Column returns the concepts bound to variable v, one per row.
func (a *Answer) Column(v string) []Concept {
	out := make([]Concept, 0, len(a.Rows))
	for _, r := range a.Rows {
		if c, ok := r[v]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Count reads the integer bound to alias in the first row, as produced by
// "reduce $alias = count;". No rows counts as 0.
func (a *Answer) Count(alias string) (int64, error) {
	if len(a.Rows) == 0 {
		return 0, nil
	}
	c, ok := a.Rows[0][alias]
	if !ok {
		return 0, errs.Newf(errs.KindQuery, "answer.count", "no $%s in answer", alias)
	}
	n, ok := c.Int()
	if !ok {
		return 0, errs.Newf(errs.KindQuery, "answer.count", "$%s is not an integer", alias)
	}
	return n, nil
}
