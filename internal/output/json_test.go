// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/kraklabs/typedb-go/pkg/typedb"
)

// TestJSONTo verifies pretty-printed output with 2-space indentation.
func TestJSONTo(t *testing.T) {
	var buf bytes.Buffer

	if err := JSONTo(&buf, map[string]any{"database": "social", "count": 42}); err != nil {
		t.Fatalf("JSONTo failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `  "database": "social"`) {
		t.Errorf("expected indented database field, got: %s", out)
	}
	if !strings.Contains(out, `"count": 42`) {
		t.Errorf("missing count field, got: %s", out)
	}
	if !strings.HasSuffix(out, "}\n") {
		t.Errorf("expected trailing newline, got: %q", out)
	}
}

func TestJSONCompactTo(t *testing.T) {
	var buf bytes.Buffer

	if err := JSONCompactTo(&buf, map[string]any{"a": 1, "b": "x"}); err != nil {
		t.Fatalf("JSONCompactTo failed: %v", err)
	}
	if got := buf.String(); got != "{\"a\":1,\"b\":\"x\"}\n" {
		t.Errorf("got %q", got)
	}
}

func TestJSONTo_Unencodable(t *testing.T) {
	var buf bytes.Buffer
	err := JSONTo(&buf, map[string]any{"ch": make(chan int)})
	if err == nil {
		t.Fatal("expected an error for a channel value")
	}
	if !strings.Contains(err.Error(), "JSON encoding failed") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	err := Table(&buf, []string{"NAME", "COUNT"}, [][]string{{"person", "2"}, {"employment", "1"}})
	if err != nil {
		t.Fatal(err)
	}
	want := "NAME        COUNT\n" +
		"----        -----\n" +
		"person      2\n" +
		"employment  1\n"
	if got := buf.String(); got != want {
		t.Errorf("Table() =\n%s\nwant\n%s", got, want)
	}
}

func TestAnswer_Rows(t *testing.T) {
	ans := &typedb.Answer{
		QueryType:  "read",
		AnswerType: typedb.AnswerRows,
		Rows: []typedb.Row{{
			"n": {Kind: "attribute", Value: json.RawMessage(`"Ann"`)},
			"p": {Kind: "entity", IID: "0x1", Type: &typedb.ConceptType{Kind: "entityType", Label: "person"}},
		}},
	}

	var buf bytes.Buffer
	if err := Answer(&buf, ans); err != nil {
		t.Fatal(err)
	}
	want := "$n   $p\n" +
		"--   --\n" +
		"Ann  person:0x1\n"
	if got := buf.String(); got != want {
		t.Errorf("Answer() =\n%s\nwant\n%s", got, want)
	}
}

func TestAnswer_Shapes(t *testing.T) {
	tests := []struct {
		name string
		ans  *typedb.Answer
		want string
	}{
		{"ok", &typedb.Answer{AnswerType: typedb.AnswerOK}, "ok\n"},
		{"no rows", &typedb.Answer{AnswerType: typedb.AnswerRows}, "(no rows)\n"},
		{"no documents", &typedb.Answer{AnswerType: typedb.AnswerDocuments}, "(no documents)\n"},
		{
			"documents",
			&typedb.Answer{AnswerType: typedb.AnswerDocuments, Documents: []map[string]any{{"email": "ann@x.io"}}},
			"{\"email\":\"ann@x.io\"}\n",
		},
		{
			"warning",
			&typedb.Answer{AnswerType: typedb.AnswerOK, Warning: "slow query"},
			"warning: slow query\nok\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Answer(&buf, tt.ans); err != nil {
				t.Fatal(err)
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCell(t *testing.T) {
	tests := []struct {
		name string
		c    typedb.Concept
		want string
	}{
		{"integer value", typedb.Concept{Kind: "value", Value: json.RawMessage(`7`)}, "7"},
		{"type", typedb.Concept{Kind: "entityType", Label: "person"}, "person"},
		{"bare iid", typedb.Concept{Kind: "entity", IID: "0x2"}, "0x2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cell(tt.c); got != tt.want {
				t.Errorf("Cell() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewAnswerJSON(t *testing.T) {
	ans := &typedb.Answer{QueryType: "write", AnswerType: typedb.AnswerOK, Warning: "w"}
	var buf bytes.Buffer
	if err := JSONTo(&buf, NewAnswerJSON(ans)); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, s := range []string{`"query_type": "write"`, `"answer_type": "ok"`, `"warning": "w"`} {
		if !strings.Contains(out, s) {
			t.Errorf("missing %s in %s", s, out)
		}
	}
	if strings.Contains(out, `"rows"`) {
		t.Errorf("empty rows should be omitted: %s", out)
	}
}
