// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/kraklabs/typedb-go/pkg/typedb"
)

// Table writes rows under headers, aligned in columns.
func Table(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	seps := make([]string, len(headers))
	for i, h := range headers {
		seps[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(seps, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}

// Answer renders a query answer. Rows become a table with one column per
// variable, documents are written one JSON object per line and an ok
// answer prints "ok".
func Answer(w io.Writer, ans *typedb.Answer) error {
	if ans.Warning != "" {
		fmt.Fprintf(w, "warning: %s\n", ans.Warning)
	}
	switch ans.AnswerType {
	case typedb.AnswerRows:
		if len(ans.Rows) == 0 {
			_, err := fmt.Fprintln(w, "(no rows)")
			return err
		}
		vars := variables(ans.Rows)
		rows := make([][]string, 0, len(ans.Rows))
		for _, r := range ans.Rows {
			line := make([]string, len(vars))
			for i, v := range vars {
				if c, ok := r[v]; ok {
					line[i] = Cell(c)
				}
			}
			rows = append(rows, line)
		}
		headers := make([]string, len(vars))
		for i, v := range vars {
			headers[i] = "$" + v
		}
		return Table(w, headers, rows)
	case typedb.AnswerDocuments:
		if len(ans.Documents) == 0 {
			_, err := fmt.Fprintln(w, "(no documents)")
			return err
		}
		for _, doc := range ans.Documents {
			if err := JSONCompactTo(w, doc); err != nil {
				return err
			}
		}
		return nil
	default:
		_, err := fmt.Fprintln(w, "ok")
		return err
	}
}

// Cell renders one concept: its value when it has one, otherwise the type
// label with the instance IID if known.
func Cell(c typedb.Concept) string {
	if v := c.Interface(); v != nil {
		return fmt.Sprint(v)
	}
	label := c.TypeLabel()
	if c.IID != "" {
		if label == "" {
			return c.IID
		}
		return label + ":" + c.IID
	}
	return label
}

// AnswerJSON is the --json form of an answer.
type AnswerJSON struct {
	QueryType  string           `json:"query_type"`
	AnswerType string           `json:"answer_type"`
	Rows       []typedb.Row     `json:"rows,omitempty"`
	Documents  []map[string]any `json:"documents,omitempty"`
	Warning    string           `json:"warning,omitempty"`
}

// NewAnswerJSON converts ans for JSON output.
func NewAnswerJSON(ans *typedb.Answer) AnswerJSON {
	return AnswerJSON{
		QueryType:  ans.QueryType,
		AnswerType: ans.AnswerType,
		Rows:       ans.Rows,
		Documents:  ans.Documents,
		Warning:    ans.Warning,
	}
}

func variables(rows []typedb.Row) []string {
	seen := make(map[string]bool)
	var vars []string
	for _, r := range rows {
		for v := range r {
			if !seen[v] {
				seen[v] = true
				vars = append(vars, v)
			}
		}
	}
	sort.Strings(vars)
	return vars
}
