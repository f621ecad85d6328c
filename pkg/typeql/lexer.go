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
	"github.com/kraklabs/typedb-go/pkg/errs"
)

// TokenKind classifies lexer output.
type TokenKind int

const (
	TokWord TokenKind = iota
	TokVar
	TokString
	TokNumber
	TokAnnotation
	TokPunct
)

// Token is one lexeme. String tokens keep their quotes; use Unquote.
type Token struct {
	Kind TokenKind
	Text string
	Pos  int
}

// Is reports whether t is the punctuation or word s.
func (t Token) Is(s string) bool {
	return (t.Kind == TokPunct || t.Kind == TokWord) && t.Text == s
}

func isWordStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isWordChar(c byte) bool {
	return isWordStart(c) || c >= '0' && c <= '9' || c == '-'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Tokenize splits TypeQL text into tokens, dropping whitespace and
// # comments. It understands only as much syntax as the client needs.
func Tokenize(text string) ([]Token, error) {
	var out []Token
	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '#':
			for i < len(text) && text[i] != '\n' {
				i++
			}
		case c == '"':
			start := i
			i++
			for ; i < len(text); i++ {
				if text[i] == '\\' {
					i++
					continue
				}
				if text[i] == '"' {
					break
				}
			}
			if i >= len(text) {
				return nil, errs.Query("typeql.lex", "unterminated string at offset %d", start)
			}
			i++
			out = append(out, Token{Kind: TokString, Text: text[start:i], Pos: start})
		case c == '$':
			start := i
			i++
			for i < len(text) && isWordChar(text[i]) {
				i++
			}
			if i == start+1 {
				return nil, errs.Query("typeql.lex", "bare $ at offset %d", start)
			}
			out = append(out, Token{Kind: TokVar, Text: text[start+1 : i], Pos: start})
		case c == '@':
			start := i
			i++
			for i < len(text) && isWordChar(text[i]) {
				i++
			}
			out = append(out, Token{Kind: TokAnnotation, Text: text[start+1 : i], Pos: start})
		case isWordStart(c):
			start := i
			for i < len(text) && isWordChar(text[i]) {
				i++
			}
			out = append(out, Token{Kind: TokWord, Text: text[start:i], Pos: start})
		case isDigit(c) || (c == '-' && i+1 < len(text) && isDigit(text[i+1])):
			start := i
			i++
			for i < len(text) && (isWordChar(text[i]) || text[i] == '.' || text[i] == ':' || text[i] == '+') {
				i++
			}
			out = append(out, Token{Kind: TokNumber, Text: text[start:i], Pos: start})
		default:
			out = append(out, Token{Kind: TokPunct, Text: string(c), Pos: i})
			i++
		}
	}
	return out, nil
}

// StatementKind is the transaction type a statement needs.
type StatementKind int

const (
	StatementRead StatementKind = iota
	StatementWrite
	StatementSchema
)

func (k StatementKind) String() string {
	switch k {
	case StatementWrite:
		return "write"
	case StatementSchema:
		return "schema"
	}
	return "read"
}

var writeClauses = map[string]bool{"insert": true, "put": true, "delete": true, "update": true}
var schemaClauses = map[string]bool{"define": true, "undefine": true, "redefine": true}

// Classify reports the transaction type stmt needs. Clause keywords are
// recognized only at the start of the statement or after a ";" or "}".
func Classify(stmt string) (StatementKind, error) {
	toks, err := Tokenize(stmt)
	if err != nil {
		return StatementRead, err
	}
	kind := StatementRead
	clauseStart := true
	for _, t := range toks {
		if clauseStart && t.Kind == TokWord {
			switch {
			case schemaClauses[t.Text]:
				return StatementSchema, nil
			case writeClauses[t.Text]:
				kind = StatementWrite
			}
		}
		clauseStart = t.Is(";") || t.Is("}")
	}
	return kind, nil
}
