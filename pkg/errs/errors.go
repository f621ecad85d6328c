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

// Package errs provides the error type returned by every package of the
// TypeDB client.
//
// Each failure carries a Kind so callers can react without parsing strings:
//
//	ans, err := tx.Execute(ctx, q)
//	switch {
//	case errs.IsQuery(err):
//	    // bad statement, do not retry
//	case errs.IsConnection(err):
//	    var e *errs.Error
//	    errors.As(err, &e)
//	    log.Printf("gave up after %d retries", e.RetryCount)
//	}
//
// The sentinels ErrValidation, ErrConnection and friends match any *Error of
// the same kind through errors.Is.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a client failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is bad caller input. Never sent over the wire.
	KindValidation
	// KindConnection is a network or transport failure.
	KindConnection
	// KindAuthentication is a missing, expired or undecryptable credential.
	KindAuthentication
	// KindQuery is a malformed or semantically invalid statement.
	KindQuery
	// KindServer is a 5xx or server-side failure not classified above.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConnection:
		return "connection"
	case KindAuthentication:
		return "authentication"
	case KindQuery:
		return "query"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is the single error type produced by the client.
type Error struct {
	Kind Kind
	// Op names the failing operation, e.g. "transaction.open".
	Op string
	// Class is the operation class (read, write, schema) when known.
	Class string
	// Status is the HTTP status code, 0 when no response was received.
	Status int
	// Code is the server's structured error code, if any.
	Code    string
	Message string
	// Attempts is the number of requests sent, RetryCount the number of
	// those that were retries.
	Attempts   int
	RetryCount int
	Cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Op != "" {
		b.WriteString(" (")
		b.WriteString(e.Op)
		if e.Class != "" {
			b.WriteString(", ")
			b.WriteString(e.Class)
		}
		b.WriteString(")")
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " status %d", e.Status)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.RetryCount > 0 {
		fmt.Fprintf(&b, " after %d retries", e.RetryCount)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches sentinels of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" || t.Status != 0 || t.Message != "" || t.Cause != nil {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrConnection     = &Error{Kind: KindConnection}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrQuery          = &Error{Kind: KindQuery}
	ErrServer         = &Error{Kind: KindServer}
)

// New returns an error of the given kind.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Message: msg}
}

// Newf is New with formatting.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an error of the given kind with an underlying cause.
func Wrap(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Cause: cause}
}

// Validation is shorthand for a validation failure.
func Validation(op, format string, args ...any) *Error {
	return Newf(KindValidation, op, format, args...)
}

// Query is shorthand for a query failure.
func Query(op, format string, args ...any) *Error {
	return Newf(KindQuery, op, format, args...)
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsConnection reports whether err is a transport failure.
func IsConnection(err error) bool { return KindOf(err) == KindConnection }

// IsAuthentication reports whether err is a credential failure.
func IsAuthentication(err error) bool { return KindOf(err) == KindAuthentication }

// IsQuery reports whether err is a statement failure.
func IsQuery(err error) bool { return KindOf(err) == KindQuery }

// IsServer reports whether err is a server-side failure.
func IsServer(err error) bool { return KindOf(err) == KindServer }

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retryable reports whether a failure of this kind may succeed if repeated.
// Only connection failures qualify; the transport decides per request.
func (k Kind) Retryable() bool {
	return k == KindConnection
}
