// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package errors turns library errors into user-facing CLI errors.
//
// A UserError says what went wrong, why, and how to fix it, and carries
// the process exit code. FromError maps the pkg/errs kinds onto it:
//
//	if err := client.CreateDatabase(ctx, name); err != nil {
//	    return errors.FromError(err, "Cannot create database "+name)
//	}
//
// Format renders colored text; ToJSON feeds --json output:
//
//	Error: Cannot create database social
//	Cause: database "social" already exists
//	Fix:   Pick another name or delete it with: typedb delete social --yes
//
// # Exit Codes
//
//   - ExitSuccess (0)
//   - ExitConfig (1): missing or invalid configuration
//   - ExitDatabase (2): server-side failures
//   - ExitNetwork (3): unreachable server, timeouts, exhausted retries
//   - ExitInput (4): invalid arguments or rejected input
//   - ExitAuth (5): rejected credentials
//   - ExitNotFound (6): missing database or record
//   - ExitQuery (7): rejected or malformed TypeQL
//   - ExitInternal (10): bugs
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/kraklabs/typedb-go/pkg/errs"
)

// Exit codes.
const (
	ExitSuccess  = 0
	ExitConfig   = 1
	ExitDatabase = 2
	ExitNetwork  = 3
	ExitInput    = 4
	ExitAuth     = 5
	ExitNotFound = 6
	ExitQuery    = 7
	// ExitInternal signals a bug that should be reported.
	ExitInternal = 10
)

// UserError is an error with structured context for end users.
type UserError struct {
	// Message describes what went wrong.
	Message string
	// Cause explains why it happened.
	Cause string
	// Fix suggests what to do next.
	Fix string

	ExitCode int
	Err      error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *UserError) Unwrap() error { return e.Err }

func newError(code int, msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: code, Err: err}
}

// NewConfigError reports unreadable or invalid configuration.
func NewConfigError(msg, cause, fix string, err error) *UserError {
	return newError(ExitConfig, msg, cause, fix, err)
}

// NewDatabaseError reports a failure on the server side.
func NewDatabaseError(msg, cause, fix string, err error) *UserError {
	return newError(ExitDatabase, msg, cause, fix, err)
}

// NewNetworkError reports connectivity failures.
func NewNetworkError(msg, cause, fix string, err error) *UserError {
	return newError(ExitNetwork, msg, cause, fix, err)
}

// NewInputError reports bad arguments. It wraps nothing.
func NewInputError(msg, cause, fix string) *UserError {
	return newError(ExitInput, msg, cause, fix, nil)
}

// NewAuthError reports rejected credentials.
func NewAuthError(msg, cause, fix string, err error) *UserError {
	return newError(ExitAuth, msg, cause, fix, err)
}

// NewNotFoundError reports a missing resource.
func NewNotFoundError(msg, cause, fix string) *UserError {
	return newError(ExitNotFound, msg, cause, fix, nil)
}

// NewQueryError reports a statement the builder or server rejected.
func NewQueryError(msg, cause, fix string, err error) *UserError {
	return newError(ExitQuery, msg, cause, fix, err)
}

// NewInternalError reports a bug.
func NewInternalError(msg, cause, fix string, err error) *UserError {
	return newError(ExitInternal, msg, cause, fix, err)
}

// FromError wraps a client library error. An existing UserError is
// returned unchanged; errors outside pkg/errs are internal.
func FromError(err error, msg string) *UserError {
	if err == nil {
		return nil
	}
	var ue *UserError
	if stderrors.As(err, &ue) {
		return ue
	}
	cause := err.Error()
	var e *errs.Error
	if stderrors.As(err, &e) && e.Message != "" {
		cause = e.Message
	}
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return newError(ExitInput, msg, cause, "Check the arguments and try again", err)
	case errs.KindConnection:
		return NewNetworkError(msg, cause, "Check that the server is running and --address is correct", err)
	case errs.KindAuthentication:
		return NewAuthError(msg, cause, "Check --username and TYPEDB_PASSWORD", err)
	case errs.KindQuery:
		return NewQueryError(msg, cause, "Check the TypeQL statement against the schema", err)
	case errs.KindServer:
		return NewDatabaseError(msg, cause, "Check the server logs", err)
	}
	return NewInternalError(msg, cause, "This is a bug. Please report it", err)
}

var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format renders the error for a terminal. Empty Cause and Fix lines are
// omitted. Colors are off when noColor is set or NO_COLOR is present.
func (e *UserError) Format(noColor bool) string {
	original := color.NoColor
	defer func() { color.NoColor = original }()
	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString("\n")
	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}
	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}
	return out.String()
}

// ErrorJSON is the --json form of a UserError.
type ErrorJSON struct {
	Error    string `json:"error"`
	Cause    string `json:"cause,omitempty"`
	Fix      string `json:"fix,omitempty"`
	Kind     string `json:"kind,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// ToJSON converts the error for machine consumption.
func (e *UserError) ToJSON() ErrorJSON {
	return ErrorJSON{
		Error:    e.Message,
		Cause:    e.Cause,
		Fix:      e.Fix,
		Kind:     errs.KindOf(e.Err).String(),
		ExitCode: e.ExitCode,
	}
}

// Report writes err to w and returns the exit code to use.
func Report(w io.Writer, err error, jsonOutput, noColor bool) int {
	if err == nil {
		return ExitSuccess
	}
	ue := FromError(err, "Command failed")
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(ue.ToJSON())
	} else {
		fmt.Fprint(w, ue.Format(noColor))
	}
	return ue.ExitCode
}

// FatalError reports err on stderr and exits. It returns when err is nil.
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}
	os.Exit(Report(os.Stderr, err, jsonOutput, false))
}
