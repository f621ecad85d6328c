// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package output provides machine- and human-readable output for CLI
// commands.
//
// JSON helpers back the --json flag; Table and Answer render tab-aligned
// text for terminals:
//
//	ans, err := client.ExecuteOneShot(ctx, db, typedb.Read, q)
//	if err != nil {
//	    return err
//	}
//	if globals.JSON {
//	    return output.JSONTo(stdout, output.NewAnswerJSON(ans))
//	}
//	return output.Answer(stdout, ans)
package output

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONTo writes data as pretty-printed JSON with 2-space indentation.
//
// Returns an error if JSON encoding fails (e.g., for unencodable types
// like channels or functions).
func JSONTo(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("JSON encoding failed: %w", err)
	}
	return nil
}

// JSONCompactTo writes data as single-line JSON, one value per line.
func JSONCompactTo(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("JSON encoding failed: %w", err)
	}
	return nil
}
