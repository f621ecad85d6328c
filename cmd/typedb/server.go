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

package main

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/typedb-go/internal/errors"
	"github.com/kraklabs/typedb-go/internal/output"
	"github.com/kraklabs/typedb-go/internal/ui"
)

// HealthOutput is the --json form of the health command.
type HealthOutput struct {
	Address   string `json:"address"`
	Healthy   bool   `json:"healthy"`
	LatencyMs int64  `json:"latency_ms"`
}

func runHealth(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("health", `Usage: typedb health

Checks that the server answers its health endpoint. No credentials are
sent.
`)
	if err := parse(fs, args); err != nil {
		return err
	}

	start := time.Now()
	if err := a.client.Health(ctx); err != nil {
		return errors.FromError(err, "Server at "+a.cfg.Address+" is not healthy")
	}
	took := time.Since(start)
	if a.globals.JSON {
		return output.JSONTo(a.stdout, HealthOutput{Address: a.cfg.Address, Healthy: true, LatencyMs: took.Milliseconds()})
	}
	fmt.Fprintf(a.stdout, "ok %s\n", ui.DimText(took.Round(time.Millisecond).String()))
	return nil
}

// VersionOutput is the --json form of the version command.
type VersionOutput struct {
	Client       string `json:"client"`
	Commit       string `json:"commit"`
	Distribution string `json:"distribution"`
	Server       string `json:"server"`
}

func runVersion(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("version", `Usage: typedb version

Prints the client version and the server's distribution and version.
`)
	if err := parse(fs, args); err != nil {
		return err
	}

	v, err := a.client.Version(ctx)
	if err != nil {
		return errors.FromError(err, "Cannot read server version")
	}
	if a.globals.JSON {
		return output.JSONTo(a.stdout, VersionOutput{Client: version, Commit: commit, Distribution: v.Distribution, Server: v.Version})
	}
	fmt.Fprintf(a.stdout, "%s %s\n", ui.Label("client:"), version)
	fmt.Fprintf(a.stdout, "%s %s\n", ui.Label("server:"), v)
	return nil
}

func runConfig(_ context.Context, a *app, args []string) error {
	fs := a.newFlagSet("config", `Usage: typedb config

Prints the effective configuration as YAML after the file, environment and flags
are applied. The password is never shown.
`)
	if err := parse(fs, args); err != nil {
		return err
	}
	if a.globals.JSON {
		return output.JSONTo(a.stdout, a.cfg)
	}
	enc := yaml.NewEncoder(a.stdout)
	enc.SetIndent(2)
	if err := enc.Encode(a.cfg); err != nil {
		return errors.NewInternalError("Cannot render configuration", err.Error(), "", err)
	}
	return enc.Close()
}
