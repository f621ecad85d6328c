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

// Package main implements the typedb CLI for administering TypeDB servers
// over the HTTP API.
//
// Usage:
//
//	typedb databases                     List databases
//	typedb create <db> [--schema S]      Create a database
//	typedb wipe <db> --yes               Delete all data, keep the schema
//	typedb query <db> <typeql>           Run a one-shot query
//	typedb health                        Check that the server is up
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/typedb-go/internal/config"
	"github.com/kraklabs/typedb-go/internal/errors"
	"github.com/kraklabs/typedb-go/internal/logger"
	"github.com/kraklabs/typedb-go/internal/ui"
	"github.com/kraklabs/typedb-go/pkg/typedb"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// GlobalFlags are the options shared by every command.
type GlobalFlags struct {
	ConfigPath  string
	Address     string
	Username    string
	Database    string
	LogLevel    string
	MetricsAddr string
	JSON        bool
	NoColor     bool
	Quiet       bool
}

// app carries what a command needs to run.
type app struct {
	globals GlobalFlags
	stdout  io.Writer
	stderr  io.Writer
	getenv  func(string) string
	out     *ui.Printer
	log     zerolog.Logger
	cfg     *config.Config
	client  *typedb.Client
}

type command struct {
	run func(ctx context.Context, a *app, args []string) error
	// offline commands do not need a client.
	offline bool
}

var commands = map[string]command{
	"databases":   {run: runDatabases},
	"create":      {run: runCreate},
	"delete":      {run: runDelete},
	"exists":      {run: runExists},
	"schema":      {run: runSchema},
	"load-schema": {run: runLoadSchema},
	"wipe":        {run: runWipe},
	"query":       {run: runQuery},
	"count":       {run: runCount},
	"health":      {run: runHealth},
	"version":     {run: runVersion},
	"config":      {run: runConfig, offline: true},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv)
	stop()
	os.Exit(code)
}

const usage = `typedb - TypeDB administration over HTTP

Usage:
  typedb [global options] <command> [options]

Commands:
  databases     List databases
  create        Create a database, optionally loading a schema
  delete        Delete a database (destructive!)
  exists        Report whether a database exists
  schema        Print the schema of a database
  load-schema   Apply a schema file or text to a database
  wipe          Delete all data in a database, keep the schema (destructive!)
  query         Run a TypeQL query in a one-shot transaction
  count         Count instances of types
  health        Check that the server is reachable
  version       Show client and server versions
  config        Print the effective configuration

Global Options:
`

const usageFooter = `
Environment Variables:
  TYPEDB_CONFIG      Path to the YAML configuration file
  TYPEDB_ADDRESS     Server address (default: http://localhost:8000)
  TYPEDB_USERNAME    User to sign in as
  TYPEDB_PASSWORD    Password for TYPEDB_USERNAME
  TYPEDB_DATABASE    Default database for commands that take one
  TYPEDB_LOG_LEVEL   debug, info, warn, error or disabled

Examples:
  typedb create social --schema schema.tql
  typedb query social 'match $p isa person; fetch { "name": $p.name };'
  typedb wipe social --yes --verify

For detailed command help: typedb <command> --help
`

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	var g GlobalFlags
	fs := flag.NewFlagSet("typedb", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	fs.StringVarP(&g.ConfigPath, "config", "c", "", "Path to the YAML configuration file")
	fs.StringVar(&g.Address, "address", "", "Server address, overrides the configuration")
	fs.StringVarP(&g.Username, "username", "u", "", "User to sign in as")
	fs.StringVarP(&g.Database, "database", "d", "", "Default database")
	fs.StringVar(&g.LogLevel, "log-level", "", "Log level (debug, info, warn, error, disabled)")
	fs.StringVar(&g.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	fs.BoolVar(&g.JSON, "json", false, "Machine-readable JSON output")
	fs.BoolVar(&g.NoColor, "no-color", false, "Disable colored output")
	fs.BoolVarP(&g.Quiet, "quiet", "q", false, "Only print results and errors")
	showVersion := fs.Bool("version", false, "Show version and exit")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
		fmt.Fprint(stderr, usageFooter)
	}

	if err := fs.Parse(args); err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return errors.ExitSuccess
		}
		return errors.ExitInput
	}
	if *showVersion {
		fmt.Fprintf(stdout, "typedb version %s\ncommit: %s\nbuilt: %s\n", version, commit, date)
		return errors.ExitSuccess
	}
	if g.JSON {
		g.Quiet = true
	}
	if g.NoColor || getenv("NO_COLOR") != "" {
		g.NoColor = true
	}
	ui.InitColors(g.NoColor)

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return errors.ExitInput
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", rest[0])
		fs.Usage()
		return errors.ExitInput
	}

	a := &app{globals: g, stdout: stdout, stderr: stderr, getenv: getenv, out: ui.NewPrinter(stderr, g.Quiet)}
	if err := a.setup(!cmd.offline); err != nil {
		return errors.Report(stderr, err, g.JSON, g.NoColor)
	}
	defer a.close()

	if g.MetricsAddr != "" {
		stopMetrics := a.serveMetrics(g.MetricsAddr)
		defer stopMetrics()
	}

	err := cmd.run(ctx, a, rest[1:])
	if stderrors.Is(err, flag.ErrHelp) {
		return errors.ExitSuccess
	}
	return errors.Report(stderr, err, g.JSON, g.NoColor)
}

// setup loads the configuration, applies flag overrides and builds the
// logger and, when withClient is set, the client.
func (a *app) setup(withClient bool) error {
	cfg, err := config.Load(a.globals.ConfigPath, a.getenv)
	if err != nil {
		return errors.NewConfigError("Cannot load configuration", err.Error(),
			"Check --config or $"+config.EnvConfig, err)
	}
	if a.globals.Address != "" {
		cfg.Address = a.globals.Address
	}
	if a.globals.Username != "" {
		cfg.Username = a.globals.Username
	}
	if a.globals.Database != "" {
		cfg.Database = a.globals.Database
	}
	if a.globals.LogLevel != "" {
		cfg.Log.Level = a.globals.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return errors.NewConfigError("Invalid configuration", err.Error(), "Fix the listed fields", err)
	}
	a.cfg = cfg

	a.log, err = logger.New(logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		NoColor: a.globals.NoColor,
		Output:  a.stderr,
	})
	if err != nil {
		return errors.NewConfigError("Invalid log settings", err.Error(), "Use --log-level debug|info|warn|error", err)
	}
	if !withClient {
		return nil
	}

	a.client, err = typedb.New(cfg.Params(),
		typedb.WithTransport(cfg.TransportOptions()),
		typedb.WithLogger(a.log),
	)
	if err != nil {
		return errors.FromError(err, "Cannot create client")
	}
	return nil
}

func (a *app) close() {
	if a.client != nil {
		_ = a.client.Close()
	}
}

// serveMetrics exposes the default Prometheus registry until the
// returned function is called.
func (a *app) serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		a.log.Info().Str("addr", addr).Str("path", "/metrics").Msg("metrics.http.start")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Warn().Err(err).Msg("metrics.http.error")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// database picks the target database from the first positional argument.
// An empty first argument falls back to --database and the configuration.
func (a *app) database(args []string) (string, []string, error) {
	if len(args) > 0 {
		if args[0] != "" {
			return args[0], args[1:], nil
		}
		args = args[1:]
	}
	if a.cfg.Database != "" {
		return a.cfg.Database, args, nil
	}
	return "", args, errors.NewInputError("No database given",
		"The command needs a database name",
		"Pass it as the first argument, with --database, or set $"+config.EnvDatabase)
}

// newFlagSet returns a command flag set that reports errors instead of
// exiting.
func (a *app) newFlagSet(name, help string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		fmt.Fprint(a.stderr, help)
		fmt.Fprintln(a.stderr, "\nOptions:")
		fs.PrintDefaults()
	}
	return fs
}

// parse parses command flags. Help requests come back as flag.ErrHelp.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return err
		}
		return errors.NewInputError("Invalid arguments", err.Error(), "Run with --help for usage")
	}
	return nil
}
