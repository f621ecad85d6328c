// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package config loads the typedb CLI configuration.
//
// Sources are applied in order: built-in defaults, the YAML file named by
// --config or $TYPEDB_CONFIG, TYPEDB_* environment variables, then
// command-line flags. ${VAR} references inside the file are expanded from
// the environment before parsing.
//
// Example file:
//
//	address: https://typedb.internal:8000
//	username: admin
//	password: ${TYPEDB_ADMIN_PASSWORD}
//	database: social
//	timeout: 30
//	timeouts:
//	  schema: 120
//	transport:
//	  max_retries: 5
//	log:
//	  level: info
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/typedb-go/pkg/conn"
	"github.com/kraklabs/typedb-go/pkg/credential"
	"github.com/kraklabs/typedb-go/pkg/transport"
)

// Environment variables read by Load.
const (
	EnvConfig   = "TYPEDB_CONFIG"
	EnvAddress  = "TYPEDB_ADDRESS"
	EnvUsername = "TYPEDB_USERNAME"
	EnvPassword = "TYPEDB_PASSWORD"
	EnvDatabase = "TYPEDB_DATABASE"
	EnvLogLevel = "TYPEDB_LOG_LEVEL"
)

// DefaultAddress is used when no source sets one.
const DefaultAddress = "http://localhost:8000"

// Config is the CLI configuration.
type Config struct {
	Address  string            `yaml:"address" validate:"required"`
	Username string            `yaml:"username"`
	Password credential.Secret `yaml:"password"`
	Database string            `yaml:"database" validate:"omitempty,max=255"`
	// Timeout is the default request timeout in seconds.
	Timeout int `yaml:"timeout" validate:"gte=0,lte=2147483647"`
	// Timeouts overrides Timeout per operation class.
	Timeouts  map[string]int  `yaml:"timeouts" validate:"omitempty,dive,keys,oneof=read write schema,endkeys,gt=0"`
	Transport TransportConfig `yaml:"transport"`
	Log       LogConfig       `yaml:"log"`
}

// TransportConfig tunes the HTTP session. Zero values keep the defaults.
type TransportConfig struct {
	MaxRetries        *int          `yaml:"max_retries" validate:"omitempty,gte=0,lte=20"`
	BackoffFactor     float64       `yaml:"backoff_factor" validate:"gte=0"`
	MaxBackoff        time.Duration `yaml:"max_backoff" validate:"gte=0"`
	PoolSize          int           `yaml:"pool_size" validate:"gte=0"`
	MaxConnsPerPool   int           `yaml:"max_conns_per_pool" validate:"gte=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int           `yaml:"burst" validate:"gte=0"`
}

// LogConfig selects the CLI log output.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error disabled off none"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Address: DefaultAddress,
		Log:     LogConfig{Level: "warn", Format: "console"},
	}
}

// Load builds a configuration from defaults, the file at path (or
// $TYPEDB_CONFIG when path is empty) and the environment. getenv is
// usually os.Getenv. The result is not validated; callers apply flag
// overrides first and then call Validate.
func Load(path string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Default()
	if path == "" {
		path = getenv(EnvConfig)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		text := interpolate(string(data), getenv)
		if err := yaml.Unmarshal([]byte(text), cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	applyEnv(cfg, getenv)
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolate replaces ${VAR} with its value. Unset variables are left as
// written.
func interpolate(s string, getenv func(string) string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		if v := getenv(m[2 : len(m)-1]); v != "" {
			return v
		}
		return m
	})
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvAddress); v != "" {
		cfg.Address = v
	}
	if v := getenv(EnvUsername); v != "" {
		cfg.Username = v
	}
	if v := getenv(EnvPassword); v != "" {
		cfg.Password = credential.NewSecret(v)
	}
	if v := getenv(EnvDatabase); v != "" {
		cfg.Database = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
}

// Params converts the configuration to connection parameters.
func (c *Config) Params() conn.Params {
	p := conn.Params{Address: c.Address}
	if c.Username != "" || !c.Password.Empty() {
		user, pass := c.Username, c.Password.Reveal()
		p.Username, p.Password = &user, &pass
	}
	if c.Timeout > 0 {
		p.Timeout = c.Timeout
	}
	if len(c.Timeouts) > 0 {
		p.Timeouts = make(map[string]any, len(c.Timeouts))
		for k, v := range c.Timeouts {
			p.Timeouts[k] = v
		}
	}
	return p
}

// TransportOptions overlays the configured knobs on transport defaults.
func (c *Config) TransportOptions() transport.Options {
	o := transport.DefaultOptions()
	t := c.Transport
	if t.MaxRetries != nil {
		o.MaxRetries = *t.MaxRetries
	}
	if t.BackoffFactor > 0 {
		o.BackoffFactor = t.BackoffFactor
	}
	if t.MaxBackoff > 0 {
		o.MaxBackoff = t.MaxBackoff
	}
	if t.PoolSize > 0 {
		o.PoolSize = t.PoolSize
	}
	if t.MaxConnsPerPool > 0 {
		o.MaxConnsPerPool = t.MaxConnsPerPool
	}
	o.RequestsPerSecond = t.RequestsPerSecond
	o.Burst = t.Burst
	return o
}

// String never includes the password.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "address=%s", c.Address)
	if c.Username != "" {
		fmt.Fprintf(&b, " username=%s", c.Username)
	}
	if !c.Password.Empty() {
		b.WriteString(" password=[REDACTED]")
	}
	if c.Database != "" {
		fmt.Fprintf(&b, " database=%s", c.Database)
	}
	return b.String()
}
