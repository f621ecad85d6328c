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

package conn

import (
	"fmt"
	"time"

	"github.com/kraklabs/typedb-go/pkg/credential"
)

// Params is the raw, caller-supplied connection input.
type Params struct {
	Address  string
	Username *string
	Password *string
	// Timeout is the default tier in seconds; nil means DefaultTimeout.
	Timeout any
	// Timeouts overrides Timeout per class ("read", "write", "schema").
	Timeouts map[string]any
}

// Config is a validated, immutable connection configuration.
type Config struct {
	address  string
	username string
	password credential.Secret
	timeout  time.Duration
	timeouts map[Class]time.Duration
}

// Parse validates p and builds a Config.
func Parse(p Params) (*Config, error) {
	addr, err := BaseURL(p.Address)
	if err != nil {
		return nil, err
	}
	user, pass, err := Credentials(p.Username, p.Password)
	if err != nil {
		return nil, err
	}
	def, err := Timeout(p.Timeout)
	if err != nil {
		return nil, err
	}
	tiers, err := Timeouts(p.Timeouts, def)
	if err != nil {
		return nil, err
	}
	return &Config{
		address:  addr,
		username: user,
		password: credential.NewSecret(pass),
		timeout:  def,
		timeouts: tiers,
	}, nil
}

// Address is the normalized base URL.
func (c *Config) Address() string { return c.address }

// Username is empty for anonymous connections.
func (c *Config) Username() string { return c.username }

// Password returns a copy of the password.
func (c *Config) Password() credential.Secret {
	return append(credential.Secret(nil), c.password...)
}

// HasCredentials reports whether a username and password were given.
func (c *Config) HasCredentials() bool { return c.username != "" }

// DefaultTimeout is the tier used when no class override exists.
func (c *Config) DefaultTimeout() time.Duration { return c.timeout }

// TimeoutFor returns the timeout of the given class.
func (c *Config) TimeoutFor(class Class) time.Duration {
	if d, ok := c.timeouts[class]; ok {
		return d
	}
	return c.timeout
}

// Timeouts returns a copy of the per-class tiers.
func (c *Config) Timeouts() map[Class]time.Duration {
	out := make(map[Class]time.Duration, len(c.timeouts))
	for k, v := range c.timeouts {
		out[k] = v
	}
	return out
}

func (c *Config) String() string {
	user := "<anonymous>"
	if c.username != "" {
		user = c.username
	}
	return fmt.Sprintf("conn.Config{address=%s, user=%s, password=%s, timeout=%s}", c.address, user, c.password, c.timeout)
}

// GoString keeps %#v on the redacted form.
func (c *Config) GoString() string { return c.String() }
