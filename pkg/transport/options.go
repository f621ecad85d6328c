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

package transport

import (
	"math"
	"time"
)

// Options tunes the session. Start from DefaultOptions; zero pool sizes,
// factor and cap fall back to the defaults, a negative MaxRetries means 0.
type Options struct {
	// PoolSize bounds idle connections kept across hosts.
	PoolSize int `yaml:"pool_size"`
	// MaxConnsPerPool bounds connections to the server.
	MaxConnsPerPool int `yaml:"max_conns_per_pool"`
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `yaml:"max_retries"`
	// BackoffFactor in seconds; retry n waits factor * 2^n.
	BackoffFactor float64 `yaml:"backoff_factor"`
	// MaxBackoff caps a single wait.
	MaxBackoff time.Duration `yaml:"max_backoff"`
	// RequestsPerSecond enables client-side rate limiting when > 0.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	UserAgent         string  `yaml:"user_agent"`
}

const (
	DefaultPoolSize        = 10
	DefaultMaxConnsPerPool = 10
	DefaultMaxRetries      = 3
	DefaultBackoffFactor   = 0.5
	DefaultMaxBackoff      = 30 * time.Second
	DefaultUserAgent       = "typedb-go"
)

// DefaultOptions returns the stock settings.
func DefaultOptions() Options {
	return Options{
		PoolSize:        DefaultPoolSize,
		MaxConnsPerPool: DefaultMaxConnsPerPool,
		MaxRetries:      DefaultMaxRetries,
		BackoffFactor:   DefaultBackoffFactor,
		MaxBackoff:      DefaultMaxBackoff,
		UserAgent:       DefaultUserAgent,
	}
}

func (o Options) normalize() Options {
	if o.PoolSize <= 0 {
		o.PoolSize = DefaultPoolSize
	}
	if o.MaxConnsPerPool <= 0 {
		o.MaxConnsPerPool = DefaultMaxConnsPerPool
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BackoffFactor <= 0 || math.IsNaN(o.BackoffFactor) {
		o.BackoffFactor = DefaultBackoffFactor
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.Burst <= 0 {
		o.Burst = int(math.Max(1, math.Ceil(o.RequestsPerSecond)))
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	return o
}

// Backoff is the wait before retry number n (0-based).
func (o Options) Backoff(n int) time.Duration {
	secs := o.BackoffFactor * math.Pow(2, float64(n))
	d := time.Duration(secs * float64(time.Second))
	if d > o.MaxBackoff || d < 0 || math.IsInf(secs, 0) {
		return o.MaxBackoff
	}
	return d
}
