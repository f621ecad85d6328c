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

// Package conn validates and normalizes connection parameters.
//
// Every function is pure and returns an errs.KindValidation error naming the
// offending field. Nothing here touches the network.
package conn

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kraklabs/typedb-go/pkg/errs"
)

const (
	// DefaultTimeout applies when no timeout is configured.
	DefaultTimeout = 30 * time.Second
	// MaxTimeoutSeconds is the hard ceiling for any timeout.
	MaxTimeoutSeconds = 300

	defaultScheme = "http"
)

// Class selects a timeout tier.
type Class string

const (
	ClassRead   Class = "read"
	ClassWrite  Class = "write"
	ClassSchema Class = "schema"
)

// Classes lists every operation class in a stable order.
var Classes = []Class{ClassRead, ClassWrite, ClassSchema}

// ParseClass accepts the lower case class name.
func ParseClass(s string) (Class, error) {
	c := Class(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Classes {
		if c == known {
			return c, nil
		}
	}
	return "", errs.Validation("conn.class", "unknown operation class %q (want one of %s)", s, classList())
}

func classList() string {
	names := make([]string, len(Classes))
	for i, c := range Classes {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

// BaseURL normalizes a server address. A missing scheme becomes http and a
// trailing slash is removed.
//
//	BaseURL("localhost:8000")        // "http://localhost:8000"
//	BaseURL("https://db.example/")   // "https://db.example"
func BaseURL(raw string) (string, error) {
	const op = "conn.address"
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errs.Validation(op, "address is empty")
	}
	if !strings.Contains(s, "://") {
		s = defaultScheme + "://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", errs.Wrap(errs.KindValidation, op, fmt.Sprintf("address %q is not a valid URL", raw), err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", errs.Validation(op, "address %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.User != nil {
		return "", errs.Validation(op, "address %q must not embed credentials", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", errs.Validation(op, "address %q must not carry a query or fragment", raw)
	}
	host := u.Hostname()
	if host == "" {
		return "", errs.Validation(op, "address %q has no host", raw)
	}
	if strings.ContainsAny(host, " \t") {
		return "", errs.Validation(op, "address %q has an invalid host", raw)
	}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 65535 {
			return "", errs.Validation(op, "address %q has an invalid port", raw)
		}
	} else if strings.HasSuffix(u.Host, ":") {
		return "", errs.Validation(op, "address %q has an empty port", raw)
	}

	return scheme + "://" + u.Host + strings.TrimRight(u.EscapedPath(), "/"), nil
}

// Credentials checks that username and password are both set or both nil.
func Credentials(username, password *string) (string, string, error) {
	const op = "conn.credentials"
	switch {
	case username == nil && password == nil:
		return "", "", nil
	case username == nil:
		return "", "", errs.Validation(op, "password given without username")
	case password == nil:
		return "", "", errs.Validation(op, "username given without password")
	}
	if strings.TrimSpace(*username) == "" {
		return "", "", errs.Validation(op, "username is empty")
	}
	if *password == "" {
		return "", "", errs.Validation(op, "password is empty")
	}
	return *username, *password, nil
}

// Timeout coerces v to a whole number of seconds in [1, MaxTimeoutSeconds].
// nil yields DefaultTimeout. Integers, integral floats, numeric strings and
// whole-second time.Durations are accepted.
func Timeout(v any) (time.Duration, error) {
	const op = "conn.timeout"
	if v == nil {
		return DefaultTimeout, nil
	}
	var n int64
	switch x := v.(type) {
	case time.Duration:
		if x%time.Second != 0 {
			return 0, errs.Validation(op, "timeout %s is not a whole number of seconds", x)
		}
		n = int64(x / time.Second)
	case bool:
		return 0, errs.Validation(op, "timeout must be a number, got bool")
	case string:
		s := strings.TrimSpace(x)
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil {
				return 0, errs.Validation(op, "timeout %q is not a number", x)
			}
			return Timeout(f)
		}
		n = i
	case float32:
		return Timeout(float64(x))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) {
			return 0, errs.Validation(op, "timeout %v is not a whole number", x)
		}
		if x > math.MaxInt32 || x < math.MinInt32 {
			return 0, errs.Validation(op, "timeout %v out of range 1..%d", x, MaxTimeoutSeconds)
		}
		n = int64(x)
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			n = rv.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			u := rv.Uint()
			if u > MaxTimeoutSeconds {
				return 0, errs.Validation(op, "timeout %d out of range 1..%d", u, MaxTimeoutSeconds)
			}
			n = int64(u)
		default:
			return 0, errs.Validation(op, "timeout must be a number, got %T", v)
		}
	}
	if n < 1 || n > MaxTimeoutSeconds {
		return 0, errs.Validation(op, "timeout %d out of range 1..%d", n, MaxTimeoutSeconds)
	}
	return time.Duration(n) * time.Second, nil
}

// Timeouts validates per-class overrides. Unknown keys are rejected and
// missing classes get def.
func Timeouts(m map[string]any, def time.Duration) (map[Class]time.Duration, error) {
	out := make(map[Class]time.Duration, len(Classes))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c, err := ParseClass(k)
		if err != nil {
			return nil, errs.Validation("conn.timeouts", "unknown timeout class %q (want one of %s)", k, classList())
		}
		if m[k] == nil {
			out[c] = def
			continue
		}
		d, err := Timeout(m[k])
		if err != nil {
			var e *errs.Error
			if errors.As(err, &e) {
				e.Op = "conn.timeouts." + string(c)
			}
			return nil, err
		}
		out[c] = d
	}
	for _, c := range Classes {
		if _, ok := out[c]; !ok {
			out[c] = def
		}
	}
	return out, nil
}
