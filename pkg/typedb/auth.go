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

package typedb

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/kraklabs/typedb-go/pkg/conn"
	"github.com/kraklabs/typedb-go/pkg/credential"
	"github.com/kraklabs/typedb-go/pkg/errs"
	"github.com/kraklabs/typedb-go/pkg/transport"
)

// authenticator signs in lazily and keeps the token in the guard.
// Concurrent sign-ins collapse into one request.
type authenticator struct {
	cfg    *conn.Config
	sess   *transport.Session
	guard  *credential.Guard
	group  singleflight.Group
	logger zerolog.Logger
}

type signinRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type signinResponse struct {
	Token string `json:"token"`
}

func (a *authenticator) Token(ctx context.Context) (string, error) {
	if !a.cfg.HasCredentials() {
		return "", nil
	}
	if a.guard.Has() {
		if tok, err := a.guard.Current(); err == nil {
			return tok, nil
		}
	}
	return a.signin(ctx)
}

func (a *authenticator) Refresh(ctx context.Context, stale string) (string, error) {
	if !a.cfg.HasCredentials() {
		return "", errs.New(errs.KindAuthentication, "signin", "server requires credentials")
	}
	if a.guard.Has() {
		if tok, err := a.guard.Current(); err == nil && tok != stale {
			return tok, nil
		}
	}
	return a.signin(ctx)
}

func (a *authenticator) signin(ctx context.Context) (string, error) {
	v, err, _ := a.group.Do("signin", func() (any, error) {
		pass := a.cfg.Password()
		defer pass.Zero()
		resp, err := a.sess.Do(ctx, transport.Request{
			Method:    http.MethodPost,
			Path:      "/v1/signin",
			Body:      signinRequest{Username: a.cfg.Username(), Password: pass.Reveal()},
			Class:     conn.ClassRead,
			RetrySafe: true,
			NoAuth:    true,
			Op:        "signin",
		})
		if err != nil {
			if errs.IsConnection(err) {
				return "", err
			}
			return "", errs.Wrap(errs.KindAuthentication, "signin", "sign-in rejected", err)
		}
		var out signinResponse
		if err := resp.Decode(&out); err != nil {
			return "", err
		}
		if out.Token == "" {
			return "", errs.New(errs.KindAuthentication, "signin", "server returned an empty token")
		}
		if _, err := a.guard.Store(out.Token); err != nil {
			return "", err
		}
		a.logger.Debug().Str("user", a.cfg.Username()).Msg("auth.signin")
		return out.Token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
