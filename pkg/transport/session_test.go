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
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/typedb-go/pkg/conn"
	"github.com/kraklabs/typedb-go/pkg/errs"
)

type fakeAuth struct {
	mu       sync.Mutex
	token    string
	refresh  string
	refreshN int
	err      error
}

func (a *fakeAuth) Token(context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token, a.err
}

func (a *fakeAuth) Refresh(_ context.Context, stale string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshN++
	if a.refresh == "" {
		return "", errs.New(errs.KindAuthentication, "signin", "rejected")
	}
	a.token = a.refresh
	return a.token, nil
}

// sleepRecorder captures backoff delays without waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func newSession(t *testing.T, url string, auth Authenticator, opts Options) (*Session, *sleepRecorder) {
	t.Helper()
	cfg, err := conn.Parse(conn.Params{Address: url, Timeout: 5})
	require.NoError(t, err)
	s := New(cfg, auth, opts, zerolog.Nop())
	rec := &sleepRecorder{}
	s.SetSleep(rec.sleep)
	t.Cleanup(s.Close)
	return s, rec
}

func TestOptions_Defaults(t *testing.T) {
	o := DefaultOptions()
	assert.Equal(t, 10, o.PoolSize)
	assert.Equal(t, 10, o.MaxConnsPerPool)
	assert.Equal(t, 3, o.MaxRetries)
	assert.Equal(t, 0.5, o.BackoffFactor)

	n := Options{MaxRetries: -1}.normalize()
	assert.Equal(t, 0, n.MaxRetries)
	assert.Equal(t, DefaultPoolSize, n.PoolSize)
	assert.Equal(t, 1, n.Burst)
}

func TestOptions_Backoff(t *testing.T) {
	o := DefaultOptions()
	assert.Equal(t, 500*time.Millisecond, o.Backoff(0))
	assert.Equal(t, time.Second, o.Backoff(1))
	assert.Equal(t, 2*time.Second, o.Backoff(2))
	assert.Equal(t, o.MaxBackoff, o.Backoff(20))
	assert.Equal(t, o.MaxBackoff, o.Backoff(5000))
}

// TestSession_Success tests headers and JSON round trip on a 200.
func TestSession_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["msg"])
		_, _ = w.Write([]byte(`{"echo":"hello","extra":{"ignored":true}}`))
	}))
	defer srv.Close()

	s, _ := newSession(t, srv.URL, &fakeAuth{token: "tok-1"}, DefaultOptions())
	resp, err := s.Do(context.Background(), Request{
		Method: http.MethodPost, Path: "/v1/echo", Body: map[string]string{"msg": "hello"}, Class: conn.ClassWrite,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Attempts)

	var out struct {
		Echo string `json:"echo"`
	}
	require.NoError(t, resp.Decode(&out))
	assert.Equal(t, "hello", out.Echo)
}

// TestSession_RetryExhaustion tests that a persistent transient failure is
// retried exactly MaxRetries times before a ConnectionError.
func TestSession_RetryExhaustion(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"code":"SRV01","message":"overloaded"}`))
	}))
	defer srv.Close()

	for _, maxRetries := range []int{0, 1, 3, 5} {
		hits.Store(0)
		opts := DefaultOptions()
		opts.MaxRetries = maxRetries
		s, rec := newSession(t, srv.URL, nil, opts)

		_, err := s.Do(context.Background(), Request{Method: http.MethodGet, Path: "/v1/databases", Op: "databases.list"})
		require.Error(t, err)

		var e *errs.Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, errs.KindConnection, e.Kind)
		assert.Equal(t, maxRetries, e.RetryCount)
		assert.Equal(t, maxRetries+1, e.Attempts)
		assert.Equal(t, http.StatusServiceUnavailable, e.Status)
		assert.Equal(t, "databases.list", e.Op)
		assert.Equal(t, int32(maxRetries+1), hits.Load())

		var cause *errs.Error
		require.True(t, errors.As(e.Cause, &cause))
		assert.Equal(t, "SRV01", cause.Code)
		assert.Equal(t, errs.KindServer, cause.Kind)

		require.Len(t, rec.delays, maxRetries)
		for i, d := range rec.delays {
			assert.Equal(t, opts.Backoff(i), d)
		}
	}
}

func TestSession_RetryThenSucceed(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	s, rec := newSession(t, srv.URL, nil, DefaultOptions())
	resp, err := s.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Attempts)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, rec.delays)
}

// TestSession_UnsafeWriteNotRetried tests that an ambiguous write fails
// without a replay.
func TestSession_UnsafeWriteNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, _ := newSession(t, srv.URL, nil, DefaultOptions())
	_, err := s.Do(context.Background(), Request{Method: http.MethodPost, Path: "/v1/transactions/1/query", Body: map[string]string{}})
	require.Error(t, err)
	assert.True(t, errs.IsServer(err), "got %v", err)
	assert.Equal(t, int32(1), hits.Load())

	hits.Store(0)
	_, err = s.Do(context.Background(), Request{Method: http.MethodPost, Path: "/v1/transactions/open", RetrySafe: true})
	assert.True(t, errs.IsConnection(err))
	assert.Equal(t, int32(4), hits.Load())
}

func TestSession_DialErrorRetried(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	opts := DefaultOptions()
	opts.MaxRetries = 2
	s, rec := newSession(t, "http://"+addr, nil, opts)

	_, err = s.Do(context.Background(), Request{Method: http.MethodPost, Path: "/v1/query", Body: map[string]string{}})
	require.Error(t, err)
	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errs.KindConnection, e.Kind)
	assert.Equal(t, 2, e.RetryCount)
	assert.Len(t, rec.delays, 2)
}

// TestSession_Reauth tests the single re-authentication on 401.
func TestSession_Reauth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"AUT01","message":"token expired"}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	auth := &fakeAuth{token: "stale", refresh: "fresh"}
	s, _ := newSession(t, srv.URL, auth, DefaultOptions())
	resp, err := s.Do(context.Background(), Request{Method: http.MethodGet, Path: "/v1/databases"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Attempts)
	assert.Equal(t, 1, auth.refreshN)
}

func TestSession_ReauthOnlyOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	auth := &fakeAuth{token: "a", refresh: "b"}
	s, _ := newSession(t, srv.URL, auth, DefaultOptions())
	_, err := s.Do(context.Background(), Request{Method: http.MethodGet, Path: "/v1/databases"})
	require.Error(t, err)
	assert.True(t, errs.IsAuthentication(err))
	assert.Equal(t, 1, auth.refreshN)
	assert.Equal(t, int32(2), hits.Load())
}

func TestSession_RefreshFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s, _ := newSession(t, srv.URL, &fakeAuth{token: "a"}, DefaultOptions())
	_, err := s.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	assert.True(t, errs.IsAuthentication(err))
}

func TestSession_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   errs.Kind
	}{
		{http.StatusBadRequest, errs.KindQuery},
		{http.StatusNotFound, errs.KindQuery},
		{http.StatusConflict, errs.KindQuery},
		{http.StatusForbidden, errs.KindAuthentication},
		{http.StatusNotImplemented, errs.KindServer},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("plain text reason"))
			}))
			defer srv.Close()

			s, rec := newSession(t, srv.URL, nil, DefaultOptions())
			_, err := s.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
			var e *errs.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.status, e.Status)
			assert.Equal(t, "plain text reason", e.Message)
			assert.Empty(t, rec.delays)
		})
	}
}

func TestSession_TimeoutTier(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg, err := conn.Parse(conn.Params{Address: srv.URL, Timeouts: map[string]any{"write": 1}})
	require.NoError(t, err)
	s := New(cfg, nil, DefaultOptions(), zerolog.Nop())
	defer s.Close()

	start := time.Now()
	_, err = s.Do(context.Background(), Request{Method: http.MethodPost, Path: "/slow", Class: conn.ClassWrite, Body: "x"})
	require.Error(t, err)
	assert.True(t, errs.IsConnection(err))
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestSession_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, _ := newSession(t, srv.URL, nil, DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	s.SetSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	})
	_, err := s.Do(ctx, Request{Method: http.MethodGet, Path: "/"})
	require.Error(t, err)
	assert.True(t, errs.IsConnection(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSession_Closed(t *testing.T) {
	s, _ := newSession(t, "localhost:1", nil, DefaultOptions())
	s.Close()
	s.Close()
	_, err := s.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	assert.True(t, errs.IsConnection(err))
}

func TestSession_TokenError(t *testing.T) {
	s, _ := newSession(t, "localhost:1", &fakeAuth{err: errs.New(errs.KindAuthentication, "signin", "bad password")}, DefaultOptions())
	_, err := s.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	assert.True(t, errs.IsAuthentication(err))
}

func TestSession_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	opts := DefaultOptions()
	opts.RequestsPerSecond = 20
	opts.Burst = 1
	s, _ := newSession(t, srv.URL, nil, opts)

	start := time.Now()
	for i := 0; i < 5; i++ {
		_, err := s.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

// TestSession_Concurrent tests that one session serves many goroutines.
func TestSession_Concurrent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s, _ := newSession(t, srv.URL, &fakeAuth{token: "t"}, DefaultOptions())
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			_, err := s.Do(ctx, Request{Method: http.MethodGet, Path: "/v1/databases"})
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(50), hits.Load())
}
