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

// Package credential keeps a bearer token encrypted in process memory.
//
// A Guard owns a random XChaCha20-Poly1305 key generated at construction.
// Store seals a token into an opaque Sealed blob; Retrieve opens it again.
// Rotating the key invalidates every blob sealed under the previous key.
// Every operation is appended to an access log.
//
// Sealed layout:
//
//	keyID (4 bytes, big endian) || nonce (24 bytes) || ciphertext+tag
//
// The key id is authenticated as additional data.
package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/kraklabs/typedb-go/pkg/errs"
)

const (
	keyIDSize       = 4
	headerSize      = keyIDSize + chacha20poly1305.NonceSizeX
	minSealedSize   = headerSize + chacha20poly1305.Overhead
	defaultLogLimit = 1024
)

// Action is an access log verb.
type Action string

const (
	ActionStore    Action = "store"
	ActionRetrieve Action = "retrieve"
	ActionClear    Action = "clear"
	ActionRotate   Action = "rotate"
)

// AccessEntry is one access log record.
type AccessEntry struct {
	Action Action
	Time   time.Time
	OK     bool
}

// Sealed is an encrypted token. It is safe to print.
type Sealed []byte

func (s Sealed) String() string {
	if len(s) < keyIDSize {
		return "sealed(invalid)"
	}
	return fmt.Sprintf("sealed(key=%d, %d bytes)", binary.BigEndian.Uint32(s), len(s))
}

// KeyMaterial describes the active key without exposing it.
type KeyMaterial struct {
	ID          uint32
	Fingerprint string
}

func (k KeyMaterial) String() string {
	return fmt.Sprintf("key#%d(%s)", k.ID, k.Fingerprint)
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock sets the clock used for access log timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithLogLimit bounds the access log. Oldest entries are dropped first.
func WithLogLimit(n int) Option {
	return func(g *Guard) {
		if n > 0 {
			g.logLimit = n
		}
	}
}

// WithRandom replaces the entropy source.
func WithRandom(r io.Reader) Option {
	return func(g *Guard) { g.rand = r }
}

// Guard holds one bearer credential. It is safe for concurrent use.
type Guard struct {
	mu       sync.Mutex
	key      []byte
	keyID    uint32
	current  Sealed
	log      []AccessEntry
	logLimit int
	now      func() time.Time
	rand     io.Reader
}

// NewGuard generates a fresh key.
func NewGuard(opts ...Option) (*Guard, error) {
	g := &Guard{
		logLimit: defaultLogLimit,
		now:      time.Now,
		rand:     rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	key, err := g.newKey()
	if err != nil {
		return nil, err
	}
	g.key = key
	g.keyID = 1
	return g, nil
}

func (g *Guard) newKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(g.rand, key); err != nil {
		return nil, errs.Wrap(errs.KindAuthentication, "credential.key", "generate key", err)
	}
	return key, nil
}

// Store seals token and keeps the blob as the current credential.
func (g *Guard) Store(token string) (Sealed, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if token == "" {
		g.record(ActionStore, false)
		return nil, errs.Validation("credential.store", "token is empty")
	}
	if g.key == nil {
		key, err := g.newKey()
		if err != nil {
			g.record(ActionStore, false)
			return nil, err
		}
		g.key = key
		g.keyID++
	}
	sealed, err := g.seal([]byte(token))
	if err != nil {
		g.record(ActionStore, false)
		return nil, err
	}
	wipe(g.current)
	g.current = append(Sealed(nil), sealed...)
	g.record(ActionStore, true)
	return sealed, nil
}

func (g *Guard) seal(plain []byte) (Sealed, error) {
	aead, err := chacha20poly1305.NewX(g.key)
	if err != nil {
		return nil, errs.Wrap(errs.KindAuthentication, "credential.store", "init cipher", err)
	}
	out := make([]byte, headerSize, headerSize+len(plain)+chacha20poly1305.Overhead)
	binary.BigEndian.PutUint32(out, g.keyID)
	if _, err := io.ReadFull(g.rand, out[keyIDSize:headerSize]); err != nil {
		return nil, errs.Wrap(errs.KindAuthentication, "credential.store", "generate nonce", err)
	}
	out = aead.Seal(out, out[keyIDSize:headerSize], plain, out[:keyIDSize])
	return Sealed(out), nil
}

// Retrieve decrypts a blob produced by Store under the current key.
func (g *Guard) Retrieve(s Sealed) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	tok, err := g.open(s)
	g.record(ActionRetrieve, err == nil)
	return tok, err
}

// Current decrypts the most recently stored credential.
func (g *Guard) Current() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.current) == 0 {
		g.record(ActionRetrieve, false)
		return "", errs.New(errs.KindAuthentication, "credential.retrieve", "no credential stored")
	}
	tok, err := g.open(g.current)
	g.record(ActionRetrieve, err == nil)
	return tok, err
}

func (g *Guard) open(s Sealed) (string, error) {
	const op = "credential.retrieve"
	if g.key == nil {
		return "", errs.New(errs.KindAuthentication, op, "guard is cleared")
	}
	if len(s) < minSealedSize {
		return "", errs.New(errs.KindAuthentication, op, "malformed credential blob")
	}
	if binary.BigEndian.Uint32(s) != g.keyID {
		return "", errs.New(errs.KindAuthentication, op, "credential sealed under a different key")
	}
	aead, err := chacha20poly1305.NewX(g.key)
	if err != nil {
		return "", errs.Wrap(errs.KindAuthentication, op, "init cipher", err)
	}
	plain, err := aead.Open(nil, s[keyIDSize:headerSize], s[headerSize:], s[:keyIDSize])
	if err != nil {
		return "", errs.New(errs.KindAuthentication, op, "credential could not be decrypted")
	}
	tok := string(plain)
	wipe(plain)
	return tok, nil
}

// Has reports whether a credential is stored.
func (g *Guard) Has() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.current) > 0
}

// Clear zeroes the stored credential and the key. A later Store generates
// a new key.
func (g *Guard) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	wipe(g.current)
	g.current = nil
	wipe(g.key)
	g.key = nil
	g.record(ActionClear, true)
}

// RotateKey replaces the key. Blobs sealed earlier no longer open, the
// current credential included; callers must Store again.
func (g *Guard) RotateKey() (KeyMaterial, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key, err := g.newKey()
	if err != nil {
		g.record(ActionRotate, false)
		return KeyMaterial{}, err
	}
	wipe(g.key)
	wipe(g.current)
	g.current = nil
	g.key = key
	g.keyID++
	g.record(ActionRotate, true)
	return g.material(), nil
}

func (g *Guard) material() KeyMaterial {
	sum := sha256.Sum256(g.key)
	return KeyMaterial{ID: g.keyID, Fingerprint: hex.EncodeToString(sum[:6])}
}

// AccessLog returns a copy of the log, oldest first.
func (g *Guard) AccessLog() []AccessEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]AccessEntry(nil), g.log...)
}

func (g *Guard) record(a Action, ok bool) {
	if len(g.log) >= g.logLimit {
		n := copy(g.log, g.log[1:])
		g.log = g.log[:n]
	}
	g.log = append(g.log, AccessEntry{Action: a, Time: g.now(), OK: ok})
}

func (g *Guard) String() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fmt.Sprintf("credential.Guard{key=#%d, stored=%t, log=%d}", g.keyID, len(g.current) > 0, len(g.log))
}

func (g *Guard) GoString() string { return g.String() }

// Format keeps %+v and %#v from walking the struct fields.
func (g *Guard) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, g.String())
}
