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

package entity

import (
	"context"
	"errors"
	"fmt"

	"github.com/kraklabs/typedb-go/pkg/errs"
	"github.com/kraklabs/typedb-go/pkg/typedb"
	"github.com/kraklabs/typedb-go/pkg/typeql"
)

// ErrNotFound is returned when no instance has the requested key or a
// relation's role player is missing.
var ErrNotFound = errors.New("record not found")

// Transactor runs a function inside a managed transaction.
// *typedb.Client implements it.
type Transactor interface {
	WithTransaction(ctx context.Context, db string, typ typedb.TxType, fn func(*typedb.Tx) error) error
}

// Store reads and writes records in one database.
type Store struct {
	client Transactor
	db     string
}

// NewStore returns a store over database db.
func NewStore(client Transactor, db string) (*Store, error) {
	if client == nil {
		return nil, errs.Validation("entity.store", "client is required")
	}
	if err := typedb.ValidateDatabaseName(db); err != nil {
		return nil, err
	}
	return &Store{client: client, db: db}, nil
}

// Database returns the database name.
func (s *Store) Database() string { return s.db }

func (s *Store) read(ctx context.Context, q *typeql.Builder) (*typedb.Answer, error) {
	var ans *typedb.Answer
	err := s.client.WithTransaction(ctx, s.db, typedb.Read, func(tx *typedb.Tx) error {
		var err error
		ans, err = tx.Execute(ctx, q)
		return err
	})
	return ans, err
}

func (s *Store) write(ctx context.Context, qs ...*typeql.Builder) ([]*typedb.Answer, error) {
	out := make([]*typedb.Answer, 0, len(qs))
	err := s.client.WithTransaction(ctx, s.db, typedb.Write, func(tx *typedb.Tx) error {
		for _, q := range qs {
			ans, err := tx.Execute(ctx, q)
			if err != nil {
				return err
			}
			out = append(out, ans)
		}
		return nil
	})
	return out, err
}

// keyed builds an empty record of t carrying only key.
func keyed(t Type, key any) (*Record, error) {
	return t.Record(map[string]any{t.Key: key})
}

// Exists reports whether an instance of t has the given key value.
func (s *Store) Exists(ctx context.Context, t Type, key any) (bool, error) {
	r, err := keyed(t, key)
	if err != nil {
		return false, err
	}
	q, err := r.MatchQuery()
	if err != nil {
		return false, err
	}
	ans, err := s.read(ctx, q.Reduce("count", "count", ""))
	if err != nil {
		return false, err
	}
	n, err := ans.Count("count")
	return n > 0, err
}

// FetchOne loads the record of t with the given key. Attributes the type
// does not declare are ignored; multi-valued attributes keep their first
// value.
func (s *Store) FetchOne(ctx context.Context, t Type, key any) (*Record, error) {
	r, err := keyed(t, key)
	if err != nil {
		return nil, err
	}
	q, err := r.MatchQuery()
	if err != nil {
		return nil, err
	}
	ans, err := s.read(ctx, q.Fetch(recordVar))
	if err != nil {
		return nil, err
	}
	if len(ans.Documents) == 0 {
		return nil, fmt.Errorf("%s %s=%s: %w", t.Name, t.Key, r.Key(), ErrNotFound)
	}
	return fromDocument(t, ans.Documents[0])
}

// FetchAll loads every record of t ordered by key. limit <= 0 means no
// limit.
func (s *Store) FetchAll(ctx context.Context, t Type, limit int) ([]*Record, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	q := typeql.New().Match()
	if t.Key != "" {
		q.Variable(recordVar, t.Name, map[string]typeql.Value{t.Key: typeql.Var("key")}).OrderBy("key", false)
	} else {
		q.Variable(recordVar, t.Name, nil)
	}
	if limit > 0 {
		q.Limit(limit)
	}
	ans, err := s.read(ctx, q.Fetch(recordVar))
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(ans.Documents))
	for _, doc := range ans.Documents {
		r, err := fromDocument(t, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func fromDocument(t Type, doc map[string]any) (*Record, error) {
	attrs, _ := doc[recordVar].(map[string]any)
	vals := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if !t.HasAttribute(k) {
			continue
		}
		if list, ok := v.([]any); ok {
			if len(list) == 0 {
				continue
			}
			v = list[0]
		}
		vals[k] = v
	}
	return t.Record(vals)
}

// Insert writes r as a new instance.
func (s *Store) Insert(ctx context.Context, r *Record) error {
	q, err := r.InsertQuery()
	if err != nil {
		return err
	}
	_, err = s.write(ctx, q)
	return err
}

// Put inserts r or, when an instance with its key exists, replaces that
// instance's other attributes with r's. Null attributes are removed.
// Putting the same record twice leaves one instance.
func (s *Store) Put(ctx context.Context, r *Record) error {
	if r.Type.Relation {
		return errs.Validation("entity.put", "put is not supported for relation %s", r.Type.Name)
	}
	put, err := r.PutQuery()
	if err != nil {
		return err
	}
	update, err := r.updateQueries()
	if err != nil {
		return err
	}
	match, _ := r.MatchQuery()
	return s.client.WithTransaction(ctx, s.db, typedb.Write, func(tx *typedb.Tx) error {
		ans, err := tx.Execute(ctx, match.Reduce("count", "count", ""))
		if err != nil {
			return err
		}
		n, err := ans.Count("count")
		if err != nil {
			return err
		}
		if n == 0 {
			_, err := tx.Execute(ctx, put)
			return err
		}
		for _, q := range update {
			if _, err := tx.Execute(ctx, q); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes the instance with r's key. Deleting a missing record is
// not an error.
func (s *Store) Delete(ctx context.Context, r *Record) error {
	q, err := r.DeleteQuery()
	if err != nil {
		return err
	}
	_, err = s.write(ctx, q)
	return err
}

// InsertRelation inserts rel with the given role players, each matched by
// its key. A missing player fails with ErrNotFound and nothing is written.
func (s *Store) InsertRelation(ctx context.Context, rel *Record, players map[string]*Record) error {
	if err := rel.Type.Validate(); err != nil {
		return err
	}
	if !rel.Type.Relation {
		return errs.Validation("entity.relation", "%s is not a relation type", rel.Type.Name)
	}
	if len(players) == 0 {
		return errs.Validation("entity.relation", "%s needs at least one role player", rel.Type.Name)
	}
	b := typeql.New().Insert()
	bound := &Record{Type: rel.Type, Attrs: rel.Attrs, Players: make(map[string]string, len(players))}
	for role := range players {
		if !rel.Type.HasRole(role) {
			return errs.Validation("entity.relation", "%s has no role %s", rel.Type.Name, role)
		}
	}
	for i, role := range rel.Type.Roles {
		p, ok := players[role]
		if !ok {
			continue
		}
		key, err := p.keyAttrs()
		if err != nil {
			return err
		}
		v := fmt.Sprintf("p%d", i)
		b.Bind(v, p.Type.Name, key)
		bound.Players[role] = v
	}
	if err := bound.addTo(b); err != nil {
		return err
	}
	return s.client.WithTransaction(ctx, s.db, typedb.Write, func(tx *typedb.Tx) error {
		ans, err := tx.Execute(ctx, b)
		if err != nil {
			return err
		}
		if ans.Len() == 0 {
			return fmt.Errorf("%s role player: %w", rel.Type.Name, ErrNotFound)
		}
		return nil
	})
}
