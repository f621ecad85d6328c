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
	"sort"
	"strings"
	"time"

	"github.com/kraklabs/typedb-go/pkg/errs"
	"github.com/kraklabs/typedb-go/pkg/schema"
	"github.com/kraklabs/typedb-go/pkg/typeql"
)

// WipeStep reports progress after one type has been cleared.
type WipeStep struct {
	Index   int
	Total   int
	Type    string
	Deleted int64
}

// WipeOptions tunes Wipe.
type WipeOptions struct {
	// Progress is called after each type.
	Progress func(WipeStep)
	// Verify counts the remaining instances of every type after commit.
	Verify bool
	// IncludeAttributes also deletes attribute instances.
	IncludeAttributes bool
}

// WipeReport describes a completed wipe.
type WipeReport struct {
	Order     []string
	Cycles    []schema.Cycle
	Deleted   map[string]int64
	Remaining map[string]int64
	Took      time.Duration
}

// Total is the number of deleted instances.
func (r *WipeReport) Total() int64 {
	var n int64
	for _, d := range r.Deleted {
		n += d
	}
	return n
}

// Wipe deletes every instance in db and keeps the schema. Types come from
// the live schema; relations are deleted before the types that play their
// roles, all in one write transaction.
func (c *Client) Wipe(ctx context.Context, db string, opts WipeOptions) (*WipeReport, error) {
	start := time.Now()
	g, err := c.TypeSchema(ctx, db)
	if err != nil {
		return nil, err
	}
	order, cycles := g.DeletionOrder()
	for _, cy := range cycles {
		c.logger.Warn().
			Str("db", db).
			Strs("types", cy.Types).
			Str("broken_at", cy.Broken).
			Msg("wipe.cycle")
	}
	if opts.IncludeAttributes {
		order = append(order, g.ConcreteAttributes()...)
	}

	report := &WipeReport{
		Order:   order,
		Cycles:  cycles,
		Deleted: make(map[string]int64, len(order)),
	}
	err = c.WithTransaction(ctx, db, Write, func(tx *Tx) error {
		for i, typ := range order {
			n, err := countOf(ctx, tx, typ, true)
			if err != nil {
				return err
			}
			if n > 0 {
				del := typeql.New().Delete().Where("$x isa! " + typ).DeleteVar("x")
				if _, err := tx.Execute(ctx, del); err != nil {
					return err
				}
			}
			report.Deleted[typ] = n
			c.logger.Debug().Str("db", db).Str("type", typ).Int64("deleted", n).Msg("wipe.type")
			if opts.Progress != nil {
				opts.Progress(WipeStep{Index: i + 1, Total: len(order), Type: typ, Deleted: n})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if opts.Verify {
		report.Remaining, err = c.countAll(ctx, db, order)
		if err != nil {
			return report, err
		}
		var left []string
		for _, typ := range order {
			if report.Remaining[typ] > 0 {
				left = append(left, typ)
			}
		}
		if len(left) > 0 {
			sort.Strings(left)
			return report, errs.Newf(errs.KindServer, "wipe.verify", "instances remain after wipe: %s", strings.Join(left, ", "))
		}
	}
	report.Took = time.Since(start)
	c.logger.Info().Str("db", db).Int64("deleted", report.Total()).Dur("took", report.Took).Msg("wipe.done")
	return report, nil
}

// countOf counts instances of typ; exact excludes subtypes.
func countOf(ctx context.Context, tx *Tx, typ string, exact bool) (int64, error) {
	q := typeql.New().Match()
	if exact {
		q.Where("$x isa! " + typ)
	} else {
		q.Variable("x", typ, nil)
	}
	ans, err := tx.Execute(ctx, q.Reduce("count", "count", ""))
	if err != nil {
		return 0, err
	}
	return ans.Count("count")
}

// CountInstances counts instances of each type, subtypes included, in one
// read transaction.
func (c *Client) CountInstances(ctx context.Context, db string, types ...string) (map[string]int64, error) {
	return c.countAll(ctx, db, types)
}

func (c *Client) countAll(ctx context.Context, db string, types []string) (map[string]int64, error) {
	out := make(map[string]int64, len(types))
	err := c.WithTransaction(ctx, db, Read, func(tx *Tx) error {
		for _, typ := range types {
			n, err := countOf(ctx, tx, typ, false)
			if err != nil {
				return err
			}
			out[typ] = n
		}
		return nil
	})
	return out, err
}
