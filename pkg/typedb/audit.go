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
	"sync"
	"time"
)

// DefaultAuditLimit is the number of queries kept by default.
const DefaultAuditLimit = 256

// AuditEntry records one executed query. Nothing is persisted.
type AuditEntry struct {
	Time     time.Time
	Database string
	TxType   TxType
	Query    string
	Duration time.Duration
	Err      string
}

type auditLog struct {
	mu    sync.Mutex
	limit int
	buf   []AuditEntry
}

func newAuditLog(limit int) *auditLog {
	return &auditLog{limit: limit}
}

func (l *auditLog) add(e AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, e)
	if over := len(l.buf) - l.limit; over > 0 {
		l.buf = append(l.buf[:0:0], l.buf[over:]...)
	}
}

func (l *auditLog) entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AuditEntry(nil), l.buf...)
}
