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
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsTransport holds Prometheus metrics shared by every session.
type metricsTransport struct {
	once sync.Once

	requests *prometheus.CounterVec
	retries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	reauth   prometheus.Counter
}

var trMetrics metricsTransport

func (m *metricsTransport) init() {
	m.once.Do(func() {
		m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "typedb_client_requests_total",
			Help: "HTTP requests sent to the TypeDB server by operation class and status code",
		}, []string{"class", "code"})
		m.retries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "typedb_client_retries_total",
			Help: "Retried requests by operation class",
		}, []string{"class"})
		m.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "typedb_client_request_seconds",
			Help:    "Latency of single request attempts",
			Buckets: prometheus.DefBuckets,
		}, []string{"class"})
		m.reauth = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "typedb_client_reauth_total",
			Help: "Re-authentications triggered by 401 responses",
		})
		prometheus.MustRegister(m.requests, m.retries, m.duration, m.reauth)
	})
}

func recordAttempt(class string, status int, took time.Duration) {
	trMetrics.init()
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	trMetrics.requests.WithLabelValues(class, code).Inc()
	trMetrics.duration.WithLabelValues(class).Observe(took.Seconds())
}

func recordRetry(class string) {
	trMetrics.init()
	trMetrics.retries.WithLabelValues(class).Inc()
}

func recordReauth() {
	trMetrics.init()
	trMetrics.reauth.Inc()
}
