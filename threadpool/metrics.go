// Copyright 2015 Matthew Holt and The Caddy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package threadpool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes optional Prometheus instrumentation for a Pool. It is
// nil by default; NewMetrics must be called and wired into a Config to
// enable it.
type Metrics struct {
	enqueued   *prometheus.CounterVec
	dequeued   *prometheus.CounterVec
	waitTime   *prometheus.HistogramVec
	promotions prometheus.Counter
	retired    prometheus.Counter
}

// NewMetrics registers the thread pool counters and histogram against reg
// and returns a Metrics ready to pass into Config.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "miniserver",
			Subsystem: "threadpool",
			Name:      "jobs_enqueued_total",
			Help:      "Jobs submitted to the pool, by priority.",
		}, []string{"priority"}),
		dequeued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "miniserver",
			Subsystem: "threadpool",
			Name:      "jobs_dequeued_total",
			Help:      "Jobs picked up by a worker, by priority.",
		}, []string{"priority"}),
		waitTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "miniserver",
			Subsystem: "threadpool",
			Name:      "job_wait_seconds",
			Help:      "Time a job spent queued before a worker picked it up.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"priority"}),
		promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "miniserver",
			Subsystem: "threadpool",
			Name:      "starvation_promotions_total",
			Help:      "Jobs promoted to a higher priority after exceeding the starvation time.",
		}),
		retired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "miniserver",
			Subsystem: "threadpool",
			Name:      "workers_retired_total",
			Help:      "Workers retired after sitting idle past MaxIdleTime.",
		}),
	}
	reg.MustRegister(m.enqueued, m.dequeued, m.waitTime, m.promotions, m.retired)
	return m
}

func (m *Metrics) observeEnqueue(p Priority) {
	m.enqueued.WithLabelValues(p.String()).Inc()
}

func (m *Metrics) observeDequeue(p Priority, waited time.Duration) {
	m.dequeued.WithLabelValues(p.String()).Inc()
	m.waitTime.WithLabelValues(p.String()).Observe(waited.Seconds())
}

func (m *Metrics) observePromotion() { m.promotions.Inc() }
func (m *Metrics) observeRetire()    { m.retired.Inc() }
