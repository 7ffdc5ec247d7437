// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flasher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks flash activity. A nil *Metrics records nothing.
type Metrics struct {
	started  prometheus.Counter
	finished *prometheus.CounterVec
	duration prometheus.Histogram
	rejected prometheus.Counter
	busy     prometheus.Gauge
}

// NewMetrics registers the flash collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		started: f.NewCounter(prometheus.CounterOpts{
			Name: "provisioner_flash_started_total",
			Help: "Flash sessions accepted.",
		}),
		finished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "provisioner_flash_finished_total",
			Help: "Flash sessions finished, by result.",
		}, []string{"result"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "provisioner_flash_duration_seconds",
			Help:    "Wall time of finished flash sessions.",
			Buckets: []float64{5, 15, 30, 60, 90, 120, 180, 300, 600},
		}),
		rejected: f.NewCounter(prometheus.CounterOpts{
			Name: "provisioner_flash_rejected_total",
			Help: "Start requests rejected because a flash was already running.",
		}),
		busy: f.NewGauge(prometheus.GaugeOpts{
			Name: "provisioner_flash_busy",
			Help: "1 while a flash is running.",
		}),
	}
}

func (m *Metrics) onStart() {
	if m == nil {
		return
	}
	m.started.Inc()
	m.busy.Set(1)
}

func (m *Metrics) onReject() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

func (m *Metrics) onFinish(code StatusCode, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.finished.WithLabelValues(string(code)).Inc()
	m.duration.Observe(elapsed.Seconds())
	m.busy.Set(0)
}
