// Package stats wires kelpie's ambient metrics onto
// prometheus/client_golang: op counts by kind and outcome, LocalKV row
// counts, and backburner queue depth, the way the teacher's own stats
// package publishes collectors for its core subsystems.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sandialabs/faodel-sub003/cmn"
)

// Registry holds every collector kelpie registers, bound to a private
// prometheus.Registry rather than the global DefaultRegisterer so a
// process can run more than one kelpie node (e.g. in tests) without
// colliding metric names.
type Registry struct {
	reg *prometheus.Registry

	opsTotal        *prometheus.CounterVec
	opErrors        *prometheus.CounterVec
	lkvRows         prometheus.Gauge
	queueDepth      prometheus.Gauge
	driveWriteBytes prometheus.Counter
}

// NewRegistry builds and registers all of kelpie's collectors under
// namespace (typically "kelpie").
func NewRegistry(namespace string) *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	s := &Registry{
		reg: reg,
		opsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ops",
			Name:      "total",
			Help:      "Total ops processed, by op kind.",
		}, []string{"op"}),
		opErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ops",
			Name:      "errors_total",
			Help:      "Total ops that completed with a non-OK return code, by op kind and rc.",
		}, []string{"op", "rc"}),
		lkvRows: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "localkv",
			Name:      "rows",
			Help:      "Current number of (bucket,row) entries held in LocalKV.",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backburner",
			Name:      "queue_depth",
			Help:      "Current depth of the backburner work queue.",
		}),
		driveWriteBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "iom",
			Name:      "drive_write_bytes_total",
			Help:      "Bytes written to the host drive backing the embedded bunt IOM driver, when available.",
		}),
	}
	return s
}

// ObserveOp records that an op of the given kind completed with rc.
func (s *Registry) ObserveOp(opKind string, rc cmn.RC) {
	s.opsTotal.WithLabelValues(opKind).Inc()
	if rc != cmn.RCOk {
		s.opErrors.WithLabelValues(opKind, rc.String()).Inc()
	}
}

// SetLKVRows reports LocalKV's current row count.
func (s *Registry) SetLKVRows(n int) { s.lkvRows.Set(float64(n)) }

// SetQueueDepth reports the backburner's current queue depth.
func (s *Registry) SetQueueDepth(n int) { s.queueDepth.Set(float64(n)) }

// Handler returns an http.Handler serving this registry's metrics in
// the Prometheus exposition format, mounted by cmd/kelpied at /metrics.
func (s *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})
}

// StartDiskGauge begins periodically sampling host drive I/O via
// lufia/iostat and exporting it through driveWriteBytes, where the
// platform supports it (darwin only; see diskstats_other.go
// elsewhere). It returns a stop function.
func (s *Registry) StartDiskGauge() (stop func()) {
	return startDiskGauge(s.driveWriteBytes)
}
