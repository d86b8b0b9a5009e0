// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package service

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metrics publishes admission-cycle gauges for one controller
// subsystem ("process" or "transfer").
type Metrics struct {
	reg *prometheus.Registry

	freeSpace     prometheus.Gauge
	budget        prometheus.Gauge
	admitted      prometheus.Gauge
	admittedBytes prometheus.Gauge
	cycleErrors   prometheus.Counter
	cycleDuration prometheus.Summary
}

func NewMetrics(subsystem string) *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rsempipeline",
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
		m.reg.MustRegister(g)
		return g
	}
	m.freeSpace = gauge("free_space_bytes", "free space measured at the start of the last cycle")
	m.budget = gauge("budget_bytes", "budget available for new work in the last cycle (may be negative)")
	m.admitted = gauge("admitted_samples", "samples admitted in the last cycle")
	m.admittedBytes = gauge("admitted_projected_bytes", "total projected usage of samples admitted in the last cycle")
	m.cycleErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rsempipeline",
		Subsystem: subsystem,
		Name:      "cycle_errors_total",
		Help:      "cycles that aborted with an error",
	})
	m.reg.MustRegister(m.cycleErrors)
	m.cycleDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: "rsempipeline",
		Subsystem: subsystem,
		Name:      "cycle_seconds",
		Help:      "cycle duration",
	})
	m.reg.MustRegister(m.cycleDuration)
	return m
}

// Update records the outcome of one cycle.
func (m *Metrics) Update(stats CycleStats, dur time.Duration, err error) {
	if err != nil {
		m.cycleErrors.Inc()
		return
	}
	m.freeSpace.Set(float64(stats.FreeSpace))
	m.budget.Set(float64(stats.Budget))
	m.admitted.Set(float64(stats.Admitted))
	m.admittedBytes.Set(float64(stats.AdmittedBytes))
	m.cycleDuration.Observe(dur.Seconds())
}

// Serve exposes the metrics on addr in the background.
func (m *Metrics) Serve(addr string, logger logrus.FieldLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
	go func() {
		logger.WithField("addr", addr).Info("metrics listening")
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.WithError(err).Error("metrics server failed")
		}
	}()
}
