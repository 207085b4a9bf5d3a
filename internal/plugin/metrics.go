// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

package plugin

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the plugin core's Prometheus instruments.
type Metrics struct {
	// Constructions counts plugin constructions by outcome (ready, failed).
	Constructions *prometheus.CounterVec

	// Dispatches counts capability invocations by plugin and outcome
	// (ok, error, panic, filtered).
	Dispatches *prometheus.CounterVec
}

// NewMetrics registers the plugin core metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Constructions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "driftmush_plugin_constructions_total",
			Help: "Plugin constructions by outcome.",
		}, []string{"outcome"}),
		Dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "driftmush_plugin_dispatches_total",
			Help: "Capability dispatches by plugin and outcome.",
		}, []string{"plugin", "capability", "outcome"}),
	}
}

// nopMetrics returns metrics bound to a throwaway registry, for use when no
// registerer is configured.
func nopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
