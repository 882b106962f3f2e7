// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package tcp

import "github.com/prometheus/client_golang/prometheus"

// Message outcome labels.
const (
	outcomeHandled   = "handled"
	outcomeFailed    = "failed"
	outcomeUnknown   = "unknown"
	outcomeMalformed = "malformed"
)

// ConnectionsTotal counts accepted connections.
var ConnectionsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "sessiongate_connections_total",
		Help: "Total number of accepted TCP connections",
	},
)

// ConnectionsActive is the number of open connections.
var ConnectionsActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "sessiongate_connections_active",
		Help: "Number of open TCP connections",
	},
)

// Messages counts inbound messages by name and outcome. Names of unknown
// or malformed messages are not recorded to keep cardinality bounded.
var Messages = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sessiongate_messages_total",
		Help: "Total number of inbound messages by name and outcome",
	},
	[]string{"name", "outcome"},
)

// RegisterMetrics registers transport metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(ConnectionsTotal)
	reg.MustRegister(ConnectionsActive)
	reg.MustRegister(Messages)
}

func recordMessage(name, outcome string) {
	Messages.WithLabelValues(name, outcome).Inc()
}
