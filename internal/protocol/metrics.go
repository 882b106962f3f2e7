// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package protocol

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for login and registration metrics.
const (
	OutcomeAccepted       = "accepted"
	OutcomeRejected       = "rejected"
	OutcomeDropped        = "dropped"
	OutcomeAccountInUse   = "account_in_use"
	OutcomeAccountLoad    = "account_load_error"
	OutcomeInitialization = "initialization_error"
	OutcomeHandlerError   = "handler_error"
	OutcomeInvalidResult  = "invalid_result"
)

// Logins counts login attempts by method and outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var Logins = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sessiongate_logins_total",
		Help: "Total number of login attempts by method and outcome",
	},
	[]string{"method", "outcome"},
)

// Registrations counts registration attempts by method and outcome.
var Registrations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sessiongate_registrations_total",
		Help: "Total number of registration attempts by method and outcome",
	},
	[]string{"method", "outcome"},
)

// Kicks counts terminated sessions by reason ("logout" for client logouts).
var Kicks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sessiongate_session_terminations_total",
		Help: "Total number of terminated sessions by reason",
	},
	[]string{"reason"},
)

// SessionsActive is the current number of sessions.
var SessionsActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "sessiongate_sessions_active",
		Help: "Number of active sessions",
	},
)

// PendingLogins is the current number of connections awaiting login.
var PendingLogins = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "sessiongate_pending_logins",
		Help: "Number of connections that have not logged in yet",
	},
)

// HookErrors counts failures routed to the session-error hook by stage.
var HookErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sessiongate_hook_errors_total",
		Help: "Total number of session errors by stage",
	},
	[]string{"stage"},
)

// MiddlewareDenials counts messages refused by a handler gate.
var MiddlewareDenials = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sessiongate_middleware_denials_total",
		Help: "Total number of messages refused by handler gates",
	},
	[]string{"gate"},
)

// ExclusionWait observes time spent waiting for the exclusion gate.
var ExclusionWait = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "sessiongate_exclusion_wait_seconds",
		Help:    "Time spent waiting to enter the session exclusion gate",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
	},
)

// RegisterMetrics registers protocol metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Logins)
	reg.MustRegister(Registrations)
	reg.MustRegister(Kicks)
	reg.MustRegister(SessionsActive)
	reg.MustRegister(PendingLogins)
	reg.MustRegister(HookErrors)
	reg.MustRegister(MiddlewareDenials)
	reg.MustRegister(ExclusionWait)
}

// RecordLogin increments the login counter.
func RecordLogin(method, outcome string) {
	Logins.WithLabelValues(method, outcome).Inc()
}

// RecordRegistration increments the registration counter.
func RecordRegistration(method, outcome string) {
	Registrations.WithLabelValues(method, outcome).Inc()
}

// RecordTermination increments the termination counter.
func RecordTermination(reason string) {
	Kicks.WithLabelValues(reason).Inc()
}

// RecordHookError increments the session error counter.
func RecordHookError(stage Stage) {
	HookErrors.WithLabelValues(string(stage)).Inc()
}

// RecordDenial increments the middleware denial counter.
func RecordDenial(gate string) {
	MiddlewareDenials.WithLabelValues(gate).Inc()
}

// RecordExclusionWait observes a gate acquisition delay.
func RecordExclusionWait(d time.Duration) {
	ExclusionWait.Observe(d.Seconds())
}
