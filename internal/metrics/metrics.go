// Package metrics holds the process-wide prometheus instruments. kioskd
// serves them on /metrics; attendctl registers them but never exposes them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CodesIssued counts OTPs successfully issued through the tracker.
	CodesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendclient_codes_issued_total",
		Help: "One-time codes issued via the teacher workflow.",
	})

	// Submissions counts attendance submissions by outcome: ok, rejected,
	// signal_failed, invalid, transport.
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendclient_submissions_total",
		Help: "Attendance submissions by outcome.",
	}, []string{"outcome"})

	// SessionExpiries counts 401s that tore a session down.
	SessionExpiries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendclient_session_expiries_total",
		Help: "Sessions cleared after the backend answered 401.",
	})
)
