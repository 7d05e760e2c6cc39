// Package metrics exposes the engine's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsOpened counts freshly created check-in windows.
	SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sessions_opened_total",
		Help: "Check-in windows created.",
	})

	// SessionsReused counts opens that returned an already-active window.
	SessionsReused = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sessions_reused_total",
		Help: "Open calls answered with the existing active window.",
	})

	// SessionsExpired counts windows flipped to expired by the sweep.
	SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sessions_expired_total",
		Help: "Check-in windows transitioned to expired.",
	})

	// CheckInsRecorded counts accepted check-ins.
	CheckInsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_check_ins_recorded_total",
		Help: "Check-ins accepted and persisted.",
	})

	// CheckInsRejected counts refused attempts by reason.
	CheckInsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_check_ins_rejected_total",
		Help: "Check-in attempts refused, labeled by reason.",
	}, []string{"reason"})
)
