// Package metrics exposes Prometheus instrumentation for chat sessions:
// live session count, snapshot throughput, notification and nudge volume,
// and the anomalies the sync layer tolerates instead of failing on.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveSessions tracks connected viewers.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_active_sessions",
		Help: "Current number of connected chat sessions",
	})

	// SnapshotsTotal counts delivered snapshots by stream:
	// "messages", "conversations", "typing", "users", "rooms", "presence".
	SnapshotsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_snapshots_total",
		Help: "Total number of store snapshots applied",
	}, []string{"stream"})

	// StaleSnapshotsTotal counts callbacks dropped because their
	// subscription was already torn down.
	StaleSnapshotsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_stale_snapshots_total",
		Help: "Snapshots ignored after teardown",
	}, []string{"stream"})

	// NotificationsTotal counts local notifications by kind: "message", "nudge".
	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_notifications_total",
		Help: "Local notifications fired",
	}, []string{"kind"})

	// NudgesTotal counts nudges by direction: "sent", "received", "duplicate".
	NudgesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_nudges_total",
		Help: "Nudges sent and observed",
	}, []string{"direction"})

	// PinAnomaliesTotal counts windows that held more than one pinned message.
	PinAnomaliesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "huddle_pin_anomalies_total",
		Help: "Snapshots with more than one pinned message",
	})

	// StoreWriteErrorsTotal counts failed writes by operation.
	StoreWriteErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_store_write_errors_total",
		Help: "Failed document store writes",
	}, []string{"op"})

	// MarkReadWritesTotal counts read cursor advances.
	MarkReadWritesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "huddle_mark_read_writes_total",
		Help: "Writes that moved a viewer's read count forward",
	})
)

func init() {
	prometheus.MustRegister(
		ActiveSessions,
		SnapshotsTotal,
		StaleSnapshotsTotal,
		NotificationsTotal,
		NudgesTotal,
		PinAnomaliesTotal,
		StoreWriteErrorsTotal,
		MarkReadWritesTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
