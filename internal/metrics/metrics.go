package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InboxRecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_inbox_records_written_total",
			Help: "Inbox records written, by audience",
		},
		[]string{"audience"},
	)

	PushResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_push_results_total",
			Help: "Per-target push outcomes",
		},
		[]string{"result"}, // success, failure, invalid
	)

	PushBatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_push_batches_total",
			Help: "Provider calls issued by the delivery gateway",
		},
	)

	TargetsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_device_targets_pruned_total",
			Help: "Device targets removed after a permanent delivery failure",
		},
	)

	RealtimeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notify_realtime_sessions",
			Help: "Operator realtime sessions currently registered",
		},
	)

	RealtimeDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_realtime_dropped_total",
			Help: "Realtime events dropped because a session buffer was full",
		},
	)

	RemindersProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_reminders_processed_total",
			Help: "Reminder entries processed by the sweep",
		},
		[]string{"outcome"}, // fired, skipped, failed
	)

	TasksDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_background_tasks_dropped_total",
			Help: "Background delivery tasks dropped because the queue was full",
		},
	)
)
