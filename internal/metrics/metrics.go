package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "beautycity"

// Admission results.
const (
	AdmissionAdmitted = "admitted"
	AdmissionConflict = "conflict"
	AdmissionPastTime = "past_time"
	AdmissionRejected = "rejected"
	AdmissionError    = "error"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Appointment admission attempts by result.",
		},
		[]string{"result"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Applied appointment status transitions by target status.",
		},
		[]string{"status"},
	)

	slotComputation = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slot_computation_seconds",
			Help:      "Time spent computing free slots for one day.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	slotsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slots_returned",
			Help:      "Number of free slots returned per query.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_tasks_total",
			Help:      "Appointment journal tasks by type and result.",
		},
		[]string{"task_type", "result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, admissions, transitions, slotComputation, slotsReturned, syncTasks)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncAdmission(result string) {
	admissions.WithLabelValues(result).Inc()
}

func IncTransition(status string) {
	transitions.WithLabelValues(status).Inc()
}

func ObserveSlots(elapsed time.Duration, count int) {
	slotComputation.Observe(elapsed.Seconds())
	slotsReturned.Observe(float64(count))
}

func IncSyncTask(taskType, result string) {
	syncTasks.WithLabelValues(taskType, result).Inc()
}
