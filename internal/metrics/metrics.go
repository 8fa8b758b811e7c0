package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry        *prometheus.Registry
	syncCycles      *prometheus.CounterVec // total cycles
	syncDuration    prometheus.Histogram   // time to run a cycle
	resolutions     *prometheus.CounterVec // address lookups
	recordUpdates   *prometheus.CounterVec // per record sync outcome
	managedRecords  *prometheus.GaugeVec   // records in the active set
	dnsRequests     *prometheus.CounterVec // dns provider requests
	journalRequests *prometheus.CounterVec // badgerdb journal requests
}

// Public interface for metrics operations
func (m *Metrics) IncSyncCycle(status string) {
	if !isValidCycleStatus(status) {
		return
	}
	m.syncCycles.WithLabelValues(status).Inc()
}

func (m *Metrics) SetSyncDuration(duration time.Duration) {
	m.syncDuration.Observe(duration.Seconds())
}

func (m *Metrics) IncResolution(kind string, success bool) {
	if kind == "" {
		return
	}
	m.resolutions.WithLabelValues(kind, boolToResult(success)).Inc()
}

func (m *Metrics) IncRecordUpdate(zone, source string, success bool) {
	if zone == "" || source == "" {
		return
	}
	m.recordUpdates.WithLabelValues(zone, source, boolToResult(success)).Inc()
}

func (m *Metrics) SetManagedRecords(zone string, count int) {
	if zone == "" {
		return
	}
	m.managedRecords.WithLabelValues(zone).Set(float64(count))
}

func (m *Metrics) IncDNSRequest(operation, zone string, success bool) {
	if !isValidOperation(operation) || zone == "" {
		return
	}
	status := boolToResult(success)
	m.dnsRequests.WithLabelValues(operation, zone, status).Inc()
}

func (m *Metrics) IncJournalRequest(operation string, success bool) {
	if !isValidOperation(operation) {
		return
	}
	status := boolToResult(success)
	m.journalRequests.WithLabelValues(operation, status).Inc()
}

// Validation helpers
func boolToResult(b bool) string {
	if b {
		return "success"
	}
	return "failure"
}

func isValidOperation(op string) bool {
	switch op {
	case "read", "update":
		return true
	}
	return false
}

func isValidCycleStatus(status string) bool {
	switch status {
	case "success", "partial", "skipped":
		return true
	}
	return false
}

func New(register bool) *Metrics {
	registry := prometheus.NewRegistry()
	namespace := "ddns_sync"

	m := &Metrics{
		registry: registry,

		syncCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_cycles_total",
			Help:      "Total number of synchronization cycles",
		}, []string{"status"}),

		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of synchronization cycles in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "address_resolutions_total",
			Help:      "Total address lookups by kind",
		}, []string{"kind", "status"}),

		recordUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_updates_total",
			Help:      "Total record update attempts",
		}, []string{"zone", "source", "status"}),

		managedRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "managed_records_current",
			Help:      "Records currently kept in sync",
		}, []string{"zone"}),

		dnsRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dns_requests_total",
			Help:      "Total DNS provider requests",
		}, []string{"operation", "zone", "status"}),

		journalRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_requests_total",
			Help:      "Total sync journal requests",
		}, []string{"operation", "status"}),
	}

	if register {
		registry.MustRegister(
			m.syncCycles,
			m.syncDuration,
			m.resolutions,
			m.recordUpdates,
			m.managedRecords,
			m.dnsRequests,
			m.journalRequests,
		)
	}
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
