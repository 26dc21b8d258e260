// Package metrics provides in-process Prometheus collectors for the
// supervisor, artifact pipeline, scheduler, and backup engine. There is no
// networked exposition endpoint: a desktop-resident control plane has no
// scrape target, so these collectors exist to back an in-app stats view
// and to give tests a Gatherer to assert against.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for a running instance of the
// control plane.
type Metrics struct {
	// Instance registry
	InstancesTotal   *prometheus.GaugeVec // by status
	InstanceStarts   *prometheus.CounterVec
	InstanceStops    *prometheus.CounterVec
	InstanceCrashes  *prometheus.CounterVec
	ChildSpawnErrors prometheus.Counter

	// Artifact pipeline
	DownloadBytesTotal    prometheus.Counter
	DownloadDuration      *prometheus.HistogramVec // by loader
	DownloadFailuresTotal *prometheus.CounterVec   // by loader

	// Cache
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	CacheStaleTotal  prometheus.Counter

	// Scheduler
	ScheduledDispatchTotal *prometheus.CounterVec // by kind, status
	ScheduledTasksPending  prometheus.Gauge

	// Backup engine
	BackupDuration  *prometheus.HistogramVec // by instance
	BackupSizeBytes *prometheus.HistogramVec // by instance
	BackupFailures  *prometheus.CounterVec   // by instance

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a Metrics instance registered against the default registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against registerer.
// Passing nil skips registration, which is useful in tests that only care
// about the collectors' observed values.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		InstancesTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "serverforge_instances_total",
				Help: "Number of registered server instances by status",
			},
			[]string{"status"},
		),
		InstanceStarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serverforge_instance_starts_total",
				Help: "Total number of instance start attempts",
			},
			[]string{"status"},
		),
		InstanceStops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serverforge_instance_stops_total",
				Help: "Total number of instance stop attempts",
			},
			[]string{"status"},
		),
		InstanceCrashes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serverforge_instance_crashes_total",
				Help: "Total number of instances observed to crash",
			},
			[]string{"instance_id"},
		),
		ChildSpawnErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "serverforge_child_spawn_errors_total",
				Help: "Total number of failures spawning a server child process",
			},
		),

		DownloadBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "serverforge_download_bytes_total",
				Help: "Total bytes downloaded by the artifact pipeline",
			},
		),
		DownloadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "serverforge_download_duration_seconds",
				Help:    "Artifact download duration in seconds",
				Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"loader"},
		),
		DownloadFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serverforge_download_failures_total",
				Help: "Total artifact download failures",
			},
			[]string{"loader"},
		),

		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "serverforge_cache_hits_total",
				Help: "Total cache lookups that returned a fresh value",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "serverforge_cache_misses_total",
				Help: "Total cache lookups that found nothing",
			},
		),
		CacheStaleTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "serverforge_cache_stale_total",
				Help: "Total cache lookups that returned an expired value pending refresh",
			},
		),

		ScheduledDispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serverforge_scheduled_dispatch_total",
				Help: "Total scheduled task dispatches",
			},
			[]string{"kind", "status"},
		),
		ScheduledTasksPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "serverforge_scheduled_tasks_pending",
				Help: "Number of scheduled tasks currently registered",
			},
		),

		BackupDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "serverforge_backup_duration_seconds",
				Help:    "Backup archive creation duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 180, 600},
			},
			[]string{"instance_id"},
		),
		BackupSizeBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "serverforge_backup_size_bytes",
				Help:    "Backup archive size in bytes",
				Buckets: prometheus.ExponentialBuckets(1<<20, 4, 8), // 1MiB .. 16GiB
			},
			[]string{"instance_id"},
		),
		BackupFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serverforge_backup_failures_total",
				Help: "Total backup failures",
			},
			[]string{"instance_id"},
		),

		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "serverforge_uptime_seconds",
				Help: "Control plane process uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "serverforge_info",
				Help: "Static build information",
			},
			[]string{"service", "version"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.InstancesTotal,
			m.InstanceStarts,
			m.InstanceStops,
			m.InstanceCrashes,
			m.ChildSpawnErrors,
			m.DownloadBytesTotal,
			m.DownloadDuration,
			m.DownloadFailuresTotal,
			m.CacheHitsTotal,
			m.CacheMissesTotal,
			m.CacheStaleTotal,
			m.ScheduledDispatchTotal,
			m.ScheduledTasksPending,
			m.BackupDuration,
			m.BackupSizeBytes,
			m.BackupFailures,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "dev").Set(1)

	return m
}

// RecordInstanceStart records the outcome of an instance start attempt.
func (m *Metrics) RecordInstanceStart(status string) {
	m.InstanceStarts.WithLabelValues(status).Inc()
}

// RecordInstanceStop records the outcome of an instance stop attempt.
func (m *Metrics) RecordInstanceStop(status string) {
	m.InstanceStops.WithLabelValues(status).Inc()
}

// RecordInstanceCrash records that instanceID was observed to crash.
func (m *Metrics) RecordInstanceCrash(instanceID string) {
	m.InstanceCrashes.WithLabelValues(instanceID).Inc()
}

// RecordChildSpawnError records a failure to spawn a server child process.
func (m *Metrics) RecordChildSpawnError() {
	m.ChildSpawnErrors.Inc()
}

// SetInstancesByStatus replaces the instances-by-status gauge with counts.
func (m *Metrics) SetInstancesByStatus(counts map[string]int) {
	m.InstancesTotal.Reset()
	for status, n := range counts {
		m.InstancesTotal.WithLabelValues(status).Set(float64(n))
	}
}

// RecordDownload records a completed artifact download.
func (m *Metrics) RecordDownload(loader string, bytesWritten int64, duration time.Duration) {
	m.DownloadBytesTotal.Add(float64(bytesWritten))
	m.DownloadDuration.WithLabelValues(loader).Observe(duration.Seconds())
}

// RecordDownloadFailure records a failed artifact download.
func (m *Metrics) RecordDownloadFailure(loader string) {
	m.DownloadFailuresTotal.WithLabelValues(loader).Inc()
}

// RecordCacheStatus records the outcome of a cache lookup.
func (m *Metrics) RecordCacheStatus(status string) {
	switch status {
	case "hit":
		m.CacheHitsTotal.Inc()
	case "stale":
		m.CacheStaleTotal.Inc()
	default:
		m.CacheMissesTotal.Inc()
	}
}

// RecordSchedulerDispatch records a scheduled task dispatch.
func (m *Metrics) RecordSchedulerDispatch(kind, status string) {
	m.ScheduledDispatchTotal.WithLabelValues(kind, status).Inc()
}

// SetScheduledTasksPending sets the current count of registered tasks.
func (m *Metrics) SetScheduledTasksPending(n int) {
	m.ScheduledTasksPending.Set(float64(n))
}

// RecordBackup records a completed backup.
func (m *Metrics) RecordBackup(instanceID string, sizeBytes int64, duration time.Duration) {
	m.BackupDuration.WithLabelValues(instanceID).Observe(duration.Seconds())
	m.BackupSizeBytes.WithLabelValues(instanceID).Observe(float64(sizeBytes))
}

// RecordBackupFailure records a failed backup.
func (m *Metrics) RecordBackupFailure(instanceID string) {
	m.BackupFailures.WithLabelValues(instanceID).Inc()
}

// UpdateUptime sets the uptime gauge relative to startTime.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// Global metrics instance.
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance, returning the existing one
// if already initialized.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance, initializing it with a
// default name if needed.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("serverforge")
	}
	return globalMetrics
}
