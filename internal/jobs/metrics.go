// Package jobmetrics instruments background jobs: outcome counts, duration,
// jobs in flight and the time of the last successful run.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Warmup runs read every store table; buckets reach two minutes.
var durationBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
	warmed      *prometheus.CounterVec
	now         func() time.Time
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job collectors. A nil registerer shares one set of
// collectors on the default Prometheus registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker instruments one job run from Track to End.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track marks a run of job as started.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	if job != "" {
		m.inFlight.WithLabelValues(job).Inc()
	}
	return &Tracker{metrics: m, job: job, start: m.now()}
}

// End records the outcome of the run and returns err unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	m := t.metrics
	end := m.now()
	m.inFlight.WithLabelValues(t.job).Dec()
	m.duration.WithLabelValues(t.job).Observe(end.Sub(t.start).Seconds())
	if err != nil {
		m.failures.WithLabelValues(t.job).Inc()
		m.runs.WithLabelValues(t.job, "failure").Inc()
		return err
	}
	m.runs.WithLabelValues(t.job, "success").Inc()
	m.lastSuccess.WithLabelValues(t.job).Set(float64(end.Unix()))
	return nil
}

// AddWarmed counts receivables views built ahead of time for a ledger and
// store. An empty store stands for the all-stores view.
func (m *Metrics) AddWarmed(ledger, store string, count int) {
	if m == nil || count <= 0 {
		return
	}
	if store == "" {
		store = "all"
	}
	m.warmed.WithLabelValues(ledger, store).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoparts_jobs_total",
			Help: "Jumlah eksekusi job per nama job dan status.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoparts_jobs_failures_total",
			Help: "Jumlah eksekusi job yang gagal.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autoparts_job_duration_seconds",
			Help:    "Durasi eksekusi job dalam detik.",
			Buckets: durationBuckets,
		}, []string{"job"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoparts_jobs_in_flight",
			Help: "Job yang sedang berjalan.",
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoparts_job_last_success_timestamp_seconds",
			Help: "Waktu Unix eksekusi job terakhir yang berhasil.",
		}, []string{"job"}),
		warmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoparts_receivables_warmed_views_total",
			Help: "Tampilan piutang yang disiapkan oleh job warmup.",
		}, []string{"ledger", "store"}),
		now: time.Now,
	}
	registerer.MustRegister(m.runs, m.failures, m.duration, m.inFlight, m.lastSuccess, m.warmed)
	return m
}
