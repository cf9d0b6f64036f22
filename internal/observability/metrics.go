package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	orphanPayments  *prometheus.CounterVec
	mismatches      *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autoparts_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "autoparts_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	orphans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autoparts_receivables_orphan_payments_total",
		Help: "Pembayaran yang tidak cocok dengan kelompok customer/tempo mana pun.",
	}, []string{"ledger"})
	mismatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autoparts_line_total_mismatches_total",
		Help: "Baris transaksi dengan harga_total berbeda dari qty x harga_satuan.",
	}, []string{"ledger"})
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autoparts_receivables_cache_lookups_total",
		Help: "Pencarian cache tampilan piutang per ledger dan hasil (hit/miss).",
	}, []string{"ledger", "result"})
	registry.MustRegister(requests, duration, orphans, mismatches, lookups)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		orphanPayments:  orphans,
		mismatches:      mismatches,
		cacheLookups:    lookups,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// OrphanPayments mencatat pembayaran yatim per ledger.
func (m *Metrics) OrphanPayments(ledger string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.orphanPayments.WithLabelValues(ledger).Add(float64(n))
}

// LineTotalMismatches mencatat baris dengan total yang tidak sinkron.
func (m *Metrics) LineTotalMismatches(ledger string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.mismatches.WithLabelValues(ledger).Add(float64(n))
}

// CacheLookup mencatat hit atau miss cache piutang.
func (m *Metrics) CacheLookup(ledger string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(ledger, result).Inc()
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
