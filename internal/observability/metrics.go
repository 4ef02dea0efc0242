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
	deliveries      *prometheus.CounterVec
	shortfalls      prometheus.Counter
	recalcs         *prometheus.CounterVec
	drift           *prometheus.GaugeVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_deliveries_total",
		Help: "Jumlah percobaan pengiriman pesanan berdasarkan hasil.",
	}, []string{"outcome"})
	shortfalls := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_stock_shortfalls_total",
		Help: "Jumlah item stok yang kurang saat validasi pesanan.",
	})
	recalcs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_balance_recalcs_total",
		Help: "Jumlah perhitungan ulang total turunan per jenis.",
	}, []string{"kind"})
	drift := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odyssey_balance_drift_rows",
		Help: "Jumlah baris dengan total turunan yang tidak sesuai pada rekonsiliasi terakhir.",
	}, []string{"kind"})
	registry.MustRegister(requests, duration, deliveries, shortfalls, recalcs, drift)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		deliveries:      deliveries,
		shortfalls:      shortfalls,
		recalcs:         recalcs,
		drift:           drift,
	}
}

// ObserveDelivery mencatat hasil satu percobaan pengiriman.
func (m *Metrics) ObserveDelivery(outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

// ObserveShortfalls menambah jumlah kekurangan stok yang terdeteksi.
func (m *Metrics) ObserveShortfalls(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.shortfalls.Add(float64(n))
}

// ObserveRecalc mencatat satu perhitungan ulang.
func (m *Metrics) ObserveRecalc(kind string) {
	if m == nil {
		return
	}
	m.recalcs.WithLabelValues(kind).Inc()
}

// ObserveDrift menyimpan jumlah baris yang menyimpang dari rekonsiliasi terakhir.
func (m *Metrics) ObserveDrift(kind string, n int) {
	if m == nil {
		return
	}
	m.drift.WithLabelValues(kind).Set(float64(n))
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
