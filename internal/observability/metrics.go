package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoprofile_http_requests_total",
			Help: "Total control API requests",
		}, []string{"code"},
	)
	Latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "autoprofile_http_request_duration_seconds",
		Help:    "Control API latency seconds",
		Buckets: prometheus.DefBuckets,
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "autoprofile_http_in_flight",
		Help: "In-flight control API requests",
	})

	Evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoprofile_evaluations_total",
			Help: "Profile evaluations by result (match, none, same)",
		}, []string{"result"},
	)
	Switches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoprofile_switches_total",
			Help: "Profile applies by outcome (applied, failed, skipped)",
		}, []string{"outcome"},
	)
	TimerPanics = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "autoprofile_timer_panics_total",
		Help: "Recovered panics inside timer callbacks",
	})
	DebounceCollapsed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "autoprofile_debounce_collapsed_total",
		Help: "Parameter events folded into an already pending re-evaluation",
	})
	NextBoundary = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "autoprofile_next_boundary_seconds",
		Help: "Delay of the armed schedule-boundary timer",
	})
)

func init() {
	prometheus.MustRegister(
		RequestsTotal, Latency, InFlight,
		Evaluations, Switches, TimerPanics, DebounceCollapsed, NextBoundary,
	)
}

func MetricsHandler() http.Handler { return promhttp.Handler() }

type rec struct {
	http.ResponseWriter
	code int
}

func (r *rec) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func Measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		InFlight.Inc()
		defer InFlight.Dec()

		rr := &rec{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rr, r)

		Latency.Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(strconv.Itoa(rr.code)).Inc()
	})
}
