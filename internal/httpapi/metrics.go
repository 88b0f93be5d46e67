package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects HTTP and game lifecycle metrics. It satisfies play.Metrics.
type Metrics struct {
	reg          *prometheus.Registry
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	gamesStarted *prometheus.CounterVec
	gamesEnded   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chessnerd",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chessnerd",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		gamesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chessnerd",
			Name:      "games_started_total",
			Help:      "Games started by mode and game type.",
		}, []string{"mode", "game_type"}),
		gamesEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chessnerd",
			Name:      "games_ended_total",
			Help:      "Games finished by mode and result.",
		}, []string{"mode", "result"}),
	}
	m.reg.MustRegister(m.requests, m.duration, m.gamesStarted, m.gamesEnded,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// WatchActive exports the live session count as a gauge.
func (m *Metrics) WatchActive(active func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "chessnerd",
		Name:      "active_sessions",
		Help:      "Live game sessions.",
	}, func() float64 { return float64(active()) }))
}

func (m *Metrics) GameStarted(mode, gameType string) {
	m.gamesStarted.WithLabelValues(mode, gameType).Inc()
}

func (m *Metrics) GameEnded(mode, result string) {
	m.gamesEnded.WithLabelValues(mode, result).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Middleware records every request against its chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
