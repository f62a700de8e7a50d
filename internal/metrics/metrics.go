// Package metrics records refresh, live-cycle, watch-list and HTTP metrics
// with Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements scheduler.Observer and aggregator.Observer.
type Recorder struct {
	reg *prometheus.Registry

	panelFetches   *prometheus.CounterVec
	panelLatency   *prometheus.HistogramVec
	panelDiscarded *prometheus.CounterVec
	liveLatency    prometheus.Histogram
	liveLookups    *prometheus.CounterVec
	watched        prometheus.Gauge
	watchWrites    *prometheus.CounterVec
	surges         *prometheus.CounterVec
	wsClients      prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
}

// New creates a Recorder registered on reg. A nil reg gets a fresh registry
// with the Go and process collectors.
func New(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		panelFetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamepulse_panel_fetches_total",
				Help: "Panel refresh ticks by outcome",
			},
			[]string{"panel", "result"},
		),
		panelLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gamepulse_panel_fetch_duration_seconds",
				Help:    "Duration of panel fetches in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"panel"},
		),
		panelDiscarded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamepulse_panel_stale_discarded_total",
				Help: "Panel results discarded because a newer tick already committed",
			},
			[]string{"panel"},
		),
		liveLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gamepulse_live_cycle_duration_seconds",
			Help:    "Duration of live aggregation cycles in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		liveLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamepulse_live_lookups_total",
				Help: "Live value lookups by outcome",
			},
			[]string{"result"},
		),
		watched: f.NewGauge(prometheus.GaugeOpts{
			Name: "gamepulse_watchlist_entries",
			Help: "Number of watched games",
		}),
		watchWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamepulse_watchlist_writes_total",
				Help: "Watch-list persistence attempts by outcome",
			},
			[]string{"result"},
		),
		surges: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamepulse_surges_total",
				Help: "Detected audience surges",
			},
			[]string{"source", "direction"},
		),
		wsClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "gamepulse_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamepulse_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gamepulse_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"route", "method"},
		),
	}
}

func (r *Recorder) ObserveFetch(panel string, elapsed time.Duration, err error) {
	r.panelFetches.WithLabelValues(panel, outcome(err)).Inc()
	r.panelLatency.WithLabelValues(panel).Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveDiscard(panel string) {
	r.panelDiscarded.WithLabelValues(panel).Inc()
}

func (r *Recorder) ObserveCycle(elapsed time.Duration, requested, succeeded int) {
	r.liveLatency.Observe(elapsed.Seconds())
	r.liveLookups.WithLabelValues("ok").Add(float64(succeeded))
	r.liveLookups.WithLabelValues("error").Add(float64(requested - succeeded))
}

func (r *Recorder) SetWatched(n int) {
	r.watched.Set(float64(n))
}

func (r *Recorder) ObserveWatchWrite(err error) {
	r.watchWrites.WithLabelValues(outcome(err)).Inc()
}

func (r *Recorder) ObserveSurge(source, direction string) {
	r.surges.WithLabelValues(source, direction).Inc()
}

func (r *Recorder) ClientConnected()    { r.wsClients.Inc() }
func (r *Recorder) ClientDisconnected() { r.wsClients.Dec() }

// Middleware records request counts and latency per route template.
func (r *Recorder) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			r.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			r.httpLatency.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.reg
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
