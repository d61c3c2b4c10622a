package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine metrics
var (
	SandboxesByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shellbox_sandboxes",
			Help: "Number of sandboxes by lifecycle state",
		},
		[]string{"state"},
	)

	AdmissionSlotsUsed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shellbox_admission_slots_used",
			Help: "Number of concurrency slots currently held by sandboxes",
		},
	)

	SandboxStartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shellbox_sandbox_start_duration_seconds",
			Help:    "Time from start request to a running session",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
	)

	ExecDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shellbox_exec_duration_seconds",
			Help:    "Time to execute a command in a sandbox",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 60.0},
		},
		[]string{"mode"},
	)

	ExecsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shellbox_execs_total",
			Help: "Total commands executed",
		},
		[]string{"mode", "outcome"},
	)

	SessionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shellbox_session_failures_total",
			Help: "Shell sessions lost to timeouts or closed streams",
		},
		[]string{"reason"},
	)

	PTYSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shellbox_pty_sessions_active",
			Help: "Number of active PTY sessions",
		},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shellbox_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shellbox_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1.0, 5.0, 30.0, 60.0},
		},
		[]string{"method", "path"},
	)

	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shellbox_auth_attempts_total",
			Help: "Total auth attempts",
		},
		[]string{"type", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		SandboxesByState,
		AdmissionSlotsUsed,
		SandboxStartDuration,
		ExecDuration,
		ExecsTotal,
		SessionFailuresTotal,
		PTYSessionsActive,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AuthAttemptsTotal,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// EchoMiddleware returns Echo middleware that instruments HTTP requests.
func EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			HTTPRequestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				strconv.Itoa(status),
			).Inc()
			HTTPRequestDuration.WithLabelValues(
				c.Request().Method,
				c.Path(),
			).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
