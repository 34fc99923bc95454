package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "taskhub_ready",
		Help: "1 when the last readiness probe succeeded.",
	})
)

// Domain metrics.
var (
	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskhub_authz_decisions_total",
			Help: "Authorization decisions by resource, operation and outcome.",
		},
		[]string{"resource", "op", "outcome"},
	)

	quotaRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskhub_quota_rejections_total",
			Help: "Creations rejected because a tenant ceiling was reached.",
		},
		[]string{"resource"},
	)

	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskhub_login_attempts_total",
			Help: "Login attempts by result code.",
		},
		[]string{"result"},
	)

	auditEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskhub_audit_entries_total",
			Help: "Audit entries by outcome (written, failed, dropped).",
		},
		[]string{"outcome"},
	)
)

var initOnce sync.Once

// Init registers all metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration, readyGauge,
			authzDecisions, quotaRejections, loginAttempts, auditEntries,
		)
	})
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAuthz counts one authorization decision.
func ObserveAuthz(resource, op string, allowed bool) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	authzDecisions.WithLabelValues(resource, op, outcome).Inc()
}

// QuotaRejected counts a creation blocked by a tenant ceiling.
func QuotaRejected(resource string) {
	quotaRejections.WithLabelValues(resource).Inc()
}

// LoginAttempt counts a login by its result code ("ok" on success).
func LoginAttempt(result string) {
	loginAttempts.WithLabelValues(result).Inc()
}

// AuditOutcome counts an audit entry by outcome.
func AuditOutcome(outcome string) {
	auditEntries.WithLabelValues(outcome).Inc()
}

// SetReady records the outcome of the latest readiness probe.
func SetReady(ok bool) {
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// Instrument records RPS, latency and in-flight requests per canonical path.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

var collections = map[string]bool{
	"tenants":  true,
	"users":    true,
	"projects": true,
	"tasks":    true,
}

// CanonicalPath replaces resource ids with :id so that label cardinality stays bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" || raw == "/" {
		return "/"
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	for i := 1; i < len(parts); i++ {
		if collections[parts[i-1]] && !collections[parts[i]] && parts[i] != "status" {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

// statusWriter remembers the response code.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
