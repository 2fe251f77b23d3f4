package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cyclecal_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cyclecal_http_errors_total",
		Help: "Total number of HTTP requests resulting in server errors.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cyclecal_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	dbLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cyclecal_db_latency_seconds",
		Help:    "Histogram of database operation latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "route"})

	predictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cyclecal_predictions_total",
		Help: "Predicted windows considered for calendar views, by owner scope and outcome.",
	}, []string{"scope", "outcome"})

	remindersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cyclecal_reminders_total",
		Help: "Cycle reminders handed to the notifier, by kind and result.",
	}, []string{"kind", "result"})
)

// Middleware records request metrics. It must run inside the chi router so the
// route pattern is available once the request has been served.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			// chi fills in the pattern while routing, so read it afterwards.
			route := routeFromContext(r.Context())
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			statusCode := strconv.Itoa(status)

			httpRequestsTotal.WithLabelValues(r.Method, route).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route, statusCode).Observe(time.Since(start).Seconds())
			if status >= http.StatusInternalServerError {
				httpErrorsTotal.WithLabelValues(r.Method, route, statusCode).Inc()
			}
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDBLatency records database latency for a given operation, associating it with request labels when available.
func ObserveDBLatency(ctx context.Context, operation string, start time.Time) {
	dbLatency.WithLabelValues(operation, routeFromContext(ctx)).Observe(time.Since(start).Seconds())
}

// CountPredictions records prediction outcomes for scope ("own" or
// "partner"). For "shown" n counts windows rendered; for "hidden" it counts
// forecasts withheld by the sharing policy.
func CountPredictions(scope, outcome string, n int) {
	if n <= 0 {
		return
	}
	predictionsTotal.WithLabelValues(scope, outcome).Add(float64(n))
}

// CountReminder records one reminder delivery attempt.
func CountReminder(kind string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	remindersTotal.WithLabelValues(kind, result).Inc()
}

// routeFromContext reads the chi route pattern matched so far. Outside a
// request (the reminder job) it reports "background".
func routeFromContext(ctx context.Context) string {
	rctx := chi.RouteContext(ctx)
	if rctx == nil {
		return "background"
	}
	if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
		return pattern
	}
	return "unmatched"
}
