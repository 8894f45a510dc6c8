package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// routeOther labels every request that matched none of the ops routes.
const routeOther = "other"

var (
	opsRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "workermgr",
			Subsystem: "ops",
			Name:      "requests_total",
			Help:      "Ops HTTP requests by route, method and status class.",
		},
		[]string{"route", "method", "class"},
	)

	// /workers and /healthz take a store snapshot, /metrics gathers every
	// collector; none should come near a second.
	opsLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "workermgr",
			Subsystem: "ops",
			Name:      "request_duration_seconds",
			Help:      "Ops HTTP request latency by route.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, 1},
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(opsRequests, opsLatency)
}

// MetricsMiddleware counts and times requests per matched route.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		route := matchedRoute(r)
		opsRequests.WithLabelValues(route, r.Method, statusClass(ww.Status())).Inc()
		opsLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// matchedRoute is the chi pattern that served r, or routeOther. Unmatched
// paths are never used as label values.
func matchedRoute(r *http.Request) string {
	rc := chi.RouteContext(r.Context())
	if rc == nil {
		return routeOther
	}
	if p := rc.RoutePattern(); p != "" && p != "/*" {
		return p
	}
	return routeOther
}

// statusClass maps 204 to "2xx". A handler that never wrote reports 0, which
// net/http turns into 200.
func statusClass(code int) string {
	if code == 0 {
		code = http.StatusOK
	}
	return strconv.Itoa(code/100) + "xx"
}
