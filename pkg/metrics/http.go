package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPCollectors counts API requests by route template, method and status.
type HTTPCollectors struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPCollectors registers the request collectors on reg. Collectors
// already registered there are reused.
func NewHTTPCollectors(reg prometheus.Registerer) *HTTPCollectors {
	return &HTTPCollectors{
		requests: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hrm",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by route template, method and status code.",
		}, []string{"route", "method", "status"})),
		duration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hrm",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API request latency by route template.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"})),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Middleware records every request that reached a route. Unmatched requests
// are counted under the "unmatched" route.
func (c *HTTPCollectors) Middleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := "unmatched"
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)
			if sw.status == 0 {
				sw.status = http.StatusOK
			}
			c.requests.WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).Inc()
			c.duration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		})
	}
}
