package httpmetrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/fieldsync/backend/internal/observability/metrics"
)

type Collector struct {
	service string
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func New(service string) *Collector {
	return &Collector{
		service: service,
	}
}

func (c *Collector) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		method := r.Method
		path := NormalizePath(r.URL.Path)

		metrics.HTTPRequestsTotal.WithLabelValues(c.service, method, path).Inc()
		metrics.HTTPRequestsInFlight.WithLabelValues(c.service).Inc()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		statusClass := fmt.Sprintf("%dxx", rec.status/100)

		metrics.HTTPRequestsInFlight.WithLabelValues(c.service).Dec()
		metrics.HTTPRequestDurationSeconds.WithLabelValues(c.service, method, path, statusClass).Observe(elapsed.Seconds())
	})
}
