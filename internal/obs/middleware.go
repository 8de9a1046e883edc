package obs

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.status = code
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records HTTPDuration for every request, keyed by method and
// route pattern, meant to sit inside a pkg/mid.Chain alongside mid.OTel
// (which adds the span) rather than replace it.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			m.HTTPDuration.Record(r.Context(), time.Since(start).Seconds(), metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("route", r.URL.Path),
			))
		})
	}
}
