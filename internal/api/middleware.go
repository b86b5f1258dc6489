package api

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"trainlog/internal/observability"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// instrument records latency under the route pattern and logs the request.
func instrument(pattern string, logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		observability.RecordHTTPRequest(pattern, rec.status, elapsed)
		logger.Debug("http request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", elapsed)
	})
}
