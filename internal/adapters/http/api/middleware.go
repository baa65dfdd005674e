package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/pss/pkg/logger"
	"github.com/okian/pss/pkg/metrics"
)

// MetricsMiddleware records request metrics for endpoint. Requests that
// change engine state (every non-GET route) are also logged as operator
// actions.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		code := strconv.Itoa(rec.status)

		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, float64(elapsed.Microseconds())/1000)
		if rec.status >= http.StatusBadRequest {
			metrics.RecordErrorByEndpoint(endpoint, r.Method, errorClass(rec.status))
		}

		if r.Method != http.MethodGet {
			logger.Get().Named("api").Info(r.Context(), "operator action",
				logger.String("endpoint", endpoint),
				logger.String("path", r.URL.Path),
				logger.Int("status", rec.status),
				logger.Int("bytes", rec.written),
				logger.Duration("elapsed", elapsed),
			)
		}
	}
}

// errorClass buckets an error status for the per-endpoint error counter.
func errorClass(status int) string {
	switch {
	case status == http.StatusServiceUnavailable:
		return "unavailable"
	case status >= http.StatusInternalServerError:
		return "server_error"
	case status == http.StatusUnprocessableEntity:
		return "invalid_grammar"
	case status == http.StatusConflict:
		return "conflict"
	case status == http.StatusNotFound:
		return "not_found"
	default:
		return "client_error"
	}
}

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += n
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}
