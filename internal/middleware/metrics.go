package middleware

import (
	"net/http"
	"time"
)

type httpRecorder interface {
	RecordHTTP(method, route string, status int, elapsed time.Duration)
}

// Metrics must wrap the *http.ServeMux directly: the mux records the matched
// pattern on the same request value, and that pattern is the route label.
// Unmatched requests are labelled "unmatched" to keep cardinality bounded.
func Metrics(rec httpRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sr, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			rec.RecordHTTP(r.Method, route, sr.status, time.Since(start))
		})
	}
}
