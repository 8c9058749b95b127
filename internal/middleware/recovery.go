package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/josh-kwaku/wallet-ledger/internal/handler"
	"github.com/josh-kwaku/wallet-ledger/internal/logging"
)

type panicRecorder interface {
	RecordPanic(method string)
}

// committedWriter notes whether the response has started, so a recovered
// panic does not append an error body to a partial response.
type committedWriter struct {
	http.ResponseWriter
	committed bool
}

func (w *committedWriter) WriteHeader(code int) {
	w.committed = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *committedWriter) Write(b []byte) (int, error) {
	w.committed = true
	return w.ResponseWriter.Write(b)
}

func (w *committedWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Recovery turns a handler panic into a 500 INTERNAL_ERROR and counts it.
// It sits outside RequestID, so the request id is read back from the
// response header RequestID has already set.
func Recovery(rec panicRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cw := &committedWriter{ResponseWriter: w}
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				if err == http.ErrAbortHandler {
					panic(err)
				}

				requestID := logging.RequestIDFromContext(r.Context())
				if requestID == "" {
					requestID = w.Header().Get(requestIDHeader)
				}
				rec.RecordPanic(r.Method)
				logging.FromContext(r.Context()).Error("panic recovered",
					"error", err,
					"request_id", requestID,
					"method", r.Method,
					"path", r.URL.Path,
					"response_committed", cw.committed,
					"stack", string(debug.Stack()),
				)
				if !cw.committed {
					handler.RespondAppError(w, handler.ErrInternalError, nil)
				}
			}()
			next.ServeHTTP(cw, r)
		})
	}
}
