package observability

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// RequestIDHeader is echoed back on every response.
const RequestIDHeader = "X-Request-ID"

// RequestLogger attaches a RequestContext to each request and writes one
// access-log line when the handler returns.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := NewRequestContext(logger, r.Header.Get(RequestIDHeader))
			w.Header().Set(RequestIDHeader, rc.RequestID)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(WithRequestContext(r.Context(), rc)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int(LogFieldStatus, status),
				slog.Int64(LogFieldDuration, rc.Duration().Milliseconds()),
				slog.Int("bytes", ww.BytesWritten()),
			}
			if status >= http.StatusInternalServerError {
				rc.Warn("request failed", attrs...)
				return
			}
			rc.Info("request", attrs...)
		})
	}
}
