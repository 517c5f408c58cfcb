package httpmw

import (
	"net/http"
	"time"

	"cdr.dev/slog"
	"github.com/go-chi/chi/v5/middleware"
)

func Logger(log slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := middleware.NewWrapResponseWriter(rw, r.ProtoMajor)

			next.ServeHTTP(sw, r)

			httplog := log.With(
				slog.F("host", r.Host),
				slog.F("path", r.URL.Path),
				slog.F("proto", r.Proto),
				slog.F("remote_addr", r.RemoteAddr),
				slog.F("took", time.Since(start)),
				slog.F("status_code", sw.Status()),
			)

			// 5xx is not logged at error level because it includes
			// cancellations and failures outside our control.
			logLevelFn := httplog.Debug
			if sw.Status() >= http.StatusInternalServerError {
				logLevelFn = httplog.Warn
			}
			logLevelFn(r.Context(), r.Method)
		})
	}
}
