package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dlerazeezcore/the-book-platform/logger"
	"github.com/dlerazeezcore/the-book-platform/metrics"
	"github.com/go-chi/chi/v5/middleware"
)

// LoggerMiddleware logs each request with its status and duration.
func LoggerMiddleware(name string, l logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			t := time.Now()
			next.ServeHTTP(ww, r)
			l.Debug("%s:\t%s\t%s\t%d\t%s", name, r.Method, r.URL.Path, ww.Status(), time.Since(t))
		})
	}
}

// MetricsMiddleware records a count and timing per request against the
// given scope.
func MetricsMiddleware(scope *metrics.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			t := time.Now()
			next.ServeHTTP(ww, r)

			tags := metrics.Tags{
				"method": r.Method,
				"path":   r.URL.Path,
				"status": strconv.Itoa(ww.Status()),
			}
			scope.Count("http.request", 1, tags)
			scope.Timing("http.request.duration", time.Since(t), tags)
		})
	}
}
