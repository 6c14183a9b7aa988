package middleware

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/metrics"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// RequestLogger logs each request and records HTTP metrics by route pattern
type RequestLogger struct {
	logger *zap.Logger
}

// NewRequestLogger creates a new request logger
func NewRequestLogger(logger *zap.Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// Middleware returns the HTTP middleware function
func (rl *RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		elapsed := time.Since(start)
		rt := route(r)
		metrics.RecordHTTPRequest(rt, r.Method, strconv.Itoa(sw.status), elapsed.Seconds())

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("route", rt),
			zap.Int("status", sw.status),
			zap.Duration("duration", elapsed),
			zap.String("trace_id", w.Header().Get("X-Trace-ID")),
		}
		switch {
		case sw.status >= 500:
			rl.logger.Error("Request failed", fields...)
		case sw.status >= 400:
			rl.logger.Warn("Request rejected", fields...)
		default:
			rl.logger.Info("Request served", fields...)
		}
	})
}
