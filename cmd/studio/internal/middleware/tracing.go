package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/tracing"
)

type ctxKey int

const traceIDKey ctxKey = iota

// TraceIDFromContext returns the request trace ID set by TracingMiddleware.
func TraceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// TracingMiddleware assigns every request a trace ID and an OpenTelemetry span
type TracingMiddleware struct {
	logger *zap.Logger
}

// NewTracingMiddleware creates a new tracing middleware
func NewTracingMiddleware(logger *zap.Logger) *TracingMiddleware {
	return &TracingMiddleware{
		logger: logger,
	}
}

// Middleware returns the HTTP middleware function
func (tm *TracingMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartSpan(r.Context(), spanName(r))
		defer span.End()
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route(r)),
		)

		traceID := tm.extractTraceID(r)
		if traceID == "" {
			traceID = tracing.TraceID(ctx)
		}
		if traceID == "" {
			traceID = strings.ReplaceAll(uuid.NewString(), "-", "")
		}

		ctx = context.WithValue(ctx, traceIDKey, traceID)
		w.Header().Set("X-Trace-ID", traceID)

		tm.logger.Debug("Request received",
			zap.String("trace_id", traceID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractTraceID reads a caller supplied trace ID. W3C traceparent wins over
// the custom headers; malformed values are ignored.
func (tm *TracingMiddleware) extractTraceID(r *http.Request) string {
	if traceID, _, _, ok := tracing.ParseTraceparent(r.Header.Get("traceparent")); ok {
		return traceID
	}
	for _, h := range []string{"X-Trace-ID", "X-Request-ID"} {
		if v := r.Header.Get(h); v != "" && idRe.MatchString(v) {
			return v
		}
	}
	return ""
}

func route(r *http.Request) string {
	if r.Pattern != "" {
		if _, path, ok := strings.Cut(r.Pattern, " "); ok {
			return path
		}
		return r.Pattern
	}
	return r.URL.Path
}

func spanName(r *http.Request) string {
	return "http " + r.Method + " " + route(r)
}
