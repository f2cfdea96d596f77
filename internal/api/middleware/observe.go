package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/ayo6706/ramp-orchestrator/internal/observability"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TraceHeader carries the request correlation id in both directions.
const TraceHeader = "X-Trace-ID"

var inboundTraceID = regexp.MustCompile(`^[A-Za-z0-9._-]{8,64}$`)

// requestInfo is shared down the chain. The auth middleware fills in the
// wallet so the access log written on the way out can name it.
type requestInfo struct {
	traceID string
	wallet  string
}

// Observe assigns the trace id, then writes the access log line and the
// latency sample once the handler returns.
func Observe(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			traceID := r.Header.Get(TraceHeader)
			if !inboundTraceID.MatchString(traceID) {
				traceID = uuid.NewString()
			}
			info := &requestInfo{traceID: traceID}
			ctx := context.WithValue(r.Context(), traceContextKey, traceID)
			ctx = context.WithValue(ctx, infoContextKey, info)
			w.Header().Set(TraceHeader, traceID)

			rec := &statusRecorder{ResponseWriter: w}
			r = r.WithContext(ctx)
			next.ServeHTTP(rec, r)

			status := rec.code()
			route := routePattern(r)
			elapsed := time.Since(start)
			observability.ObserveHTTP(r.Method, route, status, elapsed)

			fields := append(requestFields(r),
				zap.Int("status", status),
				zap.Duration("duration", elapsed),
			)
			switch {
			case status >= http.StatusInternalServerError:
				logger.Error("http_request", fields...)
			case status == http.StatusTooManyRequests:
				logger.Warn("http_request", fields...)
			default:
				logger.Info("http_request", fields...)
			}
		})
	}
}

// requestFields names the request for logs: trace, route, the wallet once
// authenticated, and the session or order id from the path.
func requestFields(r *http.Request) []zap.Field {
	fields := []zap.Field{
		zap.String("trace_id", TraceIDFromContext(r.Context())),
		zap.String("method", r.Method),
		zap.String("route", routePattern(r)),
	}
	if info, ok := r.Context().Value(infoContextKey).(*requestInfo); ok && info.wallet != "" {
		fields = append(fields, zap.String("wallet", info.wallet))
	}
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if id := rc.URLParam("id"); id != "" {
			fields = append(fields, zap.String("resource_id", id))
		}
	}
	return fields
}

// noteWallet records the authenticated wallet on the shared request info.
func noteWallet(ctx context.Context, wallet string) {
	if info, ok := ctx.Value(infoContextKey).(*requestInfo); ok {
		info.wallet = wallet
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// TraceIDFromContext returns the trace id for the request.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceContextKey).(string); ok {
		return v
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	return sr.ResponseWriter.Write(b)
}

func (sr *statusRecorder) code() int {
	if sr.status == 0 {
		return http.StatusOK
	}
	return sr.status
}
