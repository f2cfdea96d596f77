package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/ayo6706/ramp-orchestrator/internal/api/problem"
	"go.uber.org/zap"
)

// RecoverMiddleware answers a handler panic with a 500 problem.
// http.ErrAbortHandler is re-raised so the server still aborts.
func RecoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				fields := append(requestFields(r),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
				logger.Error("handler panic", fields...)
				problem.WriteDetails(w, r, problem.Details{
					Type:   problem.Type("internal-server-error"),
					Status: http.StatusInternalServerError,
					Detail: "unexpected server error",
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
