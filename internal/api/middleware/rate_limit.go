package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/ramp-orchestrator/internal/api/problem"
	"github.com/go-chi/httprate"
)

// PublicRateLimiter limits unauthenticated routes per client IP and endpoint,
// so a burst of sign-in challenges does not starve webhook deliveries.
func PublicRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(limitExceeded("client", rps)),
	)
}

// AuthRateLimiter limits authenticated callers per wallet, whatever IPs they
// come from.
func AuthRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if wallet := WalletFromContext(r.Context()); wallet != "" {
				return "wallet:" + strings.ToLower(wallet), nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(limitExceeded("wallet", rps)),
	)
}

func limitExceeded(scope string, rps int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		problem.Write(w, r, http.StatusTooManyRequests, problem.Type("rate-limit-exceeded"), "",
			fmt.Sprintf("limit of %d requests per second exceeded for this %s", rps, scope))
	}
}
