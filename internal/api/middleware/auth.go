package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/ramp-orchestrator/internal/api/problem"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	walletContextKey contextKey = "wallet"
	traceContextKey  contextKey = "trace_id"
	infoContextKey   contextKey = "request_info"
)

// clockSkew is tolerated on nbf so a token is usable right after login.
const clockSkew = 30 * time.Second

var (
	errNoSecret     = errors.New("jwt secret not configured")
	errWalletClaims = errors.New("token subject does not match wallet")
)

var jwtSecret []byte
var jwtIssuer string
var jwtAudience string

// Claims is the token body issued after a wallet proves key ownership.
// Subject and Wallet both carry the checksummed address.
type Claims struct {
	Wallet string `json:"wallet"`
	jwt.RegisteredClaims
}

func SetJWTSecret(secret string) {
	if secret == "" {
		return
	}
	jwtSecret = []byte(secret)
}

func SetJWTValidation(issuer, audience string) {
	jwtIssuer = strings.TrimSpace(issuer)
	jwtAudience = strings.TrimSpace(audience)
}

func JWTSecret() []byte {
	clone := make([]byte, len(jwtSecret))
	copy(clone, jwtSecret)
	return clone
}

// IssueWalletToken signs a bearer token for wallet valid for ttl from now.
func IssueWalletToken(wallet string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	if len(jwtSecret) == 0 {
		return "", time.Time{}, errNoSecret
	}
	expires := now.Add(ttl)
	claims := Claims{
		Wallet: wallet,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   wallet,
			Issuer:    jwtIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-clockSkew)),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	if jwtAudience != "" {
		claims.Audience = jwt.ClaimStrings{jwtAudience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign wallet token: %w", err)
	}
	return signed, expires, nil
}

func parseWalletToken(raw string) (*Claims, error) {
	if len(jwtSecret) == 0 {
		return nil, errNoSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if jwtIssuer != "" {
		opts = append(opts, jwt.WithIssuer(jwtIssuer))
	}
	if jwtAudience != "" {
		opts = append(opts, jwt.WithAudience(jwtAudience))
	}
	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	}, opts...); err != nil {
		return nil, err
	}
	if claims.Wallet == "" || !strings.EqualFold(claims.Subject, claims.Wallet) {
		return nil, errWalletClaims
	}
	return claims, nil
}

// AuthMiddleware admits requests bearing a wallet token and puts the wallet
// address in the context.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/bearer-token-required"), "", "a wallet bearer token is required")
			return
		}

		claims, err := parseWalletToken(strings.TrimSpace(raw))
		switch {
		case err == nil:
		case errors.Is(err, errNoSecret):
			problem.Write(w, r, http.StatusInternalServerError, problem.Type("auth/misconfigured"), "", "auth is not configured")
			return
		case errors.Is(err, jwt.ErrTokenExpired):
			// The front-end re-runs the sign-in challenge on this type.
			problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/token-expired"), "", "wallet session expired; sign in again")
			return
		case errors.Is(err, errWalletClaims):
			problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/invalid-token-claims"), "", err.Error())
			return
		default:
			problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/invalid-token"), "", "invalid token")
			return
		}

		noteWallet(r.Context(), claims.Wallet)
		ctx := context.WithValue(r.Context(), walletContextKey, claims.Wallet)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WalletFromContext returns the authenticated wallet address.
func WalletFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(walletContextKey).(string); ok {
		return v
	}
	return ""
}
