package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/ayo6706/ramp-orchestrator/internal/api/middleware"
	"github.com/ayo6706/ramp-orchestrator/internal/auth"
	"go.uber.org/zap"
)

const tokenTTL = 12 * time.Hour

type AuthHandler struct {
	wallets *auth.WalletAuthenticator
}

func NewAuthHandler(wallets *auth.WalletAuthenticator) *AuthHandler {
	return &AuthHandler{wallets: wallets}
}

type walletRequest struct {
	WalletAddress string `json:"wallet_address"`
}

type loginRequest struct {
	WalletAddress string `json:"wallet_address"`
	Signature     string `json:"signature"`
}

type loginResponse struct {
	Token         string    `json:"token"`
	WalletAddress string    `json:"wallet_address"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Challenge handles POST /v1/auth/challenge.
func (h *AuthHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	var req walletRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	c, err := h.wallets.Challenge(r.Context(), req.WalletAddress)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidWallet) {
			RespondError(w, r, http.StatusUnprocessableEntity, "auth/invalid-wallet", err.Error())
			return
		}
		zap.L().Error("issue sign-in challenge failed", zap.Error(err))
		RespondError(w, r, http.StatusServiceUnavailable, "auth/unavailable", "sign-in is temporarily unavailable")
		return
	}
	RespondJSON(w, http.StatusOK, c)
}

// Login handles POST /v1/auth/login. The wallet signs the challenge message
// with personal_sign and receives a bearer token scoped to that address.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	wallet, err := h.wallets.Verify(r.Context(), req.WalletAddress, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidWallet):
			RespondError(w, r, http.StatusUnprocessableEntity, "auth/invalid-wallet", err.Error())
		case errors.Is(err, auth.ErrNoChallenge), errors.Is(err, auth.ErrInvalidSignature):
			RespondError(w, r, http.StatusUnauthorized, "auth/invalid-signature", err.Error())
		default:
			zap.L().Error("verify wallet signature failed", zap.Error(err))
			RespondError(w, r, http.StatusServiceUnavailable, "auth/unavailable", "sign-in is temporarily unavailable")
		}
		return
	}

	tokenString, expires, err := middleware.IssueWalletToken(wallet, tokenTTL, time.Now())
	if err != nil {
		zap.L().Error("issue wallet token failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "auth/token", "failed to sign token")
		return
	}

	RespondJSON(w, http.StatusOK, loginResponse{
		Token:         tokenString,
		WalletAddress: wallet,
		ExpiresAt:     expires.UTC(),
	})
}
