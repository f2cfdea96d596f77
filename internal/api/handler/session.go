package handler

import (
	"net/http"
	"strings"

	"github.com/ayo6706/ramp-orchestrator/internal/domain"
	"github.com/ayo6706/ramp-orchestrator/internal/models"
	"github.com/ayo6706/ramp-orchestrator/internal/service"
	"github.com/go-chi/chi/v5"
)

// SessionHandler exposes one order machine per session to the front-end.
type SessionHandler struct {
	sessions *service.SessionManager
}

func NewSessionHandler(sessions *service.SessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type connectRequest struct {
	WalletAddress string `json:"wallet_address"`
	ChainID       int64  `json:"chain_id"`
}

type accountRequest struct {
	Institution   string `json:"institution"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

type confirmRequest struct {
	Flow domain.Flow `json:"flow"`
}

// session resolves the {id} path parameter for the calling wallet.
func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	wallet, ok := requestWallet(r)
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "auth/missing-wallet", "missing wallet in auth context")
		return nil, false
	}
	s, err := h.sessions.Get(chi.URLParam(r, "id"), wallet)
	if err != nil {
		respondServiceError(w, r, err)
		return nil, false
	}
	return s, true
}

// Create handles POST /v1/sessions. The wallet must be the one the token
// was issued to.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	wallet, ok := requestWallet(r)
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "auth/missing-wallet", "missing wallet in auth context")
		return
	}
	var req connectRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if req.WalletAddress == "" {
		req.WalletAddress = wallet
	}
	if !strings.EqualFold(req.WalletAddress, wallet) {
		RespondError(w, r, http.StatusForbidden, "auth/wallet-mismatch", "wallet does not match the authenticated address")
		return
	}

	_, view, err := h.sessions.Create(r.Context(), wallet, req.WalletAddress, req.ChainID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, view)
}

// Get handles GET /v1/sessions/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	RespondJSON(w, http.StatusOK, s.Machine.View())
}

// Delete handles DELETE /v1/sessions/{id}.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	wallet, ok := requestWallet(r)
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "auth/missing-wallet", "missing wallet in auth context")
		return
	}
	if err := h.sessions.Remove(chi.URLParam(r, "id"), wallet); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ConnectWallet handles POST /v1/sessions/{id}/wallet. A different address
// than the token's is refused, so switching accounts needs a new login.
func (h *SessionHandler) ConnectWallet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req connectRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if !strings.EqualFold(req.WalletAddress, s.Owner) {
		RespondError(w, r, http.StatusForbidden, "auth/wallet-mismatch", "wallet does not match the authenticated address")
		return
	}
	view, err := s.Machine.ConnectWallet(r.Context(), req.WalletAddress, req.ChainID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, view)
}

// DisconnectWallet handles DELETE /v1/sessions/{id}/wallet.
func (h *SessionHandler) DisconnectWallet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	RespondJSON(w, http.StatusOK, s.Machine.DisconnectWallet())
}

// RefreshKYC handles POST /v1/sessions/{id}/kyc/refresh.
func (h *SessionHandler) RefreshKYC(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	view, err := s.Machine.RefreshKYC(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, view)
}

// Select handles PUT /v1/sessions/{id}/selection.
func (h *SessionHandler) Select(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var sel models.Selection
	if err := decodeJSON(r, &sel); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	view, err := s.Machine.Select(sel)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, view)
}

// SetAccount handles PUT /v1/sessions/{id}/account.
func (h *SessionHandler) SetAccount(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req accountRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	view, err := s.Machine.SetPayoutAccount(req.Institution, req.AccountNumber, req.AccountName)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, view)
}

// Confirm handles POST /v1/sessions/{id}/confirm.
func (h *SessionHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	view, err := s.Machine.Confirm(r.Context(), domain.Flow(strings.ToLower(string(req.Flow))))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, view)
}

// CreateTransfer handles POST /v1/sessions/{id}/transfer, the second step
// of a withdraw.
func (h *SessionHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	view, err := s.Machine.CreateTransfer(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, view)
}

// Cancel handles POST /v1/sessions/{id}/cancel.
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	RespondJSON(w, http.StatusOK, s.Machine.Cancel())
}
