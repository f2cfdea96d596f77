package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayo6706/ramp-orchestrator/internal/executor"
	"github.com/ayo6706/ramp-orchestrator/internal/service"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// PaymentHandler lets the browser wallet pick up the payment instruction
// and report the signing outcome.
type PaymentHandler struct {
	sessions *SessionHandler
	bridge   *executor.WalletBridge
}

func NewPaymentHandler(sessions *service.SessionManager, bridge *executor.WalletBridge) *PaymentHandler {
	return &PaymentHandler{sessions: NewSessionHandler(sessions), bridge: bridge}
}

type completeRequest struct {
	TxHash string `json:"tx_hash"`
}

type failRequest struct {
	Reason   string `json:"reason"`
	Rejected bool   `json:"rejected"`
}

type chainRequest struct {
	ChainID int64 `json:"chain_id"`
}

// Pending handles GET /v1/sessions/{id}/payment.
func (h *PaymentHandler) Pending(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.session(w, r)
	if !ok {
		return
	}
	inst, ok := h.bridge.Pending(s.Machine.View().Order.ID)
	if !ok {
		RespondError(w, r, http.StatusNotFound, "payment/not-pending", executor.ErrNoPendingPayment.Error())
		return
	}
	RespondJSON(w, http.StatusOK, inst)
}

// Complete handles POST /v1/sessions/{id}/payment/complete with the hash of
// the broadcast transaction.
func (h *PaymentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.session(w, r)
	if !ok {
		return
	}
	var req completeRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	hash := strings.TrimSpace(req.TxHash)
	if raw, err := hexutil.Decode(hash); err != nil || len(raw) != 32 {
		RespondError(w, r, http.StatusUnprocessableEntity, "payment/invalid-tx-hash", "tx_hash must be a 32-byte hex string")
		return
	}
	if err := h.bridge.Complete(s.Machine.View().Order.ID, hash); err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, s.Machine.View())
}

// Fail handles POST /v1/sessions/{id}/payment/fail.
func (h *PaymentHandler) Fail(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.session(w, r)
	if !ok {
		return
	}
	var req failRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	var cause error
	switch reason := strings.TrimSpace(req.Reason); {
	case req.Rejected:
		cause = executor.ErrUserRejected
	case reason != "":
		cause = errors.New(reason)
	default:
		cause = errors.New("wallet reported a failure")
	}
	if err := h.bridge.Fail(s.Machine.View().Order.ID, cause); err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, s.Machine.View())
}

// ReportChain handles PUT /v1/sessions/{id}/chain when the wallet switches
// networks.
func (h *PaymentHandler) ReportChain(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.session(w, r)
	if !ok {
		return
	}
	var req chainRequest
	if err := decodeJSON(r, &req); err != nil || req.ChainID <= 0 {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "chain_id must be a positive integer")
		return
	}
	view := s.Machine.View()
	if view.Order.WalletAddress == "" {
		respondServiceError(w, r, service.ErrWalletRequired)
		return
	}
	h.bridge.ReportChain(view.Order.WalletAddress, req.ChainID)
	w.WriteHeader(http.StatusNoContent)
}
