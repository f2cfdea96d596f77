package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/ramp-orchestrator/internal/domain"
	"go.uber.org/zap"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrUnknownTransfer  = errors.New("no live order holds this transfer")
)

// TransferStatusPayload is the body the ramp backend pushes when a
// transfer settles.
type TransferStatusPayload struct {
	TransferID string                `json:"transferId"`
	Status     domain.TransferStatus `json:"status"`
}

// TransferStatusResponse acknowledges a delivered status.
type TransferStatusResponse struct {
	TransferID string                `json:"transfer_id"`
	Status     domain.TransferStatus `json:"status"`
	Message    string                `json:"message"`
}

// WebhookService feeds pushed transfer statuses into the live sessions.
// Polling stays authoritative; a push only shortens the wait.
type WebhookService struct {
	sessions *SessionManager
	hmacKey  []byte
	skipSig  bool
}

func NewWebhookService(sessions *SessionManager, hmacKey string, skipSignature bool) *WebhookService {
	return &WebhookService{
		sessions: sessions,
		hmacKey:  []byte(hmacKey),
		skipSig:  skipSignature,
	}
}

// HandleTransferStatus verifies the signature and delivers the status to the
// order that owns the transfer.
func (s *WebhookService) HandleTransferStatus(payload []byte, signature string) (*TransferStatusResponse, error) {
	if !s.verifyHMAC(payload, signature) {
		return nil, ErrInvalidSignature
	}

	var in TransferStatusPayload
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	in.TransferID = strings.TrimSpace(in.TransferID)
	in.Status = domain.TransferStatus(strings.TrimSpace(string(in.Status)))
	if in.TransferID == "" {
		return nil, invalidField("transferId", "is required")
	}
	switch in.Status {
	case domain.TransferStatusPending, domain.TransferStatusComplete, domain.TransferStatusFailed:
	default:
		return nil, invalidField("status", "unsupported transfer status")
	}

	if !s.sessions.DeliverTransferStatus(in.TransferID, in.Status) {
		zap.L().Info("transfer status for unknown transfer", zap.String("transfer_id", in.TransferID))
		return nil, ErrUnknownTransfer
	}
	return &TransferStatusResponse{
		TransferID: in.TransferID,
		Status:     in.Status,
		Message:    "status delivered",
	}, nil
}

// verifyHMAC checks a "sha256=<hex>" signature over the raw body.
func (s *WebhookService) verifyHMAC(payload []byte, signature string) bool {
	if s.skipSig {
		return true
	}
	if len(s.hmacKey) == 0 {
		return false
	}

	h := hmac.New(sha256.New, s.hmacKey)
	h.Write(payload)
	expectedSig := "sha256=" + hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expectedSig))
}
