package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/ayo6706/ramp-orchestrator/internal/service"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

// WebhookHandler receives transfer status pushed by the ramp backend.
type WebhookHandler struct {
	statuses *service.WebhookService
}

func NewWebhookHandler(statuses *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{statuses: statuses}
}

// HandleTransferStatus handles POST /v1/webhooks/transfer-status. The body
// must carry a valid X-Webhook-Signature before it reaches the live order.
func (h *WebhookHandler) HandleTransferStatus(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		zap.L().Warn("read transfer status body failed", zap.Error(err))
		RespondError(w, r, http.StatusRequestEntityTooLarge, "webhook/body-too-large", "body exceeds 64 KiB or could not be read")
		return
	}

	resp, err := h.statuses.HandleTransferStatus(body, r.Header.Get("X-Webhook-Signature"))
	if err != nil {
		var validation *service.ValidationError
		switch {
		case errors.Is(err, service.ErrInvalidSignature):
			RespondError(w, r, http.StatusUnauthorized, "webhook/invalid-signature", "Invalid signature")
		case errors.Is(err, service.ErrUnknownTransfer):
			// Not an error for the sender; the order may live on another replica or be gone.
			RespondError(w, r, http.StatusNotFound, "webhook/unknown-transfer", err.Error())
		case errors.As(err, &validation):
			respondServiceError(w, r, err)
		default:
			zap.L().Warn("process transfer status webhook failed", zap.Error(err))
			RespondError(w, r, http.StatusBadRequest, "webhook/invalid-payload", err.Error())
		}
		return
	}

	RespondJSON(w, http.StatusOK, resp)
}
