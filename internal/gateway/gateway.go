package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/ramp-orchestrator/internal/domain"
	"github.com/ayo6706/ramp-orchestrator/internal/models"
)

// ErrMalformedQuote is returned when a 2xx quote response carries no quote id.
var ErrMalformedQuote = errors.New("quote response missing quoteId")

// Gateway represents the external ramp backend.
type Gateway interface {
	CreateQuote(ctx context.Context, req QuoteRequest) (*models.Quote, error)
	CreateTransfer(ctx context.Context, req models.TransferRequest) (*models.Transfer, error)
	SubmitTxHash(ctx context.Context, transferID, txHash string) error
	TransferStatus(ctx context.Context, transferID string) (domain.TransferStatus, error)
	// FetchKYC returns nil, nil when the backend has no record for address.
	FetchKYC(ctx context.Context, address string) (*models.KYCRecord, error)
}

// QuoteRequest is the body of a quote call. Exactly one of FiatAmount and
// CryptoAmount is set.
type QuoteRequest struct {
	FiatType     string           `json:"fiatType"`
	CryptoType   string           `json:"cryptoType"`
	Network      string           `json:"network"`
	Country      string           `json:"country"`
	Address      string           `json:"address"`
	FiatAmount   string           `json:"fiatAmount,omitempty"`
	CryptoAmount string           `json:"cryptoAmount,omitempty"`
	TransferType domain.Direction `json:"transferType"`
}

// UpstreamError is a non-2xx answer from the backend.
type UpstreamError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: upstream returned status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: upstream returned status %d: %s", e.Operation, e.StatusCode, e.Message)
}
