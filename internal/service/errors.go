package service

import (
	"errors"
	"fmt"

	"github.com/ayo6706/ramp-orchestrator/internal/domain"
)

var (
	ErrOperationPending  = errors.New("operation already in progress")
	ErrInvalidTransition = errors.New("invalid order state transition")
	ErrSigningTimeout    = errors.New("wallet did not sign within the allowed time")
	ErrNoQuote           = errors.New("order has no quote")
	ErrWalletRequired    = errors.New("wallet is not connected")
	ErrSelectionLocked   = errors.New("selection cannot change while an order is in progress")
	ErrSessionNotFound   = errors.New("session not found")
	ErrUnsupportedRate   = errors.New("no exchange rate for currency")
)

// Payload builder failures. Each is wrapped in a *ValidationError.
var (
	ErrInstitutionRequired   = errors.New("institution is required")
	ErrAccountNumberRequired = errors.New("account number is required")
	ErrKYCRecordRequired     = errors.New("verified identity record is required")
)

// ValidationError reports a missing or invalid selection field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalidField(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

// KYCError is returned when the KYC gate refuses an order.
type KYCError struct {
	Reason string
	Link   string
	Status domain.KYCStatus
}

func (e *KYCError) Error() string {
	return "kyc: " + e.Reason
}
