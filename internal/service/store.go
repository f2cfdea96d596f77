package service

import (
	"context"

	"github.com/ayo6706/ramp-orchestrator/internal/domain"
	"github.com/ayo6706/ramp-orchestrator/internal/models"
)

// OrderStore defines the minimal persistence contract required by services.
type OrderStore interface {
	SaveSnapshot(ctx context.Context, view models.OrderView) error
	AppendEvents(ctx context.Context, events []models.OrderEvent) error
}

// EventPublisher announces terminal orders to other systems.
type EventPublisher interface {
	PublishOrder(ctx context.Context, routingKey string, view models.OrderView) error
}

// HashGuard makes a transaction hash reach the backend at most once per transfer.
type HashGuard interface {
	Claim(ctx context.Context, transferID, txHash string) (bool, error)
}

// StatusPoller polls a transfer until a terminal status or stop. onStatus
// receives only terminal statuses. Exactly one of the callbacks runs at
// most once.
type StatusPoller interface {
	Start(transferID string, onStatus func(domain.TransferStatus), onError func(error)) (stop func())
}
