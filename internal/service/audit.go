package service

import (
	"context"
	"time"

	"github.com/ayo6706/ramp-orchestrator/internal/domain"
	"github.com/ayo6706/ramp-orchestrator/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	RoutingOrderCompleted = "order.completed"
	RoutingOrderFailed    = "order.failed"
)

// AuditService writes the transition trail and terminal order events.
// Failures are logged and never block the order.
type AuditService struct {
	store     OrderStore
	publisher EventPublisher
	timeout   time.Duration
}

func NewAuditService(store OrderStore, publisher EventPublisher) *AuditService {
	return &AuditService{store: store, publisher: publisher, timeout: 3 * time.Second}
}

// AuditEntry is one transition and the snapshot of the order it moved.
type AuditEntry struct {
	Event models.OrderEvent
	View  models.OrderView
}

// Record stores the events and one snapshot per order, the last one seen.
// A cancel or a failed transfer closes one order and opens another, so a
// batch may span two order ids.
func (s *AuditService) Record(entries []AuditEntry) {
	if s == nil || len(entries) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if s.store != nil {
		events := make([]models.OrderEvent, 0, len(entries))
		for _, e := range entries {
			events = append(events, e.Event)
		}
		if err := s.store.AppendEvents(ctx, events); err != nil {
			zap.L().Error("append order events", zap.String("session_id", entries[0].View.SessionID), zap.Error(err))
		}
		for _, view := range latestViews(entries) {
			if err := s.store.SaveSnapshot(ctx, view); err != nil {
				zap.L().Error("save order snapshot", zap.String("order_id", view.Order.ID.String()), zap.Error(err))
			}
		}
	}

	if s.publisher == nil {
		return
	}
	for _, e := range entries {
		var key string
		switch e.Event.To {
		case domain.StepPaymentCompleted:
			key = RoutingOrderCompleted
		case domain.StepPaymentFailed:
			key = RoutingOrderFailed
		default:
			continue
		}
		if err := s.publisher.PublishOrder(ctx, key, e.View); err != nil {
			zap.L().Error("publish order event",
				zap.String("order_id", e.View.Order.ID.String()),
				zap.String("routing_key", key),
				zap.Error(err))
		}
	}
}

func latestViews(entries []AuditEntry) []models.OrderView {
	var views []models.OrderView
	index := make(map[uuid.UUID]int)
	for _, e := range entries {
		id := e.View.Order.ID
		if i, ok := index[id]; ok {
			views[i] = e.View
			continue
		}
		index[id] = len(views)
		views = append(views, e.View)
	}
	return views
}
