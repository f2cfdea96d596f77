package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ayo6706/ramp-orchestrator/internal/models"
	"github.com/google/uuid"
)

// MemoryOrderRepository keeps snapshots in process. Used when no database
// is configured.
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]models.OrderView
	events map[uuid.UUID][]models.OrderEvent
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders: make(map[uuid.UUID]models.OrderView),
		events: make(map[uuid.UUID][]models.OrderEvent),
	}
}

func (r *MemoryOrderRepository) SaveSnapshot(_ context.Context, view models.OrderView) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.orders[view.Order.ID]; ok && prev.UpdatedAt.After(view.UpdatedAt) {
		return nil
	}
	r.orders[view.Order.ID] = redact(view)
	return nil
}

func (r *MemoryOrderRepository) AppendEvents(_ context.Context, events []models.OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range events {
		r.events[ev.OrderID] = append(r.events[ev.OrderID], ev)
	}
	return nil
}

func (r *MemoryOrderRepository) GetOrder(_ context.Context, id uuid.UUID) (*models.OrderView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	view, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &view, nil
}

func (r *MemoryOrderRepository) ListOrdersByWallet(_ context.Context, wallet string, limit, offset int) ([]models.OrderView, error) {
	r.mu.RLock()
	var views []models.OrderView
	for _, v := range r.orders {
		if strings.EqualFold(v.Order.WalletAddress, wallet) {
			views = append(views, v)
		}
	}
	r.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool { return views[i].UpdatedAt.After(views[j].UpdatedAt) })
	if offset >= len(views) {
		return nil, nil
	}
	views = views[offset:]
	if limit > 0 && limit < len(views) {
		views = views[:limit]
	}
	return views, nil
}

func (r *MemoryOrderRepository) ListOrderEvents(_ context.Context, orderID uuid.UUID) ([]models.OrderEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.OrderEvent(nil), r.events[orderID]...), nil
}
