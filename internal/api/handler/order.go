package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayo6706/ramp-orchestrator/internal/models"
	"github.com/ayo6706/ramp-orchestrator/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// OrderReader is the read side of the order store.
type OrderReader interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*models.OrderView, error)
	ListOrdersByWallet(ctx context.Context, wallet string, limit, offset int) ([]models.OrderView, error)
	ListOrderEvents(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error)
}

// OrderHandler serves order history for the calling wallet.
type OrderHandler struct {
	orders OrderReader
}

func NewOrderHandler(orders OrderReader) *OrderHandler {
	return &OrderHandler{orders: orders}
}

type orderList struct {
	Orders []models.OrderView `json:"orders"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// List handles GET /v1/orders?limit=&offset=.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	wallet, ok := requestWallet(r)
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "auth/missing-wallet", "missing wallet in auth context")
		return
	}
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil || limit <= 0 || limit > maxPageSize {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-limit", "limit must be between 1 and 100")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-offset", "offset must not be negative")
		return
	}

	orders, err := h.orders.ListOrdersByWallet(r.Context(), wallet, limit, offset)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if orders == nil {
		orders = []models.OrderView{}
	}
	RespondJSON(w, http.StatusOK, orderList{Orders: orders, Limit: limit, Offset: offset})
}

// Get handles GET /v1/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, ok := h.owned(w, r)
	if !ok {
		return
	}
	RespondJSON(w, http.StatusOK, view)
}

// Events handles GET /v1/orders/{id}/events.
func (h *OrderHandler) Events(w http.ResponseWriter, r *http.Request) {
	view, ok := h.owned(w, r)
	if !ok {
		return
	}
	events, err := h.orders.ListOrderEvents(r.Context(), view.Order.ID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if events == nil {
		events = []models.OrderEvent{}
	}
	RespondJSON(w, http.StatusOK, events)
}

// owned loads the {id} order. Orders of other wallets read as not found.
func (h *OrderHandler) owned(w http.ResponseWriter, r *http.Request) (*models.OrderView, bool) {
	wallet, ok := requestWallet(r)
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "auth/missing-wallet", "missing wallet in auth context")
		return nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid order id")
		return nil, false
	}
	view, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return nil, false
	}
	if !strings.EqualFold(view.Order.WalletAddress, wallet) {
		respondServiceError(w, r, repository.ErrNotFound)
		return nil, false
	}
	return view, true
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
