package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/ramp-orchestrator/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("order not found")

// OrderRepository persists order snapshots and their transition trail.
type OrderRepository struct {
	db *pgxpool.Pool
	tx txRunner
}

func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db, tx: txRunner{db: db}}
}

// SaveSnapshot upserts the latest view of an order. An older snapshot never
// overwrites a newer one.
func (r *OrderRepository) SaveSnapshot(ctx context.Context, view models.OrderView) error {
	payload, err := json.Marshal(redact(view))
	if err != nil {
		return fmt.Errorf("encode order view: %w", err)
	}

	query := `
		INSERT INTO ramp_orders (id, session_id, wallet_address, flow, step, country, asset, network,
			payment_method, quote_id, transfer_id, tx_hash, last_error, view, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			wallet_address = EXCLUDED.wallet_address,
			flow = EXCLUDED.flow,
			step = EXCLUDED.step,
			country = EXCLUDED.country,
			asset = EXCLUDED.asset,
			network = EXCLUDED.network,
			payment_method = EXCLUDED.payment_method,
			quote_id = EXCLUDED.quote_id,
			transfer_id = EXCLUDED.transfer_id,
			tx_hash = EXCLUDED.tx_hash,
			last_error = EXCLUDED.last_error,
			view = EXCLUDED.view,
			updated_at = EXCLUDED.updated_at
		WHERE ramp_orders.updated_at <= EXCLUDED.updated_at
	`
	o := view.Order
	_, err = r.db.Exec(ctx, query,
		o.ID, view.SessionID, o.WalletAddress, string(o.Flow), string(o.Step), o.Country, o.Asset, o.Network,
		string(o.PaymentMethod), quoteID(view), transferID(view), nullable(view.TxHash), nullable(view.LastError),
		payload, view.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save order snapshot: %w", err)
	}
	return nil
}

// AppendEvents writes transition events in one transaction.
func (r *OrderRepository) AppendEvents(ctx context.Context, events []models.OrderEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.tx.run(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, ev := range events {
			batch.Queue(`
				INSERT INTO order_events (order_id, session_id, flow, from_step, to_step, action, reason, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				ev.OrderID, ev.SessionID, string(ev.Flow), string(ev.From), string(ev.To), ev.Action, nullable(ev.Reason), ev.CreatedAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to append order events: %w", err)
		}
		return nil
	})
}

func (r *OrderRepository) GetOrder(ctx context.Context, id uuid.UUID) (*models.OrderView, error) {
	var payload []byte
	err := r.db.QueryRow(ctx, `SELECT view FROM ramp_orders WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	var view models.OrderView
	if err := json.Unmarshal(payload, &view); err != nil {
		return nil, fmt.Errorf("decode order view: %w", err)
	}
	return &view, nil
}

// ListOrdersByWallet returns the wallet's orders, newest first.
func (r *OrderRepository) ListOrdersByWallet(ctx context.Context, wallet string, limit, offset int) ([]models.OrderView, error) {
	query := `
		SELECT view
		FROM ramp_orders
		WHERE LOWER(wallet_address) = LOWER($1)
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, wallet, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var views []models.OrderView
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		var view models.OrderView
		if err := json.Unmarshal(payload, &view); err != nil {
			return nil, fmt.Errorf("decode order view: %w", err)
		}
		views = append(views, view)
	}
	return views, rows.Err()
}

func (r *OrderRepository) ListOrderEvents(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error) {
	query := `
		SELECT order_id, session_id, flow, from_step, to_step, action, COALESCE(reason, ''), created_at
		FROM order_events
		WHERE order_id = $1
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order events: %w", err)
	}
	defer rows.Close()

	var events []models.OrderEvent
	for rows.Next() {
		var ev models.OrderEvent
		if err := rows.Scan(&ev.OrderID, &ev.SessionID, &ev.Flow, &ev.From, &ev.To, &ev.Action, &ev.Reason, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// redact drops identity data and the live signing request before storage.
func redact(view models.OrderView) models.OrderView {
	view.KYC = nil
	view.Instruction = nil
	view.Pending = nil
	return view
}

func quoteID(view models.OrderView) *string {
	if view.Quote == nil {
		return nil
	}
	return nullable(view.Quote.QuoteID)
}

func transferID(view models.OrderView) *string {
	if view.Transfer == nil {
		return nil
	}
	return nullable(view.Transfer.TransferID)
}

func nullable(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
