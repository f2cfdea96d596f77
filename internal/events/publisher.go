package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ayo6706/ramp-orchestrator/internal/domain"
	"github.com/ayo6706/ramp-orchestrator/internal/models"
	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// OrderMessage is the body published for a terminal order. Identity data is
// never included.
type OrderMessage struct {
	OrderID       uuid.UUID            `json:"order_id"`
	SessionID     string               `json:"session_id"`
	Flow          domain.Flow          `json:"flow"`
	Step          domain.Step          `json:"step"`
	Country       string               `json:"country"`
	Asset         string               `json:"asset"`
	Network       string               `json:"network"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	WalletAddress string               `json:"wallet_address"`
	QuoteID       string               `json:"quote_id,omitempty"`
	CryptoAmount  string               `json:"crypto_amount,omitempty"`
	FiatAmount    string               `json:"fiat_amount,omitempty"`
	TransferID    string               `json:"transfer_id,omitempty"`
	TxHash        string               `json:"tx_hash,omitempty"`
	Error         string               `json:"error,omitempty"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

func NewOrderMessage(view models.OrderView) OrderMessage {
	msg := OrderMessage{
		OrderID:       view.Order.ID,
		SessionID:     view.SessionID,
		Flow:          view.Order.Flow,
		Step:          view.Order.Step,
		Country:       view.Order.Country,
		Asset:         view.Order.Asset,
		Network:       view.Order.Network,
		PaymentMethod: view.Order.PaymentMethod,
		WalletAddress: view.Order.WalletAddress,
		TxHash:        view.TxHash,
		Error:         view.LastError,
		OccurredAt:    view.UpdatedAt,
	}
	if view.Quote != nil {
		msg.QuoteID = view.Quote.QuoteID
		msg.CryptoAmount = view.Quote.CryptoAmount
		msg.FiatAmount = view.Quote.FiatAmount
	}
	if view.Transfer != nil {
		msg.TransferID = view.Transfer.TransferID
	}
	return msg
}

// RabbitPublisher publishes order events to a durable topic exchange.
type RabbitPublisher struct {
	exchange string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// NewRabbitPublisher dials RabbitMQ and declares the exchange.
func NewRabbitPublisher(amqpURL, exchange string) (*RabbitPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	// Use a bounded dial timeout so startup does not hang indefinitely
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	p := &RabbitPublisher{exchange: exchange, conn: conn}
	if err := p.openChannel(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *RabbitPublisher) openChannel() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.channel = ch
	return nil
}

// PublishOrder sends the order under routingKey. A failed publish reopens
// the channel and retries once.
func (p *RabbitPublisher) PublishOrder(ctx context.Context, routingKey string, view models.OrderView) error {
	body, err := json.Marshal(NewOrderMessage(view))
	if err != nil {
		return fmt.Errorf("encode order message: %w", err)
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    view.Order.ID.String() + ":" + routingKey,
		Timestamp:    time.Now(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}
	zap.L().Warn("amqp publish failed; reopening channel",
		zap.String("exchange", p.exchange), zap.String("routing_key", routingKey), zap.Error(err))
	if p.conn == nil || p.conn.IsClosed() {
		return err
	}
	if reopenErr := p.openChannel(); reopenErr != nil {
		return errors.Join(err, reopenErr)
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

// Close closes the channel and connection.
func (p *RabbitPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// NopPublisher drops events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishOrder(_ context.Context, routingKey string, view models.OrderView) error {
	zap.L().Debug("order event publish skipped", zap.String("routing_key", routingKey), zap.String("order_id", view.Order.ID.String()))
	return nil
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("parse amqp url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}
