package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ayo6706/ramp-orchestrator/internal/domain"
	"github.com/ayo6706/ramp-orchestrator/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockGateway simulates the ramp backend for local runs and tests.
// It introduces a random delay and fails a configurable share of calls.
type MockGateway struct {
	// FailureRate is the probability of failure (0.0 to 1.0). Default: 0.05
	FailureRate float64
	// MaxDelay bounds the simulated latency. Zero disables it.
	MaxDelay time.Duration
	// PollsUntilComplete is how many status calls return TransferPending
	// before a transfer completes.
	PollsUntilComplete int
	// DefaultKYC is returned for addresses without an explicit record.
	DefaultKYC *models.KYCRecord

	mu        sync.Mutex
	kyc       map[string]*models.KYCRecord
	quotes    map[string]QuoteRequest
	transfers map[string]*mockTransfer
}

type mockTransfer struct {
	quoteID string
	txHash  string
	polls   int
}

// NewMockGateway creates a MockGateway that treats every wallet as verified.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		FailureRate:        0.05,
		MaxDelay:           1500 * time.Millisecond,
		PollsUntilComplete: 2,
		DefaultKYC: &models.KYCRecord{
			Status: domain.KYCStatusVerified,
			FullKYC: &models.FullKYC{
				FirstName:       "Ada",
				LastName:        "Obi",
				Nationality:     "NG",
				DateOfBirth:     "1990-01-01",
				Address:         "1 Marina, Lagos",
				Phone:           "08031234567",
				DocumentNumber:  "12345678901",
				DocumentType:    domain.DocCodeNationalID,
				DocumentSubType: domain.DocCodeNationalID,
			},
		},
		kyc:       make(map[string]*models.KYCRecord),
		quotes:    make(map[string]QuoteRequest),
		transfers: make(map[string]*mockTransfer),
	}
}

// SetKYC pins the record served for address. A nil record means "not found".
func (g *MockGateway) SetKYC(address string, record *models.KYCRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.kyc[strings.ToLower(address)] = record
}

func (g *MockGateway) CreateQuote(ctx context.Context, req QuoteRequest) (*models.Quote, error) {
	if err := g.simulate(ctx, "create_quote"); err != nil {
		return nil, err
	}

	fiat := req.FiatAmount
	crypto := req.CryptoAmount
	if fiat == "" {
		fiat = crypto
	}
	if crypto == "" {
		crypto = fiat
	}
	fee := decimal.Zero
	if d, err := decimal.NewFromString(fiat); err == nil {
		fee = d.Mul(decimal.RequireFromString("0.01")).Round(2)
	}

	quote := &models.Quote{
		QuoteID:      "q_" + uuid.NewString(),
		FiatAmount:   fiat,
		CryptoAmount: crypto,
		FiatType:     req.FiatType,
		CryptoType:   req.CryptoType,
		Network:      req.Network,
		FeeInFiat:    fee.String(),
		TransferType: req.TransferType,
		Address:      req.Address,
	}

	g.mu.Lock()
	g.quotes[quote.QuoteID] = req
	g.mu.Unlock()
	return quote, nil
}

func (g *MockGateway) CreateTransfer(ctx context.Context, req models.TransferRequest) (*models.Transfer, error) {
	if err := g.simulate(ctx, "create_transfer"); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	quote, ok := g.quotes[req.QuoteID]
	if !ok {
		return nil, &UpstreamError{Operation: "create_transfer", StatusCode: 404, Message: "quote not found"}
	}
	for _, t := range g.transfers {
		if t.quoteID == req.QuoteID {
			return nil, &UpstreamError{Operation: "create_transfer", StatusCode: 409, Message: "transfer already exists for quote"}
		}
	}

	id := "t_" + uuid.NewString()
	g.transfers[id] = &mockTransfer{quoteID: req.QuoteID}
	transfer := &models.Transfer{TransferID: id}
	if quote.TransferType == domain.TransferOut {
		// Deposit address the user pays into.
		transfer.TransferAddress = "0x" + strings.ReplaceAll(uuid.NewString(), "-", "") + "00000000"
	} else {
		transfer.UserActionDetails = map[string]string{
			"reference": strings.ToUpper(id[2:10]),
			"note":      "pay the exact fiat amount with the reference",
		}
	}
	return transfer, nil
}

func (g *MockGateway) SubmitTxHash(ctx context.Context, transferID, txHash string) error {
	if err := g.simulate(ctx, "submit_tx_hash"); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.transfers[transferID]
	if !ok {
		return &UpstreamError{Operation: "submit_tx_hash", StatusCode: 404, Message: "transfer not found"}
	}
	if t.txHash != "" && t.txHash != txHash {
		return &UpstreamError{Operation: "submit_tx_hash", StatusCode: 409, Message: "hash already submitted"}
	}
	t.txHash = txHash
	return nil
}

func (g *MockGateway) TransferStatus(ctx context.Context, transferID string) (domain.TransferStatus, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("gateway call canceled: %w", ctx.Err())
	default:
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.transfers[transferID]
	if !ok {
		return "", &UpstreamError{Operation: "transfer_status", StatusCode: 404, Message: "transfer not found"}
	}
	t.polls++
	if t.polls <= g.PollsUntilComplete {
		return domain.TransferStatusPending, nil
	}
	return domain.TransferStatusComplete, nil
}

func (g *MockGateway) FetchKYC(ctx context.Context, address string) (*models.KYCRecord, error) {
	if err := g.simulate(ctx, "fetch_kyc"); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if record, ok := g.kyc[strings.ToLower(address)]; ok {
		return record, nil
	}
	return g.DefaultKYC, nil
}

func (g *MockGateway) simulate(ctx context.Context, op string) error {
	if g.MaxDelay > 0 {
		delay := time.Duration(rand.Int63n(int64(g.MaxDelay)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("gateway call canceled: %w", ctx.Err())
		}
	}

	if rand.Float64() < g.FailureRate {
		return &UpstreamError{Operation: op, StatusCode: 503, Message: "gateway temporarily unavailable"}
	}
	return nil
}
