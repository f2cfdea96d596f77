package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/ramp-orchestrator/internal/domain"
	"github.com/ayo6706/ramp-orchestrator/internal/gateway"
	"github.com/ayo6706/ramp-orchestrator/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	testWallet  = "0x1111111111111111111111111111111111111111"
	testDeposit = "0x2222222222222222222222222222222222222222"
)

type stubGateway struct {
	mu           sync.Mutex
	seq          int
	quoteReqs    []gateway.QuoteRequest
	transferReqs []models.TransferRequest
	hashes       []string
	kycCalls     int

	kyc         *models.KYCRecord
	quoteErr    error
	transferErr error
	hashErr     error
	kycErr      error
	quoteGate   chan struct{}
}

func (s *stubGateway) CreateQuote(ctx context.Context, req gateway.QuoteRequest) (*models.Quote, error) {
	s.mu.Lock()
	s.quoteReqs = append(s.quoteReqs, req)
	s.seq++
	id := fmt.Sprintf("q%d", s.seq)
	gate := s.quoteGate
	err := s.quoteErr
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	crypto := req.CryptoAmount
	if crypto == "" {
		crypto = "25"
	}
	return &models.Quote{QuoteID: id, CryptoAmount: crypto, FiatAmount: req.FiatAmount, TransferType: req.TransferType}, nil
}

func (s *stubGateway) CreateTransfer(ctx context.Context, req models.TransferRequest) (*models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transferReqs = append(s.transferReqs, req)
	if s.transferErr != nil {
		return nil, s.transferErr
	}
	return &models.Transfer{TransferID: "t-" + req.QuoteID, TransferAddress: testDeposit}, nil
}

func (s *stubGateway) SubmitTxHash(ctx context.Context, transferID, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes = append(s.hashes, transferID+":"+txHash)
	return s.hashErr
}

func (s *stubGateway) TransferStatus(ctx context.Context, transferID string) (domain.TransferStatus, error) {
	return domain.TransferStatusPending, nil
}

func (s *stubGateway) FetchKYC(ctx context.Context, address string) (*models.KYCRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kycCalls++
	return s.kyc, s.kycErr
}

func (s *stubGateway) counts() (quotes, transfers, hashes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.quoteReqs), len(s.transferReqs), len(s.hashes)
}

func (s *stubGateway) lastTransfer() models.TransferRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transferReqs[len(s.transferReqs)-1]
}

type stubExecutor struct {
	mu        sync.Mutex
	chainID   int64
	chainErr  error
	submits   []models.PaymentInstruction
	onSuccess func(string)
	onFailure func(error)
	canceled  []uuid.UUID
}

func (e *stubExecutor) Submit(_ context.Context, inst models.PaymentInstruction, onSuccess func(string), onFailure func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submits = append(e.submits, inst)
	e.onSuccess = onSuccess
	e.onFailure = onFailure
}

func (e *stubExecutor) ActiveChainID(context.Context, string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chainID, e.chainErr
}

func (e *stubExecutor) Cancel(orderID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.canceled = append(e.canceled, orderID)
}

func (e *stubExecutor) succeed(hash string) {
	e.mu.Lock()
	cb := e.onSuccess
	e.mu.Unlock()
	cb(hash)
}

func (e *stubExecutor) fail(err error) {
	e.mu.Lock()
	cb := e.onFailure
	e.mu.Unlock()
	cb(err)
}

func (e *stubExecutor) lastInstruction() models.PaymentInstruction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submits[len(e.submits)-1]
}

type stubPoller struct {
	mu       sync.Mutex
	started  []string
	stops    int
	onStatus func(domain.TransferStatus)
	onError  func(error)
}

func (p *stubPoller) Start(transferID string, onStatus func(domain.TransferStatus), onError func(error)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, transferID)
	p.onStatus = onStatus
	p.onError = onError
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.stops++
	}
}

func (p *stubPoller) status(s domain.TransferStatus) {
	p.mu.Lock()
	cb := p.onStatus
	p.mu.Unlock()
	cb(s)
}

func (p *stubPoller) fail(err error) {
	p.mu.Lock()
	cb := p.onError
	p.mu.Unlock()
	cb(err)
}

func (p *stubPoller) startedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.started...)
}

type memOrderStore struct {
	mu        sync.Mutex
	events    []models.OrderEvent
	snapshots []models.OrderView
}

func (s *memOrderStore) SaveSnapshot(_ context.Context, view models.OrderView) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, view)
	return nil
}

func (s *memOrderStore) AppendEvents(_ context.Context, events []models.OrderEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *memOrderStore) countTo(step domain.Step) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.To == step {
			n++
		}
	}
	return n
}

// snapshotFor returns the last snapshot saved for the order.
func (s *memOrderStore) snapshotFor(id uuid.UUID) (models.OrderView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.snapshots) - 1; i >= 0; i-- {
		if s.snapshots[i].Order.ID == id {
			return s.snapshots[i], true
		}
	}
	return models.OrderView{}, false
}

func (s *memOrderStore) eventByAction(action string) (models.OrderEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.Action == action {
			return ev, true
		}
	}
	return models.OrderEvent{}, false
}

type stubGuard struct {
	mu      sync.Mutex
	claimed bool
	err     error
	calls   int
}

func (g *stubGuard) Claim(context.Context, string, string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.claimed, g.err
}

func (g *stubGuard) claims() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type stubPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *stubPublisher) PublishOrder(_ context.Context, key string, _ models.OrderView) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

type harness struct {
	m      *OrderMachine
	gw     *stubGateway
	ex     *stubExecutor
	poller *stubPoller
	store  *memOrderStore
	pub    *stubPublisher
}

func testDeps(gw *stubGateway, ex *stubExecutor, poller *stubPoller, store *memOrderStore, pub *stubPublisher) Deps {
	rates := NewFixedRateService(nil)
	return Deps{
		Gateway:  gw,
		Executor: ex,
		Gate:     NewKYCGate(NewKYCThresholdPolicy(rates, decimal.NewFromInt(100), decimal.NewFromInt(250)), rates),
		Payloads: NewTransferPayloadBuilder(),
		Rates:    rates,
		Poller:   poller,
		Audit:    NewAuditService(store, pub),
	}
}

func newHarness(t *testing.T, kyc *models.KYCRecord, cfg MachineConfig) *harness {
	t.Helper()
	h := &harness{
		gw:     &stubGateway{kyc: kyc},
		ex:     &stubExecutor{chainID: 8453},
		poller: &stubPoller{},
		store:  &memOrderStore{},
		pub:    &stubPublisher{},
	}
	if cfg.SigningTimeout == 0 {
		cfg.SigningTimeout = time.Minute
	}
	if cfg.HashSubmitDelay == 0 {
		cfg.HashSubmitDelay = time.Millisecond
	}
	h.m = NewOrderMachine("sess-1", testDeps(h.gw, h.ex, h.poller, h.store, h.pub), cfg)
	_, err := h.m.ConnectWallet(context.Background(), testWallet, 8453)
	require.NoError(t, err)
	return h
}

func (h *harness) step() domain.Step {
	return h.m.View().Order.Step
}

func verifiedKYC() *models.KYCRecord {
	return &models.KYCRecord{
		Status: domain.KYCStatusVerified,
		FullKYC: &models.FullKYC{
			FirstName:       "Jane",
			LastName:        "Wanjiru",
			Nationality:     "KE",
			DateOfBirth:     "1992-04-12",
			Address:         "12 Moi Avenue, Nairobi",
			Phone:           "0712345678",
			DocumentNumber:  "A1234567",
			DocumentType:    domain.DocCodePassport,
			DocumentSubType: domain.DocCodeNationalID,
		},
	}
}

// kenyaMobile is a mobile-money selection worth 50 USDC (6475 KES).
func kenyaMobile(network string) models.Selection {
	return models.Selection{
		Country:       "KE",
		Asset:         "USDC",
		Network:       network,
		PaymentMethod: domain.PaymentMethodMobileMoney,
		Amount:        "50",
		AmountUnit:    domain.AmountUnitCrypto,
		Institution:   "MPESA",
		AccountNumber: "0712345678",
		AccountName:   "Jane Wanjiru",
	}
}
