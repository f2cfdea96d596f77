package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ayo6706/ramp-orchestrator/internal/domain"
	"github.com/ayo6706/ramp-orchestrator/internal/executor"
	"github.com/ayo6706/ramp-orchestrator/internal/gateway"
	"github.com/ayo6706/ramp-orchestrator/internal/models"
	"github.com/ayo6706/ramp-orchestrator/internal/observability"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrOrderReset is returned to a caller whose operation finished after the
// order was canceled. The result is discarded.
var ErrOrderReset = errors.New("order was reset while the operation was in flight")

type operation string

const (
	opQuote    operation = "quote"
	opTransfer operation = "transfer"
	opHash     operation = "hash"
	opKYC      operation = "kyc"
)

const hashSubmitTimeout = 30 * time.Second

// MachineConfig holds the timing policy of an order.
type MachineConfig struct {
	SigningTimeout  time.Duration
	HashSubmitDelay time.Duration
}

// Deps are the collaborators shared by every machine.
type Deps struct {
	Gateway  gateway.Gateway
	Executor executor.Executor
	Gate     *KYCGate
	Payloads *TransferPayloadBuilder
	Rates    ExchangeRateService
	Poller   StatusPoller
	Guard    HashGuard
	Audit    *AuditService
}

// chainReporter is implemented by executors that learn the wallet chain
// from the client.
type chainReporter interface {
	ReportChain(wallet string, chainID int64)
}

// OrderMachine drives one session's order through its lifecycle.
type OrderMachine struct {
	sessionID string
	deps      Deps
	cfg       MachineConfig

	mu            sync.Mutex
	order         models.Order
	quote         *models.Quote
	transfer      *models.Transfer
	txHash        string
	kyc           *models.KYCRecord
	instruction   *models.PaymentInstruction
	lastErr       string
	pending       map[operation]bool
	attempt       uint64
	hashSubmitted bool
	signTimer     *time.Timer
	hashTimer     *time.Timer
	stopPoll      func()
	updatedAt     time.Time
	outbox        []AuditEntry
}

func NewOrderMachine(sessionID string, deps Deps, cfg MachineConfig) *OrderMachine {
	if cfg.SigningTimeout <= 0 {
		cfg.SigningTimeout = 120 * time.Second
	}
	if cfg.HashSubmitDelay <= 0 {
		cfg.HashSubmitDelay = 2 * time.Second
	}
	return &OrderMachine{
		sessionID: sessionID,
		deps:      deps,
		cfg:       cfg,
		order:     newOrder(""),
		pending:   make(map[operation]bool),
		updatedAt: time.Now().UTC(),
	}
}

func newOrder(wallet string) models.Order {
	return models.Order{
		ID:            uuid.New(),
		Step:          domain.StepInitial,
		AppState:      domain.AppStateIdle,
		WalletAddress: wallet,
	}
}

// View returns a consistent snapshot of the order.
func (m *OrderMachine) View() models.OrderView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

// Busy reports whether an operation or payment is in flight.
func (m *OrderMachine) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pending {
		if p {
			return true
		}
	}
	switch m.order.Step {
	case domain.StepWaitingForPayment, domain.StepProcessingPayment, domain.StepGotTransfer:
		return true
	}
	return false
}

// ConnectWallet binds a wallet and loads its KYC record. Switching to a
// different wallet cancels the current order.
func (m *OrderMachine) ConnectWallet(ctx context.Context, address string, chainID int64) (models.OrderView, error) {
	if !common.IsHexAddress(address) {
		return models.OrderView{}, invalidField("wallet_address", "not a valid EVM address")
	}
	address = common.HexToAddress(address).Hex()

	m.mu.Lock()
	if !strings.EqualFold(m.order.WalletAddress, address) {
		if m.order.WalletAddress != "" {
			m.resetLocked("wallet_changed", false)
		}
		m.order.WalletAddress = address
		m.kyc = nil
	}
	m.unlock()

	if r, ok := m.deps.Executor.(chainReporter); ok && chainID > 0 {
		r.ReportChain(address, chainID)
	}
	return m.RefreshKYC(ctx)
}

// DisconnectWallet clears the KYC record and cancels the order.
func (m *OrderMachine) DisconnectWallet() models.OrderView {
	m.mu.Lock()
	defer m.unlock()
	m.resetLocked("wallet_disconnected", false)
	m.order.WalletAddress = ""
	m.kyc = nil
	return m.viewLocked()
}

// RefreshKYC re-fetches the KYC record for the connected wallet.
func (m *OrderMachine) RefreshKYC(ctx context.Context) (models.OrderView, error) {
	m.mu.Lock()
	if m.order.WalletAddress == "" {
		m.mu.Unlock()
		return models.OrderView{}, ErrWalletRequired
	}
	if m.pending[opKYC] {
		m.mu.Unlock()
		return models.OrderView{}, ErrOperationPending
	}
	m.pending[opKYC] = true
	wallet := m.order.WalletAddress
	m.mu.Unlock()

	record, err := m.deps.Gateway.FetchKYC(ctx, wallet)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[opKYC] = false
	if err != nil {
		return m.viewLocked(), fmt.Errorf("fetch kyc: %w", err)
	}
	if m.order.WalletAddress == wallet {
		m.kyc = record
		m.touchLocked()
	}
	return m.viewLocked(), nil
}

// Select replaces the user's selection. Only allowed before a quote exists.
func (m *OrderMachine) Select(sel models.Selection) (models.OrderView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.order.Step != domain.StepInitial || m.pending[opQuote] {
		return m.viewLocked(), ErrSelectionLocked
	}
	m.order.Country = strings.ToUpper(strings.TrimSpace(sel.Country))
	m.order.Asset = strings.ToUpper(strings.TrimSpace(sel.Asset))
	m.order.Network = strings.ToLower(strings.TrimSpace(sel.Network))
	m.order.PaymentMethod = sel.PaymentMethod
	m.order.Amount = strings.TrimSpace(sel.Amount)
	m.order.AmountUnit = sel.AmountUnit
	if m.order.AmountUnit == "" {
		m.order.AmountUnit = domain.AmountUnitFiat
	}
	m.order.Institution = strings.TrimSpace(sel.Institution)
	m.order.AccountNumber = strings.TrimSpace(sel.AccountNumber)
	m.order.AccountName = strings.TrimSpace(sel.AccountName)
	m.lastErr = ""
	m.touchLocked()
	return m.viewLocked(), nil
}

// SetPayoutAccount sets the institution and account used by the transfer
// payload. Allowed until the transfer exists.
func (m *OrderMachine) SetPayoutAccount(institution, accountNumber, accountName string) (models.OrderView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transfer != nil || m.pending[opTransfer] ||
		(m.order.Step != domain.StepInitial && m.order.Step != domain.StepGotQuote) {
		return m.viewLocked(), ErrSelectionLocked
	}
	m.order.Institution = strings.TrimSpace(institution)
	m.order.AccountNumber = strings.TrimSpace(accountNumber)
	m.order.AccountName = strings.TrimSpace(accountName)
	m.touchLocked()
	return m.viewLocked(), nil
}

// Confirm validates the selection, runs the KYC gate and creates a quote.
// Buy and pay continue straight into transfer creation; withdraw stops in
// GotQuote until CreateTransfer.
func (m *OrderMachine) Confirm(ctx context.Context, flow domain.Flow) (models.OrderView, error) {
	m.mu.Lock()
	if m.pending[opQuote] || m.pending[opTransfer] {
		m.mu.Unlock()
		return models.OrderView{}, ErrOperationPending
	}
	if err := checkTransition(m.order.Step, domain.StepGotQuote); err != nil {
		m.mu.Unlock()
		return models.OrderView{}, err
	}
	if !flow.Valid() {
		m.mu.Unlock()
		return models.OrderView{}, invalidField("flow", "must be one of buy, withdraw, pay")
	}
	m.order.Flow = flow
	m.order.Direction = flow.Direction()
	m.pending[opQuote] = true
	m.order.AppState = domain.AppStateProcessing
	m.lastErr = ""
	order := m.order
	record := m.kyc
	attempt := m.attempt
	m.mu.Unlock()

	req, err := m.prepareQuote(ctx, order, record)
	if err != nil {
		m.mu.Lock()
		defer m.unlock()
		if m.attempt == attempt {
			m.pending[opQuote] = false
			m.order.AppState = domain.AppStateIdle
		}
		return m.viewLocked(), err
	}

	quote, err := m.deps.Gateway.CreateQuote(ctx, req)

	m.mu.Lock()
	if m.attempt != attempt {
		view := m.viewLocked()
		m.mu.Unlock()
		return view, ErrOrderReset
	}
	m.pending[opQuote] = false
	if err != nil {
		m.order.AppState = domain.AppStateIdle
		m.lastErr = err.Error()
		view := m.viewLocked()
		m.mu.Unlock()
		m.logger().Warn("quote creation failed", zap.Error(err))
		return view, fmt.Errorf("create quote: %w", err)
	}

	m.quote = quote
	m.transitionLocked(domain.StepGotQuote, "quote_created", "")
	if flow == domain.FlowWithdraw {
		m.order.AppState = domain.AppStateIdle
		view := m.viewLocked()
		m.unlock()
		return view, nil
	}

	m.pending[opTransfer] = true
	in := PayloadInput{Order: m.order, QuoteID: quote.QuoteID, KYC: m.kyc}
	m.unlock()
	return m.runTransfer(ctx, in, attempt)
}

// CreateTransfer is the withdraw flow's second step. For buy and pay it
// retries a transfer whose payload could not be built after the quote.
func (m *OrderMachine) CreateTransfer(ctx context.Context) (models.OrderView, error) {
	m.mu.Lock()
	if m.pending[opQuote] || m.pending[opTransfer] {
		m.mu.Unlock()
		return models.OrderView{}, ErrOperationPending
	}
	if m.order.Step != domain.StepGotQuote || m.transfer != nil {
		step := m.order.Step
		m.mu.Unlock()
		return models.OrderView{}, fmt.Errorf("%w: create transfer in %s", ErrInvalidTransition, step)
	}
	if m.quote == nil {
		m.mu.Unlock()
		return models.OrderView{}, ErrNoQuote
	}
	m.pending[opTransfer] = true
	m.order.AppState = domain.AppStateProcessing
	m.lastErr = ""
	in := PayloadInput{Order: m.order, QuoteID: m.quote.QuoteID, KYC: m.kyc}
	attempt := m.attempt
	m.mu.Unlock()

	return m.runTransfer(ctx, in, attempt)
}

// runTransfer builds the payload and creates the transfer. The caller has
// set the transfer pending flag.
func (m *OrderMachine) runTransfer(ctx context.Context, in PayloadInput, attempt uint64) (models.OrderView, error) {
	req, err := m.deps.Payloads.Build(in)
	if err != nil {
		m.mu.Lock()
		defer m.unlock()
		if m.attempt == attempt {
			m.pending[opTransfer] = false
			m.order.AppState = domain.AppStateIdle
			m.lastErr = err.Error()
		}
		return m.viewLocked(), err
	}

	transfer, err := m.deps.Gateway.CreateTransfer(ctx, req)

	m.mu.Lock()
	if m.attempt != attempt {
		view := m.viewLocked()
		m.mu.Unlock()
		return view, ErrOrderReset
	}
	m.pending[opTransfer] = false
	if err != nil {
		// The failed order is closed under its own id before a fresh one opens.
		m.order.AppState = domain.AppStateIdle
		m.lastErr = err.Error()
		m.transitionLocked(domain.StepInitial, "transfer_failed", err.Error())
		m.quote = nil
		m.order.ID = uuid.New()
		view := m.viewLocked()
		m.unlock()
		m.logger().Warn("transfer creation failed", zap.Error(err))
		return view, fmt.Errorf("create transfer: %w", err)
	}
	m.transfer = transfer

	if !m.needsOnChainLocked() {
		m.transitionLocked(domain.StepGotTransfer, "transfer_created", "")
		m.startPollingLocked()
		view := m.viewLocked()
		m.unlock()
		return view, nil
	}

	wallet := m.order.WalletAddress
	m.mu.Unlock()

	chainID, chainErr := m.deps.Executor.ActiveChainID(ctx, wallet)

	m.mu.Lock()
	defer m.unlock()
	if m.attempt != attempt {
		return m.viewLocked(), ErrOrderReset
	}
	inst, err := m.instructionLocked()
	if err != nil {
		m.failLocked(err)
		return m.viewLocked(), err
	}
	if chainErr != nil {
		m.failLocked(chainErr)
		return m.viewLocked(), chainErr
	}
	if chainID != inst.ChainID {
		err := fmt.Errorf("%w: wallet on %d, order needs %d", executor.ErrWrongChain, chainID, inst.ChainID)
		m.failLocked(err)
		return m.viewLocked(), err
	}

	m.transitionLocked(domain.StepWaitingForPayment, "payment_requested", "")
	m.instruction = &inst
	m.signTimer = time.AfterFunc(m.cfg.SigningTimeout, func() { m.onSigningTimeout(attempt) })
	m.deps.Executor.Submit(context.WithoutCancel(ctx), inst,
		func(hash string) { m.onTxHash(attempt, hash) },
		func(err error) { m.onSigningFailed(attempt, err) },
	)
	return m.viewLocked(), nil
}

// Cancel returns the order to Initial from any step. The rail and amount
// are kept; everything tied to the order and the payout account is cleared.
func (m *OrderMachine) Cancel() models.OrderView {
	m.mu.Lock()
	defer m.unlock()
	m.resetLocked("cancel", true)
	return m.viewLocked()
}

func (m *OrderMachine) onSigningTimeout(attempt uint64) {
	m.mu.Lock()
	defer m.unlock()
	if m.attempt != attempt || m.order.Step != domain.StepWaitingForPayment {
		return
	}
	observability.IncrementSigningTimeout()
	m.failLocked(ErrSigningTimeout)
}

func (m *OrderMachine) onSigningFailed(attempt uint64, err error) {
	m.mu.Lock()
	defer m.unlock()
	if m.attempt != attempt || m.order.Step != domain.StepWaitingForPayment {
		return
	}
	m.failLocked(fmt.Errorf("signing failed: %w", err))
}

func (m *OrderMachine) onTxHash(attempt uint64, hash string) {
	m.mu.Lock()
	defer m.unlock()
	if m.attempt != attempt || m.order.Step != domain.StepWaitingForPayment || m.txHash != "" {
		return
	}
	m.stopSignTimerLocked()
	m.txHash = strings.TrimSpace(hash)
	m.transitionLocked(domain.StepProcessingPayment, "tx_hash_received", "")
	m.hashTimer = time.AfterFunc(m.cfg.HashSubmitDelay, func() { m.submitHash(attempt) })
}

func (m *OrderMachine) submitHash(attempt uint64) {
	m.mu.Lock()
	if m.attempt != attempt || m.order.Step != domain.StepProcessingPayment || m.hashSubmitted || m.pending[opHash] {
		m.mu.Unlock()
		return
	}
	m.pending[opHash] = true
	m.hashSubmitted = true
	transferID := m.transfer.TransferID
	hash := m.txHash
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), hashSubmitTimeout)
	defer cancel()

	var err error
	claimed := true
	if m.deps.Guard != nil {
		var guardErr error
		claimed, guardErr = m.deps.Guard.Claim(ctx, transferID, hash)
		if guardErr != nil {
			m.logger().Warn("tx hash guard unavailable, submitting anyway", zap.Error(guardErr))
			claimed = true
		}
	}
	if claimed {
		err = m.deps.Gateway.SubmitTxHash(ctx, transferID, hash)
	} else {
		m.logger().Info("tx hash already submitted for transfer", zap.String("transfer_id", transferID))
	}

	m.mu.Lock()
	defer m.unlock()
	if m.attempt != attempt {
		return
	}
	m.pending[opHash] = false
	if err != nil {
		m.failLocked(fmt.Errorf("submit tx hash: %w", err))
		return
	}
	m.transitionLocked(domain.StepGotTransfer, "tx_hash_submitted", "")
	m.startPollingLocked()
}

func (m *OrderMachine) startPollingLocked() {
	attempt := m.attempt
	m.stopPoll = m.deps.Poller.Start(m.transfer.TransferID,
		func(status domain.TransferStatus) { m.onTransferStatus(attempt, status) },
		func(err error) { m.onPollError(attempt, err) },
	)
}

// ApplyTransferStatus delivers a pushed status for the order's transfer.
// It reports false when the order does not hold transferID.
func (m *OrderMachine) ApplyTransferStatus(transferID string, status domain.TransferStatus) bool {
	m.mu.Lock()
	if m.transfer == nil || m.transfer.TransferID != transferID {
		m.mu.Unlock()
		return false
	}
	attempt := m.attempt
	m.mu.Unlock()
	m.onTransferStatus(attempt, status)
	return true
}

func (m *OrderMachine) onTransferStatus(attempt uint64, status domain.TransferStatus) {
	m.mu.Lock()
	defer m.unlock()
	if m.attempt != attempt || m.order.Step != domain.StepGotTransfer {
		return
	}
	switch status {
	case domain.TransferStatusComplete:
		m.stopPollLocked()
		m.transitionLocked(domain.StepPaymentCompleted, "transfer_complete", "")
		m.order.AppState = domain.AppStateIdle
	case domain.TransferStatusFailed:
		m.failLocked(errors.New("transfer failed"))
	}
}

func (m *OrderMachine) onPollError(attempt uint64, err error) {
	m.mu.Lock()
	defer m.unlock()
	if m.attempt != attempt || m.order.Step != domain.StepGotTransfer {
		return
	}
	m.failLocked(fmt.Errorf("transfer status: %w", err))
}

// prepareQuote runs every precondition of GotQuote and returns the quote body.
func (m *OrderMachine) prepareQuote(ctx context.Context, order models.Order, record *models.KYCRecord) (gateway.QuoteRequest, error) {
	if order.WalletAddress == "" {
		return gateway.QuoteRequest{}, invalidField("wallet_address", "wallet is not connected")
	}
	country, ok := domain.LookupCountry(order.Country)
	if !ok {
		return gateway.QuoteRequest{}, invalidField("country", "unsupported country")
	}
	asset, ok := domain.LookupAsset(order.Asset)
	if !ok {
		return gateway.QuoteRequest{}, invalidField("asset", "unsupported asset")
	}
	network, ok := domain.LookupNetwork(order.Network)
	if !ok {
		return gateway.QuoteRequest{}, invalidField("network", "unsupported network")
	}
	if network.OnChain {
		if _, ok := asset.TokenOn(network.Name); !ok {
			return gateway.QuoteRequest{}, invalidField("network", asset.Symbol+" is not available on "+network.Name)
		}
	}
	if !order.PaymentMethod.Valid() || !country.SupportsMethod(order.PaymentMethod) {
		return gateway.QuoteRequest{}, invalidField("payment_method", "not offered in "+country.Code)
	}

	_, fiat, err := fiatValue(ctx, m.deps.Rates, order)
	if err != nil {
		return gateway.QuoteRequest{}, err
	}
	if fiat.LessThan(country.MinAmount) || fiat.GreaterThan(country.MaxAmount) {
		return gateway.QuoteRequest{}, invalidField("amount", fmt.Sprintf("must be between %s and %s",
			domain.NewMoney(country.MinAmount, country.Currency), domain.NewMoney(country.MaxAmount, country.Currency)))
	}
	crypto, err := cryptoValue(ctx, m.deps.Rates, order)
	if err != nil {
		return gateway.QuoteRequest{}, err
	}

	decision, err := m.deps.Gate.Evaluate(ctx, order, record)
	if err != nil {
		return gateway.QuoteRequest{}, err
	}
	if !decision.Proceed {
		status := domain.KYCStatusUnset
		if record != nil {
			status = record.Status
		}
		return gateway.QuoteRequest{}, &KYCError{Reason: decision.Reason, Link: decision.Link, Status: status}
	}

	// Buy and pay create the transfer straight after the quote.
	if order.Flow != domain.FlowWithdraw {
		if err := m.deps.Payloads.Check(order, record); err != nil {
			return gateway.QuoteRequest{}, err
		}
	}
	return quoteRequestFor(order, country, asset, fiat, crypto), nil
}

// quoteRequestFor picks the amount field: buy quotes in crypto, sell quotes
// in fiat only when the asset is pegged to the country's own currency.
func quoteRequestFor(order models.Order, country domain.Country, asset domain.Asset, fiat, crypto decimal.Decimal) gateway.QuoteRequest {
	req := gateway.QuoteRequest{
		FiatType:     country.Currency,
		CryptoType:   asset.Symbol,
		Network:      order.Network,
		Country:      country.Code,
		Address:      order.WalletAddress,
		TransferType: order.Direction,
	}
	if order.Direction == domain.TransferOut && asset.PegCurrency == country.Currency {
		req.FiatAmount = fiat.String()
	} else {
		req.CryptoAmount = crypto.String()
	}
	return req
}

func (m *OrderMachine) needsOnChainLocked() bool {
	if m.order.Direction != domain.TransferOut {
		return false
	}
	network, ok := domain.LookupNetwork(m.order.Network)
	return ok && network.OnChain
}

func (m *OrderMachine) instructionLocked() (models.PaymentInstruction, error) {
	network, _ := domain.LookupNetwork(m.order.Network)
	asset, _ := domain.LookupAsset(m.order.Asset)
	token, ok := asset.TokenOn(network.Name)
	if !ok {
		return models.PaymentInstruction{}, fmt.Errorf("%s has no token on %s", asset.Symbol, network.Name)
	}
	recipient := m.transfer.TransferAddress
	if recipient == "" {
		return models.PaymentInstruction{}, errors.New("transfer has no deposit address")
	}
	return models.PaymentInstruction{
		OrderID:      m.order.ID,
		Recipient:    recipient,
		Amount:       m.quote.CryptoAmount,
		TokenAddress: token,
		Decimals:     asset.Decimals,
		ChainID:      network.ChainID,
		From:         m.order.WalletAddress,
	}, nil
}

// failLocked moves the order to PaymentFailed and stops all timers.
func (m *OrderMachine) failLocked(err error) {
	if m.order.Step.IsTerminal() {
		return
	}
	m.stopTimersLocked()
	m.deps.Executor.Cancel(m.order.ID)
	m.lastErr = err.Error()
	m.transitionLocked(domain.StepPaymentFailed, "payment_failed", err.Error())
	m.order.AppState = domain.AppStateIdle
	m.logger().Warn("order failed", zap.Error(err))
}

// resetLocked clears every order-scoped field and invalidates in-flight
// callbacks. keepSelection retains the rail and amount.
func (m *OrderMachine) resetLocked(action string, keepSelection bool) {
	m.attempt++
	m.stopTimersLocked()
	m.deps.Executor.Cancel(m.order.ID)

	from := m.order.Step
	prev := m.order
	closing := m.viewLocked()
	closing.Order.AppState = domain.AppStateIdle
	closing.Pending = nil
	closing.Instruction = nil
	closing.LastError = "order closed: " + action
	m.order = newOrder(prev.WalletAddress)
	if keepSelection {
		m.order.Country = prev.Country
		m.order.Asset = prev.Asset
		m.order.Network = prev.Network
		m.order.PaymentMethod = prev.PaymentMethod
		m.order.Amount = prev.Amount
		m.order.AmountUnit = prev.AmountUnit
	}
	m.quote = nil
	m.transfer = nil
	m.txHash = ""
	m.instruction = nil
	m.hashSubmitted = false
	m.lastErr = ""
	m.pending = make(map[operation]bool)
	m.touchLocked()

	if from != domain.StepInitial {
		closing.UpdatedAt = m.updatedAt
		m.recordLocked(closing, from, domain.StepInitial, action, "")
	}
}

func (m *OrderMachine) stopTimersLocked() {
	m.stopSignTimerLocked()
	if m.hashTimer != nil {
		m.hashTimer.Stop()
		m.hashTimer = nil
	}
	m.stopPollLocked()
}

func (m *OrderMachine) stopSignTimerLocked() {
	if m.signTimer != nil {
		m.signTimer.Stop()
		m.signTimer = nil
	}
	m.instruction = nil
}

func (m *OrderMachine) stopPollLocked() {
	if m.stopPoll != nil {
		m.stopPoll()
		m.stopPoll = nil
	}
}

func (m *OrderMachine) transitionLocked(to domain.Step, action, reason string) {
	from := m.order.Step
	if err := checkTransition(from, to); err != nil {
		m.logger().Error("refused transition", zap.Error(err))
		return
	}
	m.order.Step = to
	m.touchLocked()
	m.recordLocked(m.viewLocked(), from, to, action, reason)
}

// recordLocked buffers a transition with the snapshot of the order it moved.
func (m *OrderMachine) recordLocked(view models.OrderView, from, to domain.Step, action, reason string) {
	order := view.Order
	view.Order.Step = to
	observability.IncrementOrderTransition(string(order.Flow), string(from), string(to))
	m.outbox = append(m.outbox, AuditEntry{
		Event: models.OrderEvent{
			OrderID:   order.ID,
			SessionID: m.sessionID,
			Flow:      order.Flow,
			From:      from,
			To:        to,
			Action:    action,
			Reason:    reason,
			CreatedAt: m.updatedAt,
		},
		View: view,
	})
}

func (m *OrderMachine) touchLocked() {
	m.updatedAt = time.Now().UTC()
}

// unlock releases the mutex and flushes buffered transitions.
func (m *OrderMachine) unlock() {
	entries := m.outbox
	m.outbox = nil
	if len(entries) > 0 {
		// Fields set after the last transition still belong in the live
		// order's snapshot.
		current := m.viewLocked()
		for i := range entries {
			if entries[i].View.Order.ID == current.Order.ID {
				entries[i].View = current
			}
		}
	}
	m.mu.Unlock()
	m.deps.Audit.Record(entries)
}

func (m *OrderMachine) viewLocked() models.OrderView {
	view := models.OrderView{
		SessionID: m.sessionID,
		Order:     m.order,
		TxHash:    m.txHash,
		LastError: m.lastErr,
		UpdatedAt: m.updatedAt,
	}
	if m.quote != nil {
		q := *m.quote
		view.Quote = &q
	}
	if m.transfer != nil {
		t := *m.transfer
		view.Transfer = &t
	}
	if m.kyc != nil {
		k := *m.kyc
		view.KYC = &k
	}
	if m.instruction != nil {
		inst := *m.instruction
		view.Instruction = &inst
	}
	for _, op := range []operation{opQuote, opTransfer, opHash, opKYC} {
		if m.pending[op] {
			view.Pending = append(view.Pending, string(op))
		}
	}
	return view
}

func (m *OrderMachine) logger() *zap.Logger {
	return zap.L().With(zap.String("session_id", m.sessionID))
}
