package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ayo6706/ramp-orchestrator/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WalletBridge relays instructions to the user's browser wallet. The
// front-end fetches the pending instruction, asks the wallet to sign and
// reports the outcome back through Complete or Fail.
type WalletBridge struct {
	mu      sync.Mutex
	pending map[uuid.UUID]*bridgeRequest
	chains  map[string]int64
}

type bridgeRequest struct {
	inst      models.PaymentInstruction
	onSuccess func(string)
	onFailure func(error)
}

func NewWalletBridge() *WalletBridge {
	return &WalletBridge{
		pending: make(map[uuid.UUID]*bridgeRequest),
		chains:  make(map[string]int64),
	}
}

// ReportChain records the chain the wallet is currently connected to.
func (b *WalletBridge) ReportChain(wallet string, chainID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chains[strings.ToLower(wallet)] = chainID
}

func (b *WalletBridge) ActiveChainID(_ context.Context, wallet string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.chains[strings.ToLower(wallet)]
	if !ok {
		return 0, ErrChainUnknown
	}
	return id, nil
}

func (b *WalletBridge) Submit(_ context.Context, inst models.PaymentInstruction, onSuccess func(string), onFailure func(error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[inst.OrderID] = &bridgeRequest{inst: inst, onSuccess: onSuccess, onFailure: onFailure}
	zap.L().Info("payment instruction awaiting wallet signature",
		zap.String("order_id", inst.OrderID.String()),
		zap.Int64("chain_id", inst.ChainID),
	)
}

// Pending returns the instruction the wallet should sign for orderID.
func (b *WalletBridge) Pending(orderID uuid.UUID) (models.PaymentInstruction, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.pending[orderID]
	if !ok {
		return models.PaymentInstruction{}, false
	}
	return req.inst, true
}

// Complete settles the pending instruction with the broadcast hash.
func (b *WalletBridge) Complete(orderID uuid.UUID, txHash string) error {
	req, err := b.take(orderID)
	if err != nil {
		return err
	}
	req.onSuccess(txHash)
	return nil
}

// Fail settles the pending instruction with a wallet-side error.
func (b *WalletBridge) Fail(orderID uuid.UUID, cause error) error {
	req, err := b.take(orderID)
	if err != nil {
		return err
	}
	req.onFailure(cause)
	return nil
}

func (b *WalletBridge) Cancel(orderID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, orderID)
}

func (b *WalletBridge) take(orderID uuid.UUID) (*bridgeRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.pending[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPendingPayment, orderID)
	}
	delete(b.pending, orderID)
	return req, nil
}
