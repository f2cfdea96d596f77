package executor

import (
	"context"
	"errors"

	"github.com/ayo6706/ramp-orchestrator/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrWrongChain is returned when the wallet is connected to a different
	// chain than the order's network.
	ErrWrongChain = errors.New("wallet is connected to the wrong chain")
	// ErrChainUnknown is returned when no chain has been reported for a wallet.
	ErrChainUnknown = errors.New("wallet chain is unknown")
	// ErrNoPendingPayment is returned by wallet callbacks with nothing to settle.
	ErrNoPendingPayment = errors.New("no pending payment for order")
	ErrUserRejected     = errors.New("user rejected the signature request")
)

// Executor hands a payment instruction to a signer. Submit never blocks on
// the signature: exactly one of onSuccess and onFailure is invoked later,
// unless the submission is canceled first.
type Executor interface {
	Submit(ctx context.Context, inst models.PaymentInstruction, onSuccess func(txHash string), onFailure func(err error))
	ActiveChainID(ctx context.Context, wallet string) (int64, error)
	// Cancel drops an in-flight submission. Late results are discarded.
	Cancel(orderID uuid.UUID)
}
