package executor

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/ramp-orchestrator/internal/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken     = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	testRecipient = "0x1111111111111111111111111111111111111111"
)

func TestWalletBridge_CompleteInvokesSuccessOnce(t *testing.T) {
	b := NewWalletBridge()
	orderID := uuid.New()
	var hashes []string

	b.Submit(context.Background(), models.PaymentInstruction{OrderID: orderID, ChainID: 8453},
		func(h string) { hashes = append(hashes, h) },
		func(error) { t.Fatal("unexpected failure") },
	)

	inst, ok := b.Pending(orderID)
	require.True(t, ok)
	assert.Equal(t, int64(8453), inst.ChainID)

	require.NoError(t, b.Complete(orderID, "0xabc"))
	require.ErrorIs(t, b.Complete(orderID, "0xdef"), ErrNoPendingPayment)
	assert.Equal(t, []string{"0xabc"}, hashes)

	_, ok = b.Pending(orderID)
	assert.False(t, ok)
}

func TestWalletBridge_FailAndCancel(t *testing.T) {
	b := NewWalletBridge()
	orderID := uuid.New()
	var got error

	b.Submit(context.Background(), models.PaymentInstruction{OrderID: orderID},
		func(string) { t.Fatal("unexpected success") },
		func(err error) { got = err },
	)
	require.NoError(t, b.Fail(orderID, ErrUserRejected))
	assert.ErrorIs(t, got, ErrUserRejected)

	other := uuid.New()
	b.Submit(context.Background(), models.PaymentInstruction{OrderID: other},
		func(string) { t.Fatal("canceled submission must not complete") },
		func(error) { t.Fatal("canceled submission must not fail") },
	)
	b.Cancel(other)
	require.ErrorIs(t, b.Complete(other, "0x1"), ErrNoPendingPayment)
}

func TestWalletBridge_ActiveChainID(t *testing.T) {
	b := NewWalletBridge()
	_, err := b.ActiveChainID(context.Background(), "0xAbC")
	require.ErrorIs(t, err, ErrChainUnknown)

	b.ReportChain("0xAbC", 137)
	id, err := b.ActiveChainID(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, int64(137), id)
}

type fakeTransferer struct {
	mu     sync.Mutex
	amount *big.Int
	to     common.Address
	err    error
	block  chan struct{}
}

func (f *fakeTransferer) Transfer(ctx context.Context, _, to common.Address, amount *big.Int) (common.Hash, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return common.Hash{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.amount = amount
	f.to = to
	if f.err != nil {
		return common.Hash{}, f.err
	}
	return common.HexToHash("0x01"), nil
}

func (f *fakeTransferer) ChainID(context.Context) (int64, error) { return 8453, nil }

func (f *fakeTransferer) From() common.Address { return common.HexToAddress(testRecipient) }

func TestEVMExecutor_SubmitScalesAmount(t *testing.T) {
	signer := &fakeTransferer{}
	e := newEVMExecutor(signer)
	done := make(chan string, 1)

	e.Submit(context.Background(), models.PaymentInstruction{
		OrderID: uuid.New(), Recipient: testRecipient, TokenAddress: testToken, Amount: "12.5", Decimals: 6,
	}, func(h string) { done <- h }, func(err error) { t.Errorf("unexpected failure: %v", err) })

	select {
	case h := <-done:
		assert.Equal(t, common.HexToHash("0x01").Hex(), h)
	case <-time.After(time.Second):
		t.Fatal("no callback")
	}
	signer.mu.Lock()
	defer signer.mu.Unlock()
	assert.Equal(t, big.NewInt(12_500_000), signer.amount)
	assert.Equal(t, common.HexToAddress(testRecipient), signer.to)

	id, err := e.ActiveChainID(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(8453), id)
}

func TestEVMExecutor_SubmitFailures(t *testing.T) {
	e := newEVMExecutor(&fakeTransferer{err: errors.New("insufficient funds")})
	failed := make(chan error, 2)

	e.Submit(context.Background(), models.PaymentInstruction{
		OrderID: uuid.New(), Recipient: testRecipient, TokenAddress: testToken, Amount: "1", Decimals: 6,
	}, func(string) { t.Error("unexpected success") }, func(err error) { failed <- err })

	e.Submit(context.Background(), models.PaymentInstruction{
		OrderID: uuid.New(), Recipient: "not-an-address", TokenAddress: testToken, Amount: "1", Decimals: 6,
	}, func(string) { t.Error("unexpected success") }, func(err error) { failed <- err })

	for i := 0; i < 2; i++ {
		select {
		case err := <-failed:
			require.Error(t, err)
		case <-time.After(time.Second):
			t.Fatal("missing failure callback")
		}
	}
}

func TestEVMExecutor_CancelSuppressesCallbacks(t *testing.T) {
	signer := &fakeTransferer{block: make(chan struct{})}
	e := newEVMExecutor(signer)
	orderID := uuid.New()
	called := make(chan struct{}, 1)

	e.Submit(context.Background(), models.PaymentInstruction{
		OrderID: orderID, Recipient: testRecipient, TokenAddress: testToken, Amount: "1", Decimals: 6,
	}, func(string) { called <- struct{}{} }, func(error) { called <- struct{}{} })

	e.Cancel(orderID)
	select {
	case <-called:
		t.Fatal("callback fired after cancel")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestParsePrivateKey(t *testing.T) {
	_, err := parsePrivateKey("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	_, err = parsePrivateKey("zz")
	require.Error(t, err)
}
