package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/ramp-orchestrator/internal/domain"
	"github.com/ayo6706/ramp-orchestrator/internal/executor"
	"github.com/ayo6706/ramp-orchestrator/internal/gateway"
	"github.com/ayo6706/ramp-orchestrator/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = time.Second

func TestConfirm_KenyaSmallMobileMoneySkipsKYC(t *testing.T) {
	h := newHarness(t, nil, MachineConfig{})
	ctx := context.Background()

	_, err := h.m.Select(kenyaMobile("base"))
	require.NoError(t, err)

	view, err := h.m.Confirm(ctx, domain.FlowWithdraw)
	require.NoError(t, err)
	assert.Equal(t, domain.StepGotQuote, view.Order.Step)
	assert.Equal(t, domain.TransferOut, view.Order.Direction)
	assert.Equal(t, domain.AppStateIdle, view.Order.AppState)
	require.NotNil(t, view.Quote)
	assert.Nil(t, view.Transfer)

	quotes, transfers, _ := h.gw.counts()
	assert.Equal(t, 1, quotes)
	assert.Equal(t, 0, transfers)
	assert.Equal(t, "50", h.gw.quoteReqs[0].CryptoAmount)
	assert.Empty(t, h.gw.quoteReqs[0].FiatAmount)
	assert.Equal(t, "KES", h.gw.quoteReqs[0].FiatType)
}

func TestConfirm_NigeriaRequiresKYC(t *testing.T) {
	h := newHarness(t, &models.KYCRecord{Message: models.KYCMessage{Link: "https://kyc.example/start"}}, MachineConfig{})

	sel := kenyaMobile("base")
	sel.Country = "NG"
	sel.Amount = "5000"
	sel.AmountUnit = domain.AmountUnitFiat
	_, err := h.m.Select(sel)
	require.NoError(t, err)

	view, err := h.m.Confirm(context.Background(), domain.FlowWithdraw)
	var kycErr *KYCError
	require.True(t, errors.As(err, &kycErr))
	assert.Equal(t, ReasonRequired, kycErr.Reason)
	assert.Equal(t, "https://kyc.example/start", kycErr.Link)
	assert.Equal(t, domain.StepInitial, view.Order.Step)
	assert.Empty(t, view.Pending)

	quotes, _, _ := h.gw.counts()
	assert.Zero(t, quotes)
}

func TestConfirm_ValidationErrors(t *testing.T) {
	cases := []struct {
		name  string
		sel   func() models.Selection
		field string
	}{
		{name: "unknown_country", field: "country", sel: func() models.Selection {
			s := kenyaMobile("base")
			s.Country = "XX"
			return s
		}},
		{name: "unknown_asset", field: "asset", sel: func() models.Selection {
			s := kenyaMobile("base")
			s.Asset = "DOGE"
			return s
		}},
		{name: "asset_not_on_network", field: "network", sel: func() models.Selection {
			s := kenyaMobile("base")
			s.Asset = "USDT"
			return s
		}},
		{name: "method_not_offered", field: "payment_method", sel: func() models.Selection {
			s := kenyaMobile("base")
			s.Country = "UG"
			s.PaymentMethod = domain.PaymentMethodBank
			return s
		}},
		{name: "missing_amount", field: "amount", sel: func() models.Selection {
			s := kenyaMobile("base")
			s.Amount = ""
			return s
		}},
		{name: "below_country_minimum", field: "amount", sel: func() models.Selection {
			s := kenyaMobile("base")
			s.Amount = "5"
			s.AmountUnit = domain.AmountUnitFiat
			return s
		}},
		{name: "above_country_maximum", field: "amount", sel: func() models.Selection {
			s := kenyaMobile("base")
			s.Amount = "250001"
			s.AmountUnit = domain.AmountUnitFiat
			return s
		}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, verifiedKYC(), MachineConfig{})
			_, err := h.m.Select(tc.sel())
			require.NoError(t, err)

			view, err := h.m.Confirm(context.Background(), domain.FlowWithdraw)
			var validation *ValidationError
			require.True(t, errors.As(err, &validation), "got %v", err)
			assert.Equal(t, tc.field, validation.Field)
			assert.Equal(t, domain.StepInitial, view.Order.Step)
			assert.Equal(t, domain.AppStateIdle, view.Order.AppState)
		})
	}
}

func TestConfirm_RequiresWallet(t *testing.T) {
	gw := &stubGateway{}
	m := NewOrderMachine("s", testDeps(gw, &stubExecutor{}, &stubPoller{}, &memOrderStore{}, &stubPublisher{}), MachineConfig{})
	_, err := m.Select(kenyaMobile("base"))
	require.NoError(t, err)

	_, err = m.Confirm(context.Background(), domain.FlowWithdraw)
	var validation *ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "wallet_address", validation.Field)
}

func TestConfirm_SingleInFlight(t *testing.T) {
	h := newHarness(t, nil, MachineConfig{})
	h.gw.quoteGate = make(chan struct{})
	_, err := h.m.Select(kenyaMobile("base"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = h.m.Confirm(context.Background(), domain.FlowWithdraw)
	}()

	require.Eventually(t, func() bool {
		quotes, _, _ := h.gw.counts()
		return quotes == 1
	}, waitFor, time.Millisecond)

	_, err = h.m.Confirm(context.Background(), domain.FlowWithdraw)
	require.ErrorIs(t, err, ErrOperationPending)
	assert.Contains(t, h.m.View().Pending, "quote")

	close(h.gw.quoteGate)
	wg.Wait()
	require.NoError(t, firstErr)

	quotes, _, _ := h.gw.counts()
	assert.Equal(t, 1, quotes)
	assert.Equal(t, domain.StepGotQuote, h.step())
}

func TestConfirm_QuoteFailureStaysInitial(t *testing.T) {
	h := newHarness(t, nil, MachineConfig{})
	h.gw.quoteErr = &gateway.UpstreamError{Operation: "create_quote", StatusCode: http.StatusBadGateway, Message: "rates unavailable"}
	_, err := h.m.Select(kenyaMobile("base"))
	require.NoError(t, err)

	view, err := h.m.Confirm(context.Background(), domain.FlowWithdraw)
	var upstream *gateway.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, domain.StepInitial, view.Order.Step)
	assert.Contains(t, view.LastError, "rates unavailable")

	h.gw.quoteErr = nil
	view, err = h.m.Confirm(context.Background(), domain.FlowWithdraw)
	require.NoError(t, err)
	assert.Equal(t, domain.StepGotQuote, view.Order.Step)
	assert.Empty(t, view.LastError)
}

func TestWithdraw_TwoStepOnChainToCompleted(t *testing.T) {
	h := newHarness(t, verifiedKYC(), MachineConfig{})
	ctx := context.Background()
	sel := kenyaMobile("base")
	sel.Institution = ""
	sel.AccountNumber = ""
	_, err := h.m.Select(sel)
	require.NoError(t, err)

	view, err := h.m.Confirm(ctx, domain.FlowWithdraw)
	require.NoError(t, err)
	quoteID := view.Quote.QuoteID

	_, err = h.m.CreateTransfer(ctx)
	var validation *ValidationError
	require.True(t, errors.As(err, &validation))
	require.ErrorIs(t, err, ErrInstitutionRequired)
	assert.Equal(t, domain.StepGotQuote, h.step())

	_, err = h.m.SetPayoutAccount("MPESA", "0712345678", "OK")
	require.NoError(t, err)

	view, err = h.m.CreateTransfer(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StepWaitingForPayment, view.Order.Step)
	require.NotNil(t, view.Instruction)

	req := h.gw.lastTransfer()
	assert.Equal(t, quoteID, req.QuoteID)
	require.NotNil(t, req.MobileMoney)
	assert.Equal(t, "254712345678", req.MobileMoney.PhoneNumber)
	assert.Equal(t, "Jane Wanjiru", req.MobileMoney.AccountName)

	inst := h.ex.lastInstruction()
	assert.Equal(t, testDeposit, inst.Recipient)
	assert.Equal(t, int64(8453), inst.ChainID)
	assert.Equal(t, "50", inst.Amount)
	assert.Equal(t, int32(6), inst.Decimals)

	_, err = h.m.CreateTransfer(ctx)
	require.ErrorIs(t, err, ErrInvalidTransition)

	h.ex.succeed("0xfeed")
	require.Eventually(t, func() bool { return h.step() == domain.StepGotTransfer }, waitFor, time.Millisecond)

	_, _, hashes := h.gw.counts()
	assert.Equal(t, 1, hashes)
	assert.Equal(t, []string{"t-" + quoteID}, h.poller.startedIDs())
	assert.Equal(t, "0xfeed", h.m.View().TxHash)

	h.poller.status(domain.TransferStatusComplete)
	assert.Equal(t, domain.StepPaymentCompleted, h.step())
	assert.Equal(t, 1, h.poller.stops)
	assert.Equal(t, []string{RoutingOrderCompleted}, h.pub.keys)
}

func TestSigningTimeout_FailsExactlyOnce(t *testing.T) {
	h := newHarness(t, verifiedKYC(), MachineConfig{SigningTimeout: 20 * time.Millisecond})
	_, err := h.m.Select(kenyaMobile("base"))
	require.NoError(t, err)

	view, err := h.m.Confirm(context.Background(), domain.FlowPay)
	require.NoError(t, err)
	require.Equal(t, domain.StepWaitingForPayment, view.Order.Step)

	require.Eventually(t, func() bool { return h.step() == domain.StepPaymentFailed }, waitFor, time.Millisecond)
	assert.Contains(t, h.m.View().LastError, ErrSigningTimeout.Error())

	h.ex.succeed("0xlate")
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, domain.StepPaymentFailed, h.step())
	assert.Empty(t, h.m.View().TxHash)
	_, _, hashes := h.gw.counts()
	assert.Zero(t, hashes)
	assert.Equal(t, 1, h.store.countTo(domain.StepPaymentFailed))
}

func TestSigningTimeout_CanceledByHash(t *testing.T) {
	h := newHarness(t, verifiedKYC(), MachineConfig{SigningTimeout: 40 * time.Millisecond})
	_, err := h.m.Select(kenyaMobile("base"))
	require.NoError(t, err)
	_, err = h.m.Confirm(context.Background(), domain.FlowPay)
	require.NoError(t, err)

	h.ex.succeed("0xbeef")
	h.ex.succeed("0xbeef")
	time.Sleep(80 * time.Millisecond)

	assert.Equal(t, domain.StepGotTransfer, h.step())
	_, _, hashes := h.gw.counts()
	assert.Equal(t, 1, hashes)
	assert.Zero(t, h.store.countTo(domain.StepPaymentFailed))
}

func TestWalletErrorsAreTerminal(t *testing.T) {
	t.Run("wrong_chain", func(t *testing.T) {
		h := newHarness(t, verifiedKYC(), MachineConfig{})
		h.ex.chainID = 137
		_, err := h.m.Select(kenyaMobile("base"))
		require.NoError(t, err)

		view, err := h.m.Confirm(context.Background(), domain.FlowPay)
		require.ErrorIs(t, err, executor.ErrWrongChain)
		assert.Equal(t, domain.StepPaymentFailed, view.Order.Step)
		assert.Empty(t, h.ex.submits)
	})

	t.Run("signature_rejected", func(t *testing.T) {
		h := newHarness(t, verifiedKYC(), MachineConfig{})
		_, err := h.m.Select(kenyaMobile("base"))
		require.NoError(t, err)
		_, err = h.m.Confirm(context.Background(), domain.FlowPay)
		require.NoError(t, err)

		h.ex.fail(executor.ErrUserRejected)
		assert.Equal(t, domain.StepPaymentFailed, h.step())
		assert.Contains(t, h.m.View().LastError, executor.ErrUserRejected.Error())
	})

	t.Run("hash_submission_failed", func(t *testing.T) {
		h := newHarness(t, verifiedKYC(), MachineConfig{})
		h.gw.hashErr = errors.New("backend rejected hash")
		_, err := h.m.Select(kenyaMobile("base"))
		require.NoError(t, err)
		_, err = h.m.Confirm(context.Background(), domain.FlowPay)
		require.NoError(t, err)

		h.ex.succeed("0xabc")
		require.Eventually(t, func() bool { return h.step() == domain.StepPaymentFailed }, waitFor, time.Millisecond)
		assert.Empty(t, h.poller.startedIDs())
	})

	t.Run("status_error", func(t *testing.T) {
		h := newHarness(t, verifiedKYC(), MachineConfig{})
		sel := kenyaMobile("custodial")
		_, err := h.m.Select(sel)
		require.NoError(t, err)
		_, err = h.m.Confirm(context.Background(), domain.FlowPay)
		require.NoError(t, err)
		require.Equal(t, domain.StepGotTransfer, h.step())

		h.poller.fail(errors.New("status endpoint down"))
		assert.Equal(t, domain.StepPaymentFailed, h.step())
		assert.Equal(t, []string{RoutingOrderFailed}, h.pub.keys)
	})
}

func TestTransferFailure_ReturnsToInitial(t *testing.T) {
	h := newHarness(t, verifiedKYC(), MachineConfig{})
	h.gw.transferErr = &gateway.UpstreamError{Operation: "create_transfer", StatusCode: http.StatusUnprocessableEntity, Message: "account closed"}
	_, err := h.m.Select(kenyaMobile("custodial"))
	require.NoError(t, err)

	view, err := h.m.Confirm(context.Background(), domain.FlowBuy)
	var upstream *gateway.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, domain.StepInitial, view.Order.Step)
	assert.Nil(t, view.Quote)
	assert.Contains(t, view.LastError, "account closed")
	assert.Equal(t, "KE", view.Order.Country)
}

func TestTransferFailure_ClosesFailedOrder(t *testing.T) {
	h := newHarness(t, verifiedKYC(), MachineConfig{})
	h.gw.transferErr = errors.New("account closed")
	_, err := h.m.Select(kenyaMobile("custodial"))
	require.NoError(t, err)

	view, err := h.m.Confirm(context.Background(), domain.FlowBuy)
	require.Error(t, err)

	ev, ok := h.store.eventByAction("transfer_failed")
	require.True(t, ok)
	assert.NotEqual(t, view.Order.ID, ev.OrderID)

	failed, ok := h.store.snapshotFor(ev.OrderID)
	require.True(t, ok)
	assert.Equal(t, domain.StepInitial, failed.Order.Step)
	assert.Contains(t, failed.LastError, "account closed")
	require.NotNil(t, failed.Quote)
}

func TestConfirm_BuyChecksPayoutBeforeQuote(t *testing.T) {
	h := newHarness(t, verifiedKYC(), MachineConfig{})
	sel := kenyaMobile("custodial")
	sel.Institution = ""
	_, err := h.m.Select(sel)
	require.NoError(t, err)

	view, err := h.m.Confirm(context.Background(), domain.FlowBuy)
	require.ErrorIs(t, err, ErrInstitutionRequired)
	assert.Equal(t, domain.StepInitial, view.Order.Step)
	assert.Empty(t, view.Pending)
	quotes, transfers, _ := h.gw.counts()
	assert.Zero(t, quotes)
	assert.Zero(t, transfers)

	_, err = h.m.SetPayoutAccount("MPESA", "0712345678", "Jane Wanjiru")
	require.NoError(t, err)
	view, err = h.m.Confirm(context.Background(), domain.FlowBuy)
	require.NoError(t, err)
	assert.Equal(t, domain.StepGotTransfer, view.Order.Step)
}

func TestHashSubmit_WaitsForDelay(t *testing.T) {
	h := newHarness(t, verifiedKYC(), MachineConfig{HashSubmitDelay: 150 * time.Millisecond})
	_, err := h.m.Select(kenyaMobile("base"))
	require.NoError(t, err)
	_, err = h.m.Confirm(context.Background(), domain.FlowPay)
	require.NoError(t, err)

	h.ex.succeed("0xfeed")
	assert.Equal(t, domain.StepProcessingPayment, h.step())

	time.Sleep(50 * time.Millisecond)
	_, _, hashes := h.gw.counts()
	assert.Zero(t, hashes)
	assert.Equal(t, domain.StepProcessingPayment, h.step())

	require.Eventually(t, func() bool { return h.step() == domain.StepGotTransfer }, waitFor, time.Millisecond)
	_, _, hashes = h.gw.counts()
	assert.Equal(t, 1, hashes)
}

func TestHashSubmit_CancelDuringDelay(t *testing.T) {
	h := newHarness(t, verifiedKYC(), MachineConfig{HashSubmitDelay: 50 * time.Millisecond})
	_, err := h.m.Select(kenyaMobile("base"))
	require.NoError(t, err)
	_, err = h.m.Confirm(context.Background(), domain.FlowPay)
	require.NoError(t, err)

	h.ex.succeed("0xfeed")
	require.Equal(t, domain.StepProcessingPayment, h.step())
	h.m.Cancel()

	time.Sleep(120 * time.Millisecond)
	_, _, hashes := h.gw.counts()
	assert.Zero(t, hashes)
	assert.Equal(t, domain.StepInitial, h.step())
	assert.Empty(t, h.poller.startedIDs())
}

func TestHashSubmit_Guard(t *testing.T) {
	cases := []struct {
		name       string
		guard      *stubGuard
		wantHashes int
	}{
		{name: "already_claimed", guard: &stubGuard{claimed: false}, wantHashes: 0},
		{name: "claimed", guard: &stubGuard{claimed: true}, wantHashes: 1},
		{name: "guard_unavailable", guard: &stubGuard{err: errors.New("redis down")}, wantHashes: 1},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, verifiedKYC(), MachineConfig{})
			h.m.deps.Guard = tc.guard
			_, err := h.m.Select(kenyaMobile("base"))
			require.NoError(t, err)
			_, err = h.m.Confirm(context.Background(), domain.FlowPay)
			require.NoError(t, err)

			h.ex.succeed("0xfeed")
			require.Eventually(t, func() bool { return h.step() == domain.StepGotTransfer }, waitFor, time.Millisecond)

			_, _, hashes := h.gw.counts()
			assert.Equal(t, tc.wantHashes, hashes)
			assert.Equal(t, 1, tc.guard.claims())
			assert.Len(t, h.poller.startedIDs(), 1)
		})
	}
}

func TestCancel_ResetCompleteness(t *testing.T) {
	h := newHarness(t, verifiedKYC(), MachineConfig{})
	ctx := context.Background()
	_, err := h.m.Select(kenyaMobile("base"))
	require.NoError(t, err)

	before, err := h.m.Confirm(ctx, domain.FlowPay)
	require.NoError(t, err)
	require.Equal(t, domain.StepWaitingForPayment, before.Order.Step)

	after := h.m.Cancel()
	assert.Equal(t, domain.StepInitial, after.Order.Step)
	assert.Nil(t, after.Quote)
	assert.Nil(t, after.Transfer)
	assert.Nil(t, after.Instruction)
	assert.Empty(t, after.TxHash)
	assert.Empty(t, after.Order.Institution)
	assert.Empty(t, after.Order.AccountNumber)
	assert.Empty(t, after.Order.AccountName)
	assert.NotEqual(t, before.Order.ID, after.Order.ID)
	assert.Contains(t, h.ex.canceled, before.Order.ID)

	// A callback from the canceled attempt is ignored.
	h.ex.succeed("0xstale")
	assert.Equal(t, domain.StepInitial, h.step())
	assert.Empty(t, h.m.View().TxHash)

	_, err = h.m.SetPayoutAccount("MPESA", "0799000111", "Jane Wanjiru")
	require.NoError(t, err)
	again, err := h.m.Confirm(ctx, domain.FlowPay)
	require.NoError(t, err)
	assert.NotEqual(t, before.Quote.QuoteID, again.Quote.QuoteID)
	assert.Equal(t, again.Quote.QuoteID, h.gw.lastTransfer().QuoteID)
	assert.NotEqual(t, before.Transfer.TransferID, again.Transfer.TransferID)
}

func TestCancel_ClosesOrderHistory(t *testing.T) {
	h := newHarness(t, verifiedKYC(), MachineConfig{})
	_, err := h.m.Select(kenyaMobile("base"))
	require.NoError(t, err)
	before, err := h.m.Confirm(context.Background(), domain.FlowPay)
	require.NoError(t, err)
	require.Equal(t, domain.StepWaitingForPayment, before.Order.Step)

	after := h.m.Cancel()

	closed, ok := h.store.snapshotFor(before.Order.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StepInitial, closed.Order.Step)
	assert.Equal(t, domain.AppStateIdle, closed.Order.AppState)
	assert.Contains(t, closed.LastError, "cancel")
	require.NotNil(t, closed.Transfer)

	_, ok = h.store.snapshotFor(after.Order.ID)
	assert.False(t, ok, "the fresh order has no history yet")
}

func TestCancel_StopsPolling(t *testing.T) {
	h := newHarness(t, verifiedKYC(), MachineConfig{})
	_, err := h.m.Select(kenyaMobile("custodial"))
	require.NoError(t, err)
	_, err = h.m.Confirm(context.Background(), domain.FlowPay)
	require.NoError(t, err)
	require.Len(t, h.poller.startedIDs(), 1)

	h.m.Cancel()
	assert.Equal(t, 1, h.poller.stops)

	h.poller.status(domain.TransferStatusComplete)
	assert.Equal(t, domain.StepInitial, h.step())
}

func TestTerminalConvergence(t *testing.T) {
	flows := []struct {
		flow    domain.Flow
		network string
	}{
		{domain.FlowBuy, "base"},
		{domain.FlowPay, "custodial"},
		{domain.FlowWithdraw, "custodial"},
	}
	outcomes := map[domain.TransferStatus]domain.Step{
		domain.TransferStatusComplete: domain.StepPaymentCompleted,
		domain.TransferStatusFailed:   domain.StepPaymentFailed,
	}

	for _, f := range flows {
		for status, want := range outcomes {
			f, status, want := f, status, want
			t.Run(string(f.flow)+"_"+string(status), func(t *testing.T) {
				h := newHarness(t, verifiedKYC(), MachineConfig{})
				ctx := context.Background()
				_, err := h.m.Select(kenyaMobile(f.network))
				require.NoError(t, err)

				_, err = h.m.Confirm(ctx, f.flow)
				require.NoError(t, err)
				if f.flow == domain.FlowWithdraw {
					_, err = h.m.CreateTransfer(ctx)
					require.NoError(t, err)
				}
				require.Equal(t, domain.StepGotTransfer, h.step())

				h.poller.status(domain.TransferStatusPending)
				assert.Equal(t, domain.StepGotTransfer, h.step())

				h.poller.status(status)
				assert.Equal(t, want, h.step())
				assert.Equal(t, domain.AppStateIdle, h.m.View().Order.AppState)
			})
		}
	}
}

func TestSelect_LockedAfterQuote(t *testing.T) {
	h := newHarness(t, nil, MachineConfig{})
	_, err := h.m.Select(kenyaMobile("base"))
	require.NoError(t, err)
	_, err = h.m.Confirm(context.Background(), domain.FlowWithdraw)
	require.NoError(t, err)

	_, err = h.m.Select(kenyaMobile("polygon"))
	require.ErrorIs(t, err, ErrSelectionLocked)

	_, err = h.m.Confirm(context.Background(), domain.FlowWithdraw)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestWallet_DisconnectClearsKYC(t *testing.T) {
	h := newHarness(t, verifiedKYC(), MachineConfig{})
	require.NotNil(t, h.m.View().KYC)

	view := h.m.DisconnectWallet()
	assert.Nil(t, view.KYC)
	assert.Empty(t, view.Order.WalletAddress)

	_, err := h.m.RefreshKYC(context.Background())
	require.ErrorIs(t, err, ErrWalletRequired)

	_, err = h.m.ConnectWallet(context.Background(), "not-a-wallet", 1)
	var validation *ValidationError
	require.True(t, errors.As(err, &validation))
}

func TestQuoteRequestFor_AmountField(t *testing.T) {
	ng, _ := domain.LookupCountry("NG")
	ke, _ := domain.LookupCountry("KE")
	cngn, _ := domain.LookupAsset("CNGN")
	usdc, _ := domain.LookupAsset("USDC")
	fiat := decimal.NewFromInt(15_500)
	crypto := decimal.NewFromInt(10)

	sell := models.Order{Direction: domain.TransferOut, Network: "base", WalletAddress: testWallet}
	buy := models.Order{Direction: domain.TransferIn, Network: "base", WalletAddress: testWallet}

	req := quoteRequestFor(sell, ng, cngn, fiat, crypto)
	assert.Equal(t, "15500", req.FiatAmount)
	assert.Empty(t, req.CryptoAmount)

	req = quoteRequestFor(sell, ke, usdc, fiat, crypto)
	assert.Equal(t, "10", req.CryptoAmount)
	assert.Empty(t, req.FiatAmount)

	req = quoteRequestFor(buy, ng, cngn, fiat, crypto)
	assert.Equal(t, "10", req.CryptoAmount)
	assert.Equal(t, domain.TransferIn, req.TransferType)
}
