package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/ramp-orchestrator/internal/domain"
	"github.com/ayo6706/ramp-orchestrator/internal/executor"
	"github.com/ayo6706/ramp-orchestrator/internal/gateway"
	"github.com/ayo6706/ramp-orchestrator/internal/models"
	"github.com/ayo6706/ramp-orchestrator/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWallet = "0x1111111111111111111111111111111111111111"

// statusGateway answers status requests from a scripted sequence and
// repeats the last entry once the script runs out.
type statusGateway struct {
	mu       sync.Mutex
	calls    int
	canceled int
	statuses []domain.TransferStatus
	err      error
}

func (g *statusGateway) CreateQuote(context.Context, gateway.QuoteRequest) (*models.Quote, error) {
	return nil, errors.New("not implemented")
}

func (g *statusGateway) CreateTransfer(context.Context, models.TransferRequest) (*models.Transfer, error) {
	return nil, errors.New("not implemented")
}

func (g *statusGateway) SubmitTxHash(context.Context, string, string) error { return nil }

func (g *statusGateway) FetchKYC(context.Context, string) (*models.KYCRecord, error) {
	return nil, nil
}

func (g *statusGateway) TransferStatus(ctx context.Context, _ string) (domain.TransferStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if ctx.Err() != nil {
		g.canceled++
	}
	if g.err != nil {
		return "", g.err
	}
	i := g.calls - 1
	if i >= len(g.statuses) {
		i = len(g.statuses) - 1
	}
	return g.statuses[i], nil
}

func (g *statusGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type pollResult struct {
	mu     sync.Mutex
	status []domain.TransferStatus
	errs   []error
}

func (r *pollResult) onStatus(s domain.TransferStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = append(r.status, s)
}

func (r *pollResult) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *pollResult) snapshot() ([]domain.TransferStatus, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TransferStatus(nil), r.status...), append([]error(nil), r.errs...)
}

func TestStatusPollerStopsOnTerminalStatus(t *testing.T) {
	cases := []struct {
		name     string
		statuses []domain.TransferStatus
		want     domain.TransferStatus
	}{
		{name: "complete", statuses: []domain.TransferStatus{domain.TransferStatusPending, "Processing", domain.TransferStatusComplete}, want: domain.TransferStatusComplete},
		{name: "failed", statuses: []domain.TransferStatus{domain.TransferStatusPending, domain.TransferStatusFailed}, want: domain.TransferStatusFailed},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			gw := &statusGateway{statuses: tc.statuses}
			poller := NewStatusPoller(context.Background(), gw).WithPollInterval(2 * time.Millisecond)
			res := &pollResult{}

			stop := poller.Start("t-1", res.onStatus, res.onError)
			defer stop()

			require.Eventually(t, func() bool {
				s, _ := res.snapshot()
				return len(s) == 1
			}, time.Second, time.Millisecond)

			calls := gw.count()
			time.Sleep(20 * time.Millisecond)
			statuses, errs := res.snapshot()
			assert.Equal(t, []domain.TransferStatus{tc.want}, statuses)
			assert.Empty(t, errs)
			assert.Equal(t, len(tc.statuses), calls)
			assert.Equal(t, calls, gw.count())
		})
	}
}

func TestStatusPollerReportsError(t *testing.T) {
	gw := &statusGateway{err: errors.New("status endpoint down")}
	poller := NewStatusPoller(context.Background(), gw).WithPollInterval(2 * time.Millisecond)
	res := &pollResult{}

	stop := poller.Start("t-1", res.onStatus, res.onError)
	defer stop()

	require.Eventually(t, func() bool {
		_, errs := res.snapshot()
		return len(errs) == 1
	}, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, gw.count())
}

func TestStatusPollerStopHaltsRequests(t *testing.T) {
	gw := &statusGateway{statuses: []domain.TransferStatus{domain.TransferStatusPending}}
	poller := NewStatusPoller(context.Background(), gw).WithPollInterval(2 * time.Millisecond)
	res := &pollResult{}

	stop := poller.Start("t-1", res.onStatus, res.onError)
	require.Eventually(t, func() bool { return gw.count() >= 2 }, time.Second, time.Millisecond)

	stop()
	stop()
	time.Sleep(5 * time.Millisecond)
	calls := gw.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, gw.count())

	statuses, errs := res.snapshot()
	assert.Empty(t, statuses)
	assert.Empty(t, errs)
}

func TestStatusPollerNoRequestWithStoppedContext(t *testing.T) {
	gw := &statusGateway{statuses: []domain.TransferStatus{domain.TransferStatusPending}}
	poller := NewStatusPoller(context.Background(), gw).WithPollInterval(time.Millisecond)

	for i := 0; i < 50; i++ {
		res := &pollResult{}
		stop := poller.Start("t-race", res.onStatus, res.onError)
		time.Sleep(time.Duration(i%4) * time.Millisecond)
		stop()
	}
	time.Sleep(10 * time.Millisecond)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Zero(t, gw.canceled)
}

func TestStatusPollerParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gw := &statusGateway{statuses: []domain.TransferStatus{domain.TransferStatusPending}}
	poller := NewStatusPoller(ctx, gw).WithPollInterval(2 * time.Millisecond)

	poller.Start("t-1", func(domain.TransferStatus) {}, func(error) {})
	require.Eventually(t, func() bool { return gw.count() >= 1 }, time.Second, time.Millisecond)

	cancel()
	time.Sleep(5 * time.Millisecond)
	calls := gw.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, gw.count())
}

func newTestSessions(gw gateway.Gateway) *service.SessionManager {
	return service.NewSessionManager(service.Deps{
		Gateway:  gw,
		Executor: executor.NewWalletBridge(),
	}, service.MachineConfig{})
}

func TestSessionSweeperRunOnce(t *testing.T) {
	sessions := newTestSessions(&statusGateway{})
	_, _, err := sessions.Create(context.Background(), testWallet, testWallet, 8453)
	require.NoError(t, err)

	w := NewSessionSweeper(sessions, time.Hour)
	w.runOnce()
	assert.Equal(t, 1, sessions.Len())

	time.Sleep(5 * time.Millisecond)
	w.ttl = time.Millisecond
	w.runOnce()
	assert.Zero(t, sessions.Len())
}

func TestSessionSweeperSchedule(t *testing.T) {
	sessions := newTestSessions(&statusGateway{})
	_, _, err := sessions.Create(context.Background(), testWallet, testWallet, 8453)
	require.NoError(t, err)

	w := NewSessionSweeper(sessions, time.Millisecond).WithSchedule("@every 10ms")
	stop, err := w.Run(context.Background())
	require.NoError(t, err)
	defer stop()

	require.Eventually(t, func() bool { return sessions.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestSessionSweeperRejectsBadSchedule(t *testing.T) {
	w := NewSessionSweeper(newTestSessions(&statusGateway{}), time.Minute).WithSchedule("every now and then")
	_, err := w.Run(context.Background())
	require.Error(t, err)
}
