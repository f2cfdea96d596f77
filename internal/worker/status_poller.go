package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/ramp-orchestrator/internal/domain"
	"github.com/ayo6706/ramp-orchestrator/internal/gateway"
	"github.com/ayo6706/ramp-orchestrator/internal/observability"
	"go.uber.org/zap"
)

// StatusPoller polls the ramp backend for the status of a transfer.
// Every Start runs its own loop until a terminal status, a failed request
// or stop.
type StatusPoller struct {
	gateway        gateway.Gateway
	parent         context.Context
	pollInterval   time.Duration
	requestTimeout time.Duration
}

// NewStatusPoller creates a poller with the default 5 second interval. Loops
// end when ctx is canceled.
func NewStatusPoller(ctx context.Context, gw gateway.Gateway) *StatusPoller {
	return &StatusPoller{
		gateway:        gw,
		parent:         ctx,
		pollInterval:   5 * time.Second,
		requestTimeout: 10 * time.Second,
	}
}

// WithPollInterval sets the poll interval for the worker.
func (p *StatusPoller) WithPollInterval(interval time.Duration) *StatusPoller {
	if interval > 0 {
		p.pollInterval = interval
	}
	return p
}

// Start begins polling transferID. The returned stop function never blocks
// and can be called more than once; no request is issued after it returns.
func (p *StatusPoller) Start(transferID string, onStatus func(domain.TransferStatus), onError func(error)) func() {
	ctx, cancel := context.WithCancel(p.parent)
	go p.loop(ctx, transferID, onStatus, onError)
	return cancel
}

func (p *StatusPoller) loop(ctx context.Context, transferID string, onStatus func(domain.TransferStatus), onError func(error)) {
	logger := zap.L().With(zap.String("transfer_id", transferID))
	logger.Debug("status poller starting", zap.Duration("interval", p.pollInterval))

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("status poller stopped")
			return
		case <-ticker.C:
			// select picks at random when stop and a tick race.
			if ctx.Err() != nil {
				return
			}
			status, err := p.checkOnce(ctx, transferID)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				observability.IncrementStatusPoll("error")
				logger.Warn("transfer status request failed", zap.Error(err))
				onError(err)
				return
			}
			switch status {
			case domain.TransferStatusComplete, domain.TransferStatusFailed:
				observability.IncrementStatusPoll("terminal")
				logger.Info("transfer reached terminal status", zap.String("status", string(status)))
				onStatus(status)
				return
			default:
				observability.IncrementStatusPoll("pending")
			}
		}
	}
}

func (p *StatusPoller) checkOnce(ctx context.Context, transferID string) (domain.TransferStatus, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()
	return p.gateway.TransferStatus(reqCtx, transferID)
}

// String returns a string representation of the worker.
func (p *StatusPoller) String() string {
	return fmt.Sprintf("StatusPoller(interval=%v)", p.pollInterval)
}
