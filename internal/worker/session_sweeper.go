package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/ramp-orchestrator/internal/observability"
	"github.com/ayo6706/ramp-orchestrator/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SessionSweeper drops sessions that have been idle longer than the TTL.
type SessionSweeper struct {
	sessions *service.SessionManager
	ttl      time.Duration
	schedule string
	cron     *cron.Cron
	stopOnce sync.Once
}

// NewSessionSweeper constructs a sweeper that runs every minute.
func NewSessionSweeper(sessions *service.SessionManager, ttl time.Duration) *SessionSweeper {
	return &SessionSweeper{
		sessions: sessions,
		ttl:      ttl,
		schedule: "@every 1m",
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger{}))),
	}
}

// WithSchedule sets the cron spec, e.g. "@every 30s" or "*/5 * * * *".
func (w *SessionSweeper) WithSchedule(schedule string) *SessionSweeper {
	if schedule != "" {
		w.schedule = schedule
	}
	return w
}

// Run registers the sweep job and starts the scheduler. The returned function
// stops it and waits for a running sweep to finish.
func (w *SessionSweeper) Run(ctx context.Context) (func(), error) {
	if _, err := w.cron.AddFunc(w.schedule, w.runOnce); err != nil {
		return nil, fmt.Errorf("schedule session sweep %q: %w", w.schedule, err)
	}
	zap.L().Info("session sweeper starting", zap.String("schedule", w.schedule), zap.Duration("idle_ttl", w.ttl))
	w.cron.Start()

	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return w.Stop, nil
}

// Stop stops the scheduler.
func (w *SessionSweeper) Stop() {
	w.stopOnce.Do(func() {
		<-w.cron.Stop().Done()
	})
}

func (w *SessionSweeper) runOnce() {
	removed := w.sessions.SweepIdle(w.ttl)
	observability.IncrementWorkerRun("session_sweeper", "success")
	if removed > 0 {
		zap.L().Debug("session sweep finished", zap.Int("removed", removed))
	}
}

// cronLogger routes scheduler logs to zap.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	zap.S().Infow(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	observability.IncrementWorkerRun("session_sweeper", "failed")
	zap.S().Errorw(msg, append(keysAndValues, "error", err)...)
}
