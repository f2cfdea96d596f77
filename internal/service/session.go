package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ayo6706/ramp-orchestrator/internal/domain"
	"github.com/ayo6706/ramp-orchestrator/internal/models"
	"github.com/ayo6706/ramp-orchestrator/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session owns exactly one order machine for one wallet.
type Session struct {
	ID      string
	Owner   string
	Machine *OrderMachine

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SessionManager keeps the live sessions of this process.
type SessionManager struct {
	deps Deps
	cfg  MachineConfig
	now  func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionManager(deps Deps, cfg MachineConfig) *SessionManager {
	return &SessionManager{
		deps:     deps,
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create opens a session for owner and connects the wallet.
func (m *SessionManager) Create(ctx context.Context, owner, wallet string, chainID int64) (*Session, models.OrderView, error) {
	id := uuid.NewString()
	session := &Session{
		ID:       id,
		Owner:    strings.ToLower(owner),
		Machine:  NewOrderMachine(id, m.deps, m.cfg),
		lastSeen: m.now(),
	}

	view, err := session.Machine.ConnectWallet(ctx, wallet, chainID)
	if err != nil {
		var validation *ValidationError
		if errors.As(err, &validation) {
			return nil, models.OrderView{}, err
		}
		// A failed KYC fetch leaves the session usable; the client can refresh.
		zap.L().Warn("kyc fetch failed on session create", zap.String("session_id", id), zap.Error(err))
		view = session.Machine.View()
	}

	m.mu.Lock()
	m.sessions[id] = session
	n := len(m.sessions)
	m.mu.Unlock()
	observability.SetActiveSessions(n)
	return session, view, nil
}

// Get returns the session if it exists and belongs to owner.
func (m *SessionManager) Get(id, owner string) (*Session, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || session.Owner != strings.ToLower(owner) {
		return nil, ErrSessionNotFound
	}
	session.touch(m.now())
	return session, nil
}

// Remove disconnects the wallet and forgets the session.
func (m *SessionManager) Remove(id, owner string) error {
	session, err := m.Get(id, owner)
	if err != nil {
		return err
	}
	session.Machine.DisconnectWallet()

	m.mu.Lock()
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	observability.SetActiveSessions(n)
	return nil
}

// SweepIdle cancels and removes sessions idle longer than ttl. Sessions
// with work in flight are kept.
func (m *SessionManager) SweepIdle(ttl time.Duration) int {
	cutoff := m.now().Add(-ttl)

	m.mu.RLock()
	var idle []*Session
	for _, s := range m.sessions {
		if s.idleSince().Before(cutoff) && !s.Machine.Busy() {
			idle = append(idle, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range idle {
		s.Machine.Cancel()
	}

	m.mu.Lock()
	for _, s := range idle {
		delete(m.sessions, s.ID)
	}
	n := len(m.sessions)
	m.mu.Unlock()
	observability.SetActiveSessions(n)

	if len(idle) > 0 {
		zap.L().Info("swept idle sessions", zap.Int("removed", len(idle)), zap.Int("remaining", n))
	}
	return len(idle)
}

// DeliverTransferStatus hands a pushed status to the session whose order
// holds the transfer.
func (m *SessionManager) DeliverTransferStatus(transferID string, status domain.TransferStatus) bool {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		if s.Machine.ApplyTransferStatus(transferID, status) {
			return true
		}
	}
	return false
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
