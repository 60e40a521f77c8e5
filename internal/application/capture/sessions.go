package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/internal/domain/apperror"
	"github.com/dreschagin/securecam/internal/domain/entity"
	"github.com/dreschagin/securecam/pkg/logger"
	"github.com/google/uuid"
)

// Rig is the capture device bound to one session.
type Rig interface {
	port.Camera
	port.PermissionGate
	Close() error
}

// RigFactory creates the device for a new session.
type RigFactory func(sessionID string) (Rig, error)

// Session связывает секвенсор с устройством, на котором идет съемка.
type Session struct {
	ID        string
	Sequencer *Sequencer
	Rig       Rig
	CreatedAt time.Time
}

type CreateSessionRequest struct {
	LoadID     string
	LoadNumber string
}

type ManagerConfig struct {
	Steps            []entity.CaptureStep
	MaxVideoDuration time.Duration
	// MaxSessions ограничивает число одновременных сессий; 0 - без ограничения.
	MaxSessions int
}

// Manager хранит активные сессии съемки.
type Manager struct {
	config ManagerConfig
	deps   Deps
	newRig RigFactory
	logger *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	// reserved - места под сессии, которые еще создаются.
	reserved int
}

// NewManager создает менеджер. Camera и Permissions в deps заполняются устройством сессии.
func NewManager(config ManagerConfig, deps Deps, newRig RigFactory, log *logger.Logger) *Manager {
	return &Manager{
		config:   config,
		deps:     deps,
		newRig:   newRig,
		logger:   log,
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Create(req CreateSessionRequest) (*Session, error) {
	m.mu.Lock()
	count := len(m.sessions) + m.reserved
	if m.config.MaxSessions > 0 && count >= m.config.MaxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("too many active sessions (%d)", count)
	}
	m.reserved++
	m.mu.Unlock()

	session, err := m.newSession(req)

	m.mu.Lock()
	m.reserved--
	if err == nil {
		m.sessions[session.ID] = session
	}
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	m.logger.Info("Capture session created", "session_id", session.ID, "load_id", req.LoadID)
	return session, nil
}

func (m *Manager) newSession(req CreateSessionRequest) (*Session, error) {
	id := uuid.New().String()
	rig, err := m.newRig(id)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare capture device: %w", err)
	}

	deps := m.deps
	deps.Camera = rig
	deps.Permissions = rig

	seq, err := NewSequencer(Config{
		SessionID:        id,
		LoadID:           strings.TrimSpace(req.LoadID),
		LoadNumber:       strings.TrimSpace(req.LoadNumber),
		Steps:            m.config.Steps,
		MaxVideoDuration: m.config.MaxVideoDuration,
	}, deps, m.logger)
	if err != nil {
		_ = rig.Close()
		return nil, err
	}

	return &Session{
		ID:        id,
		Sequencer: seq,
		Rig:       rig,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, apperror.ErrSessionNotFound
	}
	return session, nil
}

func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return apperror.ErrSessionNotFound
	}
	m.closeSession(session)
	return nil
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Cleanup удаляет сессии старше maxAge. Возвращает число удаленных.
func (m *Manager) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	m.mu.Lock()
	expired := make([]*Session, 0)
	for id, session := range m.sessions {
		if session.CreatedAt.Before(cutoff) {
			expired = append(expired, session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, session := range expired {
		m.closeSession(session)
	}
	if len(expired) > 0 {
		m.logger.Info("Expired capture sessions removed", "count", len(expired))
	}
	return len(expired)
}

// Run периодически чистит устаревшие сессии до отмены ctx.
func (m *Manager) Run(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup(maxAge)
		}
	}
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, session := range sessions {
		m.closeSession(session)
	}
}

func (m *Manager) closeSession(session *Session) {
	session.Sequencer.Close()
	if err := session.Rig.Close(); err != nil {
		m.logger.Warn("Failed to close capture device", "session_id", session.ID, "error", err.Error())
	}
}
