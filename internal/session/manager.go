package session

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type managedSession struct {
	session *Session
	refs    int
	idle    *time.Timer
}

// Manager shares one live Session per coach between all of that coach's
// viewers. A session is started on first Acquire and closed idleTimeout after
// its last release.
type Manager struct {
	ctx         context.Context
	src         Source
	logger      *zap.Logger
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[primitive.ObjectID]*managedSession
	closed   bool
}

// NewManager creates a Manager. Sessions it starts live no longer than ctx.
func NewManager(ctx context.Context, src Source, logger *zap.Logger, idleTimeout time.Duration) *Manager {
	return &Manager{
		ctx:         ctx,
		src:         src,
		logger:      logger,
		idleTimeout: idleTimeout,
		sessions:    make(map[primitive.ObjectID]*managedSession),
	}
}

// Acquire returns the live session for coachID, starting one if needed. The
// returned release function must be called exactly once when the caller is
// done; extra calls are ignored.
func (m *Manager) Acquire(coachID primitive.ObjectID) (*Session, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.sessions[coachID]
	if !ok {
		s := New(coachID, m.src, m.logger)
		if m.closed {
			// Hand out a closed session; its subscribers see a closed channel.
			s.Close()
			return s, func() {}
		}
		s.Start(m.ctx)
		ms = &managedSession{session: s}
		m.sessions[coachID] = ms
		m.logger.Info("Schedule session started", zap.String("coach_id", coachID.Hex()))
	}
	if ms.idle != nil {
		ms.idle.Stop()
		ms.idle = nil
	}
	ms.refs++

	var once sync.Once
	return ms.session, func() {
		once.Do(func() { m.release(coachID, ms) })
	}
}

func (m *Manager) release(coachID primitive.ObjectID, ms *managedSession) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms.refs--
	if ms.refs > 0 || m.sessions[coachID] != ms {
		return
	}
	if m.idleTimeout <= 0 {
		m.evictLocked(coachID, ms)
		return
	}
	ms.idle = time.AfterFunc(m.idleTimeout, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if ms.refs == 0 && m.sessions[coachID] == ms {
			m.evictLocked(coachID, ms)
		}
	})
}

// evictLocked removes ms and closes it in the background so the manager lock
// is not held while change streams wind down.
func (m *Manager) evictLocked(coachID primitive.ObjectID, ms *managedSession) {
	delete(m.sessions, coachID)
	go ms.session.Close()
	m.logger.Info("Schedule session closed", zap.String("coach_id", coachID.Hex()))
}

// Watch acquires the coach's session and subscribes to it. stop releases
// both and must be called once the caller is done.
func (m *Manager) Watch(coachID primitive.ObjectID) (<-chan Snapshot, func()) {
	s, release := m.Acquire(coachID)
	updates, cancel := s.Subscribe()
	return updates, func() {
		cancel()
		release()
	}
}

// Snapshot returns the coach's current data. A live session answers from
// memory once loaded; otherwise the collections are read once.
func (m *Manager) Snapshot(ctx context.Context, coachID primitive.ObjectID) (Snapshot, error) {
	m.mu.Lock()
	ms, ok := m.sessions[coachID]
	m.mu.Unlock()

	if !ok {
		return Load(ctx, coachID, m.src, m.logger), nil
	}
	if err := ms.session.WaitLoaded(ctx); err != nil {
		return Snapshot{}, err
	}
	return ms.session.Snapshot(), nil
}

// Refresh re-reads the coach's live session, if there is one. It reports
// whether a session was refreshed.
func (m *Manager) Refresh(ctx context.Context, coachID primitive.ObjectID) bool {
	m.mu.Lock()
	ms, ok := m.sessions[coachID]
	m.mu.Unlock()

	if !ok {
		return false
	}
	ms.session.Refresh(ctx)
	return true
}

// Active returns how many coach sessions are live.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close closes every session and refuses to start new ones.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for id, ms := range m.sessions {
		if ms.idle != nil {
			ms.idle.Stop()
		}
		sessions = append(sessions, ms.session)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
