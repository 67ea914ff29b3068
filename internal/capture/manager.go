package capture

import (
	"context"
	"sync"

	"library_pos_backend/internal/decode"
	"library_pos_backend/pkg/metrics"
	"library_pos_backend/pkg/utils"
)

// Manager owns the capture sessions of all operators. Sessions for different
// keys run independently; starting a key again replaces its previous session.
type Manager struct {
	camera  Camera
	gateway decode.Gateway
	opts    Options
	metrics *metrics.ScanMetrics

	mu       sync.Mutex
	sessions map[Key]*Session
	onFinish func(Outcome)
	closed   bool
}

func NewManager(camera Camera, gateway decode.Gateway, opts Options, m *metrics.ScanMetrics) *Manager {
	return &Manager{
		camera:   camera,
		gateway:  gateway,
		opts:     opts,
		metrics:  m,
		sessions: make(map[Key]*Session),
	}
}

// OnFinish registers the hook that receives every session outcome.
func (m *Manager) OnFinish(fn func(Outcome)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFinish = fn
}

func (m *Manager) finished(outcome Outcome) {
	m.metrics.ObserveSession(string(outcome.Key.Target), string(outcome.State))
	m.mu.Lock()
	hook := m.onFinish
	m.mu.Unlock()
	if hook != nil {
		hook(outcome)
	}
}

// Start begins a new session for key, stopping any session already running there.
func (m *Manager) Start(key Key) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	previous := m.sessions[key]
	session := newSession(key, m.camera, m.gateway, m.opts, m.finished)
	m.sessions[key] = session
	m.mu.Unlock()

	if previous != nil {
		previous.Stop("restarted")
	}
	session.start()
	return session, nil
}

// Session returns the latest session for key, running or finished.
func (m *Manager) Session(key Key) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[key]
	if !ok {
		return nil, ErrNoSession
	}
	return session, nil
}

// Status returns the status of the latest session for key. A key that never
// had a session reports Idle.
func (m *Manager) Status(key Key) Status {
	session, err := m.Session(key)
	if err != nil {
		return Status{Target: key.Target, State: StateIdle, MaxAttempts: m.opts.MaxAttempts}
	}
	return session.Status()
}

// Stop stops the session for key. It is a no-op for finished sessions.
func (m *Manager) Stop(key Key, reason string) (Status, error) {
	session, err := m.Session(key)
	if err != nil {
		return Status{Target: key.Target, State: StateIdle}, err
	}
	session.Stop(reason)
	return session.Status(), nil
}

// StopAll stops every running session of operator, e.g. on section switch,
// hidden page, unload or logout. It returns how many sessions were stopped.
func (m *Manager) StopAll(operator, reason string) int {
	m.mu.Lock()
	var sessions []*Session
	for key, session := range m.sessions {
		if key.Operator == operator {
			sessions = append(sessions, session)
		}
	}
	m.mu.Unlock()

	stopped := 0
	for _, session := range sessions {
		if session.Stop(reason) {
			stopped++
		}
	}
	if stopped > 0 {
		utils.LogInfo("Stopped capture sessions", map[string]interface{}{"operator": operator, "reason": reason, "count": stopped})
	}
	return stopped
}

// ToggleTorch flips the torch of the running session for key.
func (m *Manager) ToggleTorch(key Key) (bool, error) {
	session, err := m.Session(key)
	if err != nil {
		return false, err
	}
	return session.ToggleTorch()
}

// Shutdown stops all sessions, refuses new ones and waits for the sampling
// goroutines to exit or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.Unlock()

	for _, session := range sessions {
		session.Stop("shutdown")
	}
	for _, session := range sessions {
		if err := session.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
