// ABOUTME: Session manager issuing opaque handles bound to the shared cell
// ABOUTME: Enforces open/read/write/close ordering and keeps diagnostic counters

package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/cell-gateway/internal/cell"
)

// ErrSessionNotOpen is returned for any operation on a handle that was never
// issued or has already been closed. The two cases are indistinguishable to
// callers: a closed handle is removed from the table rather than parked in a
// terminal state, so the table never grows with dead sessions.
var ErrSessionNotOpen = errors.New("session is not open")

// Session records one caller's open lifetime against the cell.
type Session struct {
	Handle   string
	OpenedAt time.Time
}

// Counters is a snapshot of the manager's diagnostic state. Opens and Closes
// are lifetime totals (the original driver's ga/gb pair); Active is the
// number of currently open sessions. Informational only.
type Counters struct {
	Opens  uint64
	Closes uint64
	Active int
}

// Manager validates call ordering and routes session operations to the one
// shared cell. Safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	cell     *cell.Cell
	sessions map[string]*Session
	opens    uint64
	closes   uint64
	logger   *slog.Logger
}

// NewManager creates a Manager bound to the given cell.
func NewManager(c *cell.Cell, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cell:     c,
		sessions: make(map[string]*Session),
		logger:   logger.With("component", "session"),
	}
}

// Open issues a new handle. It always succeeds absent resource exhaustion.
func (m *Manager) Open() *Session {
	s := &Session{
		Handle:   uuid.New().String(),
		OpenedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.sessions[s.Handle] = s
	m.opens++
	opens, closes := m.opens, m.closes
	m.mu.Unlock()

	m.logger.Info("session opened", "handle", s.Handle, "opens", opens, "closes", closes)
	return s
}

// Close ends the session. A second close of the same handle fails with
// ErrSessionNotOpen; the open/close state machine has no way back.
func (m *Manager) Close(handle string) error {
	m.mu.Lock()
	if _, ok := m.sessions[handle]; !ok {
		m.mu.Unlock()
		return ErrSessionNotOpen
	}
	delete(m.sessions, handle)
	m.closes++
	opens, closes := m.opens, m.closes
	m.mu.Unlock()

	m.logger.Info("session closed", "handle", handle, "opens", opens, "closes", closes)
	return nil
}

// Read returns the current secret, provided the handle is open and the
// caller's declared capacity meets the cell contract.
func (m *Manager) Read(handle string, capacity int) ([]byte, error) {
	if !m.isOpen(handle) {
		return nil, ErrSessionNotOpen
	}
	return m.cell.Read(capacity)
}

// Write replaces the secret, provided the handle is open. Returns the number
// of bytes accepted.
func (m *Manager) Write(handle string, data []byte) (int, error) {
	if !m.isOpen(handle) {
		return 0, ErrSessionNotOpen
	}
	return m.cell.Write(data)
}

// Counters returns a snapshot of the diagnostic open/close totals.
func (m *Manager) Counters() Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Counters{
		Opens:  m.opens,
		Closes: m.closes,
		Active: len(m.sessions),
	}
}

func (m *Manager) isOpen(handle string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[handle]
	return ok
}
