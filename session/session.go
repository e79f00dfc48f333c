package session

import (
	"errors"
	"sync"
	"time"

	"github.com/wfunc/arenaledger/models"
	"github.com/wfunc/arenaledger/network"
)

// DefaultQueueSize bounds the frames buffered for one subscriber.
const DefaultQueueSize = 256

var ErrSessionClosed = errors.New("session closed")

type outbound struct {
	msgID uint16
	data  []byte
}

// Session is one event feed subscriber. Frames are queued and written by
// Run so a slow peer never blocks the publisher.
type Session struct {
	ID         string
	Conn       network.Connection
	CreatedAt  time.Time
	LastActive time.Time

	player models.Address
	queue  chan outbound
	closed chan struct{}
	once   sync.Once
	mutex  sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	return NewSessionWithQueue(id, conn, DefaultQueueSize)
}

func NewSessionWithQueue(id string, conn network.Connection, size int) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
		queue:      make(chan outbound, size),
		closed:     make(chan struct{}),
	}
}

// SetPlayer narrows the feed to events about player. The zero address
// receives every event.
func (s *Session) SetPlayer(player models.Address) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.player = player
}

func (s *Session) Player() models.Address {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.player
}

// Wants reports whether ev passes the session filter.
func (s *Session) Wants(ev models.Event) bool {
	player := s.Player()
	return player.IsZero() || ev.Player == player
}

// Enqueue queues a frame without blocking. It returns false when the queue
// is full or the session is closed.
func (s *Session) Enqueue(msgID uint16, data []byte) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.queue <- outbound{msgID: msgID, data: data}:
		return true
	default:
		return false
	}
}

// Send writes a frame directly, bypassing the queue.
func (s *Session) Send(msgID uint16, data []byte) error {
	s.touch()
	return s.Conn.Send(msgID, data)
}

// Run drains the queue until the session is closed or a write fails.
func (s *Session) Run() error {
	for {
		select {
		case <-s.closed:
			return ErrSessionClosed
		case out := <-s.queue:
			if err := s.Send(out.msgID, out.data); err != nil {
				return err
			}
		}
	}
}

func (s *Session) touch() {
	s.mutex.Lock()
	s.LastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		err = s.Conn.Close()
	})
	return err
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// All returns a copy of the current sessions.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, s)
	}
	return result
}

// GetByPlayer returns the sessions filtered to player.
func (m *Manager) GetByPlayer(player models.Address) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.Player() == player {
			result = append(result, session)
		}
	}
	return result
}

// CloseAll closes and forgets every session.
func (m *Manager) CloseAll() {
	m.mutex.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mutex.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
