package server

import (
	"fmt"
	"sync"

	"document-qa/internal/helper"
	"document-qa/internal/rag"
)

// SessionFactory builds a new session with the given id.
type SessionFactory func(id string) (*rag.Session, error)

// Manager keeps the live sessions of the HTTP front end, one document each.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*rag.Session
	factory  SessionFactory
}

func NewManager(factory SessionFactory) *Manager {
	return &Manager{sessions: make(map[string]*rag.Session), factory: factory}
}

func (m *Manager) Create() (*rag.Session, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	s, err := m.factory(id)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s, nil
}

func (m *Manager) Get(id string) (*rag.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete closes and forgets the session. It reports whether it existed.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Close()
	}
	return ok
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll closes every session, used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*rag.Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
