package conversation

import (
	"context"
	"sync"
)

// Manager owns one Conversation per session key, created on first use.
type Manager struct {
	transport Transport
	opts      Options

	mu            sync.RWMutex
	conversations map[string]*Conversation
}

// NewManager builds a manager; opts.SessionKey is ignored.
func NewManager(transport Transport, opts Options) *Manager {
	return &Manager{
		transport:     transport,
		opts:          opts,
		conversations: make(map[string]*Conversation),
	}
}

// Submit routes input to the conversation for sessionKey.
func (m *Manager) Submit(ctx context.Context, sessionKey string, input string) (Message, error) {
	return m.Get(sessionKey).Submit(ctx, input)
}

// Get returns the conversation for sessionKey, creating it if needed.
func (m *Manager) Get(sessionKey string) *Conversation {
	m.mu.RLock()
	conv, ok := m.conversations[sessionKey]
	m.mu.RUnlock()
	if ok {
		return conv
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if conv, ok = m.conversations[sessionKey]; ok {
		return conv
	}

	opts := m.opts
	opts.SessionKey = sessionKey
	conv = New(m.transport, opts)
	m.conversations[sessionKey] = conv
	return conv
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conversations)
}

// Close drops every tracked conversation.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.conversations)
}
