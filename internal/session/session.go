package session

import "sync"

// Stage is a session's position in the two-question dialogue.
type Stage int

const (
	// StageAwaitingName expects the child's name as the next input.
	StageAwaitingName Stage = iota
	// StageAwaitingTopic expects a story topic as the next input. The
	// dialogue returns here after every delivered story so the same name
	// can be reused for further tales.
	StageAwaitingTopic
)

func (s Stage) String() string {
	switch s {
	case StageAwaitingName:
		return "awaiting_name"
	case StageAwaitingTopic:
		return "awaiting_topic"
	default:
		return "unknown"
	}
}

// Session is per-chat conversational state. It is created lazily on first
// contact and lives for the lifetime of the process.
type Session struct {
	ChatID    int64
	Stage     Stage
	ChildName string
}

// Store abstracts session persistence keyed by chat ID. Implementations
// must be safe for concurrent use by handlers of unrelated chats.
type Store interface {
	// Get returns the session for a chat, or nil when the chat has never
	// been seen.
	Get(chatID int64) *Session
	// Put inserts or replaces the session for its chat.
	Put(s *Session)
	// Remove deletes the session for a chat, if any.
	Remove(chatID int64)
	// Len returns the number of tracked sessions.
	Len() int
}

// MemoryStore is an in-memory Store. The lock guards only map access, so
// unrelated chats are never serialized behind a slow generation call.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]*Session)}
}

func (m *MemoryStore) Get(chatID int64) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[chatID]
}

func (m *MemoryStore) Put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ChatID] = s
}

func (m *MemoryStore) Remove(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, chatID)
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
