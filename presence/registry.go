package presence

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// PubSubChannel is the pub/sub channel carrying presence change events.
const PubSubChannel = "presence"

// Event is one presence change, published when a user connects or
// disconnects.
type Event struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

// Registry maintains the in-memory map of connected user sessions. It is the
// sole owner of presence state; it holds nothing durable and starts empty on
// every process restart.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*Session // userID → session
	logger   *zap.Logger
}

// NewRegistry creates a new Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[int64]*Session),
		logger:   logger,
	}
}

// Register adds a session. If a previous session exists for the same user,
// it is closed and displaced (last writer wins; handles reconnects and
// duplicate logins).
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.sessions[s.UserID]; ok {
		old.Close()
		r.logger.Info("duplicate session displaced",
			zap.Int64("user_id", s.UserID))
	}
	r.sessions[s.UserID] = s
	r.logger.Info("session registered",
		zap.Int64("user_id", s.UserID),
		zap.String("username", s.Username))
}

// Unregister removes s from the registry, but only if s is still the current
// session for its user. A late disconnect from a displaced connection must
// not evict the newer session that replaced it, so eviction is keyed on
// session identity rather than user ID alone. Reports whether s was removed.
func (r *Registry) Unregister(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.UserID]; ok && cur == s {
		delete(r.sessions, s.UserID)
		r.logger.Info("session unregistered", zap.Int64("user_id", s.UserID))
		return true
	}
	return false
}

// Get returns the session for a user, or nil if not connected.
func (r *Registry) Get(userID int64) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[userID]
}

// IsOnline reports whether a user currently has a live session.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[userID]
	return ok
}

// Count returns the number of currently connected sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// All returns a snapshot slice of all current sessions.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// CloseAll gracefully closes all connected sessions and waits for the
// registry to drain, up to a timeout.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	r.logger.Info("closing all sessions", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		s.Close()
	}

	maxWait := 10 * time.Second
	start := time.Now()
	for time.Since(start) < maxWait {
		r.mu.RLock()
		count := len(r.sessions)
		r.mu.RUnlock()
		if count == 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
}
