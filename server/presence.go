package server

import (
	"sort"
	"sync"
)

// Presence is the single source of truth for which users are currently
// reachable. At most one live session per username: a reconnect displaces the
// previous registration and the displaced session is left to die on its own
// socket.
type Presence struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewPresence() *Presence {
	return &Presence{sessions: make(map[string]*Session)}
}

// Register binds a username to a session and returns the session it
// displaced, if any.
func (p *Presence) Register(username string, s *Session) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.sessions[username]
	p.sessions[username] = s
	return prev
}

// Lookup returns the live session for a username. A miss is the normal
// "offline" signal, not an error.
func (p *Presence) Lookup(username string) (*Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[username]
	return s, ok
}

// Release removes the registration only if it still points at s, so a closing
// stale session cannot unregister a newer reconnection.
func (p *Presence) Release(username string, s *Session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sessions[username] != s {
		return false
	}
	delete(p.sessions, username)
	return true
}

// Snapshot returns all currently registered sessions.
func (p *Presence) Snapshot() []*Session {
	p.mu.RLock()
	defer p.mu.RUnlock()

	sessions := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Users returns the sorted list of online usernames.
func (p *Presence) Users() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	users := make([]string, 0, len(p.sessions))
	for login := range p.sessions {
		users = append(users, login)
	}
	sort.Strings(users)
	return users
}

func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}
