// Package runtime owns the live state of the messaging core: the session
// registry, the per-connection state machine, and the message router. It
// contains no transport concerns; transports talk to it through the
// contract interfaces.
package runtime

import (
	"sync"
	"time"

	"market-chat/contract"
)

// Session ties a user to their single live connection.
type Session struct {
	UserID        string
	Sink          contract.EventSink
	EstablishedAt time.Time
}

// Registry enforces at most one live session per user. A single RWMutex
// serializes register/lookup/unregister so the invariant holds at every
// observable instant: a lookup right after an unregister never returns the
// stale sink.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session // userID -> session
	byConn   map[string]string   // connection id -> userID (reverse index)
	clock    func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byConn:   make(map[string]string),
		clock:    time.Now,
	}
}

// Register binds userID to sink, evicting any session the user already
// holds on another connection. The evicted sink is returned so the caller
// can send it the session_expired advisory; the registry itself never
// writes to sinks. Re-registering the same connection is a no-op.
func (r *Registry) Register(userID string, sink contract.EventSink) contract.EventSink {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted contract.EventSink
	if old, ok := r.sessions[userID]; ok {
		if old.Sink.ID() == sink.ID() {
			return nil
		}
		evicted = old.Sink
		delete(r.byConn, old.Sink.ID())
	}

	// Re-authentication as a different user moves the connection: drop the
	// session it held under the previous identity.
	if prevUser, ok := r.byConn[sink.ID()]; ok && prevUser != userID {
		if prev, ok := r.sessions[prevUser]; ok && prev.Sink.ID() == sink.ID() {
			delete(r.sessions, prevUser)
		}
	}

	r.sessions[userID] = &Session{
		UserID:        userID,
		Sink:          sink,
		EstablishedAt: r.clock(),
	}
	r.byConn[sink.ID()] = userID
	return evicted
}

// Lookup returns the live sink for userID. A miss means the recipient is
// offline and the caller should rely on durable storage only.
func (r *Registry) Lookup(userID string) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[userID]
	if !ok {
		return nil, false
	}
	return session.Sink, true
}

// Unregister removes the session held by the given connection, if any.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)
	if session, ok := r.sessions[userID]; ok && session.Sink.ID() == connID {
		delete(r.sessions, userID)
	}
}

// ResolveUser returns the identity a physical connection is authorized to
// act as. This reverse index is the only source of truth for authorization;
// sender ids carried in payloads are advisory.
func (r *Registry) ResolveUser(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.byConn[connID]
	return userID, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
