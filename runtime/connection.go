package runtime

import (
	"fmt"
	"log/slog"
	"sync"

	"market-chat/auth"
	"market-chat/contract"
	"market-chat/domain/event"
	"market-chat/errors"
	"market-chat/repositories"
)

type State int

const (
	// StateConnected is the initial state: transport established, no identity.
	StateConnected State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is the per-connection state machine
// Connected -> Authenticated -> Closed. It owns the authentication
// handshake; every other operation goes through RequireAuthenticated.
type Connection struct {
	mu       sync.Mutex
	sink     contract.EventSink
	registry contract.IRegistry
	verifier auth.IVerifier
	users    repositories.IUserRepository
	log      *slog.Logger
	state    State
	userID   string
}

func NewConnection(sink contract.EventSink, registry contract.IRegistry,
	verifier auth.IVerifier, users repositories.IUserRepository, log *slog.Logger) *Connection {
	return &Connection{
		sink:     sink,
		registry: registry,
		verifier: verifier,
		users:    users,
		log:      log,
		state:    StateConnected,
	}
}

func (c *Connection) ID() string { return c.sink.ID() }

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Authenticate verifies the credential and registers the session. On any
// verifier or lookup failure the connection stays in its current state and
// the client may retry. Re-authenticating an already authenticated
// connection is a fresh register: idempotent for the same user, a takeover
// of the stale session otherwise.
func (c *Connection) Authenticate(token string) (event.Authenticated, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return event.Authenticated{}, fmt.Errorf("%w: connection closed", errors.ErrAuthentication)
	}

	claims, err := c.verifier.Verify(token)
	if err != nil {
		return event.Authenticated{}, err
	}

	user, err := c.users.GetUser(claims.UserID)
	if errors.Is(err, errors.ErrNotFound) {
		return event.Authenticated{}, fmt.Errorf("%w: user not found", errors.ErrAuthentication)
	}
	if err != nil {
		return event.Authenticated{}, err
	}

	if evicted := c.registry.Register(user.ID, c.sink); evicted != nil {
		// Advisory only: the evicted connection is not closed by the core.
		delivered := evicted.Deliver(event.SessionExpired{
			Message: "Your session has been taken over by another login",
		})
		if !delivered {
			c.log.Warn("session_expired advisory dropped", "user_id", user.ID, "conn_id", evicted.ID())
		}
		c.log.Info("session takeover", "user_id", user.ID, "old_conn", evicted.ID(), "new_conn", c.sink.ID())
	}

	c.state = StateAuthenticated
	c.userID = user.ID
	return event.Authenticated{UserID: user.ID, Username: user.Username}, nil
}

// RequireAuthenticated returns the identity this connection may act as.
// The registry's reverse lookup is authoritative: a connection whose
// session was taken over is no longer authorized even though it once
// completed the handshake.
func (c *Connection) RequireAuthenticated() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateAuthenticated {
		return "", fmt.Errorf("%w: authenticate first", errors.ErrUnauthorized)
	}
	userID, ok := c.registry.ResolveUser(c.sink.ID())
	if !ok {
		return "", fmt.Errorf("%w: session no longer active", errors.ErrUnauthorized)
	}
	return userID, nil
}

// Close transitions to Closed and removes the session. Valid from any
// state and idempotent; the transport calls it on every disconnect so a
// lookup performed right after never sees the stale handle.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	c.registry.Unregister(c.sink.ID())
}
