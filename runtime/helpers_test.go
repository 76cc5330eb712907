package runtime

import (
	"log/slog"
	"testing"
	"time"

	"market-chat/auth"
	"market-chat/domain/event"
	"market-chat/moderation"
	"market-chat/repositories"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testSecret = "runtime_test_secret_key_32_bytes"

// stubSink records delivered events; full simulates a saturated connection.
type stubSink struct {
	id     string
	events []event.DomainEvent
	full   bool
}

func newStubSink() *stubSink {
	return &stubSink{id: uuid.NewString()}
}

func (s *stubSink) ID() string { return s.id }

func (s *stubSink) Deliver(e event.DomainEvent) bool {
	if s.full {
		return false
	}
	s.events = append(s.events, e)
	return true
}

func (s *stubSink) named(name string) []event.DomainEvent {
	var out []event.DomainEvent
	for _, e := range s.events {
		if e.Name() == name {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	registry *Registry
	verifier auth.TokenVerifier
	messages *repositories.MessageRepository
	users    *repositories.UserRepository
	items    *repositories.ItemRepository
	router   *Router
	log      *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	log := slog.Default()
	registry := NewRegistry()
	messages := repositories.NewMessageRepository(db, repositories.NewSearchIndex(writer), log, nil)
	users := repositories.NewUserRepository(db)
	items := repositories.NewItemRepository(db)

	moderator, err := moderation.NewModerator([]string{"western union"}, '*')
	require.NoError(t, err)

	return &testEnv{
		registry: registry,
		verifier: auth.NewTokenVerifier(testSecret),
		messages: messages,
		users:    users,
		items:    items,
		router:   NewRouter(log, registry, messages, users, items, &moderator),
		log:      log,
	}
}

func (e *testEnv) createUser(t *testing.T, username string) string {
	t.Helper()
	id, err := e.users.CreateUser(username, username+"@example.com", "hashed")
	require.NoError(t, err)
	return id
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, userID, time.Hour)
	require.NoError(t, err)
	return token
}

// authenticatedConn authenticates a fresh connection as userID and returns
// it along with its sink.
func (e *testEnv) authenticatedConn(t *testing.T, userID string) (*Connection, *stubSink) {
	t.Helper()
	sink := newStubSink()
	conn := NewConnection(sink, e.registry, e.verifier, e.users, e.log)
	_, err := conn.Authenticate(e.token(t, userID))
	require.NoError(t, err)
	return conn, sink
}
