package runtime

import (
	"context"
	"strings"
	"testing"

	"market-chat/domain"
	"market-chat/domain/event"
	"market-chat/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRouter_Send_Persists_And_Acks_With_Receiver_Offline(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	conn, _ := env.authenticatedConn(t, alice)

	// When alice sends while bob is offline
	ack, err := env.router.Send(conn, domain.SendMessageCommand{
		ReceiverID: bob,
		Content:    "is the bike still available?",
	})

	// Then the ack carries the stored message, unread
	req.NoError(err)
	req.Equal(alice, ack.SenderID)
	req.Equal(bob, ack.ReceiverID)
	req.Equal("is the bike still available?", ack.Content)
	req.False(ack.Read)
	req.NotEmpty(ack.Timestamp)

	// And exactly one message exists in the conversation
	conversation, err := env.messages.Conversation(alice, bob)
	req.NoError(err)
	req.Len(conversation, 1)
	req.Equal(ack.ID, conversation[0].ID.String())
	req.False(conversation[0].Read)
}

func TestRouter_Send_Delivers_To_Online_Receiver_Exactly_Once(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	aliceConn, _ := env.authenticatedConn(t, alice)
	_, bobSink := env.authenticatedConn(t, bob)

	ack, err := env.router.Send(aliceConn, domain.SendMessageCommand{
		ReceiverID: bob,
		Content:    "hello",
	})
	req.NoError(err)

	// Bob's live connection received exactly one push, identical to the ack
	pushed := bobSink.named("new_message")
	req.Len(pushed, 1)
	req.Equal(ack.MessagePayload, pushed[0].(event.NewMessage).MessagePayload)
}

func TestRouter_Send_Rejections(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	t.Run("should refuse an unauthenticated sender and persist nothing", func(t *testing.T) {
		req := require.New(t)
		conn := NewConnection(newStubSink(), env.registry, env.verifier, env.users, env.log)

		_, err := env.router.Send(conn, domain.SendMessageCommand{ReceiverID: bob, Content: "hi"})

		req.ErrorIs(err, errors.ErrUnauthorized)
		conversation, convErr := env.messages.Conversation(alice, bob)
		req.NoError(convErr)
		req.Empty(conversation)
	})

	t.Run("should refuse empty content", func(t *testing.T) {
		req := require.New(t)
		conn, _ := env.authenticatedConn(t, alice)

		_, err := env.router.Send(conn, domain.SendMessageCommand{ReceiverID: bob, Content: ""})

		req.ErrorIs(err, errors.ErrValidation)
	})

	t.Run("should refuse an unknown receiver", func(t *testing.T) {
		req := require.New(t)
		conn, _ := env.authenticatedConn(t, alice)

		_, err := env.router.Send(conn, domain.SendMessageCommand{ReceiverID: "ghost", Content: "hi"})

		req.ErrorIs(err, errors.ErrValidation)
	})

	t.Run("should refuse a spoofed sender id", func(t *testing.T) {
		req := require.New(t)
		conn, _ := env.authenticatedConn(t, alice)

		_, err := env.router.Send(conn, domain.SendMessageCommand{
			SenderID:   bob,
			ReceiverID: alice,
			Content:    "spoofed",
		})

		req.ErrorIs(err, errors.ErrForbidden)
	})
}

func TestRouter_Send_Censors_Blocked_Terms(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	conn, _ := env.authenticatedConn(t, alice)

	ack, err := env.router.Send(conn, domain.SendMessageCommand{
		ReceiverID: bob,
		Content:    "pay me via Western Union please",
	})

	// Masked before persistence, so the ack and the store agree
	req.NoError(err)
	req.NotContains(strings.ToLower(ack.Content), "western union")
	req.Contains(ack.Content, "*")

	stored, err := env.messages.Get(uuid.MustParse(ack.ID))
	req.NoError(err)
	req.Equal(ack.Content, stored.Content)
}

func TestRouter_Send_With_Item_Reference(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	conn, _ := env.authenticatedConn(t, alice)

	itemID, err := env.items.CreateItem("city bike, barely used", bob)
	req.NoError(err)

	t.Run("should attach the listing snippet", func(t *testing.T) {
		req := require.New(t)
		ack, err := env.router.Send(conn, domain.SendMessageCommand{
			ReceiverID: bob,
			Content:    "interested in this one",
			ItemID:     &itemID,
		})

		req.NoError(err)
		req.NotNil(ack.Item)
		req.Equal(itemID, ack.Item.ID)
		req.Equal("city bike, barely used", ack.Item.Title)
	})

	t.Run("should omit the snippet for a dangling listing", func(t *testing.T) {
		req := require.New(t)
		dangling := "deleted-listing"
		ack, err := env.router.Send(conn, domain.SendMessageCommand{
			ReceiverID: bob,
			Content:    "about that other one",
			ItemID:     &dangling,
		})

		req.NoError(err)
		req.Nil(ack.Item)
	})
}

func TestRouter_Send_Survives_Saturated_Receiver(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	conn, _ := env.authenticatedConn(t, alice)
	_, bobSink := env.authenticatedConn(t, bob)
	bobSink.full = true

	// The sender is acked on persistence even when the live push is dropped
	ack, err := env.router.Send(conn, domain.SendMessageCommand{ReceiverID: bob, Content: "hi"})

	req.NoError(err)
	_, err = env.messages.Get(uuid.MustParse(ack.ID))
	req.NoError(err)
}

func TestRouter_MarkRead(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	aliceConn, aliceSink := env.authenticatedConn(t, alice)
	bobConn, _ := env.authenticatedConn(t, bob)

	ack, err := env.router.Send(aliceConn, domain.SendMessageCommand{ReceiverID: bob, Content: "hello"})
	req.NoError(err)

	// When the receiver marks it read
	marked, err := env.router.MarkRead(bobConn, domain.MarkReadCommand{MessageID: ack.ID})

	// Then the store flips to read and the sender gets a receipt
	req.NoError(err)
	req.Equal(ack.ID, marked.MessageID)
	stored, err := env.messages.Get(uuid.MustParse(ack.ID))
	req.NoError(err)
	req.True(stored.Read)

	receipts := aliceSink.named("message_read")
	req.Len(receipts, 1)
	req.Equal(ack.ID, receipts[0].(event.MessageRead).MessageID)
	req.NotEmpty(receipts[0].(event.MessageRead).ReadAt)

	// Marking again succeeds without changing anything
	_, err = env.router.MarkRead(bobConn, domain.MarkReadCommand{MessageID: ack.ID})
	req.NoError(err)

	count, err := env.messages.UnreadCount(bob)
	req.NoError(err)
	req.Zero(count)
}

func TestRouter_MarkRead_Rejections(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	aliceConn, _ := env.authenticatedConn(t, alice)

	ack, err := env.router.Send(aliceConn, domain.SendMessageCommand{ReceiverID: bob, Content: "hello"})
	require.NoError(t, err)

	t.Run("should forbid the sender from marking their own message", func(t *testing.T) {
		req := require.New(t)

		_, err := env.router.MarkRead(aliceConn, domain.MarkReadCommand{MessageID: ack.ID})

		req.ErrorIs(err, errors.ErrForbidden)
		stored, getErr := env.messages.Get(uuid.MustParse(ack.ID))
		req.NoError(getErr)
		req.False(stored.Read)
	})

	t.Run("should report an unknown message id", func(t *testing.T) {
		req := require.New(t)
		bobConn, _ := env.authenticatedConn(t, bob)

		_, err := env.router.MarkRead(bobConn, domain.MarkReadCommand{MessageID: uuid.NewString()})

		req.ErrorIs(err, errors.ErrNotFound)
	})

	t.Run("should reject a malformed message id", func(t *testing.T) {
		req := require.New(t)
		bobConn, _ := env.authenticatedConn(t, bob)

		_, err := env.router.MarkRead(bobConn, domain.MarkReadCommand{MessageID: "not-a-uuid"})

		req.ErrorIs(err, errors.ErrValidation)
	})
}

func TestRouter_Typing(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	t.Run("should deliver the hint to an online receiver", func(t *testing.T) {
		req := require.New(t)
		conn, _ := env.authenticatedConn(t, alice)
		_, bobSink := env.authenticatedConn(t, bob)

		err := env.router.Typing(conn, domain.TypingCommand{SenderID: alice, ReceiverID: bob})

		req.NoError(err)
		hints := bobSink.named("user_typing")
		req.Len(hints, 1)
		req.Equal(alice, hints[0].(event.UserTyping).SenderID)
	})

	t.Run("should drop a spoofed sender silently", func(t *testing.T) {
		req := require.New(t)
		conn, _ := env.authenticatedConn(t, alice)
		_, bobSink := env.authenticatedConn(t, bob)

		err := env.router.Typing(conn, domain.TypingCommand{SenderID: bob, ReceiverID: bob})

		req.NoError(err)
		req.Empty(bobSink.named("user_typing"))
	})

	t.Run("should drop silently when the receiver is offline", func(t *testing.T) {
		req := require.New(t)
		conn, _ := env.authenticatedConn(t, alice)
		env.registry.Unregister(mustSinkID(t, env, bob))

		err := env.router.Typing(conn, domain.TypingCommand{SenderID: alice, ReceiverID: bob})

		req.NoError(err)
	})

	t.Run("should refuse an unauthenticated connection", func(t *testing.T) {
		req := require.New(t)
		conn := NewConnection(newStubSink(), env.registry, env.verifier, env.users, env.log)

		err := env.router.Typing(conn, domain.TypingCommand{SenderID: alice, ReceiverID: bob})

		req.ErrorIs(err, errors.ErrUnauthorized)
	})
}

func TestRouter_History_Returns_And_Marks_Read(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	aliceConn, aliceSink := env.authenticatedConn(t, alice)
	bobConn, _ := env.authenticatedConn(t, bob)

	// Given two messages from alice and a reply from bob
	_, err := env.router.Send(aliceConn, domain.SendMessageCommand{ReceiverID: bob, Content: "first"})
	req.NoError(err)
	_, err = env.router.Send(aliceConn, domain.SendMessageCommand{ReceiverID: bob, Content: "second"})
	req.NoError(err)
	_, err = env.router.Send(bobConn, domain.SendMessageCommand{ReceiverID: alice, Content: "reply"})
	req.NoError(err)

	// When bob fetches the conversation
	history, err := env.router.History(bobConn, domain.HistoryCommand{PeerID: alice})

	// Then entries are chronological with is_sender relative to bob, and the
	// read flags reflect the state before the fetch
	req.NoError(err)
	req.Equal(alice, history.PeerID)
	req.Len(history.Messages, 3)
	req.Equal("first", history.Messages[0].Content)
	req.False(history.Messages[0].IsSender)
	req.False(history.Messages[0].Read)
	req.True(history.Messages[2].IsSender)

	// And the unread messages from alice are now read, with receipts pushed
	count, err := env.messages.UnreadCount(bob)
	req.NoError(err)
	req.Zero(count)
	req.Len(aliceSink.named("message_read"), 2)
}

func TestRouter_History_Unknown_Peer(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	conn, _ := env.authenticatedConn(t, alice)

	_, err := env.router.History(conn, domain.HistoryCommand{PeerID: "ghost"})

	req.ErrorIs(err, errors.ErrNotFound)
}

func TestRouter_Unread_Count(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")
	aliceConn, _ := env.authenticatedConn(t, alice)
	carolConn, _ := env.authenticatedConn(t, carol)

	_, err := env.router.Send(aliceConn, domain.SendMessageCommand{ReceiverID: bob, Content: "one"})
	req.NoError(err)
	_, err = env.router.Send(carolConn, domain.SendMessageCommand{ReceiverID: bob, Content: "two"})
	req.NoError(err)

	bobConn, _ := env.authenticatedConn(t, bob)
	unread, err := env.router.Unread(bobConn)

	req.NoError(err)
	req.Equal(2, unread.Count)
}

func TestRouter_Search_Scoped_To_Caller(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")
	aliceConn, _ := env.authenticatedConn(t, alice)
	carolConn, _ := env.authenticatedConn(t, carol)

	_, err := env.router.Send(aliceConn, domain.SendMessageCommand{ReceiverID: bob, Content: "selling my vintage camera"})
	req.NoError(err)
	_, err = env.router.Send(carolConn, domain.SendMessageCommand{ReceiverID: bob, Content: "camera lens for trade"})
	req.NoError(err)

	results, err := env.router.Search(context.Background(), aliceConn, domain.SearchCommand{Query: "camera"})

	// Alice only sees her own conversation, not carol's
	req.NoError(err)
	req.Equal("camera", results.Query)
	req.Len(results.Results, 1)
	req.Equal(alice, results.Results[0].SenderID)
}

// TestRouter_Two_User_Exchange walks the canonical flow: both users live,
// one sends, the other reads, the sender observes the receipt.
func TestRouter_Two_User_Exchange(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	aliceConn, aliceSink := env.authenticatedConn(t, alice)
	bobConn, bobSink := env.authenticatedConn(t, bob)

	// alice types, bob sees the hint
	req.NoError(env.router.Typing(aliceConn, domain.TypingCommand{SenderID: alice, ReceiverID: bob}))
	req.Len(bobSink.named("user_typing"), 1)

	// alice sends, bob receives the push
	ack, err := env.router.Send(aliceConn, domain.SendMessageCommand{ReceiverID: bob, Content: "hi, still available?"})
	req.NoError(err)
	req.Len(bobSink.named("new_message"), 1)

	// bob marks it read, alice receives the receipt
	_, err = env.router.MarkRead(bobConn, domain.MarkReadCommand{MessageID: ack.ID})
	req.NoError(err)
	receipts := aliceSink.named("message_read")
	req.Len(receipts, 1)
	req.Equal(ack.ID, receipts[0].(event.MessageRead).MessageID)
}

func mustSinkID(t *testing.T, env *testEnv, userID string) string {
	t.Helper()
	sink, ok := env.registry.Lookup(userID)
	if !ok {
		return ""
	}
	return sink.ID()
}
