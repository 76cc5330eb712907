package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"market-chat/contract"
	"market-chat/domain"
	"market-chat/domain/event"
	"market-chat/errors"
	"market-chat/moderation"
	"market-chat/repositories"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const defaultSearchLimit = 20

// Router carries the business logic behind the event surface: validation,
// authorization, persistence, and best-effort live delivery. It returns
// plain results and errors; translating those into outbound events is the
// transport adapter's job.
type Router struct {
	log       *slog.Logger
	registry  contract.IRegistry
	messages  repositories.IMessageRepository
	users     repositories.IUserRepository
	items     repositories.IItemRepository
	moderator *moderation.Moderator
	clock     func() time.Time
}

func NewRouter(log *slog.Logger, registry contract.IRegistry,
	messages repositories.IMessageRepository, users repositories.IUserRepository,
	items repositories.IItemRepository, moderator *moderation.Moderator) *Router {
	return &Router{
		log:       log,
		registry:  registry,
		messages:  messages,
		users:     users,
		items:     items,
		moderator: moderator,
		clock:     time.Now,
	}
}

// Send validates, persists and acknowledges a message, then pushes it to
// the receiver's live connection if there is one. Persistence succeeding is
// what the sender is acked on; live delivery is a separate, weaker
// guarantee and its failure is only logged.
func (r *Router) Send(conn *Connection, cmd domain.SendMessageCommand) (event.MessageSent, error) {
	userID, err := conn.RequireAuthenticated()
	if err != nil {
		return event.MessageSent{}, err
	}
	if err := cmd.Validate(); err != nil {
		return event.MessageSent{}, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	if cmd.SenderID != "" && cmd.SenderID != userID {
		return event.MessageSent{}, fmt.Errorf("%w: you can only send messages as yourself", errors.ErrForbidden)
	}

	receiver, err := r.users.GetUser(cmd.ReceiverID)
	if errors.Is(err, errors.ErrNotFound) {
		return event.MessageSent{}, fmt.Errorf("%w: receiver not found", errors.ErrValidation)
	}
	if err != nil {
		return event.MessageSent{}, err
	}

	content := cmd.Content
	if r.moderator != nil {
		content = r.moderator.Censor(content)
	}

	msg, err := r.messages.Append(domain.ChatMessage{
		SenderID:   userID,
		ReceiverID: receiver.ID,
		Content:    content,
		Language:   detectLanguage(content),
		ItemID:     cmd.ItemID,
	})
	if err != nil {
		return event.MessageSent{}, err
	}

	payload := event.ToMessagePayload(msg, r.resolveItem(msg.ItemID))

	if sink, online := r.registry.Lookup(receiver.ID); online {
		if !sink.Deliver(event.NewMessage{MessagePayload: payload}) {
			// At-most-once: no retry, no queue. The store already has it.
			r.log.Warn("live delivery dropped", "receiver_id", receiver.ID, "message_id", payload.ID)
		}
	}
	return event.MessageSent{MessagePayload: payload}, nil
}

// MarkRead flips a received message to read and notifies the original
// sender's live session, if any.
func (r *Router) MarkRead(conn *Connection, cmd domain.MarkReadCommand) (event.MarkedRead, error) {
	userID, err := conn.RequireAuthenticated()
	if err != nil {
		return event.MarkedRead{}, err
	}
	if err := cmd.Validate(); err != nil {
		return event.MarkedRead{}, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	id, err := uuid.Parse(cmd.MessageID)
	if err != nil {
		return event.MarkedRead{}, fmt.Errorf("%w: malformed message id", errors.ErrValidation)
	}

	msg, err := r.messages.Get(id)
	if err != nil {
		return event.MarkedRead{}, err
	}
	if msg.ReceiverID != userID {
		return event.MarkedRead{}, fmt.Errorf("%w: you can only mark messages sent to you as read", errors.ErrForbidden)
	}

	if _, err := r.messages.MarkRead(id); err != nil {
		return event.MarkedRead{}, err
	}

	r.notifyRead(msg.SenderID, id)
	return event.MarkedRead{MessageID: id.String()}, nil
}

// Typing is a fire-and-forget presence hint: nothing is persisted and a
// claimed sender that does not match the connection's identity is dropped
// silently, as is an offline receiver.
func (r *Router) Typing(conn *Connection, cmd domain.TypingCommand) error {
	userID, err := conn.RequireAuthenticated()
	if err != nil {
		return err
	}
	if err := cmd.Validate(); err != nil {
		return nil
	}
	if cmd.SenderID != userID {
		return nil
	}

	if sink, online := r.registry.Lookup(cmd.ReceiverID); online {
		sink.Deliver(event.UserTyping{SenderID: userID})
	}
	return nil
}

// History returns the full conversation with a peer and then marks the
// unread messages received from that peer as read, pushing a read receipt
// per message to the peer's live session. The returned entries reflect the
// read state as it was before the fetch.
func (r *Router) History(conn *Connection, cmd domain.HistoryCommand) (event.History, error) {
	userID, err := conn.RequireAuthenticated()
	if err != nil {
		return event.History{}, err
	}
	if err := cmd.Validate(); err != nil {
		return event.History{}, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}

	peer, err := r.users.GetUser(cmd.PeerID)
	if errors.Is(err, errors.ErrNotFound) {
		return event.History{}, fmt.Errorf("%w: target user not found", errors.ErrNotFound)
	}
	if err != nil {
		return event.History{}, err
	}

	messages, err := r.messages.Conversation(userID, peer.ID)
	if err != nil {
		return event.History{}, err
	}

	entries := event.ToHistoryEntries(messages, userID, r.resolveItems(messages))

	for _, msg := range messages {
		if msg.Read || msg.ReceiverID != userID || msg.SenderID != peer.ID {
			continue
		}
		if _, err := r.messages.MarkRead(msg.ID); err != nil {
			r.log.Error("failed to mark message read on history fetch", "message_id", msg.ID, "error", err)
			continue
		}
		r.notifyRead(peer.ID, msg.ID)
	}

	return event.History{PeerID: peer.ID, Messages: entries}, nil
}

// Unread reports how many messages the caller has not read yet.
func (r *Router) Unread(conn *Connection) (event.UnreadCount, error) {
	userID, err := conn.RequireAuthenticated()
	if err != nil {
		return event.UnreadCount{}, err
	}
	count, err := r.messages.UnreadCount(userID)
	if err != nil {
		return event.UnreadCount{}, err
	}
	return event.UnreadCount{Count: count}, nil
}

// Search runs a full-text query over the caller's own conversations.
func (r *Router) Search(ctx context.Context, conn *Connection, cmd domain.SearchCommand) (event.SearchResults, error) {
	userID, err := conn.RequireAuthenticated()
	if err != nil {
		return event.SearchResults{}, err
	}
	if err := cmd.Validate(); err != nil {
		return event.SearchResults{}, fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	messages, err := r.messages.Search(ctx, userID, cmd.Query, limit)
	if err != nil {
		return event.SearchResults{}, err
	}

	results := lo.Map(messages, func(m domain.ChatMessage, _ int) event.MessagePayload {
		return event.ToMessagePayload(m, r.resolveItem(m.ItemID))
	})
	return event.SearchResults{Query: cmd.Query, Results: results}, nil
}

func (r *Router) notifyRead(senderID string, messageID uuid.UUID) {
	sink, online := r.registry.Lookup(senderID)
	if !online {
		return
	}
	sink.Deliver(event.MessageRead{
		MessageID: messageID.String(),
		ReadAt:    r.clock().UTC().Format(time.RFC3339Nano),
	})
}

// resolveItem tolerates dangling listing references: the snippet is simply
// omitted when the item no longer exists.
func (r *Router) resolveItem(itemID *string) *domain.Item {
	if itemID == nil {
		return nil
	}
	item, err := r.items.GetItem(*itemID)
	if err != nil {
		return nil
	}
	return &item
}

func (r *Router) resolveItems(messages []domain.ChatMessage) map[string]domain.Item {
	items := make(map[string]domain.Item)
	for _, msg := range messages {
		if msg.ItemID == nil {
			continue
		}
		if _, seen := items[*msg.ItemID]; seen {
			continue
		}
		if item := r.resolveItem(msg.ItemID); item != nil {
			items[item.ID] = *item
		}
	}
	return items
}

func detectLanguage(content string) string {
	info := whatlanggo.Detect(content)
	return info.Lang.Iso6391()
}
