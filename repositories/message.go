//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"market-chat/domain"
	"market-chat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	Append(msg domain.ChatMessage) (domain.ChatMessage, error)
	Get(id uuid.UUID) (domain.ChatMessage, error)
	MarkRead(id uuid.UUID) (domain.ChatMessage, error)
	Conversation(a, b string) ([]domain.ChatMessage, error)
	UnreadCount(userID string) (int, error)
	Search(ctx context.Context, userID, query string, limit int) ([]domain.ChatMessage, error)
}

// MessageRepository persists chat messages in BadgerDB and mirrors their
// content into a Bluge index for full-text search.
//
// Key layout:
//
//	msg:{userA}:{userB}:{timestamp_padded}:{uuid}  -> message (JSON)
//	idx:msg:{uuid}                                 -> primary key
//	unread:{receiver}:{uuid}                       -> primary key
//
// userA/userB is the direction-independent conversation pair (sorted), and
// the 19-digit zero padded UnixNano keeps prefix scans in chronological
// order. The UUID suffix disambiguates messages created in the same
// nanosecond.
type MessageRepository struct {
	db            *badger.DB
	index         *SearchIndex
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, index *SearchIndex, log *slog.Logger, limitMessages *int) *MessageRepository {
	return &MessageRepository{db: db, index: index, log: log, limitMessages: limitMessages}
}

type diskMessage struct {
	ID         uuid.UUID `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"content"`
	Language   string    `json:"language,omitempty"`
	At         time.Time `json:"at"`
	Read       bool      `json:"read"`
	ItemID     *string   `json:"item_id,omitempty"`
}

func primaryKey(m diskMessage) []byte {
	a, b := domain.ConversationKey(m.SenderID, m.ReceiverID)
	return []byte(fmt.Sprintf("msg:%s:%s:%019d:%s", a, b, m.At.UnixNano(), m.ID))
}

func idIndexKey(id uuid.UUID) []byte {
	return []byte("idx:msg:" + id.String())
}

func unreadKey(receiverID string, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("unread:%s:%s", receiverID, id))
}

// Append stores a new message with read=false. ID and timestamp are assigned
// here when unset so every stored record is self-consistent.
func (m *MessageRepository) Append(msg domain.ChatMessage) (domain.ChatMessage, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	msg.Read = false

	dm := fromChatMessage(msg)
	value, err := json.Marshal(dm)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	key := primaryKey(dm)
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		if err := txn.Set(idIndexKey(dm.ID), key); err != nil {
			return err
		}
		return txn.Set(unreadKey(dm.ReceiverID, dm.ID), key)
	})
	if err != nil {
		return domain.ChatMessage{}, err
	}

	if m.index != nil {
		if err := m.index.Index(msg); err != nil {
			// The durable write already succeeded; search lag is acceptable.
			m.log.Warn("failed to index message", "message_id", msg.ID, "error", err)
		}
	}
	return msg, nil
}

// Get resolves a message by id through the secondary index.
func (m *MessageRepository) Get(id uuid.UUID) (domain.ChatMessage, error) {
	var dm diskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		return m.getByID(txn, id, &dm)
	})
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return toChatMessage(dm), nil
}

func (m *MessageRepository) getByID(txn *badger.Txn, id uuid.UUID, out *diskMessage) error {
	item, err := txn.Get(idIndexKey(id))
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("%w: message %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return err
	}

	var key []byte
	if err := item.Value(func(v []byte) error {
		key = append([]byte(nil), v...)
		return nil
	}); err != nil {
		return err
	}

	record, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("%w: message %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	return record.Value(func(v []byte) error {
		return json.Unmarshal(v, out)
	})
}

// MarkRead flips read to true and drops the unread index entry. The flag
// never goes back to false; marking an already-read message is a no-op that
// still returns the message, so the operation is idempotent.
func (m *MessageRepository) MarkRead(id uuid.UUID) (domain.ChatMessage, error) {
	var dm diskMessage
	err := m.db.Update(func(txn *badger.Txn) error {
		if err := m.getByID(txn, id, &dm); err != nil {
			return err
		}
		if dm.Read {
			return nil
		}
		dm.Read = true

		value, err := json.Marshal(dm)
		if err != nil {
			return err
		}
		if err := txn.Set(primaryKey(dm), value); err != nil {
			return err
		}
		return txn.Delete(unreadKey(dm.ReceiverID, dm.ID))
	})
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return toChatMessage(dm), nil
}

// Conversation returns every message exchanged between a and b, oldest
// first, capped at limitMessages when configured.
func (m *MessageRepository) Conversation(a, b string) ([]domain.ChatMessage, error) {
	first, second := domain.ConversationKey(a, b)
	prefix := []byte(fmt.Sprintf("msg:%s:%s:", first, second))

	var diskMessages []diskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(diskMessages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}
			var dm diskMessage
			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &dm)
			})
			if err != nil {
				return err
			}
			diskMessages = append(diskMessages, dm)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return lo.Map(diskMessages, func(dm diskMessage, _ int) domain.ChatMessage {
		return toChatMessage(dm)
	}), nil
}

// UnreadCount counts messages delivered to userID that were never marked read.
func (m *MessageRepository) UnreadCount(userID string) (int, error) {
	prefix := []byte(fmt.Sprintf("unread:%s:", userID))
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Search runs a full-text query over the user's conversations and resolves
// the hits back to stored messages. Messages missing from Badger (which
// should not happen, the index is written after the durable record) are
// skipped.
func (m *MessageRepository) Search(ctx context.Context, userID, query string, limit int) ([]domain.ChatMessage, error) {
	if m.index == nil {
		return nil, nil
	}
	ids, err := m.index.Search(ctx, userID, query, limit)
	if err != nil {
		return nil, err
	}

	var results []domain.ChatMessage
	for _, id := range ids {
		msg, err := m.Get(id)
		if errors.Is(err, errors.ErrNotFound) {
			m.log.Warn("indexed message missing from store", "message_id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		results = append(results, msg)
	}
	return results, nil
}

func fromChatMessage(msg domain.ChatMessage) diskMessage {
	return diskMessage{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		Language:   msg.Language,
		At:         msg.Timestamp.UTC(),
		Read:       msg.Read,
		ItemID:     msg.ItemID,
	}
}

func toChatMessage(dm diskMessage) domain.ChatMessage {
	return domain.ChatMessage{
		ID:         dm.ID,
		SenderID:   dm.SenderID,
		ReceiverID: dm.ReceiverID,
		Content:    dm.Content,
		Language:   dm.Language,
		Timestamp:  dm.At.UTC(),
		Read:       dm.Read,
		ItemID:     dm.ItemID,
	}
}
