// Package event defines the outbound event surface of the messaging core.
// Event names and payload shapes are part of the client contract and must
// not change without versioning the transport.
package event

import (
	"time"

	"market-chat/domain"

	"github.com/samber/lo"
)

// DomainEvent is anything the core can push to a live connection.
type DomainEvent interface {
	Name() string
}

type ConnectResponse struct {
	Status string `json:"status"`
	SID    string `json:"sid"`
}

func (ConnectResponse) Name() string { return "connect_response" }

type Authenticated struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

func (Authenticated) Name() string { return "authenticated" }

type AuthenticationError struct {
	Message string `json:"message"`
}

func (AuthenticationError) Name() string { return "authentication_error" }

// SessionExpired is the advisory sent to a connection whose session was
// taken over by a newer login for the same user. The connection is not
// forcibly closed.
type SessionExpired struct {
	Message string `json:"message"`
}

func (SessionExpired) Name() string { return "session_expired" }

// ItemRef is the snippet rendered for messages tied to a listing.
type ItemRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// MessagePayload is shared by the sender ack and the recipient push so both
// sides observe the identical message.
type MessagePayload struct {
	ID         string   `json:"id"`
	SenderID   string   `json:"sender_id"`
	ReceiverID string   `json:"receiver_id"`
	Content    string   `json:"content"`
	Timestamp  string   `json:"timestamp"`
	Read       bool     `json:"read"`
	Item       *ItemRef `json:"item,omitempty"`
}

type MessageSent struct {
	MessagePayload
}

func (MessageSent) Name() string { return "message_sent" }

type NewMessage struct {
	MessagePayload
}

func (NewMessage) Name() string { return "new_message" }

type MarkedRead struct {
	MessageID string `json:"message_id"`
}

func (MarkedRead) Name() string { return "marked_read" }

type MessageRead struct {
	MessageID string `json:"message_id"`
	ReadAt    string `json:"read_at"`
}

func (MessageRead) Name() string { return "message_read" }

type UserTyping struct {
	SenderID string `json:"sender_id"`
}

func (UserTyping) Name() string { return "user_typing" }

// HistoryEntry mirrors the conversation endpoint of the account backend:
// is_sender is relative to the requesting user.
type HistoryEntry struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	Timestamp string   `json:"timestamp"`
	IsSender  bool     `json:"is_sender"`
	Read      bool     `json:"read"`
	Item      *ItemRef `json:"item,omitempty"`
}

type History struct {
	PeerID   string         `json:"peer_id"`
	Messages []HistoryEntry `json:"messages"`
}

func (History) Name() string { return "history" }

type UnreadCount struct {
	Count int `json:"count"`
}

func (UnreadCount) Name() string { return "unread_count" }

type SearchResults struct {
	Query   string           `json:"query"`
	Results []MessagePayload `json:"results"`
}

func (SearchResults) Name() string { return "search_results" }

type Error struct {
	Message string `json:"message"`
}

func (Error) Name() string { return "error" }

// ToMessagePayload renders a stored message for the wire, attaching the item
// snippet when the referenced listing still exists.
func ToMessagePayload(m domain.ChatMessage, item *domain.Item) MessagePayload {
	p := MessagePayload{
		ID:         m.ID.String(),
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Timestamp:  m.Timestamp.UTC().Format(time.RFC3339Nano),
		Read:       m.Read,
	}
	if item != nil {
		p.Item = &ItemRef{ID: item.ID, Title: item.Title}
	}
	return p
}

// ToHistoryEntries renders a conversation from the point of view of userID.
func ToHistoryEntries(messages []domain.ChatMessage, userID string, items map[string]domain.Item) []HistoryEntry {
	return lo.Map(messages, func(m domain.ChatMessage, _ int) HistoryEntry {
		entry := HistoryEntry{
			ID:        m.ID.String(),
			Content:   m.Content,
			Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
			IsSender:  m.SenderID == userID,
			Read:      m.Read,
		}
		if m.ItemID != nil {
			if item, ok := items[*m.ItemID]; ok {
				entry.Item = &ItemRef{ID: item.ID, Title: item.Title}
			}
		}
		return entry
	})
}
