// Package domain contains core concepts of the messaging system.
// This file defines ChatMessage and related rules.
// Messages are append-only: once stored they are never deleted, and the
// read flag only ever moves from false to true.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one persisted unit of conversation between two users,
// optionally tied to a marketplace item.
type ChatMessage struct {
	ID         uuid.UUID
	SenderID   string
	ReceiverID string
	Content    string
	Language   string // ISO 639-1 code detected at send time, best effort
	Timestamp  time.Time
	Read       bool
	ItemID     *string
}

// ConversationKey returns the canonical pair identifying the conversation
// between two users regardless of direction. Self-conversations are valid.
func ConversationKey(a, b string) (string, string) {
	if a <= b {
		return a, b
	}
	return b, a
}
