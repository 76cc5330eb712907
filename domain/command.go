package domain

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Command is an inbound intent routed to the message router.
// Sender fields carried in payloads are advisory only: authorization is
// always derived from the connection the command arrived on.
type Command interface {
	Validate() error
}

type SendMessageCommand struct {
	SenderID   string `validate:"-"`
	ReceiverID string `validate:"required"`
	Content    string `validate:"required"`
	ItemID     *string
}

func (c SendMessageCommand) Validate() error { return validate.Struct(c) }

type MarkReadCommand struct {
	MessageID string `validate:"required,uuid"`
}

func (c MarkReadCommand) Validate() error { return validate.Struct(c) }

type TypingCommand struct {
	SenderID   string `validate:"required"`
	ReceiverID string `validate:"required"`
}

func (c TypingCommand) Validate() error { return validate.Struct(c) }

// HistoryCommand fetches the full conversation with a peer and marks the
// unread messages received from that peer as read.
type HistoryCommand struct {
	PeerID string `validate:"required"`
}

func (c HistoryCommand) Validate() error { return validate.Struct(c) }

type SearchCommand struct {
	Query string `validate:"required"`
	Limit int    `validate:"omitempty,min=1,max=100"`
}

func (c SearchCommand) Validate() error { return validate.Struct(c) }
