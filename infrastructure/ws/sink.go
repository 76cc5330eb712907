// Package ws is the WebSocket transport adapter: it upgrades HTTP requests,
// decodes the JSON event envelope, and bridges each connection to the
// messaging core through a buffered Sink consumed by a single writer
// goroutine.
package ws

import (
	"log/slog"

	"market-chat/domain/event"

	"github.com/google/uuid"
)

// Sink is the per-connection outbound queue handed to the core. Deliver
// never blocks: when the buffer is full the event is dropped and the caller
// told so. One writer goroutine drains Events onto the wire.
type Sink struct {
	id     string
	log    *slog.Logger
	events chan event.DomainEvent
}

func NewSink(log *slog.Logger, bufferSize int) *Sink {
	return &Sink{
		id:     uuid.NewString(),
		log:    log,
		events: make(chan event.DomainEvent, bufferSize),
	}
}

func (s *Sink) ID() string { return s.id }

func (s *Sink) Deliver(e event.DomainEvent) bool {
	select {
	case s.events <- e:
		return true
	default:
		return false
	}
}

// Events is consumed by the connection's write pump only.
func (s *Sink) Events() <-chan event.DomainEvent {
	return s.events
}
