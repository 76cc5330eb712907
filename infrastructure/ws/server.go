package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"market-chat/auth"
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/domain/event"
	"market-chat/errors"
	"market-chat/repositories"
	"market-chat/runtime"

	"github.com/gorilla/websocket"
)

const maxMessageSize = 16 * 1024

// Envelope is the wire framing in both directions: an event name and its
// JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string            `json:"event"`
	Data  event.DomainEvent `json:"data,omitempty"`
}

type authenticatePayload struct {
	Token string `json:"token"`
}

type sendMessagePayload struct {
	SenderID   string  `json:"sender_id"`
	ReceiverID string  `json:"receiver_id"`
	Content    string  `json:"content"`
	ItemID     *string `json:"item_id,omitempty"`
}

type markReadPayload struct {
	MessageID string `json:"message_id"`
}

type typingPayload struct {
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
}

type historyPayload struct {
	PeerID string `json:"peer_id"`
}

type searchPayload struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// Server upgrades incoming requests and runs one read loop plus one write
// pump per connection. Everything leaving the connection flows through its
// Sink so there is a single writer on the socket.
type Server struct {
	log          *slog.Logger
	registry     contract.IRegistry
	verifier     auth.IVerifier
	users        repositories.IUserRepository
	router       *runtime.Router
	upgrader     websocket.Upgrader
	bufferSize   int
	writeTimeout time.Duration
	pingInterval time.Duration
}

func NewServer(log *slog.Logger, registry contract.IRegistry, verifier auth.IVerifier,
	users repositories.IUserRepository, router *runtime.Router,
	bufferSize int, writeTimeout, pingInterval time.Duration) *Server {
	return &Server{
		log:      log,
		registry: registry,
		verifier: verifier,
		users:    users,
		router:   router,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		bufferSize:   bufferSize,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Failed to upgrade connection", "err", err)
		return
	}

	sink := NewSink(s.log, s.bufferSize)
	conn := runtime.NewConnection(sink, s.registry, s.verifier, s.users, s.log)
	s.log.Info("Connection established", "conn_id", sink.ID(), "remote", r.RemoteAddr)

	sink.Deliver(event.ConnectResponse{Status: "connected", SID: sink.ID()})

	done := make(chan struct{})
	go s.writePump(wsConn, sink, done)

	s.readLoop(r, wsConn, conn, sink)

	close(done)
	conn.Close()
	_ = wsConn.Close()
	s.log.Info("Connection closed", "conn_id", sink.ID())
}

func (s *Server) readLoop(r *http.Request, wsConn *websocket.Conn, conn *runtime.Connection, sink *Sink) {
	wsConn.SetReadLimit(maxMessageSize)
	pongWait := 2 * s.pingInterval
	_ = wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("Read failed", "conn_id", sink.ID(), "err", err)
			}
			return
		}

		var envelope Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			s.reply(sink, event.Error{Message: "malformed envelope"})
			continue
		}

		reply, err := s.dispatch(r, conn, envelope)
		if err != nil {
			reply = toErrorEvent(err)
		}
		if reply != nil {
			s.reply(sink, reply)
		}
	}
}

// dispatch routes one inbound envelope to the core. A nil reply with a nil
// error means the operation acknowledges nothing (typing).
func (s *Server) dispatch(r *http.Request, conn *runtime.Connection, envelope Envelope) (event.DomainEvent, error) {
	switch envelope.Event {
	case "authenticate":
		var p authenticatePayload
		if err := json.Unmarshal(envelope.Data, &p); err != nil {
			return nil, errors.ErrValidation
		}
		return conn.Authenticate(p.Token)

	case "send_message":
		var p sendMessagePayload
		if err := json.Unmarshal(envelope.Data, &p); err != nil {
			return nil, errors.ErrValidation
		}
		return s.router.Send(conn, domain.SendMessageCommand{
			SenderID:   p.SenderID,
			ReceiverID: p.ReceiverID,
			Content:    p.Content,
			ItemID:     p.ItemID,
		})

	case "mark_read":
		var p markReadPayload
		if err := json.Unmarshal(envelope.Data, &p); err != nil {
			return nil, errors.ErrValidation
		}
		return s.router.MarkRead(conn, domain.MarkReadCommand{MessageID: p.MessageID})

	case "typing":
		var p typingPayload
		if err := json.Unmarshal(envelope.Data, &p); err != nil {
			return nil, errors.ErrValidation
		}
		return nil, s.router.Typing(conn, domain.TypingCommand{
			SenderID:   p.SenderID,
			ReceiverID: p.ReceiverID,
		})

	case "get_history":
		var p historyPayload
		if err := json.Unmarshal(envelope.Data, &p); err != nil {
			return nil, errors.ErrValidation
		}
		return s.router.History(conn, domain.HistoryCommand{PeerID: p.PeerID})

	case "get_unread":
		return s.router.Unread(conn)

	case "search_messages":
		var p searchPayload
		if err := json.Unmarshal(envelope.Data, &p); err != nil {
			return nil, errors.ErrValidation
		}
		return s.router.Search(r.Context(), conn, domain.SearchCommand{
			Query: p.Query,
			Limit: p.Limit,
		})

	default:
		return event.Error{Message: "unknown event: " + envelope.Event}, nil
	}
}

func (s *Server) reply(sink *Sink, e event.DomainEvent) {
	if !sink.Deliver(e) {
		s.log.Warn("Reply dropped, connection saturated", "conn_id", sink.ID(), "event", e.Name())
	}
}

func (s *Server) writePump(wsConn *websocket.Conn, sink *Sink, done chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case e := <-sink.Events():
			_ = wsConn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := wsConn.WriteJSON(outbound{Event: e.Name(), Data: e}); err != nil {
				s.log.Warn("Write failed", "conn_id", sink.ID(), "err", err)
				return
			}
		case <-ticker.C:
			_ = wsConn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// toErrorEvent translates a core error into the outbound error event the
// client contract expects.
func toErrorEvent(err error) event.DomainEvent {
	name, message := errors.MapToEvent(err)
	if name == "authentication_error" {
		return event.AuthenticationError{Message: message}
	}
	return event.Error{Message: message}
}
