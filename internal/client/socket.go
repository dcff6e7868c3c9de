package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"

	"github.com/converse-im/converse/internal/wire"
	"github.com/gorilla/websocket"
)

// ErrDisconnected is returned by send methods once the connection is gone.
var ErrDisconnected = errors.New("disconnected")

// Handler receives the server's push events. Implementations usually feed a
// Store and refresh whatever is on screen.
type Handler interface {
	OnConversationNew(conversationId string)
	OnMessageNew(payload wire.MessageNewPayload)
	OnTypingChanged(payload wire.TypingChangedPayload)
}

// Socket is one authenticated websocket session. Send methods fail rather
// than queue once the connection is gone; the caller decides whether to
// redial.
type Socket struct {
	conn *websocket.Conn
	log  *log.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// Dial opens the websocket with the session token in the handshake query.
// serverUrl is the http(s) base address of the server.
func Dial(serverUrl, tokenString string, logger *log.Logger) (*Socket, error) {
	u, err := url.Parse(serverUrl)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Path = "/ws"
	q := u.Query()
	q.Set("token", tokenString)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u.Host, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Host, err)
	}

	return &Socket{conn: conn, log: logger}, nil
}

// Listen reads server events until the connection closes, routing each one
// to the handler. It returns nil on a normal close.
func (s *Socket) Listen(h Handler) error {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.markClosed()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var envelope struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			s.log.Printf("socket: parse envelope: %v", err)
			continue
		}

		switch envelope.Event {
		case wire.EventConversationNew:
			var payload wire.ConversationNewPayload
			if err := json.Unmarshal(envelope.Data, &payload); err != nil {
				s.log.Printf("socket: parse %s: %v", envelope.Event, err)
				continue
			}
			h.OnConversationNew(payload.ConversationId)
		case wire.EventMessageNew:
			var payload wire.MessageNewPayload
			if err := json.Unmarshal(envelope.Data, &payload); err != nil {
				s.log.Printf("socket: parse %s: %v", envelope.Event, err)
				continue
			}
			h.OnMessageNew(payload)
		case wire.EventConversationTyping:
			var payload wire.TypingChangedPayload
			if err := json.Unmarshal(envelope.Data, &payload); err != nil {
				s.log.Printf("socket: parse %s: %v", envelope.Event, err)
				continue
			}
			h.OnTypingChanged(payload)
		default:
			s.log.Printf("socket: unknown event %q", envelope.Event)
		}
	}
}

// JoinConversation subscribes this connection to a conversation's events.
func (s *Socket) JoinConversation(conversationId string) error {
	return s.send(wire.EventConversationJoin, wire.JoinPayload{ConversationId: conversationId})
}

func (s *Socket) SendTyping(conversationId string, typing bool) error {
	return s.send(wire.EventConversationTyping, wire.TypingPayload{
		ConversationId: conversationId,
		Typing:         typing,
	})
}

func (s *Socket) SendMessage(conversationId, content string) error {
	return s.send(wire.EventMessageSend, wire.SendPayload{
		ConversationId: conversationId,
		Content:        content,
	})
}

func (s *Socket) Close() error {
	s.markClosed()

	s.writeMu.Lock()
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	return s.conn.Close()
}

func (s *Socket) send(event string, data any) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return fmt.Errorf("send %s: %w", event, ErrDisconnected)
	}

	payload, err := json.Marshal(wire.ServerEnvelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		s.markClosed()
		return fmt.Errorf("send %s: %w", event, err)
	}

	return nil
}

func (s *Socket) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
