package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/converse-im/converse/internal/types"
	"github.com/converse-im/converse/internal/wire"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one live websocket connection for an authenticated user. A user
// with several open tabs has several clients, each joined to the same
// personal room.
type Client struct {
	id      string
	user    types.User
	conn    *websocket.Conn
	gateway *Gateway
	log     *log.Logger
	send    chan []byte
	stop    chan struct{}
	once    sync.Once
}

func NewClient(id string, user types.User, conn *websocket.Conn, gw *Gateway, l *log.Logger) *Client {
	return &Client{
		id:      id,
		user:    user,
		conn:    conn,
		gateway: gw,
		log:     l,
		send:    make(chan []byte, 256),
		stop:    make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}

			if !c.writeMessage(websocket.TextMessage, payload) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var envelope wire.ClientEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			c.log.Printf("ws: parse envelope from %q: %v", c.user.Id, err)
			continue
		}

		c.handleEvent(&envelope)
	}
}

func (c *Client) handleEvent(envelope *wire.ClientEnvelope) {
	switch envelope.Event {
	case wire.EventConversationJoin:
		var payload wire.JoinPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			c.log.Printf("ws: parse %s: %v", envelope.Event, err)
			return
		}
		c.gateway.handleJoin(c, payload)
	case wire.EventConversationTyping:
		var payload wire.TypingPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			c.log.Printf("ws: parse %s: %v", envelope.Event, err)
			return
		}
		c.gateway.handleTyping(c, payload)
	case wire.EventMessageSend:
		var payload wire.SendPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			c.log.Printf("ws: parse %s: %v", envelope.Event, err)
			return
		}
		c.gateway.handleSend(c, payload)
	default:
		c.log.Printf("ws: unknown event %q from %q", envelope.Event, c.user.Id)
	}
}

// queueRaw enqueues a pre-serialized event for delivery. Returns false when
// the send buffer is full; the event is dropped, not retried.
func (c *Client) queueRaw(payload []byte) bool {
	select {
	case <-c.stop:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) writeMessage(msgType int, payload []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, payload); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("ws: write: %v", err)
		}
		return false
	}

	return true
}

// cleanup leaves every joined room and deregisters the connection. Safe to
// call more than once; only the first call has any effect.
func (c *Client) cleanup() {
	c.once.Do(func() {
		close(c.stop)
		c.gateway.registry.LeaveAll(c)
		c.gateway.removeClient(c)
	})
}
