// Package wire holds the event names and payload shapes shared by the
// gateway and the client over the websocket.
package wire

import (
	"encoding/json"

	"github.com/converse-im/converse/internal/types"
)

const (
	// client -> server
	EventConversationJoin = "conversation:join"
	EventMessageSend      = "message:send"

	// server -> client
	EventConversationNew = "conversation:new"
	EventMessageNew      = "message:new"

	// both directions
	EventConversationTyping = "conversation:typing"
)

type ClientEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type ServerEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type JoinPayload struct {
	ConversationId string `json:"conversation_id"`
}

type TypingPayload struct {
	ConversationId string `json:"conversation_id"`
	Typing         bool   `json:"typing"`
}

type SendPayload struct {
	ConversationId string `json:"conversation_id"`
	Content        string `json:"content,omitempty"`
}

type ConversationNewPayload struct {
	ConversationId string `json:"conversation_id"`
}

type MessageNewPayload struct {
	ConversationId string        `json:"conversation_id"`
	Message        types.Message `json:"message"`
}

type TypingChangedPayload struct {
	ConversationId string `json:"conversation_id"`
	UserId         string `json:"user_id"`
	Typing         bool   `json:"typing"`
}
