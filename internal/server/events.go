package server

import (
	"encoding/json"
	"log"

	"github.com/converse-im/converse/internal/types"
	"github.com/converse-im/converse/internal/wire"
	"github.com/samber/lo"
)

// Event is the closed set of domain events the dispatcher can fan out.
// Adding a kind means handling it in Dispatch.
type Event interface {
	isEvent()
}

type ConversationCreated struct {
	ConversationId string
	ParticipantIds []string
}

type MessageCreated struct {
	ConversationId string
	Message        types.Message
}

type TypingChanged struct {
	ConversationId string
	UserId         string
	Typing         bool
}

func (ConversationCreated) isEvent() {}
func (MessageCreated) isEvent()      {}
func (TypingChanged) isEvent()       {}

// Dispatcher resolves a domain event to its target rooms and hands the
// serialized envelope to the registry. Dispatch never blocks on delivery.
type Dispatcher struct {
	registry *Registry
	log      *log.Logger
}

func NewDispatcher(registry *Registry, logger *log.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, log: logger}
}

func (d *Dispatcher) Dispatch(event Event) {
	var envelope wire.ServerEnvelope
	var rooms []RoomId

	switch e := event.(type) {
	case ConversationCreated:
		envelope = wire.ServerEnvelope{
			Event: wire.EventConversationNew,
			Data:  wire.ConversationNewPayload{ConversationId: e.ConversationId},
		}
		rooms = lo.Map(e.ParticipantIds, func(userId string, _ int) RoomId {
			return UserRoom(userId)
		})
	case MessageCreated:
		envelope = wire.ServerEnvelope{
			Event: wire.EventMessageNew,
			Data: wire.MessageNewPayload{
				ConversationId: e.ConversationId,
				Message:        e.Message,
			},
		}
		rooms = []RoomId{ConversationRoom(e.ConversationId)}
	case TypingChanged:
		// Delivered to every member, the sender's other connections
		// included. The receiving store filters its own user id.
		envelope = wire.ServerEnvelope{
			Event: wire.EventConversationTyping,
			Data: wire.TypingChangedPayload{
				ConversationId: e.ConversationId,
				UserId:         e.UserId,
				Typing:         e.Typing,
			},
		}
		rooms = []RoomId{ConversationRoom(e.ConversationId)}
	default:
		d.log.Printf("dispatch: unhandled event type %T", event)
		return
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		d.log.Printf("dispatch: marshal %s: %v", envelope.Event, err)
		return
	}

	d.registry.Publish(payload, rooms...)
}
