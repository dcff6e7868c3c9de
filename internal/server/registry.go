package server

import (
	"log"
	"sync"

	"github.com/converse-im/converse/internal/stats"
)

// RoomId names a delivery target. Rooms come in two kinds: a personal room
// per user and a room per conversation.
type RoomId string

func UserRoom(userId string) RoomId {
	return RoomId("user:" + userId)
}

func ConversationRoom(conversationId string) RoomId {
	return RoomId("conversation:" + conversationId)
}

// Registry maps rooms to the live connections that joined them. It is the
// only shared mutable state on the server side; every operation is safe to
// call concurrently from independent connection handlers.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[RoomId]map[*Client]struct{}
	joined map[*Client]map[RoomId]struct{}
	log    *log.Logger
	stats  stats.StatsProvider
}

func NewRegistry(logger *log.Logger, su stats.StatsProvider) *Registry {
	su.RegisterMetric("Rooms")
	su.RegisterMetric("EventsPublished")
	su.RegisterMetric("DeliveriesDropped")

	return &Registry{
		rooms:  make(map[RoomId]map[*Client]struct{}),
		joined: make(map[*Client]map[RoomId]struct{}),
		log:    logger,
		stats:  su,
	}
}

// Join adds the connection to the room. Re-joining a room already held is a
// no-op.
func (r *Registry) Join(c *Client, roomId RoomId) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.joined[c][roomId]; ok {
		return
	}

	if r.rooms[roomId] == nil {
		r.rooms[roomId] = make(map[*Client]struct{})
		r.stats.Incr("Rooms")
	}
	r.rooms[roomId][c] = struct{}{}

	if r.joined[c] == nil {
		r.joined[c] = make(map[RoomId]struct{})
	}
	r.joined[c][roomId] = struct{}{}
}

// Leave removes the connection from the room. Leaving a room not held is a
// no-op. Empty rooms are discarded.
func (r *Registry) Leave(c *Client, roomId RoomId) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(c, roomId)
}

// LeaveAll removes the connection from every room it joined. The walk is
// over the connection's own joined set, not the full registry.
func (r *Registry) LeaveAll(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomId := range r.joined[c] {
		r.leaveLocked(c, roomId)
	}
}

func (r *Registry) leaveLocked(c *Client, roomId RoomId) {
	members, ok := r.rooms[roomId]
	if !ok {
		return
	}

	if _, ok := members[c]; !ok {
		return
	}

	delete(members, c)
	if len(members) == 0 {
		delete(r.rooms, roomId)
		r.stats.Decr("Rooms")
	}

	delete(r.joined[c], roomId)
	if len(r.joined[c]) == 0 {
		delete(r.joined, c)
	}
}

// MembersOf returns the connections currently joined to the room.
func (r *Registry) MembersOf(roomId RoomId) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*Client, 0, len(r.rooms[roomId]))
	for c := range r.rooms[roomId] {
		members = append(members, c)
	}

	return members
}

// Publish delivers the serialized event once to every connection in the
// union of the given rooms. A connection present in more than one targeted
// room still receives the event exactly once. Delivery is best effort: a
// connection with a full send buffer misses the event.
func (r *Registry) Publish(payload []byte, roomIds ...RoomId) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := make(map[*Client]struct{})
	for _, roomId := range roomIds {
		for c := range r.rooms[roomId] {
			if _, ok := delivered[c]; ok {
				continue
			}
			delivered[c] = struct{}{}

			if !c.queueRaw(payload) {
				r.stats.Incr("DeliveriesDropped")
			}
		}
	}

	r.stats.Incr("EventsPublished")
}
