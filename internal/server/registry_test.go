package server

import (
	"testing"

	"github.com/converse-im/converse/internal/stats"
	"github.com/converse-im/converse/internal/testutil"
	"github.com/converse-im/converse/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newMockStats() *stats.MockStatsUpdater {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything)
	su.On("Incr", mock.Anything)
	su.On("Decr", mock.Anything)
	return su
}

func newTestClient(t *testing.T, userId string) *Client {
	t.Helper()
	return NewClient("conn-"+userId, types.User{Id: userId}, nil, nil, testutil.TestLogger(t))
}

func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case payload := <-c.send:
			out = append(out, payload)
		default:
			return out
		}
	}
}

func TestRegistry_JoinLeave(t *testing.T) {
	registry := NewRegistry(testutil.TestLogger(t), newMockStats())
	c := newTestClient(t, "alice")

	registry.Join(c, UserRoom("alice"))
	assert.Len(t, registry.MembersOf(UserRoom("alice")), 1)

	// rejoin is a no-op
	registry.Join(c, UserRoom("alice"))
	assert.Len(t, registry.MembersOf(UserRoom("alice")), 1)

	registry.Leave(c, UserRoom("alice"))
	assert.Empty(t, registry.MembersOf(UserRoom("alice")))

	// leaving a room not held is a no-op
	registry.Leave(c, UserRoom("alice"))
	assert.Empty(t, registry.MembersOf(UserRoom("alice")))
}

func TestRegistry_emptyRoomsAreDiscarded(t *testing.T) {
	registry := NewRegistry(testutil.TestLogger(t), newMockStats())
	c := newTestClient(t, "alice")

	registry.Join(c, ConversationRoom("conv-1"))
	registry.Leave(c, ConversationRoom("conv-1"))

	registry.mu.RLock()
	defer registry.mu.RUnlock()
	assert.Empty(t, registry.rooms)
	assert.Empty(t, registry.joined)
}

func TestRegistry_LeaveAll(t *testing.T) {
	registry := NewRegistry(testutil.TestLogger(t), newMockStats())
	c := newTestClient(t, "alice")
	other := newTestClient(t, "bob")

	registry.Join(c, UserRoom("alice"))
	registry.Join(c, ConversationRoom("conv-1"))
	registry.Join(other, ConversationRoom("conv-1"))

	registry.LeaveAll(c)

	assert.Empty(t, registry.MembersOf(UserRoom("alice")))
	assert.Len(t, registry.MembersOf(ConversationRoom("conv-1")), 1)
}

func TestRegistry_PublishDeliversOnceAcrossRooms(t *testing.T) {
	registry := NewRegistry(testutil.TestLogger(t), newMockStats())
	c := newTestClient(t, "alice")

	registry.Join(c, UserRoom("alice"))
	registry.Join(c, ConversationRoom("conv-1"))

	registry.Publish([]byte(`{"event":"x"}`), UserRoom("alice"), ConversationRoom("conv-1"))

	assert.Len(t, drain(c), 1)
}

func TestRegistry_PublishSkipsOtherRooms(t *testing.T) {
	registry := NewRegistry(testutil.TestLogger(t), newMockStats())
	member := newTestClient(t, "alice")
	outsider := newTestClient(t, "bob")

	registry.Join(member, ConversationRoom("conv-1"))
	registry.Join(outsider, ConversationRoom("conv-2"))

	registry.Publish([]byte(`{"event":"x"}`), ConversationRoom("conv-1"))

	assert.Len(t, drain(member), 1)
	assert.Empty(t, drain(outsider))
}

func TestRegistry_PublishDropsOnFullBuffer(t *testing.T) {
	su := newMockStats()
	registry := NewRegistry(testutil.TestLogger(t), su)
	c := newTestClient(t, "alice")
	registry.Join(c, UserRoom("alice"))

	for i := 0; i < cap(c.send); i++ {
		c.queueRaw([]byte("fill"))
	}

	registry.Publish([]byte(`{"event":"x"}`), UserRoom("alice"))

	su.AssertCalled(t, "Incr", "DeliveriesDropped")
}

func TestClient_queueRawAfterStop(t *testing.T) {
	c := newTestClient(t, "alice")
	close(c.stop)

	assert.False(t, c.queueRaw([]byte("x")))
}
