package client

import (
	"testing"
	"time"

	"github.com/converse-im/converse/internal/testutil"
	"github.com/converse-im/converse/internal/types"
	"github.com/stretchr/testify/assert"
)

func msgAt(id string, t time.Time) types.Message {
	return types.Message{Id: id, ConversationId: "conv-1", SenderId: "peer-1", Content: id, CreatedAt: t}
}

func TestLoadHistory_unionWithLiveMessages(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore("self", testutil.TestLogger(t))

	// m2 arrived over the socket while the history fetch was in flight
	store.ApplyIncoming("conv-1", msgAt("m2", base.Add(20*time.Second)))

	// the fetched page predates m2 and does not contain it
	store.LoadHistory("conv-1", []types.Message{msgAt("m1", base.Add(10*time.Second))})

	got := store.Messages("conv-1")
	assert.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].Id)
	assert.Equal(t, "m2", got[1].Id)
}

func TestLoadHistory_fetchedCopyWinsForSharedIds(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore("self", testutil.TestLogger(t))

	store.ApplyIncoming("conv-1", msgAt("m1", base))

	fetched := msgAt("m1", base)
	fetched.Content = "edited"
	store.LoadHistory("conv-1", []types.Message{
		fetched,
		msgAt("m0", base.Add(-time.Minute)),
	})

	got := store.Messages("conv-1")
	assert.Len(t, got, 2)
	assert.Equal(t, "m0", got[0].Id)
	assert.Equal(t, "m1", got[1].Id)
	assert.Equal(t, "edited", got[1].Content)
}

func TestHistoryLifecycle(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore("self", testutil.TestLogger(t))

	assert.Equal(t, HistoryIdle, store.History("conv-1"))

	store.BeginHistoryLoad("conv-1")
	assert.Equal(t, HistoryLoading, store.History("conv-1"))

	store.LoadHistory("conv-1", []types.Message{msgAt("m1", base)})
	assert.Equal(t, HistoryLoaded, store.History("conv-1"))
}

func TestHistoryLoadFailed_preservesTimeline(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore("self", testutil.TestLogger(t))

	store.ApplyIncoming("conv-1", msgAt("m1", base))

	store.BeginHistoryLoad("conv-1")
	store.HistoryLoadFailed("conv-1", assert.AnError)

	assert.Equal(t, HistoryFailed, store.History("conv-1"))
	assert.Len(t, store.Messages("conv-1"), 1)
}

func TestApplyIncoming_ordersByCreationTime(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore("self", testutil.TestLogger(t))

	// out-of-order arrival
	store.ApplyIncoming("conv-1", msgAt("t2", base.Add(2*time.Second)))
	store.ApplyIncoming("conv-1", msgAt("t1", base.Add(1*time.Second)))
	store.ApplyIncoming("conv-1", msgAt("t3", base.Add(3*time.Second)))

	got := store.Messages("conv-1")
	ids := []string{got[0].Id, got[1].Id, got[2].Id}
	assert.Equal(t, []string{"t1", "t2", "t3"}, ids)
}

func TestApplyIncoming_ignoresDuplicateId(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore("self", testutil.TestLogger(t))

	store.ApplyIncoming("conv-1", msgAt("m1", base))
	store.ApplyIncoming("conv-1", msgAt("m1", base))

	assert.Len(t, store.Messages("conv-1"), 1)
}

func TestApplyIncoming_equalTimestampsKeepArrivalOrder(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore("self", testutil.TestLogger(t))

	store.ApplyIncoming("conv-1", msgAt("a", at))
	store.ApplyIncoming("conv-1", msgAt("b", at))

	got := store.Messages("conv-1")
	assert.Equal(t, "a", got[0].Id)
	assert.Equal(t, "b", got[1].Id)
}

func TestApplyIncoming_bumpsConversation(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore("self", testutil.TestLogger(t))

	store.SetConversations([]types.Conversation{
		{Id: "conv-a"},
		{Id: "conv-b"},
		{Id: "conv-c"},
	})

	msg := msgAt("m1", base)
	msg.ConversationId = "conv-c"
	store.ApplyIncoming("conv-c", msg)

	got := store.Conversations()
	assert.Equal(t, "conv-c", got[0].Id)
	// the others keep their relative order
	assert.Equal(t, "conv-a", got[1].Id)
	assert.Equal(t, "conv-b", got[2].Id)

	assert.NotNil(t, got[0].LastMessage)
	assert.Equal(t, "m1", got[0].LastMessage.Id)
	assert.Equal(t, base, got[0].UpdatedAt)
}

func TestApplyIncoming_lateMessageDoesNotPromotePastFresher(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore("self", testutil.TestLogger(t))

	store.SetConversations([]types.Conversation{
		{Id: "conv-fresh", UpdatedAt: base.Add(time.Hour)},
		{Id: "conv-stale", UpdatedAt: base},
	})

	// delivered out of order: newer than conv-stale's key but older than
	// conv-fresh's
	late := msgAt("late", base.Add(time.Minute))
	late.ConversationId = "conv-stale"
	store.ApplyIncoming("conv-stale", late)

	got := store.Conversations()
	assert.Equal(t, "conv-fresh", got[0].Id)
	assert.Equal(t, "conv-stale", got[1].Id)
	assert.Equal(t, base.Add(time.Minute), got[1].UpdatedAt)
}

func TestApplyIncoming_messageOlderThanRecencyKeyKeepsOrder(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore("self", testutil.TestLogger(t))

	store.SetConversations([]types.Conversation{
		{Id: "conv-a", UpdatedAt: base.Add(time.Hour)},
		{Id: "conv-b", UpdatedAt: base.Add(30 * time.Minute)},
	})

	old := msgAt("old", base)
	old.ConversationId = "conv-a"
	store.ApplyIncoming("conv-a", old)

	got := store.Conversations()
	assert.Equal(t, "conv-a", got[0].Id)
	// the key never regresses
	assert.Equal(t, base.Add(time.Hour), got[0].UpdatedAt)
}

func TestUpsertConversation(t *testing.T) {
	store := NewStore("self", testutil.TestLogger(t))
	store.SetConversations([]types.Conversation{
		{Id: "conv-a", Title: "old"},
		{Id: "conv-b"},
	})

	store.UpsertConversation(types.Conversation{Id: "conv-a", Title: "new"})
	got := store.Conversations()
	assert.Len(t, got, 2)
	assert.Equal(t, "new", got[0].Title)

	store.UpsertConversation(types.Conversation{Id: "conv-c"})
	got = store.Conversations()
	assert.Len(t, got, 3)
	assert.Equal(t, "conv-c", got[0].Id)
}

func TestUpsertConversation_newerRecencyReorders(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore("self", testutil.TestLogger(t))

	store.SetConversations([]types.Conversation{
		{Id: "conv-a", UpdatedAt: base.Add(time.Hour)},
		{Id: "conv-b", UpdatedAt: base},
	})

	store.UpsertConversation(types.Conversation{Id: "conv-b", UpdatedAt: base.Add(3 * time.Hour)})

	got := store.Conversations()
	assert.Equal(t, "conv-b", got[0].Id)
	assert.Equal(t, "conv-a", got[1].Id)
}

func TestUpsertConversation_unchangedRecencyKeepsPosition(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore("self", testutil.TestLogger(t))

	store.SetConversations([]types.Conversation{
		{Id: "conv-a", UpdatedAt: base.Add(time.Hour)},
		{Id: "conv-b", UpdatedAt: base},
	})

	store.UpsertConversation(types.Conversation{Id: "conv-b", Title: "renamed", UpdatedAt: base})

	got := store.Conversations()
	assert.Equal(t, "conv-a", got[0].Id)
	assert.Equal(t, "renamed", got[1].Title)
}

func TestSetTyping(t *testing.T) {
	store := NewStore("self", testutil.TestLogger(t))

	store.SetTyping("conv-1", "peer-1", true)
	store.SetTyping("conv-1", "peer-2", true)
	assert.Equal(t, []string{"peer-1", "peer-2"}, store.TypingUsers("conv-1"))

	store.SetTyping("conv-1", "peer-1", false)
	assert.Equal(t, []string{"peer-2"}, store.TypingUsers("conv-1"))
}

func TestSetTyping_ignoresOwnEcho(t *testing.T) {
	store := NewStore("self", testutil.TestLogger(t))

	store.SetTyping("conv-1", "self", true)
	assert.Empty(t, store.TypingUsers("conv-1"))
}

func TestTypingUsers_sweepsStaleEntries(t *testing.T) {
	store := NewStore("self", testutil.TestLogger(t))

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.SetTyping("conv-1", "peer-1", true)
	assert.Equal(t, []string{"peer-1"}, store.TypingUsers("conv-1"))

	// the stop signal never arrives; the entry expires on read
	now = now.Add(typingTTL + time.Second)
	assert.Empty(t, store.TypingUsers("conv-1"))
}

func TestApplyIncoming_clearsSenderTyping(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore("self", testutil.TestLogger(t))

	store.SetTyping("conv-1", "peer-1", true)
	store.ApplyIncoming("conv-1", msgAt("m1", base))

	assert.Empty(t, store.TypingUsers("conv-1"))
}
