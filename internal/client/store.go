// Package client implements the connecting side of the chat protocol: a
// websocket session, an HTTP history client, and a local store that keeps
// the message timeline consistent while snapshots and live events race.
package client

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/converse-im/converse/internal/types"
)

// typingTTL bounds how long a peer stays marked as typing when the
// stop signal is lost, e.g. the peer's tab crashed mid-keystroke.
const typingTTL = 10 * time.Second

// HistoryState tracks a conversation's history fetch lifecycle.
type HistoryState int

const (
	HistoryIdle HistoryState = iota
	HistoryLoading
	HistoryLoaded
	HistoryFailed
)

// Store is the client-side view of conversations and messages. Snapshot
// loads and live events may interleave in any order; the store merges them
// so no message is lost or duplicated and ordering stays by creation time.
type Store struct {
	mu sync.Mutex

	selfId        string
	conversations []types.Conversation
	messages      map[string][]types.Message
	history       map[string]HistoryState
	typing        map[string]map[string]time.Time

	log *log.Logger
	now func() time.Time
}

func NewStore(selfId string, logger *log.Logger) *Store {
	return &Store{
		selfId:   selfId,
		messages: make(map[string][]types.Message),
		history:  make(map[string]HistoryState),
		typing:   make(map[string]map[string]time.Time),
		log:      logger,
		now:      time.Now,
	}
}

// BeginHistoryLoad marks a fetch as in flight. Live messages keep applying
// while it runs.
func (s *Store) BeginHistoryLoad(conversationId string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[conversationId] = HistoryLoading
}

// HistoryLoadFailed records the failure and leaves the timeline as it was,
// live messages included.
func (s *Store) HistoryLoadFailed(conversationId string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[conversationId] = HistoryFailed
	s.log.Printf("store: history load for %q: %v", conversationId, err)
}

func (s *Store) History(conversationId string) HistoryState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.history[conversationId]
}

// LoadHistory merges a fetched message page into the conversation's
// timeline. Messages already held, typically ones that arrived live while
// the fetch was in flight, stay in the union; ids present in both take the
// fetched copy. The result is ordered by creation time.
func (s *Store) LoadHistory(conversationId string, page []types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.messages[conversationId]
	held := make(map[string]int, len(merged))
	for i, m := range merged {
		held[m.Id] = i
	}

	for _, m := range page {
		// the fetched copy is authoritative for a message held both ways
		if i, ok := held[m.Id]; ok {
			merged[i] = m
			continue
		}
		held[m.Id] = len(merged)
		merged = append(merged, m)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})

	s.messages[conversationId] = merged
	s.history[conversationId] = HistoryLoaded
}

// ApplyIncoming inserts one live message at its ordered position and bumps
// the conversation to the top of the list. A message whose id is already
// present is ignored, so replays and snapshot overlap are harmless.
func (s *Store) ApplyIncoming(conversationId string, msg types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timeline := s.messages[conversationId]
	for _, m := range timeline {
		if m.Id == msg.Id {
			return
		}
	}

	// Insert before the first later message. Ties keep arrival order.
	at := len(timeline)
	for i, m := range timeline {
		if msg.CreatedAt.Before(m.CreatedAt) {
			at = i
			break
		}
	}

	timeline = append(timeline, types.Message{})
	copy(timeline[at+1:], timeline[at:])
	timeline[at] = msg
	s.messages[conversationId] = timeline

	s.bumpConversation(conversationId, msg)
	s.clearTyping(conversationId, msg.SenderId)
}

// Messages returns the conversation's timeline oldest first.
func (s *Store) Messages(conversationId string) []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	timeline := s.messages[conversationId]
	out := make([]types.Message, len(timeline))
	copy(out, timeline)

	return out
}

// SetConversations replaces the conversation list, as after a fresh fetch.
func (s *Store) SetConversations(conversations []types.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = make([]types.Conversation, len(conversations))
	copy(s.conversations, conversations)
}

// UpsertConversation replaces a known conversation or prepends an unknown
// one, which is how a conversation:new notification surfaces. A known
// conversation keeps its position unless the replacement carries a newer
// recency key, in which case the list is re-sorted.
func (s *Store) UpsertConversation(conversation types.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.conversations {
		if c.Id == conversation.Id {
			s.conversations[i] = conversation
			if conversation.UpdatedAt.After(c.UpdatedAt) {
				s.sortConversationsLocked()
			}
			return
		}
	}

	s.conversations = append([]types.Conversation{conversation}, s.conversations...)
}

// Conversations returns the list most recently active first.
func (s *Store) Conversations() []types.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Conversation, len(s.conversations))
	copy(out, s.conversations)

	return out
}

// SetTyping records a peer's typing state. The user's own echo, delivered
// because every member room gets the event, is dropped here.
func (s *Store) SetTyping(conversationId, userId string, typing bool) {
	if userId == s.selfId {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !typing {
		s.clearTyping(conversationId, userId)
		return
	}

	peers, ok := s.typing[conversationId]
	if !ok {
		peers = make(map[string]time.Time)
		s.typing[conversationId] = peers
	}
	peers[userId] = s.now()
}

// TypingUsers returns the ids of peers currently typing in a conversation.
// Entries older than the TTL are swept on read.
func (s *Store) TypingUsers(conversationId string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	peers := s.typing[conversationId]
	if len(peers) == 0 {
		return nil
	}

	cutoff := s.now().Add(-typingTTL)
	ids := make([]string, 0, len(peers))
	for userId, at := range peers {
		if at.Before(cutoff) {
			delete(peers, userId)
			continue
		}
		ids = append(ids, userId)
	}
	sort.Strings(ids)

	if len(ids) == 0 {
		return nil
	}

	return ids
}

// bumpConversation advances the conversation's recency key to the message's
// creation time and stably re-sorts the list by descending recency. A late
// message older than the current key changes nothing, so an out-of-order
// delivery never promotes its conversation past a fresher one. Conversations
// the store has not seen yet are left alone; the caller is expected to fetch
// and upsert them.
func (s *Store) bumpConversation(conversationId string, msg types.Message) {
	for i := range s.conversations {
		c := &s.conversations[i]
		if c.Id != conversationId {
			continue
		}

		if c.LastMessage == nil || !msg.CreatedAt.Before(c.LastMessage.CreatedAt) {
			c.LastMessage = &msg
		}

		if msg.CreatedAt.After(c.UpdatedAt) {
			c.UpdatedAt = msg.CreatedAt
			s.sortConversationsLocked()
		}
		return
	}
}

func (s *Store) sortConversationsLocked() {
	sort.SliceStable(s.conversations, func(i, j int) bool {
		return s.conversations[i].UpdatedAt.After(s.conversations[j].UpdatedAt)
	})
}

func (s *Store) clearTyping(conversationId, userId string) {
	if peers, ok := s.typing[conversationId]; ok {
		delete(peers, userId)
	}
}
