// Command client is a small terminal chat client. It logs in over the REST
// API, opens the websocket, and mirrors the server's events into a local
// store so the timeline stays consistent while history loads race live
// traffic.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/converse-im/converse/internal/client"
	"github.com/converse-im/converse/internal/types"
	"github.com/converse-im/converse/internal/wire"
)

var (
	serverUrl string
	email     string
	password  string
)

type session struct {
	api    *client.Api
	socket *client.Socket
	store  *client.Store
	log    *log.Logger

	self    types.User
	current string
	typing  *client.Debouncer
}

func main() {
	flag.StringVar(&serverUrl, "server", "http://localhost:8000", "server base URL")
	flag.StringVar(&email, "email", "", "account email")
	flag.StringVar(&password, "password", "", "account password")
	flag.Parse()

	logger := log.New(os.Stderr, "[converse] ", log.LstdFlags)

	if email == "" || password == "" {
		logger.Fatal("both -email and -password are required")
	}

	api := client.NewApi(serverUrl)
	self, err := api.Login(email, password)
	if err != nil {
		logger.Fatal("login:", err)
	}

	socket, err := client.Dial(serverUrl, api.Token(), logger)
	if err != nil {
		logger.Fatal("connect:", err)
	}
	defer socket.Close()

	s := &session{
		api:    api,
		socket: socket,
		store:  client.NewStore(self.Id, logger),
		log:    logger,
		self:   self,
	}

	if err := s.refreshConversations(); err != nil {
		logger.Fatal("list conversations:", err)
	}

	go func() {
		if err := socket.Listen(s); err != nil {
			logger.Fatal("connection lost:", err)
		}
		logger.Println("connection closed")
		os.Exit(0)
	}()

	fmt.Printf("signed in as %s\n", self.DisplayName)
	s.printConversations()
	fmt.Println("commands: /list, /open <conversation>, /history, anything else sends")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		s.handleLine(strings.TrimSpace(scanner.Text()))
	}
}

func (s *session) handleLine(line string) {
	switch {
	case line == "":
	case line == "/list":
		s.printConversations()
	case strings.HasPrefix(line, "/open "):
		s.open(strings.TrimSpace(strings.TrimPrefix(line, "/open ")))
	case line == "/history":
		s.printHistory()
	default:
		s.send(line)
	}
}

func (s *session) open(conversationId string) {
	if s.typing != nil {
		s.typing.Close()
	}

	if err := s.socket.JoinConversation(conversationId); err != nil {
		s.log.Println("join:", err)
		return
	}

	s.current = conversationId
	s.typing = client.NewDebouncer(conversationId, s.socket)

	// live events may already be flowing for this conversation; the store
	// merges the fetched page with whatever arrived in the meantime
	s.store.BeginHistoryLoad(conversationId)
	page, err := s.api.ListMessages(conversationId, time.Time{}, 0)
	if err != nil {
		s.store.HistoryLoadFailed(conversationId, err)
		return
	}
	s.store.LoadHistory(conversationId, page)

	s.printHistory()
}

func (s *session) send(content string) {
	if s.current == "" {
		fmt.Println("no conversation open; use /open <conversation>")
		return
	}

	s.typing.Activity()
	if err := s.socket.SendMessage(s.current, content); err != nil {
		s.log.Println("send:", err)
		return
	}
	s.typing.Sent()
}

func (s *session) refreshConversations() error {
	conversations, err := s.api.ListConversations()
	if err != nil {
		return err
	}

	s.store.SetConversations(conversations)
	return nil
}

func (s *session) knowsConversation(conversationId string) bool {
	for _, c := range s.store.Conversations() {
		if c.Id == conversationId {
			return true
		}
	}
	return false
}

func (s *session) printConversations() {
	for _, c := range s.store.Conversations() {
		title := c.Title
		if title == "" {
			title = "(direct)"
		}
		fmt.Printf("  %s  %s\n", c.Id, title)
	}
}

func (s *session) printHistory() {
	for _, m := range s.store.Messages(s.current) {
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format(time.Kitchen), m.SenderId, m.Content)
	}
}

func (s *session) OnConversationNew(conversationId string) {
	if err := s.refreshConversations(); err != nil {
		s.log.Println("refresh conversations:", err)
		return
	}

	fmt.Printf("* new conversation %s\n", conversationId)
}

func (s *session) OnMessageNew(payload wire.MessageNewPayload) {
	// a message for a conversation the store has never seen means the
	// conversation list is stale; refresh it before applying so the
	// recency ordering has something to act on
	if !s.knowsConversation(payload.ConversationId) {
		if err := s.refreshConversations(); err != nil {
			s.log.Println("refresh conversations:", err)
		}
	}

	s.store.ApplyIncoming(payload.ConversationId, payload.Message)

	if payload.ConversationId == s.current {
		m := payload.Message
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format(time.Kitchen), m.SenderId, m.Content)
	}
}

func (s *session) OnTypingChanged(payload wire.TypingChangedPayload) {
	s.store.SetTyping(payload.ConversationId, payload.UserId, payload.Typing)

	if payload.ConversationId == s.current {
		if peers := s.store.TypingUsers(payload.ConversationId); len(peers) > 0 {
			fmt.Printf("* %s typing...\n", strings.Join(peers, ", "))
		}
	}
}
