package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/converse-im/converse/internal/database"
	"github.com/converse-im/converse/internal/stats"
	"github.com/converse-im/converse/internal/token"
	"github.com/converse-im/converse/internal/types"
	"github.com/converse-im/converse/internal/wire"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"
)

// Gateway accepts websocket connections, authenticates them against the same
// signing key the REST API uses, and joins each connection to its user's
// personal room. A rejected handshake never creates membership state.
type Gateway struct {
	log            *log.Logger
	db             database.ConverseRepository
	registry       *Registry
	dispatcher     *Dispatcher
	stats          stats.StatsProvider
	signingKey     []byte
	allowedOrigins []string

	clients     map[*Client]struct{}
	clientsLock sync.Mutex

	generateId func() (string, error)
}

func NewGateway(logger *log.Logger, db database.ConverseRepository, registry *Registry,
	dispatcher *Dispatcher, su stats.StatsProvider, signingKey []byte, allowedOrigins []string) *Gateway {
	su.RegisterMetric("Connections")
	su.RegisterMetric("AuthRejected")

	return &Gateway{
		log:            logger,
		db:             db,
		registry:       registry,
		dispatcher:     dispatcher,
		stats:          su,
		signingKey:     signingKey,
		allowedOrigins: allowedOrigins,
		clients:        make(map[*Client]struct{}),
		generateId:     shortid.Generate,
	}
}

// ServeWS is the handshake endpoint. The bearer token travels in the "token"
// query parameter or the Authorization header, and is verified before the
// connection is upgraded.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		tokenString = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	if tokenString == "" {
		g.rejectHandshake(w)
		return
	}

	userId, err := token.Verify(g.signingKey, tokenString)
	if err != nil {
		g.log.Printf("ws: handshake: %v", err)
		g.rejectHandshake(w)
		return
	}

	user, err := g.db.GetAccountById(userId)
	if err != nil {
		g.log.Printf("ws: handshake: account %q: %v", userId, err)
		g.rejectHandshake(w)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(g.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Println("ws: upgrade:", err)
		return
	}

	c := NewClient(uuid.NewString(), toUser(user), conn, g, g.log)
	g.addClient(c)
	g.registry.Join(c, UserRoom(c.user.Id))

	go c.Write()
	go c.Read()
}

func (g *Gateway) rejectHandshake(w http.ResponseWriter) {
	g.stats.Incr("AuthRejected")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"reason": "auth_rejected"})
}

func (g *Gateway) handleJoin(c *Client, payload wire.JoinPayload) {
	if payload.ConversationId == "" {
		return
	}

	if !g.db.IsParticipant(payload.ConversationId, c.user.Id) {
		g.log.Printf("ws: join: %q is not a participant of %q", c.user.Id, payload.ConversationId)
		return
	}

	g.registry.Join(c, ConversationRoom(payload.ConversationId))
}

func (g *Gateway) handleTyping(c *Client, payload wire.TypingPayload) {
	if payload.ConversationId == "" {
		return
	}

	g.dispatcher.Dispatch(TypingChanged{
		ConversationId: payload.ConversationId,
		UserId:         c.user.Id,
		Typing:         payload.Typing,
	})
}

func (g *Gateway) handleSend(c *Client, payload wire.SendPayload) {
	content := strings.TrimSpace(payload.Content)
	if content == "" {
		return
	}

	if !g.db.IsParticipant(payload.ConversationId, c.user.Id) {
		g.log.Printf("ws: send: %q is not a participant of %q", c.user.Id, payload.ConversationId)
		return
	}

	id, err := g.generateId()
	if err != nil {
		g.log.Println("ws: send: generate id:", err)
		return
	}

	createdAt := Now()
	if err := g.db.CreateMessage(database.Message{
		Id:             id,
		ConversationId: payload.ConversationId,
		SenderId:       c.user.Id,
		Content:        content,
		Attachments:    []byte("[]"),
		CreatedAt:      createdAt,
	}); err != nil {
		g.log.Println("ws: send: create message:", err)
		return
	}

	if err := g.db.TouchConversation(payload.ConversationId, createdAt); err != nil {
		g.log.Println("ws: send: touch conversation:", err)
	}

	g.dispatcher.Dispatch(MessageCreated{
		ConversationId: payload.ConversationId,
		Message: types.Message{
			Id:             id,
			ConversationId: payload.ConversationId,
			SenderId:       c.user.Id,
			Content:        content,
			Attachments:    []types.Attachment{},
			CreatedAt:      createdAt,
		},
	})
}

func (g *Gateway) addClient(c *Client) {
	g.clientsLock.Lock()
	defer g.clientsLock.Unlock()

	g.clients[c] = struct{}{}
	g.stats.Incr("Connections")
}

func (g *Gateway) removeClient(c *Client) {
	g.clientsLock.Lock()
	defer g.clientsLock.Unlock()

	if _, ok := g.clients[c]; !ok {
		return
	}

	delete(g.clients, c)
	g.stats.Decr("Connections")
}

// Shutdown closes every live connection and waits for their cleanup.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.clientsLock.Lock()
	clients := make([]*Client, 0, len(g.clients))
	for c := range g.clients {
		clients = append(clients, c)
	}
	g.clientsLock.Unlock()

	for _, c := range clients {
		c.conn.Close()
		c.cleanup()
	}

	return nil
}

func toUser(u database.User) types.User {
	return types.User{
		Id:          u.Id,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarUrl:   u.AvatarUrl,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
