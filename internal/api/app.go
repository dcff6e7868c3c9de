package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/converse-im/converse/internal/config"
	"github.com/converse-im/converse/internal/database"
	"github.com/converse-im/converse/internal/server"
	"github.com/converse-im/converse/internal/storage"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/teris-io/shortid"
)

// ConverseApp is the HTTP surface: auth, conversation history, uploads, and
// the websocket handshake endpoint.
type ConverseApp struct {
	log        *log.Logger
	db         database.ConverseRepository
	mux        *http.Server
	gateway    *server.Gateway
	dispatcher *server.Dispatcher
	store      storage.Store
	signingKey []byte
	validate   *validator.Validate

	generateId func() (string, error)
}

func NewConverseApp(mux *http.ServeMux, logger *log.Logger, gw *server.Gateway, dispatcher *server.Dispatcher,
	db database.ConverseRepository, store storage.Store, cfg *config.Config) *ConverseApp {
	s := &ConverseApp{
		log:        logger,
		db:         db,
		gateway:    gw,
		dispatcher: dispatcher,
		store:      store,
		signingKey: cfg.SigningKey,
		validate:   validator.New(),
		generateId: shortid.Generate,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("GET /api/users", s.authMiddleware(s.listUsers))
	mux.Handle("GET /api/conversations", s.authMiddleware(s.listConversations))
	mux.Handle("POST /api/conversations", s.authMiddleware(s.createConversation))
	mux.Handle("GET /api/conversations/{conversationId}/messages", s.authMiddleware(s.getMessages))
	mux.Handle("POST /api/conversations/{conversationId}/messages", s.authMiddleware(s.createMessage))
	mux.Handle("POST /api/uploads", s.authMiddleware(s.upload))
	mux.HandleFunc("GET /uploads/{key}", s.serveUpload)
	// the gateway does its own credential check during the handshake
	mux.HandleFunc("GET /ws", gw.ServeWS)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *ConverseApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ConverseApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
