package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/converse-im/converse/internal/database"
	"github.com/converse-im/converse/internal/server"
	"github.com/converse-im/converse/internal/types"
	"github.com/samber/lo"
)

type CreateConversationRequest struct {
	ParticipantIds []string `json:"participant_ids" validate:"required,min=1,dive,required"`
	Title          string   `json:"title" validate:"max=128"`
	IsGroup        bool     `json:"is_group"`
}

type CreateMessageRequest struct {
	Content     string             `json:"content"`
	Attachments []types.Attachment `json:"attachments"`
}

type ConversationResponse struct {
	Conversation types.Conversation `json:"conversation"`
}

type ConversationsResponse struct {
	Conversations []types.Conversation `json:"conversations"`
}

type MessagesResponse struct {
	Messages []types.Message `json:"messages"`
}

type MessageResponse struct {
	ConversationId string        `json:"conversation_id"`
	Message        types.Message `json:"message"`
}

func (s *ConverseApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *ConverseApp) listUsers(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUsers, err := s.db.ListAccounts(userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	users := make([]types.User, 0, len(dbUsers))
	for _, u := range dbUsers {
		users = append(users, toUser(u))
	}

	s.writeJson(w, http.StatusOK, users)
}

func (s *ConverseApp) listConversations(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbConversations, err := s.db.ListConversations(userId)
	if err != nil {
		s.log.Println("list conversations:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversations := make([]types.Conversation, 0, len(dbConversations))
	for _, c := range dbConversations {
		conversations = append(conversations, toConversation(c))
	}

	s.writeJson(w, http.StatusOK, ConversationsResponse{Conversations: conversations})
}

func (s *ConverseApp) createConversation(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.validate.Struct(req); err != nil {
		errResp := NewValidationError(err.Error())
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// the creator is always a participant
	participantIds := lo.Uniq(append([]string{userId}, req.ParticipantIds...))

	if !req.IsGroup && len(participantIds) != 2 {
		errResp := NewValidationError("direct conversations require exactly two participants")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !req.IsGroup {
		existing, err := s.db.FindDirectConversation(participantIds[0], participantIds[1])
		if err == nil {
			s.writeJson(w, http.StatusOK, ConversationResponse{Conversation: toConversation(existing)})
			return
		}
		if !errors.Is(err, sql.ErrNoRows) {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	id, err := s.generateId()
	if err != nil {
		s.log.Print("generateId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newConversation, err := s.db.CreateConversation(database.CreateConversationParams{
		Id:             id,
		Title:          req.Title,
		IsGroup:        req.IsGroup,
		ParticipantIds: participantIds,
	})
	if err != nil {
		s.log.Println("create conversation:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.dispatcher.Dispatch(server.ConversationCreated{
		ConversationId: newConversation.Id,
		ParticipantIds: participantIds,
	})

	s.writeJson(w, http.StatusCreated, ConversationResponse{Conversation: toConversation(newConversation)})
}

func (s *ConverseApp) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversationId := r.PathValue("conversationId")
	if _, err := s.db.GetConversation(conversationId); err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.db.IsParticipant(conversationId, userId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var before time.Time
	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		t, err := time.Parse(time.RFC3339Nano, beforeStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		before = t
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		limit = n
	}

	dbMessages, err := s.db.GetMessages(conversationId, before, limit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// newest first on the wire; the client re-orders ascending
	messages := make([]types.Message, 0, len(dbMessages))
	for _, m := range dbMessages {
		messages = append(messages, toMessage(m))
	}

	s.writeJson(w, http.StatusOK, MessagesResponse{Messages: messages})
}

func (s *ConverseApp) createMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversationId := r.PathValue("conversationId")
	if _, err := s.db.GetConversation(conversationId); err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.db.IsParticipant(conversationId, userId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Content == "" && len(req.Attachments) == 0 {
		errResp := NewValidationError("message content or attachments are required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	id, err := s.generateId()
	if err != nil {
		s.log.Print("generateId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Attachments == nil {
		req.Attachments = []types.Attachment{}
	}
	attachments, err := json.Marshal(req.Attachments)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	createdAt := server.Now()
	if err := s.db.CreateMessage(database.Message{
		Id:             id,
		ConversationId: conversationId,
		SenderId:       userId,
		Content:        req.Content,
		Attachments:    attachments,
		CreatedAt:      createdAt,
	}); err != nil {
		s.log.Println("create message:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.TouchConversation(conversationId, createdAt); err != nil {
		s.log.Println("touch conversation:", err)
	}

	msg := types.Message{
		Id:             id,
		ConversationId: conversationId,
		SenderId:       userId,
		Content:        req.Content,
		Attachments:    req.Attachments,
		CreatedAt:      createdAt,
	}

	s.dispatcher.Dispatch(server.MessageCreated{
		ConversationId: conversationId,
		Message:        msg,
	})

	s.writeJson(w, http.StatusCreated, MessageResponse{
		ConversationId: conversationId,
		Message:        msg,
	})
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

func toMessage(m database.Message) types.Message {
	attachments := []types.Attachment{}
	if len(m.Attachments) > 0 {
		if err := json.Unmarshal(m.Attachments, &attachments); err != nil {
			attachments = []types.Attachment{}
		}
	}

	return types.Message{
		Id:             m.Id,
		ConversationId: m.ConversationId,
		SenderId:       m.SenderId,
		Content:        m.Content,
		Attachments:    attachments,
		CreatedAt:      m.CreatedAt,
	}
}

func toConversation(c database.Conversation) types.Conversation {
	participants := make([]types.User, 0, len(c.Participants))
	for _, p := range c.Participants {
		participants = append(participants, toUser(p))
	}

	conversation := types.Conversation{
		Id:           c.Id,
		Title:        c.Title,
		IsGroup:      c.IsGroup,
		Participants: participants,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}

	if c.LastMessage != nil {
		msg := toMessage(*c.LastMessage)
		conversation.LastMessage = &msg
	}

	return conversation
}
