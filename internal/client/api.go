package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/converse-im/converse/internal/types"
)

// Api talks to the server's REST surface. The token captured at login is
// attached to every authenticated call and is the same credential the
// websocket handshake uses.
type Api struct {
	baseUrl string
	http    *http.Client
	token   string
}

func NewApi(baseUrl string) *Api {
	return &Api{
		baseUrl: baseUrl,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Token returns the session token from the last successful login.
func (a *Api) Token() string {
	return a.token
}

type registerRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User  types.User `json:"user"`
	Token string     `json:"token"`
}

func (a *Api) Register(email, displayName, password string) (types.User, error) {
	var user types.User
	err := a.do(http.MethodPost, "/api/auth/register", registerRequest{
		Email:       email,
		DisplayName: displayName,
		Password:    password,
	}, &user)

	return user, err
}

// Login authenticates and stores the session token for subsequent calls.
func (a *Api) Login(email, password string) (types.User, error) {
	var session sessionResponse
	if err := a.do(http.MethodPost, "/api/auth/login", loginRequest{
		Email:    email,
		Password: password,
	}, &session); err != nil {
		return types.User{}, err
	}

	a.token = session.Token
	return session.User, nil
}

func (a *Api) ListUsers() ([]types.User, error) {
	var users []types.User
	err := a.do(http.MethodGet, "/api/users", nil, &users)
	return users, err
}

func (a *Api) ListConversations() ([]types.Conversation, error) {
	var resp struct {
		Conversations []types.Conversation `json:"conversations"`
	}
	err := a.do(http.MethodGet, "/api/conversations", nil, &resp)
	return resp.Conversations, err
}

type createConversationRequest struct {
	ParticipantIds []string `json:"participant_ids"`
	Title          string   `json:"title,omitempty"`
	IsGroup        bool     `json:"is_group"`
}

// CreateConversation starts a conversation. For a direct conversation the
// server may return an existing one instead of creating a duplicate.
func (a *Api) CreateConversation(participantIds []string, title string, isGroup bool) (types.Conversation, error) {
	var resp struct {
		Conversation types.Conversation `json:"conversation"`
	}
	err := a.do(http.MethodPost, "/api/conversations", createConversationRequest{
		ParticipantIds: participantIds,
		Title:          title,
		IsGroup:        isGroup,
	}, &resp)

	return resp.Conversation, err
}

// ListMessages fetches a page newest first. A zero before means latest;
// a non-positive limit takes the server default.
func (a *Api) ListMessages(conversationId string, before time.Time, limit int) ([]types.Message, error) {
	path := fmt.Sprintf("/api/conversations/%s/messages", url.PathEscape(conversationId))

	q := url.Values{}
	if !before.IsZero() {
		q.Set("before", before.Format(time.RFC3339Nano))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Messages []types.Message `json:"messages"`
	}
	err := a.do(http.MethodGet, path, nil, &resp)
	return resp.Messages, err
}

type createMessageRequest struct {
	Content     string             `json:"content"`
	Attachments []types.Attachment `json:"attachments,omitempty"`
}

func (a *Api) CreateMessage(conversationId, content string, attachments []types.Attachment) (types.Message, error) {
	path := fmt.Sprintf("/api/conversations/%s/messages", url.PathEscape(conversationId))

	var resp struct {
		Message types.Message `json:"message"`
	}
	err := a.do(http.MethodPost, path, createMessageRequest{
		Content:     content,
		Attachments: attachments,
	}, &resp)

	return resp.Message, err
}

// Upload sends a file as multipart form data and returns the stored
// attachment descriptor.
func (a *Api) Upload(name string, r io.Reader) (types.Attachment, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filepath.Base(name))
	if err != nil {
		return types.Attachment{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return types.Attachment{}, fmt.Errorf("copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return types.Attachment{}, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, a.baseUrl+"/api/uploads", &body)
	if err != nil {
		return types.Attachment{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	a.authorize(req)

	resp, err := a.http.Do(req)
	if err != nil {
		return types.Attachment{}, err
	}
	defer resp.Body.Close()

	var uploaded struct {
		Attachment types.Attachment `json:"attachment"`
	}
	if err := a.decode(resp, &uploaded); err != nil {
		return types.Attachment{}, err
	}

	return uploaded.Attachment, nil
}

func (a *Api) do(method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, a.baseUrl+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	a.authorize(req)

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return a.decode(resp, out)
}

func (a *Api) authorize(req *http.Request) {
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
}

func (a *Api) decode(resp *http.Response, out any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("%s %s: %s", resp.Request.Method, resp.Request.URL.Path, apiErr.Message)
		}
		return fmt.Errorf("%s %s: status %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
