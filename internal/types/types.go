package types

import (
	"time"
)

type User struct {
	Id           string    `json:"id"`
	Email        string    `json:"email,omitempty"`
	DisplayName  string    `json:"display_name"`
	AvatarUrl    string    `json:"avatar_url,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Attachment struct {
	Url  string `json:"url"`
	Type string `json:"type"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type Message struct {
	Id             string       `json:"id"`
	ConversationId string       `json:"conversation_id"`
	SenderId       string       `json:"sender_id"`
	Content        string       `json:"content,omitempty"`
	Attachments    []Attachment `json:"attachments"`
	CreatedAt      time.Time    `json:"created_at"`
}

type Conversation struct {
	Id           string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	IsGroup      bool      `json:"is_group"`
	Participants []User    `json:"participants"`
	LastMessage  *Message  `json:"last_message,omitempty"`
	UnreadCount  int       `json:"unread_count,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
