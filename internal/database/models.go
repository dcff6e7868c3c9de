package database

import "time"

type User struct {
	Id           string
	Email        string
	DisplayName  string
	AvatarUrl    string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Conversation struct {
	Id           string
	Title        string
	IsGroup      bool
	Participants []User
	LastMessage  *Message
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Message struct {
	Id             string
	ConversationId string
	SenderId       string
	Content        string
	Attachments    []byte
	CreatedAt      time.Time
}

type CreateAccountParams struct {
	Id           string
	Email        string
	DisplayName  string
	PasswordHash string
}

type UpdateAccountParams struct {
	UserId      string
	DisplayName string
	AvatarUrl   string
}

type CreateConversationParams struct {
	Id             string
	Title          string
	IsGroup        bool
	ParticipantIds []string
}
