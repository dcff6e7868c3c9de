package database

import "time"

type ConverseRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	UpdateAccount(params UpdateAccountParams) (User, error)
	GetAccountById(userId string) (User, error)
	GetAccountByEmail(email string) (User, error)
	ListAccounts(excludeUserId string) ([]User, error)
	CreateConversation(params CreateConversationParams) (Conversation, error)
	GetConversation(conversationId string) (Conversation, error)
	ListConversations(userId string) ([]Conversation, error)
	FindDirectConversation(userIdA, userIdB string) (Conversation, error)
	IsParticipant(conversationId, userId string) bool
	CreateMessage(msg Message) error
	GetMessages(conversationId string, before time.Time, limit int) ([]Message, error)
	TouchConversation(conversationId string, at time.Time) error
}
