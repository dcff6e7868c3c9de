package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockConverseRepository struct {
	mock.Mock
}

func (m *MockConverseRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockConverseRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockConverseRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockConverseRepository) GetAccountById(userId string) (User, error) {
	args := m.Called(userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockConverseRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockConverseRepository) ListAccounts(excludeUserId string) ([]User, error) {
	args := m.Called(excludeUserId)
	if users, ok := args.Get(0).([]User); ok {
		return users, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockConverseRepository) CreateConversation(params CreateConversationParams) (Conversation, error) {
	args := m.Called(params)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockConverseRepository) GetConversation(conversationId string) (Conversation, error) {
	args := m.Called(conversationId)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockConverseRepository) ListConversations(userId string) ([]Conversation, error) {
	args := m.Called(userId)
	if conversations, ok := args.Get(0).([]Conversation); ok {
		return conversations, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockConverseRepository) FindDirectConversation(userIdA, userIdB string) (Conversation, error) {
	args := m.Called(userIdA, userIdB)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockConverseRepository) IsParticipant(conversationId, userId string) bool {
	args := m.Called(conversationId, userId)
	return args.Bool(0)
}
func (m *MockConverseRepository) CreateMessage(msg Message) error {
	args := m.Called(msg)
	return args.Error(0)
}
func (m *MockConverseRepository) GetMessages(conversationId string, before time.Time, limit int) ([]Message, error) {
	args := m.Called(conversationId, before, limit)
	if messages, ok := args.Get(0).([]Message); ok {
		return messages, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockConverseRepository) TouchConversation(conversationId string, at time.Time) error {
	args := m.Called(conversationId, at)
	return args.Error(0)
}
