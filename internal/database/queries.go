package database

import (
	"database/sql"
	"fmt"
	"time"
)

const (
	selectUserColumns = "id, email, display_name, avatar_url, password_hash, created_at, updated_at"

	participantsQuery = "SELECT u.id, u.email, u.display_name, u.avatar_url, u.created_at, u.updated_at " +
		"FROM users u JOIN participants p ON p.user_id = u.id WHERE p.conversation_id = $1 " +
		"ORDER BY u.display_name"

	lastMessageQuery = "SELECT id, conversation_id, sender_id, content, attachments, created_at " +
		"FROM messages WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT 1"
)

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(
		&u.Id,
		&u.Email,
		&u.DisplayName,
		&u.AvatarUrl,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

func (db *PgConverseRepository) CreateAccount(params CreateAccountParams) (User, error) {
	now := time.Now().UTC()
	res := db.conn.QueryRow(
		"INSERT INTO users (id, email, display_name, avatar_url, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, '', $4, $5, $5) RETURNING "+selectUserColumns,
		params.Id,
		params.Email,
		params.DisplayName,
		params.PasswordHash,
		now,
	)

	return scanUser(res)
}

func (db *PgConverseRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"UPDATE users SET display_name = $2, avatar_url = $3, updated_at = $4 "+
			"WHERE id = $1 RETURNING "+selectUserColumns,
		params.UserId,
		params.DisplayName,
		params.AvatarUrl,
		time.Now().UTC(),
	)

	return scanUser(res)
}

func (db *PgConverseRepository) GetAccountById(userId string) (User, error) {
	res := db.conn.QueryRow("SELECT "+selectUserColumns+" FROM users WHERE id = $1", userId)
	return scanUser(res)
}

func (db *PgConverseRepository) GetAccountByEmail(email string) (User, error) {
	res := db.conn.QueryRow("SELECT "+selectUserColumns+" FROM users WHERE email = $1", email)
	return scanUser(res)
}

func (db *PgConverseRepository) ListAccounts(excludeUserId string) ([]User, error) {
	rows, err := db.conn.Query(
		"SELECT "+selectUserColumns+" FROM users WHERE id != $1 ORDER BY display_name",
		excludeUserId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *PgConverseRepository) CreateConversation(params CreateConversationParams) (Conversation, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Conversation{}, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var c Conversation
	err = tx.QueryRow(
		"INSERT INTO conversations (id, title, is_group, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, title, is_group, created_at, updated_at",
		params.Id,
		params.Title,
		params.IsGroup,
		now,
	).Scan(&c.Id, &c.Title, &c.IsGroup, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Conversation{}, err
	}

	for _, userId := range params.ParticipantIds {
		if _, err := tx.Exec(
			"INSERT INTO participants (conversation_id, user_id, created_at) VALUES ($1, $2, $3)",
			c.Id, userId, now,
		); err != nil {
			return Conversation{}, fmt.Errorf("add participant %s: %w", userId, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Conversation{}, err
	}

	participants, err := db.getParticipants(c.Id)
	if err != nil {
		return Conversation{}, err
	}
	c.Participants = participants

	return c, nil
}

func (db *PgConverseRepository) GetConversation(conversationId string) (Conversation, error) {
	var c Conversation
	err := db.conn.QueryRow(
		"SELECT id, title, is_group, created_at, updated_at FROM conversations WHERE id = $1",
		conversationId,
	).Scan(&c.Id, &c.Title, &c.IsGroup, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Conversation{}, err
	}

	participants, err := db.getParticipants(c.Id)
	if err != nil {
		return Conversation{}, err
	}
	c.Participants = participants

	return c, nil
}

func (db *PgConverseRepository) ListConversations(userId string) ([]Conversation, error) {
	rows, err := db.conn.Query(
		"SELECT c.id, c.title, c.is_group, c.created_at, c.updated_at "+
			"FROM conversations c JOIN participants p ON p.conversation_id = c.id "+
			"WHERE p.user_id = $1 ORDER BY c.updated_at DESC",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.Id, &c.Title, &c.IsGroup, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range conversations {
		participants, err := db.getParticipants(conversations[i].Id)
		if err != nil {
			return nil, err
		}
		conversations[i].Participants = participants

		lastMsg, err := db.getLastMessage(conversations[i].Id)
		if err != nil {
			return nil, err
		}
		conversations[i].LastMessage = lastMsg
	}

	return conversations, nil
}

func (db *PgConverseRepository) FindDirectConversation(userIdA, userIdB string) (Conversation, error) {
	var conversationId string
	err := db.conn.QueryRow(
		"SELECT c.id FROM conversations c "+
			"WHERE c.is_group = false "+
			"AND EXISTS (SELECT 1 FROM participants WHERE conversation_id = c.id AND user_id = $1) "+
			"AND EXISTS (SELECT 1 FROM participants WHERE conversation_id = c.id AND user_id = $2) "+
			"AND (SELECT COUNT(*) FROM participants WHERE conversation_id = c.id) = 2",
		userIdA,
		userIdB,
	).Scan(&conversationId)
	if err != nil {
		return Conversation{}, err
	}

	return db.GetConversation(conversationId)
}

func (db *PgConverseRepository) IsParticipant(conversationId, userId string) bool {
	var exists bool
	err := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM participants WHERE conversation_id = $1 AND user_id = $2)",
		conversationId,
		userId,
	).Scan(&exists)

	return err == nil && exists
}

func (db *PgConverseRepository) CreateMessage(msg Message) error {
	_, err := db.conn.Exec(
		"INSERT INTO messages (id, conversation_id, sender_id, content, attachments, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6)",
		msg.Id,
		msg.ConversationId,
		msg.SenderId,
		msg.Content,
		msg.Attachments,
		msg.CreatedAt,
	)

	return err
}

func (db *PgConverseRepository) GetMessages(conversationId string, before time.Time, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if before.IsZero() {
		before = time.Now().UTC()
	}

	rows, err := db.conn.Query(
		"SELECT id, conversation_id, sender_id, content, attachments, created_at "+
			"FROM messages WHERE conversation_id = $1 AND created_at < $2 "+
			"ORDER BY created_at DESC LIMIT $3",
		conversationId,
		before,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Id, &m.ConversationId, &m.SenderId, &m.Content, &m.Attachments, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (db *PgConverseRepository) TouchConversation(conversationId string, at time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE conversations SET updated_at = $2 WHERE id = $1",
		conversationId,
		at,
	)

	return err
}

func (db *PgConverseRepository) getParticipants(conversationId string) ([]User, error) {
	rows, err := db.conn.Query(participantsQuery, conversationId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Id, &u.Email, &u.DisplayName, &u.AvatarUrl, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *PgConverseRepository) getLastMessage(conversationId string) (*Message, error) {
	var m Message
	err := db.conn.QueryRow(lastMessageQuery, conversationId).
		Scan(&m.Id, &m.ConversationId, &m.SenderId, &m.Content, &m.Attachments, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &m, nil
}
