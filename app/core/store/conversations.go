package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type Conversation struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

type Message struct {
	Seq            int64  `json:"seq"`
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	CreatedAt      int64  `json:"created_at"`
}

// MessageDraft is a message to append; ids and timestamps are assigned at
// commit time.
type MessageDraft struct {
	Role    string
	Content string
}

// ConversationLog is an append-only per-user message history. Messages are
// never mutated or deleted; replay order is insertion order.
type ConversationLog struct {
	db *DB
}

func NewConversationLog(database *DB) *ConversationLog {
	return &ConversationLog{db: database}
}

func (l *ConversationLog) Create(ctx context.Context, userID string) (Conversation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Conversation{}, fmt.Errorf("%w: user_id is required", ErrInvalidArgument)
	}

	now := time.Now().UnixNano()
	c := Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	query := `INSERT INTO conversations (id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)`
	if _, err := l.db.Conn().ExecContext(ctx, query, c.ID, c.UserID, c.CreatedAt, c.UpdatedAt); err != nil {
		return Conversation{}, err
	}
	return c, nil
}

func (l *ConversationLog) Get(ctx context.Context, userID, conversationID string) (Conversation, error) {
	query := `SELECT id, user_id, created_at, updated_at FROM conversations WHERE id = ? AND user_id = ?`
	var c Conversation
	err := l.db.Conn().QueryRowContext(ctx, query, strings.TrimSpace(conversationID), strings.TrimSpace(userID)).Scan(
		&c.ID,
		&c.UserID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return Conversation{}, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}
	if err != nil {
		return Conversation{}, err
	}
	return c, nil
}

// AppendTurn commits all messages of one turn in a single transaction so a
// concurrent reader never observes a half-written turn.
func (l *ConversationLog) AppendTurn(ctx context.Context, conversationID string, drafts []MessageDraft) ([]Message, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversation_id is required", ErrInvalidArgument)
	}
	if len(drafts) == 0 {
		return nil, fmt.Errorf("%w: at least one message is required", ErrInvalidArgument)
	}
	for _, d := range drafts {
		switch d.Role {
		case RoleUser, RoleAssistant, RoleTool:
		default:
			return nil, fmt.Errorf("%w: invalid role %q", ErrInvalidArgument, d.Role)
		}
	}

	tx, err := l.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UnixNano()
	insert := `INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`
	appended := make([]Message, 0, len(drafts))
	for _, d := range drafts {
		m := Message{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			Role:           d.Role,
			Content:        d.Content,
			CreatedAt:      now,
		}
		res, err := tx.ExecContext(ctx, insert, m.ID, m.ConversationID, m.Role, m.Content, m.CreatedAt)
		if err != nil {
			return nil, err
		}
		if m.Seq, err = res.LastInsertId(); err != nil {
			return nil, err
		}
		appended = append(appended, m)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, now, conversationID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return appended, nil
}

// Recent returns the last limit messages in replay order.
func (l *ConversationLog) Recent(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT seq, id, conversation_id, role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY seq DESC LIMIT ?`
	rows, err := l.db.Conn().QueryContext(ctx, query, strings.TrimSpace(conversationID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Seq, &m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// reverse to chronological order
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}
