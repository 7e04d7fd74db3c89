package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role values stored alongside each message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one immutable turn of a conversation session.
type Message struct {
	ID        uuid.UUID
	TenantID  string
	SessionID string
	Role      string
	Content   string
	Channel   string
	CreatedAt time.Time
}

// Store persists and reads back conversation turns. Messages are never
// updated or deleted; ordering is by creation time.
type Store interface {
	Append(ctx context.Context, msg Message) error
	Recent(ctx context.Context, tenantID, sessionID string, limit int) ([]Message, error)
	Count(ctx context.Context, tenantID, sessionID string) (int, error)
}

// PostgresStore keeps conversation history in PostgreSQL for long-term
// retention and admin review.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a history store. Returns nil when db is nil so
// callers can treat persistence as optional.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	if db == nil {
		return nil
	}
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

// Append inserts one message row. A zero ID or timestamp is filled in here.
func (s *PostgresStore) Append(ctx context.Context, msg Message) error {
	if s == nil || s.db == nil {
		return nil
	}
	if msg.TenantID == "" || msg.SessionID == "" {
		return fmt.Errorf("history: tenant_id and session_id are required")
	}

	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (
			id, tenant_id, session_id, role, content, channel, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, msg.ID, msg.TenantID, msg.SessionID, msg.Role, msg.Content, msg.Channel, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("history: failed to insert message: %w", err)
	}
	return nil
}

// Recent returns the last limit messages of the session in chronological
// order. limit <= 0 means no limit.
func (s *PostgresStore) Recent(ctx context.Context, tenantID, sessionID string, limit int) ([]Message, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}

	query := `
		SELECT id, tenant_id, session_id, role, content, channel, created_at
		FROM (
			SELECT id, tenant_id, session_id, role, content, channel, created_at
			FROM conversation_messages
			WHERE tenant_id = $1 AND session_id = $2
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		) tail
		ORDER BY created_at ASC, id ASC
	`
	var lim any = limit
	if limit <= 0 {
		lim = nil // LIMIT NULL, i.e. no limit
	}

	rows, err := s.db.QueryContext(ctx, query, tenantID, sessionID, lim)
	if err != nil {
		return nil, fmt.Errorf("history: failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.TenantID, &m.SessionID, &m.Role, &m.Content, &m.Channel, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: failed to read messages: %w", err)
	}
	return messages, nil
}

// Count returns the total number of turns stored for a session.
func (s *PostgresStore) Count(ctx context.Context, tenantID, sessionID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM conversation_messages
		WHERE tenant_id = $1 AND session_id = $2
	`, tenantID, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("history: failed to count messages: %w", err)
	}
	return n, nil
}
