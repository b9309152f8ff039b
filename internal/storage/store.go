package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"hijrachat/internal/models"
)

// SQLStore keeps profiles, subscriptions and chat history in a local SQL database.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLStore wraps an opened and migrated database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// CreateProfile inserts the profile row created at signup.
func (s *SQLStore) CreateProfile(ctx context.Context, profile models.Profile) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, display_name) VALUES (?, ?)`,
		profile.UserID, profile.DisplayName,
	); err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// ListSubscriptions returns up to limit subscription rows of the user, optionally filtered by status.
func (s *SQLStore) ListSubscriptions(ctx context.Context, userID, status string, limit int) ([]models.Subscription, error) {
	query := `SELECT user_id, status, created_at FROM subscriptions WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		var (
			sub       models.Subscription
			createdAt time.Time
		)
		if err := rows.Scan(&sub.UserID, &sub.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		sub.CreatedAt = &createdAt
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// SetSubscription sets the status of the user's subscription, creating the row when missing.
func (s *SQLStore) SetSubscription(ctx context.Context, userID, status string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("user_id is required")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE subscriptions SET status = ? WHERE user_id = ?`, status, userID)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected > 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, status, created_at) VALUES (?, ?, ?)`,
		userID, status, s.now(),
	); err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// ActivateSubscriptions gives the accounts with these emails an active subscription.
// Emails without an account are returned and left untouched.
func (s *SQLStore) ActivateSubscriptions(ctx context.Context, emails []string) ([]string, error) {
	var missing []string
	for _, email := range emails {
		var userID string
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)),
		).Scan(&userID)
		if errors.Is(err, sql.ErrNoRows) {
			missing = append(missing, email)
			continue
		}
		if err != nil {
			return missing, fmt.Errorf("lookup user %s: %w", email, err)
		}
		if err := s.SetSubscription(ctx, userID, models.SubscriptionActive); err != nil {
			return missing, err
		}
	}
	return missing, nil
}

// RecentMessages returns the newest limit messages of a conversation, oldest first.
func (s *SQLStore) RecentMessages(ctx context.Context, userID, conversationID string, limit int) ([]models.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, conversation_id, role, message, country, created_at FROM chat_history
		 WHERE user_id = ? AND conversation_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	defer rows.Close()

	desc, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(desc)-1; i < j; i, j = i+1, j-1 {
		desc[i], desc[j] = desc[j], desc[i]
	}
	return desc, nil
}

// History returns every message of a conversation in creation order.
func (s *SQLStore) History(ctx context.Context, userID, conversationID string) ([]models.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, conversation_id, role, message, country, created_at FROM chat_history
		 WHERE user_id = ? AND conversation_id = ?
		 ORDER BY created_at ASC, id ASC`,
		userID, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// AppendMessages writes all messages with a single multi-row insert.
func (s *SQLStore) AppendMessages(ctx context.Context, msgs ...models.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	now := s.now()
	placeholders := make([]string, 0, len(msgs))
	args := make([]any, 0, len(msgs)*6)
	for _, m := range msgs {
		createdAt := m.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		var country sql.NullString
		if m.Country != "" {
			country = sql.NullString{String: m.Country, Valid: true}
		}
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?)")
		args = append(args, m.UserID, m.ConversationID, string(m.Role), m.Message, country, createdAt)
	}
	query := `INSERT INTO chat_history (user_id, conversation_id, role, message, country, created_at) VALUES ` +
		strings.Join(placeholders, ", ")
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert chat history: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	for rows.Next() {
		var (
			m       models.ChatMessage
			role    string
			country sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.ConversationID, &role, &m.Message, &country, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = models.Role(role)
		m.Country = country.String
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
