package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"hijrachat/internal/models"

	"github.com/supabase-community/postgrest-go"
)

const (
	profilesTable      = "profiles"
	subscriptionsTable = "subscriptions"
	chatHistoryTable   = "chat_history"
)

// CreateProfile inserts the profile row created at signup.
func (c *Client) CreateProfile(ctx context.Context, profile models.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := c.rest.From(profilesTable).
		Insert([]models.Profile{profile}, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// ListSubscriptions returns up to limit subscription rows of the user with every column kept.
func (c *Client) ListSubscriptions(ctx context.Context, userID, status string, limit int) ([]models.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := c.rest.From(subscriptionsTable).
		Select("*", "", false).
		Eq("user_id", userID)
	if status != "" {
		query = query.Eq("status", status)
	}
	if limit > 0 {
		query = query.Limit(limit, "")
	}

	var rows []map[string]any
	if _, err := query.ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	subs := make([]models.Subscription, 0, len(rows))
	for _, row := range rows {
		sub := models.Subscription{Row: row}
		sub.UserID, _ = row["user_id"].(string)
		sub.Status, _ = row["status"].(string)
		if raw, ok := row["created_at"].(string); ok {
			if ts, err := parseTimestamp(raw); err == nil {
				sub.CreatedAt = &ts
			}
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// RecentMessages returns the newest limit messages of a conversation, oldest first.
func (c *Client) RecentMessages(ctx context.Context, userID, conversationID string, limit int) ([]models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []messageRow
	_, err := c.rest.From(chatHistoryTable).
		Select("role, message, created_at", "", false).
		Eq("user_id", userID).
		Eq("conversation_id", conversationID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}

	messages := make([]models.ChatMessage, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		messages = append(messages, rows[i].toMessage(userID, conversationID))
	}
	return messages, nil
}

// History returns every message of a conversation in creation order.
func (c *Client) History(ctx context.Context, userID, conversationID string) ([]models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []messageRow
	_, err := c.rest.From(chatHistoryTable).
		Select("role, message, created_at", "", false).
		Eq("user_id", userID).
		Eq("conversation_id", conversationID).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	messages := make([]models.ChatMessage, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.toMessage(userID, conversationID))
	}
	return messages, nil
}

// AppendMessages inserts all messages in one request. Rows without CreatedAt get the table default.
func (c *Client) AppendMessages(ctx context.Context, msgs ...models.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rows := make([]insertRow, 0, len(msgs))
	for _, m := range msgs {
		row := insertRow{
			UserID:         m.UserID,
			ConversationID: m.ConversationID,
			Role:           string(m.Role),
			Message:        m.Message,
			Country:        m.Country,
		}
		if !m.CreatedAt.IsZero() {
			createdAt := m.CreatedAt.UTC()
			row.CreatedAt = &createdAt
		}
		rows = append(rows, row)
	}
	if _, _, err := c.rest.From(chatHistoryTable).Insert(rows, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("insert chat history: %w", err)
	}
	return nil
}

type insertRow struct {
	UserID         string     `json:"user_id"`
	ConversationID string     `json:"conversation_id"`
	Role           string     `json:"role"`
	Message        string     `json:"message"`
	Country        string     `json:"country,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
}

type messageRow struct {
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	CreatedAt timestamp `json:"created_at"`
}

func (r messageRow) toMessage(userID, conversationID string) models.ChatMessage {
	return models.ChatMessage{
		UserID:         userID,
		ConversationID: conversationID,
		Role:           models.Role(r.Role),
		Message:        r.Message,
		CreatedAt:      time.Time(r.CreatedAt),
	}
}

// timestamp accepts both timestamptz and timestamp renderings of PostgREST.
type timestamp time.Time

func (t *timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*t = timestamp(time.Time{})
		return nil
	}
	parsed, err := parseTimestamp(raw)
	if err != nil {
		return err
	}
	*t = timestamp(parsed)
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
