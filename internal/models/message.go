package models

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one append-only row of a conversation's history.
type ChatMessage struct {
	ID             int64     `json:"-"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Message        string    `json:"message"`
	Country        string    `json:"country,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
