package models

import (
	"encoding/json"
	"time"
)

// SubscriptionActive is the only status that grants access to chat.
const SubscriptionActive = "active"

// Subscription is the entitlement record of a user. Row keeps the collaborator's
// full record when it was loaded with every column, and is what gets serialized then.
type Subscription struct {
	UserID    string         `json:"user_id"`
	Status    string         `json:"status"`
	CreatedAt *time.Time     `json:"created_at,omitempty"`
	Row       map[string]any `json:"-"`
}

// Active reports whether the subscription grants entitlement.
func (s *Subscription) Active() bool {
	return s != nil && s.Status == SubscriptionActive
}

func (s Subscription) MarshalJSON() ([]byte, error) {
	if s.Row != nil {
		return json.Marshal(s.Row)
	}
	type plain Subscription
	return json.Marshal(plain(s))
}
