package assistant

import (
	"context"
	"errors"

	"hijrachat/internal/auth"
	"hijrachat/internal/logger"
	"hijrachat/internal/models"
	"hijrachat/internal/service/ai"
)

var (
	ErrMissingFields        = errors.New("missing required fields")
	ErrSubscriptionRequired = errors.New("active subscription required")
	ErrMultipleRows         = errors.New("more than one row returned")
)

// Store persists profiles, subscriptions and chat history.
type Store interface {
	CreateProfile(ctx context.Context, profile models.Profile) error
	ListSubscriptions(ctx context.Context, userID, status string, limit int) ([]models.Subscription, error)
	RecentMessages(ctx context.Context, userID, conversationID string, limit int) ([]models.ChatMessage, error)
	History(ctx context.Context, userID, conversationID string) ([]models.ChatMessage, error)
	AppendMessages(ctx context.Context, msgs ...models.ChatMessage) error
}

// AccountError is a signup or login failure whose message can be shown to the client.
type AccountError struct {
	Err error
}

func (e *AccountError) Error() string {
	if e == nil || e.Err == nil {
		return "account error"
	}
	return e.Err.Error()
}

func (e *AccountError) Unwrap() error {
	return e.Err
}

// Service implements the account, entitlement and chat operations.
type Service struct {
	store     Store
	identity  auth.Identity
	generator ai.Generator
	log       *logger.Logger
}

// NewService wires the collaborators. They are created once at startup and shared by all requests.
func NewService(store Store, identity auth.Identity, generator ai.Generator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{store: store, identity: identity, generator: generator, log: log}
}
