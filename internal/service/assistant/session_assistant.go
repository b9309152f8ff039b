package assistant

import (
	"context"
	"fmt"
	"time"

	"hijrachat/internal/models"

	"go.uber.org/zap"
)

// replyOffset orders the reply after the question when both rows are ordered by created_at alone.
const replyOffset = time.Microsecond

// ChatRequest is one user turn of a conversation.
type ChatRequest struct {
	Message        string
	UserID         string
	ConversationID string
	Country        string
}

// Chat answers a message of a subscribed user and records both sides of the exchange.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if req.UserID == "" {
		return "", ErrMissingFields
	}
	if !s.HasActiveSubscription(ctx, req.UserID) {
		return "", ErrSubscriptionRequired
	}
	if req.Message == "" || req.ConversationID == "" {
		return "", ErrMissingFields
	}

	history, err := s.store.RecentMessages(ctx, req.UserID, req.ConversationID, HistoryLimit)
	if err != nil {
		return "", fmt.Errorf("load recent messages: %w", err)
	}

	reply, err := s.generator.Generate(ctx, BuildPrompt(history, req.Message))
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	if reply == "" {
		s.log.WithContext(ctx).Warn("model returned no text, using fallback reply",
			zap.String("conversation_id", req.ConversationID))
		reply = FallbackReply
	}

	now := time.Now().UTC()
	err = s.store.AppendMessages(ctx,
		models.ChatMessage{
			UserID:         req.UserID,
			ConversationID: req.ConversationID,
			Role:           models.RoleUser,
			Message:        req.Message,
			Country:        req.Country,
			CreatedAt:      now,
		},
		models.ChatMessage{
			UserID:         req.UserID,
			ConversationID: req.ConversationID,
			Role:           models.RoleAssistant,
			Message:        reply,
			Country:        req.Country,
			CreatedAt:      now.Add(replyOffset),
		},
	)
	if err != nil {
		return "", fmt.Errorf("save chat history: %w", err)
	}
	return reply, nil
}

// History returns every message of the conversation, oldest first.
func (s *Service) History(ctx context.Context, userID, conversationID string) ([]models.ChatMessage, error) {
	history, err := s.store.History(ctx, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return history, nil
}
