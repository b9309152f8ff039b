package assistant

import (
	"context"
	"fmt"

	"hijrachat/internal/models"

	"go.uber.org/zap"
)

// Signup creates a confirmed account and its profile, returning the new user id.
// A failed profile insert is reported but the account is kept.
func (s *Service) Signup(ctx context.Context, email, password string) (string, error) {
	user, err := s.identity.CreateUser(ctx, email, password)
	if err != nil {
		return "", &AccountError{Err: err}
	}
	if err := s.store.CreateProfile(ctx, models.Profile{UserID: user.ID, DisplayName: email}); err != nil {
		s.log.WithContext(ctx).Warn("create profile failed", zap.String("user_id", user.ID), zap.Error(err))
		return "", &AccountError{Err: err}
	}
	return user.ID, nil
}

// Login signs the user in and returns the provider's session.
func (s *Service) Login(ctx context.Context, email, password string) (*models.AuthSession, error) {
	session, err := s.identity.SignIn(ctx, email, password)
	if err != nil {
		return nil, &AccountError{Err: err}
	}
	return session, nil
}

// HasActiveSubscription reports whether exactly one active subscription row exists.
// Lookup failures count as not subscribed.
func (s *Service) HasActiveSubscription(ctx context.Context, userID string) bool {
	subs, err := s.store.ListSubscriptions(ctx, userID, models.SubscriptionActive, 2)
	if err != nil {
		s.log.WithContext(ctx).Warn("subscription lookup failed", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return len(subs) == 1
}

// Subscription returns the user's subscription row, nil when there is none.
func (s *Service) Subscription(ctx context.Context, userID string) (*models.Subscription, error) {
	subs, err := s.store.ListSubscriptions(ctx, userID, "", 2)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	switch len(subs) {
	case 0:
		return nil, nil
	case 1:
		return &subs[0], nil
	default:
		return nil, ErrMultipleRows
	}
}
