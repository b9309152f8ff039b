package supabase

import (
	"context"
	"errors"
	"net/http"

	"hijrachat/internal/models"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go/types"
)

// CreateUser creates a confirmed account through the admin endpoint.
func (c *Client) CreateUser(ctx context.Context, email, password string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := c.admin.AdminCreateUser(types.AdminCreateUserRequest{
		Email:        email,
		Password:     &password,
		EmailConfirm: true,
	})
	if err != nil {
		return nil, apiError(err)
	}
	if resp.ID == uuid.Nil {
		return nil, errors.New("identity provider returned no user")
	}
	user := toUser(resp.User)
	return &user, nil
}

// SignIn exchanges email and password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*models.AuthSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := c.auth.SignInWithEmailPassword(email, password)
	if err != nil {
		if errors.Is(err, types.ErrInvalidTokenRequest) {
			return nil, &Error{Status: http.StatusBadRequest, Message: "missing email or phone"}
		}
		return nil, apiError(err)
	}
	return &models.AuthSession{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresIn:    resp.ExpiresIn,
		ExpiresAt:    resp.ExpiresAt,
		User:         toUser(resp.User),
	}, nil
}

// UserFromToken returns the account owning the access token.
func (c *Client) UserFromToken(ctx context.Context, token string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := c.auth.WithToken(token).GetUser()
	if err != nil {
		return nil, apiError(err)
	}
	if resp.ID == uuid.Nil {
		return nil, errors.New("identity provider returned no user")
	}
	user := toUser(resp.User)
	return &user, nil
}

func toUser(u types.User) models.User {
	return models.User{
		ID:               u.ID.String(),
		Aud:              u.Aud,
		Role:             u.Role,
		Email:            u.Email,
		EmailConfirmedAt: u.EmailConfirmedAt,
		LastSignInAt:     u.LastSignInAt,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}
