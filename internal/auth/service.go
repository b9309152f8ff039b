package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"hijrachat/internal/models"
	"hijrachat/internal/redis"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Identity creates accounts, signs them in and resolves bearer tokens.
type Identity interface {
	CreateUser(ctx context.Context, email, password string) (*models.User, error)
	SignIn(ctx context.Context, email, password string) (*models.AuthSession, error)
	UserFromToken(ctx context.Context, token string) (*models.User, error)
}

// Messages mirror the hosted identity provider so clients see the same text either way.
var (
	ErrInvalidEmail       = errors.New("Unable to validate email address: invalid format")
	ErrWeakPassword       = errors.New("Password should be at least 6 characters")
	ErrUserExists         = errors.New("A user with this email address has already been registered")
	ErrInvalidCredentials = errors.New("Invalid login credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
)

const (
	minPasswordLength = 6
	audience          = "authenticated"
	redisTokenPrefix  = "auth:token:"
)

// Service is the local identity provider: bcrypt-hashed users and opaque bearer tokens.
type Service struct {
	db       *sql.DB
	cache    *redis.Client
	tokenTTL time.Duration
}

// NewService constructs an auth service with the supplied token lifetime.
// cache is optional; when set, tokens are mirrored to redis and looked up there first.
func NewService(db *sql.DB, cache *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{db: db, cache: cache, tokenTTL: ttl}
}

// CreateUser registers a confirmed account.
func (s *Service) CreateUser(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, email).Scan(&exists); err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if exists > 0 {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		id, email, string(hash), now,
	); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return newUser(id, email, now, nil), nil
}

// SignIn verifies the password and issues a new bearer token.
func (s *Service) SignIn(ctx context.Context, email, password string) (*models.AuthSession, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var (
		id        string
		hash      string
		createdAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password_hash, created_at FROM users WHERE email = ?`, email,
	).Scan(&id, &hash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.IssueToken(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET last_sign_in_at = ? WHERE id = ?`, now, id); err != nil {
		return nil, fmt.Errorf("update last sign in: %w", err)
	}

	return &models.AuthSession{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(s.tokenTTL.Seconds()),
		ExpiresAt:   expiresAt.Unix(),
		User:        *newUser(id, email, createdAt, &now),
	}, nil
}

// UserFromToken resolves a bearer token to its account.
func (s *Service) UserFromToken(ctx context.Context, token string) (*models.User, error) {
	userID, err := s.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	var (
		email      string
		createdAt  time.Time
		lastSignIn sql.NullTime
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT email, created_at, last_sign_in_at FROM users WHERE id = ?`, userID,
	).Scan(&email, &createdAt, &lastSignIn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	var last *time.Time
	if lastSignIn.Valid {
		last = &lastSignIn.Time
	}
	return newUser(userID, email, createdAt, last), nil
}

// IssueToken mints a new random token for the user and persists it.
func (s *Service) IssueToken(ctx context.Context, userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("invalid user id")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	for i := 0; i < 5; i++ {
		token, err := generateToken()
		if err != nil {
			return "", time.Time{}, err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO user_tokens (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			token, userID, now, expiresAt,
		)
		if err == nil {
			if s.cache != nil {
				_ = s.cache.Set(ctx, redisTokenPrefix+token, userID, s.tokenTTL)
			}
			return token, expiresAt, nil
		}
	}
	return "", time.Time{}, errors.New("could not issue token")
}

// ValidateToken verifies the token exists and has not expired, returning the user id.
func (s *Service) ValidateToken(ctx context.Context, authToken string) (string, error) {
	if authToken == "" {
		return "", ErrInvalidToken
	}
	if s.cache != nil {
		if userID, err := s.cache.Get(ctx, redisTokenPrefix+authToken); err == nil && userID != "" {
			return userID, nil
		}
	}
	var (
		userID  string
		expires time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM user_tokens WHERE token = ?`, authToken,
	).Scan(&userID, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("lookup token: %w", err)
	}
	if time.Now().UTC().After(expires) {
		_ = s.RevokeToken(ctx, authToken)
		return "", ErrTokenExpired
	}
	return userID, nil
}

// RevokeToken deletes a single token.
func (s *Service) RevokeToken(ctx context.Context, authToken string) error {
	if authToken == "" {
		return nil
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, redisTokenPrefix+authToken)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, authToken); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func newUser(id, email string, createdAt time.Time, lastSignIn *time.Time) *models.User {
	confirmed := createdAt
	updated := createdAt
	if lastSignIn != nil {
		updated = *lastSignIn
	}
	return &models.User{
		ID:               id,
		Aud:              audience,
		Role:             audience,
		Email:            email,
		EmailConfirmedAt: &confirmed,
		LastSignInAt:     lastSignIn,
		CreatedAt:        createdAt,
		UpdatedAt:        updated,
	}
}
