package models

import "time"

// User is an account owned by the identity provider.
type User struct {
	ID               string     `json:"id"`
	Aud              string     `json:"aud,omitempty"`
	Role             string     `json:"role,omitempty"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	LastSignInAt     *time.Time `json:"last_sign_in_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Profile holds the public display data created at signup.
type Profile struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}
