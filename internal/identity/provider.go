// Package identity consumes the external session/auth service. The core never
// reads ambient session state: every operation receives the authenticated
// caller id resolved here as an explicit parameter.
package identity

import (
	"context"
	"errors"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("profile not found")
)

// Profile is the public slice of a user record.
type Profile struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Provider resolves bearer tokens to user ids and looks up profiles.
type Provider interface {
	UserIDForToken(ctx context.Context, token string) (string, error)
	GetProfile(ctx context.Context, userID string) (*Profile, error)
}
