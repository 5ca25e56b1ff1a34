package storage

import (
	"context"
)

// ProfileStorage keeps the identity the client connects with
type ProfileStorage interface {
	// SaveProfile stores the profile, replacing the previous one
	SaveProfile(ctx context.Context, p *Profile) error

	// GetProfile returns ErrProfileNotFound if nobody logged in
	GetProfile(ctx context.Context) (*Profile, error)

	// DeleteProfile removes the stored profile (logout)
	DeleteProfile(ctx context.Context) error

	// IsAuthenticated checks that a profile exists and its token is not expired
	IsAuthenticated(ctx context.Context) (bool, error)
}

// Profile is the logged in player and the token issued by the server
type Profile struct {
	PlayerID    string `json:"player_id"`
	ServerURL   string `json:"server_url"`
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}
