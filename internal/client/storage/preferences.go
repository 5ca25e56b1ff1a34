package storage

import (
	"context"

	"github.com/iudanet/gophstorage/internal/models"
)

//go:generate moq -out preferences_mock.go . PreferenceStorage

// PreferenceStorage keeps per-terminal client state between runs
type PreferenceStorage interface {
	// SaveView stores view preferences for a terminal
	SaveView(ctx context.Context, terminalID string, prefs *ViewPreferences) error

	// GetView returns ErrPreferencesNotFound when nothing was saved
	GetView(ctx context.Context, terminalID string) (*ViewPreferences, error)

	// SaveLastRevision remembers the last revision the player has seen
	SaveLastRevision(ctx context.Context, terminalID string, revision int64) error

	// GetLastRevision returns 0 if the terminal was never viewed
	GetLastRevision(ctx context.Context, terminalID string) (int64, error)
}

// ViewPreferences is how the player likes a terminal laid out
type ViewPreferences struct {
	Filter  string  `json:"filter"`
	Columns int     `json:"columns"`
	Radius  float64 `json:"radius"`
}

// BagStorage persists the local inventory mirror of a player
type BagStorage interface {
	SaveBag(ctx context.Context, playerID string, items map[models.ItemIdentity]int) error
	// GetBag returns an empty map for an unknown player
	GetBag(ctx context.Context, playerID string) (map[models.ItemIdentity]int, error)
}
