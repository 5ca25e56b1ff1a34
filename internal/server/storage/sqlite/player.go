package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/gophstorage/internal/models"
	"github.com/iudanet/gophstorage/internal/server/storage"
)

// DefaultPlayerSlots is used when a seed player has no slot count
const DefaultPlayerSlots = 32

// CreatePlayer creates a player bag. Items beyond the bag capacity are discarded.
func (s *Storage) CreatePlayer(ctx context.Context, spec storage.PlayerSpec) error {
	items, err := storage.ParseSeedItems(spec.Items)
	if err != nil {
		return err
	}

	slots := spec.Slots
	if slots <= 0 {
		slots = DefaultPlayerSlots
	}

	query := `
		INSERT INTO players (id, slots, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET slots = excluded.slots
	`
	if _, err := s.db.ExecContext(ctx, query, spec.ID, slots, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to insert player: %w", err)
	}

	for id, amount := range items {
		if _, err := s.AddToPlayer(ctx, spec.ID, id, amount); err != nil {
			return err
		}
	}
	return nil
}

// HasPlayer implements storage.PlayerInventory
func (s *Storage) HasPlayer(ctx context.Context, playerID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM players WHERE id = ?`, playerID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get player: %w", err)
	}
	return true, nil
}

// RemoveFromPlayer implements storage.PlayerInventory
func (s *Storage) RemoveFromPlayer(ctx context.Context, playerID string, id models.ItemIdentity, amount int) (int, error) {
	return s.removeItems(ctx, playerItems, playerID, id, amount)
}

// AddToPlayer implements storage.PlayerInventory
func (s *Storage) AddToPlayer(ctx context.Context, playerID string, id models.ItemIdentity, amount int) (int, error) {
	return s.addItems(ctx, playerItems, playerID, id, amount)
}

// PlayerItems returns the contents of a player's bag
func (s *Storage) PlayerItems(ctx context.Context, playerID string) (map[models.ItemIdentity]int, error) {
	if _, err := playerItems.slots(ctx, s.db, playerID); err != nil {
		return nil, err
	}
	return playerItems.load(ctx, s.db, playerID)
}
