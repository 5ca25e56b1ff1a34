package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/iudanet/gophstorage/internal/server/storage"
)

// Drop implements storage.WorldDropper by recording the drop
func (s *Storage) Drop(ctx context.Context, drop storage.WorldDrop) error {
	if drop.Amount <= 0 {
		return storage.ErrInvalidAmount
	}

	query := `
		INSERT INTO world_drops (
			terminal_id, player_id, prefab_id, quality, variant,
			amount, reason, x, y, z, dropped_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		drop.TerminalID,
		drop.PlayerID,
		drop.Identity.PrefabID,
		drop.Identity.Quality,
		drop.Identity.Variant,
		drop.Amount,
		drop.Reason,
		drop.Position.X,
		drop.Position.Y,
		drop.Position.Z,
		drop.DroppedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert world drop: %w", err)
	}
	return nil
}

// Drops returns recorded drops, oldest first. An empty terminalID lists all.
func (s *Storage) Drops(ctx context.Context, terminalID string) ([]storage.WorldDrop, error) {
	query := `
		SELECT terminal_id, player_id, prefab_id, quality, variant,
		       amount, reason, x, y, z, dropped_at
		FROM world_drops
		WHERE ? = '' OR terminal_id = ?
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, terminalID, terminalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query world drops: %w", err)
	}
	defer rows.Close()

	var drops []storage.WorldDrop
	for rows.Next() {
		var (
			d         storage.WorldDrop
			droppedAt int64
		)
		err := rows.Scan(
			&d.TerminalID,
			&d.PlayerID,
			&d.Identity.PrefabID,
			&d.Identity.Quality,
			&d.Identity.Variant,
			&d.Amount,
			&d.Reason,
			&d.Position.X,
			&d.Position.Y,
			&d.Position.Z,
			&droppedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan world drop: %w", err)
		}
		d.DroppedAt = time.UnixMilli(droppedAt).UTC()
		drops = append(drops, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating world drops: %w", err)
	}
	return drops, nil
}
