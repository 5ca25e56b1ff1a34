package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iudanet/gophstorage/internal/inventory"
	"github.com/iudanet/gophstorage/internal/models"
	"github.com/iudanet/gophstorage/internal/server/storage"
)

// queryer is implemented by *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// itemTable describes a contents table and the table owning the slots
type itemTable struct {
	notFound error
	parent   string
	table    string
	key      string
}

var (
	containerItems = itemTable{
		parent:   "containers",
		table:    "container_items",
		key:      "container_id",
		notFound: storage.ErrContainerNotFound,
	}
	playerItems = itemTable{
		parent:   "players",
		table:    "player_items",
		key:      "player_id",
		notFound: storage.ErrPlayerNotFound,
	}
)

func (t itemTable) slots(ctx context.Context, q queryer, owner string) (int, error) {
	var slots int
	err := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT slots FROM %s WHERE id = ?`, t.parent), owner).Scan(&slots)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, t.notFound
		}
		return 0, fmt.Errorf("failed to get %s slots: %w", t.parent, err)
	}
	return slots, nil
}

func (t itemTable) load(ctx context.Context, q queryer, owner string) (map[models.ItemIdentity]int, error) {
	query := fmt.Sprintf(`
		SELECT prefab_id, quality, variant, amount
		FROM %s
		WHERE %s = ? AND amount > 0
	`, t.table, t.key)

	rows, err := q.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.table, err)
	}
	defer rows.Close()

	items := make(map[models.ItemIdentity]int)
	for rows.Next() {
		var (
			id     models.ItemIdentity
			amount int
		)
		if err := rows.Scan(&id.PrefabID, &id.Quality, &id.Variant, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", t.table, err)
		}
		items[id] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", t.table, err)
	}
	return items, nil
}

// set writes the exact amount; zero deletes the row
func (t itemTable) set(ctx context.Context, q queryer, owner string, id models.ItemIdentity, amount int) error {
	if amount <= 0 {
		query := fmt.Sprintf(`
			DELETE FROM %s
			WHERE %s = ? AND prefab_id = ? AND quality = ? AND variant = ?
		`, t.table, t.key)
		if _, err := q.ExecContext(ctx, query, owner, id.PrefabID, id.Quality, id.Variant); err != nil {
			return fmt.Errorf("failed to delete %s row: %w", t.table, err)
		}
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, prefab_id, quality, variant, amount)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (%s, prefab_id, quality, variant) DO UPDATE SET amount = excluded.amount
	`, t.table, t.key, t.key)
	if _, err := q.ExecContext(ctx, query, owner, id.PrefabID, id.Quality, id.Variant, amount); err != nil {
		return fmt.Errorf("failed to upsert %s row: %w", t.table, err)
	}
	return nil
}

// change applies the signed delta returned by fn to the amount of id in one
// transaction and returns that delta.
func (s *Storage) change(ctx context.Context, t itemTable, owner string, id models.ItemIdentity,
	fn func(items map[models.ItemIdentity]int, slots int) int,
) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	slots, err := t.slots(ctx, tx, owner)
	if err != nil {
		return 0, err
	}
	items, err := t.load(ctx, tx, owner)
	if err != nil {
		return 0, err
	}

	delta := fn(items, slots)
	if delta == 0 {
		return 0, nil
	}
	if err := t.set(ctx, tx, owner, id, items[id]+delta); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return delta, nil
}

func (s *Storage) removeItems(ctx context.Context, t itemTable, owner string, id models.ItemIdentity, amount int) (int, error) {
	if amount <= 0 {
		return 0, storage.ErrInvalidAmount
	}
	delta, err := s.change(ctx, t, owner, id, func(items map[models.ItemIdentity]int, _ int) int {
		return -min(amount, items[id])
	})
	return -delta, err
}

func (s *Storage) addItems(ctx context.Context, t itemTable, owner string, id models.ItemIdentity, amount int) (int, error) {
	if amount <= 0 {
		return 0, storage.ErrInvalidAmount
	}
	return s.change(ctx, t, owner, id, func(items map[models.ItemIdentity]int, slots int) int {
		return min(amount, inventory.FreeUnits(items, slots, id, s.catalog.EffectiveStack))
	})
}
