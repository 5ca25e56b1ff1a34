package sqlite

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iudanet/gophstorage/internal/inventory"
	"github.com/iudanet/gophstorage/internal/models"
	"github.com/iudanet/gophstorage/internal/server/storage"
)

// CreateContainer creates or replaces a container together with its contents
func (s *Storage) CreateContainer(ctx context.Context, spec storage.ContainerSpec) error {
	items, err := storage.ParseSeedItems(spec.Items)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO containers (id, x, y, z, slots, owner, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			x = excluded.x, y = excluded.y, z = excluded.z,
			slots = excluded.slots, owner = excluded.owner
	`
	_, err = tx.ExecContext(ctx, query,
		spec.ID,
		spec.Position.X,
		spec.Position.Y,
		spec.Position.Z,
		spec.Slots,
		spec.Owner,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert container: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM container_items WHERE container_id = ?`, spec.ID); err != nil {
		return fmt.Errorf("failed to clear container items: %w", err)
	}
	for id, amount := range items {
		if err := containerItems.set(ctx, tx, spec.ID, id, amount); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RemoveContainer destroys a container with its contents
func (s *Storage) RemoveContainer(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM containers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete container: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrContainerNotFound
	}
	return nil
}

// NearbyContainers implements storage.Scanner
func (s *Storage) NearbyContainers(ctx context.Context, anchor models.Vec3, radius float64, exclude string) ([]storage.Source, error) {
	// индекс по x отсекает дальние контейнеры, точное расстояние считается ниже
	query := `
		SELECT id, x, y, z, slots, owner
		FROM containers
		WHERE x BETWEEN ? AND ?
	`
	rows, err := s.db.QueryContext(ctx, query, anchor.X-radius, anchor.X+radius)
	if err != nil {
		return nil, fmt.Errorf("failed to query containers: %w", err)
	}
	defer rows.Close()

	var found []*source
	for rows.Next() {
		var (
			src source
			pos models.Vec3
		)
		if err := rows.Scan(&src.id, &pos.X, &pos.Y, &pos.Z, &src.slots, &src.owner); err != nil {
			return nil, fmt.Errorf("failed to scan container: %w", err)
		}
		if src.id == exclude {
			continue
		}
		src.distance = pos.DistanceTo(anchor)
		if src.distance > radius {
			continue
		}
		src.store = s
		found = append(found, &src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating containers: %w", err)
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].distance != found[j].distance {
			return found[i].distance < found[j].distance
		}
		return found[i].id < found[j].id
	})

	out := make([]storage.Source, len(found))
	for i, src := range found {
		out[i] = src
	}
	return out, nil
}

// source is a container row captured by one scan
type source struct {
	store    *Storage
	id       string
	owner    string
	slots    int
	distance float64
}

func (s *source) ID() string        { return s.id }
func (s *source) Distance() float64 { return s.distance }
func (s *source) Slots() int        { return s.slots }

func (s *source) Accessible(playerID string) bool {
	return s.owner == "" || s.owner == playerID
}

func (s *source) ReadTotals(ctx context.Context) ([]models.ItemStack, error) {
	items, err := containerItems.load(ctx, s.store.db, s.id)
	if err != nil {
		return nil, err
	}

	out := make([]models.ItemStack, 0, len(items))
	for id, amount := range items {
		out = append(out, models.ItemStack{
			Identity:    id,
			DisplayName: s.store.catalog.DisplayName(id),
			SourceID:    s.id,
			Amount:      amount,
			StackLimit:  s.store.catalog.EffectiveStack(id),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity.Less(out[j].Identity) })
	return out, nil
}

func (s *source) Remove(ctx context.Context, id models.ItemIdentity, amount int) (int, error) {
	return s.store.removeItems(ctx, containerItems, s.id, id, amount)
}

func (s *source) Add(ctx context.Context, id models.ItemIdentity, amount int) (int, error) {
	return s.store.addItems(ctx, containerItems, s.id, id, amount)
}

func (s *source) FreeSpace(ctx context.Context, id models.ItemIdentity) (int, error) {
	slots, err := containerItems.slots(ctx, s.store.db, s.id)
	if err != nil {
		return 0, err
	}
	items, err := containerItems.load(ctx, s.store.db, s.id)
	if err != nil {
		return 0, err
	}
	return inventory.FreeUnits(items, slots, id, s.store.catalog.EffectiveStack), nil
}

func (s *source) CapacityAvailable(ctx context.Context, id models.ItemIdentity) (bool, error) {
	free, err := s.FreeSpace(ctx, id)
	return free > 0, err
}
