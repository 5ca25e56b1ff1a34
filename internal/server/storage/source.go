package storage

import (
	"context"
	"time"

	"github.com/iudanet/gophstorage/internal/models"
)

// Source is one physical storage container as seen by the authority.
// Implementations are bound to the scan that produced them: Distance is
// relative to the anchor passed to Scanner.NearbyContainers.
type Source interface {
	// ID returns a stable source identifier
	ID() string

	// Distance from the scan anchor
	Distance() float64

	// Slots returns the physical slot count of the container
	Slots() int

	// Accessible reports whether the player may take from or put into this source
	Accessible(playerID string) bool

	// ReadTotals returns the current stacks held by the source
	ReadTotals(ctx context.Context) ([]models.ItemStack, error)

	// Remove takes up to amount units and returns how many were actually removed
	Remove(ctx context.Context, id models.ItemIdentity, amount int) (int, error)

	// Add puts up to amount units and returns how many were actually added
	Add(ctx context.Context, id models.ItemIdentity, amount int) (int, error)

	// FreeSpace returns how many units of id still fit
	FreeSpace(ctx context.Context, id models.ItemIdentity) (int, error)

	// CapacityAvailable reports whether at least one unit of id fits
	CapacityAvailable(ctx context.Context, id models.ItemIdentity) (bool, error)
}

// Scanner finds storage containers around a point
type Scanner interface {
	// NearbyContainers returns sources within radius of anchor ordered by
	// distance ascending, then source id. exclude skips one source id.
	NearbyContainers(ctx context.Context, anchor models.Vec3, radius float64, exclude string) ([]Source, error)
}

// PlayerInventory is the authoritative per-player bag
type PlayerInventory interface {
	// HasPlayer reports whether the player is known to the world
	HasPlayer(ctx context.Context, playerID string) (bool, error)

	// RemoveFromPlayer takes up to amount units, returns actually removed
	RemoveFromPlayer(ctx context.Context, playerID string, id models.ItemIdentity, amount int) (int, error)

	// AddToPlayer gives up to amount units, returns actually added
	AddToPlayer(ctx context.Context, playerID string, id models.ItemIdentity, amount int) (int, error)
}

// WorldDrop describes items dropped on the ground as a last resort
type WorldDrop struct {
	DroppedAt  time.Time           `json:"dropped_at"`
	Identity   models.ItemIdentity `json:"identity"`
	TerminalID string              `json:"terminal_id"`
	PlayerID   string              `json:"player_id,omitempty"`
	Reason     string              `json:"reason"`
	Position   models.Vec3         `json:"position"`
	Amount     int                 `json:"amount"`
}

// WorldDropper spawns items in the world near a position
type WorldDropper interface {
	Drop(ctx context.Context, drop WorldDrop) error
}

// World bundles every world-side collaborator the authority needs
type World interface {
	Scanner
	PlayerInventory
	WorldDropper
}
