// Package memory is an in-process world: containers, player bags and ground
// drops held in maps. Used by tests and by the server with world.driver=memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/iudanet/gophstorage/internal/catalog"
	"github.com/iudanet/gophstorage/internal/inventory"
	"github.com/iudanet/gophstorage/internal/models"
	"github.com/iudanet/gophstorage/internal/server/storage"
)

// DefaultPlayerSlots is the bag size of players added without explicit slots
const DefaultPlayerSlots = 32

type container struct {
	items    map[models.ItemIdentity]int
	id       string
	owner    string
	position models.Vec3
	slots    int
}

type player struct {
	items map[models.ItemIdentity]int
	slots int
}

// World implements storage.World in memory
type World struct {
	catalog    *catalog.Catalog
	containers map[string]*container
	players    map[string]*player
	drops      []storage.WorldDrop
	mu         sync.Mutex
}

var (
	_ storage.World    = (*World)(nil)
	_ storage.Seedable = (*World)(nil)
)

// New creates an empty world using cat for stack limits
func New(cat *catalog.Catalog) *World {
	return &World{
		catalog:    cat,
		containers: make(map[string]*container),
		players:    make(map[string]*player),
	}
}

// AddContainer places a container. An empty owner means public.
func (w *World) AddContainer(id string, pos models.Vec3, slots int, owner string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.containers[id] = &container{
		id:       id,
		position: pos,
		slots:    slots,
		owner:    owner,
		items:    make(map[models.ItemIdentity]int),
	}
}

// RemoveContainer destroys a container with its contents
func (w *World) RemoveContainer(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.containers, id)
}

// Fill puts items into a container ignoring capacity (world seeding)
func (w *World) Fill(containerID string, id models.ItemIdentity, amount int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	c, ok := w.containers[containerID]
	if !ok {
		return fmt.Errorf("fill %s: %w", containerID, storage.ErrContainerNotFound)
	}
	c.items[id] += amount
	return nil
}

// AddPlayer registers a player bag; slots <= 0 uses DefaultPlayerSlots
func (w *World) AddPlayer(playerID string, slots int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if slots <= 0 {
		slots = DefaultPlayerSlots
	}
	w.players[playerID] = &player{slots: slots, items: make(map[models.ItemIdentity]int)}
}

// CreateContainer implements storage.Seedable
func (w *World) CreateContainer(ctx context.Context, spec storage.ContainerSpec) error {
	items, err := storage.ParseSeedItems(spec.Items)
	if err != nil {
		return err
	}
	w.AddContainer(spec.ID, spec.Position, spec.Slots, spec.Owner)
	for id, amount := range items {
		if err := w.Fill(spec.ID, id, amount); err != nil {
			return err
		}
	}
	return nil
}

// CreatePlayer implements storage.Seedable. Items beyond the bag capacity are discarded.
func (w *World) CreatePlayer(ctx context.Context, spec storage.PlayerSpec) error {
	items, err := storage.ParseSeedItems(spec.Items)
	if err != nil {
		return err
	}
	w.AddPlayer(spec.ID, spec.Slots)
	for id, amount := range items {
		if _, err := w.AddToPlayer(ctx, spec.ID, id, amount); err != nil {
			return err
		}
	}
	return nil
}

// ContainerAmount returns the amount of id in one container
func (w *World) ContainerAmount(containerID string, id models.ItemIdentity) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if c, ok := w.containers[containerID]; ok {
		return c.items[id]
	}
	return 0
}

// TotalAmount returns the amount of id across all containers
func (w *World) TotalAmount(id models.ItemIdentity) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	total := 0
	for _, c := range w.containers {
		total += c.items[id]
	}
	return total
}

// PlayerAmount returns the amount of id in a player's bag
func (w *World) PlayerAmount(playerID string, id models.ItemIdentity) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.players[playerID]; ok {
		return p.items[id]
	}
	return 0
}

// Drops returns a copy of every ground drop so far
func (w *World) Drops() []storage.WorldDrop {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]storage.WorldDrop, len(w.drops))
	copy(out, w.drops)
	return out
}

// DroppedAmount sums ground drops of id
func (w *World) DroppedAmount(id models.ItemIdentity) int {
	total := 0
	for _, d := range w.Drops() {
		if d.Identity == id {
			total += d.Amount
		}
	}
	return total
}

// NearbyContainers implements storage.Scanner
func (w *World) NearbyContainers(ctx context.Context, anchor models.Vec3, radius float64, exclude string) ([]storage.Source, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	found := make([]*source, 0, len(w.containers))
	for _, c := range w.containers {
		if c.id == exclude {
			continue
		}
		d := c.position.DistanceTo(anchor)
		if d > radius {
			continue
		}
		found = append(found, &source{world: w, id: c.id, distance: d})
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].distance != found[j].distance {
			return found[i].distance < found[j].distance
		}
		return found[i].id < found[j].id
	})

	out := make([]storage.Source, len(found))
	for i, s := range found {
		out[i] = s
	}
	return out, nil
}

// HasPlayer implements storage.PlayerInventory
func (w *World) HasPlayer(ctx context.Context, playerID string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.players[playerID]
	return ok, nil
}

// RemoveFromPlayer implements storage.PlayerInventory
func (w *World) RemoveFromPlayer(ctx context.Context, playerID string, id models.ItemIdentity, amount int) (int, error) {
	if amount <= 0 {
		return 0, storage.ErrInvalidAmount
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.players[playerID]
	if !ok {
		return 0, storage.ErrPlayerNotFound
	}
	return take(p.items, id, amount), nil
}

// AddToPlayer implements storage.PlayerInventory
func (w *World) AddToPlayer(ctx context.Context, playerID string, id models.ItemIdentity, amount int) (int, error) {
	if amount <= 0 {
		return 0, storage.ErrInvalidAmount
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.players[playerID]
	if !ok {
		return 0, storage.ErrPlayerNotFound
	}
	n := min(amount, inventory.FreeUnits(p.items, p.slots, id, w.catalog.EffectiveStack))
	p.items[id] += n
	return n, nil
}

// Drop implements storage.WorldDropper
func (w *World) Drop(ctx context.Context, drop storage.WorldDrop) error {
	if drop.Amount <= 0 {
		return storage.ErrInvalidAmount
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.drops = append(w.drops, drop)
	return nil
}

func take(items map[models.ItemIdentity]int, id models.ItemIdentity, amount int) int {
	n := min(amount, items[id])
	if n <= 0 {
		return 0
	}
	items[id] -= n
	if items[id] == 0 {
		delete(items, id)
	}
	return n
}

// source is a container handle produced by one scan
type source struct {
	world    *World
	id       string
	distance float64
}

func (s *source) ID() string        { return s.id }
func (s *source) Distance() float64 { return s.distance }

func (s *source) Slots() int {
	s.world.mu.Lock()
	defer s.world.mu.Unlock()
	if c, ok := s.world.containers[s.id]; ok {
		return c.slots
	}
	return 0
}

func (s *source) Accessible(playerID string) bool {
	s.world.mu.Lock()
	defer s.world.mu.Unlock()
	c, ok := s.world.containers[s.id]
	return ok && (c.owner == "" || c.owner == playerID)
}

func (s *source) ReadTotals(ctx context.Context) ([]models.ItemStack, error) {
	s.world.mu.Lock()
	defer s.world.mu.Unlock()

	c, ok := s.world.containers[s.id]
	if !ok {
		return nil, storage.ErrContainerNotFound
	}

	out := make([]models.ItemStack, 0, len(c.items))
	for id, amount := range c.items {
		if amount <= 0 {
			continue
		}
		out = append(out, models.ItemStack{
			Identity:    id,
			DisplayName: s.world.catalog.DisplayName(id),
			SourceID:    c.id,
			Amount:      amount,
			StackLimit:  s.world.catalog.EffectiveStack(id),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity.Less(out[j].Identity) })
	return out, nil
}

func (s *source) Remove(ctx context.Context, id models.ItemIdentity, amount int) (int, error) {
	if amount <= 0 {
		return 0, storage.ErrInvalidAmount
	}

	s.world.mu.Lock()
	defer s.world.mu.Unlock()

	c, ok := s.world.containers[s.id]
	if !ok {
		return 0, storage.ErrContainerNotFound
	}
	return take(c.items, id, amount), nil
}

func (s *source) Add(ctx context.Context, id models.ItemIdentity, amount int) (int, error) {
	if amount <= 0 {
		return 0, storage.ErrInvalidAmount
	}

	s.world.mu.Lock()
	defer s.world.mu.Unlock()

	c, ok := s.world.containers[s.id]
	if !ok {
		return 0, storage.ErrContainerNotFound
	}
	n := min(amount, inventory.FreeUnits(c.items, c.slots, id, s.world.catalog.EffectiveStack))
	c.items[id] += n
	return n, nil
}

func (s *source) FreeSpace(ctx context.Context, id models.ItemIdentity) (int, error) {
	s.world.mu.Lock()
	defer s.world.mu.Unlock()

	c, ok := s.world.containers[s.id]
	if !ok {
		return 0, storage.ErrContainerNotFound
	}
	return inventory.FreeUnits(c.items, c.slots, id, s.world.catalog.EffectiveStack), nil
}

func (s *source) CapacityAvailable(ctx context.Context, id models.ItemIdentity) (bool, error) {
	free, err := s.FreeSpace(ctx, id)
	return free > 0, err
}
