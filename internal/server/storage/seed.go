package storage

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/iudanet/gophstorage/internal/models"
)

// SeedItem is one stack in a seed file. Item uses the prefab[:quality[:variant]] form.
type SeedItem struct {
	Item   string `yaml:"item"`
	Amount int    `yaml:"amount"`
}

// ContainerSpec describes a container to create
type ContainerSpec struct {
	ID       string      `yaml:"id"`
	Owner    string      `yaml:"owner"`
	Items    []SeedItem  `yaml:"items"`
	Position models.Vec3 `yaml:"position"`
	Slots    int         `yaml:"slots"`
}

// PlayerSpec describes a player bag to create
type PlayerSpec struct {
	ID    string     `yaml:"id"`
	Items []SeedItem `yaml:"items"`
	Slots int        `yaml:"slots"`
}

// Seed is the content of a world seed file
type Seed struct {
	Containers []ContainerSpec `yaml:"containers"`
	Players    []PlayerSpec    `yaml:"players"`
}

// Seedable is a world that can be populated from a Seed
type Seedable interface {
	CreateContainer(ctx context.Context, spec ContainerSpec) error
	CreatePlayer(ctx context.Context, spec PlayerSpec) error
}

// LoadSeed reads and parses a seed file
func LoadSeed(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(raw)
}

// ParseSeed parses and validates seed YAML
func ParseSeed(raw []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("seed yaml: %w", err)
	}

	seen := make(map[string]bool)
	for _, c := range s.Containers {
		if c.ID == "" {
			return nil, fmt.Errorf("seed: container without id")
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("seed: duplicate container %q", c.ID)
		}
		seen[c.ID] = true
		if c.Slots <= 0 {
			return nil, fmt.Errorf("seed: container %q must have slots", c.ID)
		}
		if _, err := ParseSeedItems(c.Items); err != nil {
			return nil, fmt.Errorf("seed: container %q: %w", c.ID, err)
		}
	}
	for _, p := range s.Players {
		if p.ID == "" {
			return nil, fmt.Errorf("seed: player without id")
		}
		if _, err := ParseSeedItems(p.Items); err != nil {
			return nil, fmt.Errorf("seed: player %q: %w", p.ID, err)
		}
	}
	return &s, nil
}

// ParseSeedItems converts seed stacks into identities; amounts must be positive
func ParseSeedItems(items []SeedItem) (map[models.ItemIdentity]int, error) {
	out := make(map[models.ItemIdentity]int, len(items))
	for _, it := range items {
		id, err := models.ParseItemIdentity(it.Item)
		if err != nil {
			return nil, err
		}
		if it.Amount <= 0 {
			return nil, fmt.Errorf("item %q: %w", it.Item, ErrInvalidAmount)
		}
		out[id] += it.Amount
	}
	return out, nil
}

// Apply creates every container and player of the seed in w
func (s *Seed) Apply(ctx context.Context, w Seedable) error {
	for _, c := range s.Containers {
		if err := w.CreateContainer(ctx, c); err != nil {
			return fmt.Errorf("failed to create container %s: %w", c.ID, err)
		}
	}
	for _, p := range s.Players {
		if err := w.CreatePlayer(ctx, p); err != nil {
			return fmt.Errorf("failed to create player %s: %w", p.ID, err)
		}
	}
	return nil
}
