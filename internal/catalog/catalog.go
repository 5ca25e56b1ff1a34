// Package catalog describes item kinds: display names, stack limits and the
// presentation ordering shared by every terminal snapshot.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/iudanet/gophstorage/internal/models"
)

//go:embed default.yaml
var defaultCatalog []byte

// ItemDef описывает один prefab
type ItemDef struct {
	Prefab string `yaml:"prefab"`
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Stack  int    `yaml:"stack"`
}

type file struct {
	Types []string  `yaml:"types"`
	Items []ItemDef `yaml:"items"`
}

// Catalog is an immutable item lookup table
type Catalog struct {
	defs  map[string]ItemDef
	types map[string]int
}

// Default returns the catalog embedded into the binary
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// MustDefault is Default for tests and wiring code that cannot recover
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads a catalog from path, or returns the default catalog when path is empty
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	return Parse(raw)
}

// Parse decodes a YAML catalog
func Parse(raw []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("catalog yaml: %w", err)
	}

	c := &Catalog{
		defs:  make(map[string]ItemDef, len(f.Items)),
		types: make(map[string]int, len(f.Types)),
	}
	for i, t := range f.Types {
		if _, dup := c.types[t]; dup {
			return nil, fmt.Errorf("catalog: duplicate type %q", t)
		}
		c.types[t] = i
	}

	for _, def := range f.Items {
		if def.Prefab == "" {
			return nil, fmt.Errorf("catalog: item without prefab")
		}
		if _, dup := c.defs[def.Prefab]; dup {
			return nil, fmt.Errorf("catalog: duplicate prefab %q", def.Prefab)
		}
		if def.Type != "" {
			if _, ok := c.types[def.Type]; !ok {
				return nil, fmt.Errorf("catalog: prefab %q has unknown type %q", def.Prefab, def.Type)
			}
		}
		if def.Name == "" {
			def.Name = def.Prefab
		}
		c.defs[def.Prefab] = def
	}

	return c, nil
}

// Lookup returns the definition of a prefab
func (c *Catalog) Lookup(prefab string) (ItemDef, bool) {
	def, ok := c.defs[prefab]
	return def, ok
}

// StackLimit returns the configured stack size, 0 if unknown
func (c *Catalog) StackLimit(id models.ItemIdentity) int {
	return c.defs[id.PrefabID].Stack
}

// DisplayName returns the human readable name, falling back to the prefab id
func (c *Catalog) DisplayName(id models.ItemIdentity) string {
	if def, ok := c.defs[id.PrefabID]; ok {
		return def.Name
	}
	return id.PrefabID
}

// TypeOrdinal returns the position of the item's type; unknown types sort last
func (c *Catalog) TypeOrdinal(id models.ItemIdentity) int {
	def, ok := c.defs[id.PrefabID]
	if !ok {
		return len(c.types)
	}
	if ord, ok := c.types[def.Type]; ok {
		return ord
	}
	return len(c.types)
}

// Sort orders totals the way snapshots present them:
// item type, material group, display name, amount descending.
func (c *Catalog) Sort(items []models.AggregatedTotal) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if ta, tb := c.TypeOrdinal(a.Identity), c.TypeOrdinal(b.Identity); ta != tb {
			return ta < tb
		}
		if ga, gb := c.Group(a.Identity, a.DisplayName), c.Group(b.Identity, b.DisplayName); ga != gb {
			return ga < gb
		}
		if a.DisplayName != b.DisplayName {
			return a.DisplayName < b.DisplayName
		}
		if a.TotalAmount != b.TotalAmount {
			return a.TotalAmount > b.TotalAmount
		}
		return a.Identity.Less(b.Identity)
	})
}

// DefaultStack is used for prefabs missing from the catalog
const DefaultStack = 50

// EffectiveStack returns StackLimit or DefaultStack for unknown prefabs
func (c *Catalog) EffectiveStack(id models.ItemIdentity) int {
	if limit := c.StackLimit(id); limit > 0 {
		return limit
	}
	return DefaultStack
}
