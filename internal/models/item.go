package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ItemIdentity уникально определяет вид предмета.
// Используется как ключ агрегации и резервирования везде в системе.
type ItemIdentity struct {
	PrefabID string `json:"prefab_id" yaml:"prefab"`
	Quality  int    `json:"quality" yaml:"quality"`
	Variant  int    `json:"variant" yaml:"variant"`
}

// String renders the identity as prefab:quality:variant
func (i ItemIdentity) String() string {
	return i.PrefabID + ":" + strconv.Itoa(i.Quality) + ":" + strconv.Itoa(i.Variant)
}

// Less gives a total deterministic order over identities
func (i ItemIdentity) Less(other ItemIdentity) bool {
	if i.PrefabID != other.PrefabID {
		return i.PrefabID < other.PrefabID
	}
	if i.Quality != other.Quality {
		return i.Quality < other.Quality
	}
	return i.Variant < other.Variant
}

// IsZero reports whether the identity carries no prefab
func (i ItemIdentity) IsZero() bool {
	return i.PrefabID == ""
}

// ParseItemIdentity разбирает строку вида "prefab[:quality[:variant]]".
// Отсутствующие quality и variant получают значения 1 и 0.
func ParseItemIdentity(s string) (ItemIdentity, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) == 0 || parts[0] == "" || len(parts) > 3 {
		return ItemIdentity{}, fmt.Errorf("invalid item identity %q", s)
	}

	id := ItemIdentity{PrefabID: parts[0], Quality: 1}
	if len(parts) > 1 {
		q, err := strconv.Atoi(parts[1])
		if err != nil {
			return ItemIdentity{}, fmt.Errorf("invalid quality in %q: %w", s, err)
		}
		id.Quality = q
	}
	if len(parts) > 2 {
		v, err := strconv.Atoi(parts[2])
		if err != nil {
			return ItemIdentity{}, fmt.Errorf("invalid variant in %q: %w", s, err)
		}
		id.Variant = v
	}

	return id, nil
}

// ItemStack is a raw stack as read from a single storage source
type ItemStack struct {
	Identity    ItemIdentity `json:"identity"`
	DisplayName string       `json:"display_name"`
	SourceID    string       `json:"source_id"`
	Amount      int          `json:"amount"`
	StackLimit  int          `json:"stack_limit"`
}

// AggregatedTotal is the sum of all stacks of one identity across sources.
// Derived from source reads, never mutated on its own.
type AggregatedTotal struct {
	Identity    ItemIdentity `json:"identity"`
	DisplayName string       `json:"display_name"`
	TotalAmount int          `json:"total_amount"`
	SourceCount int          `json:"source_count"`
	StackLimit  int          `json:"stack_limit"`
}
