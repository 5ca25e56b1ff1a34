package catalog

import (
	"strings"
	"unicode"

	"github.com/iudanet/gophstorage/internal/models"
)

// MaterialGroup is a coarse subgroup used to cluster similar materials
type MaterialGroup int

const (
	GroupOreMetal MaterialGroup = iota
	GroupWoodStone
	GroupHideLeather
	GroupFood
	GroupOther
)

func (g MaterialGroup) String() string {
	switch g {
	case GroupOreMetal:
		return "ore/metal"
	case GroupWoodStone:
		return "wood/stone"
	case GroupHideLeather:
		return "hide/leather"
	case GroupFood:
		return "food"
	default:
		return "other"
	}
}

// порядок важен: первая совпавшая группа побеждает
var groupKeywords = []struct {
	words    []string
	suffixes []string
	group    MaterialGroup
}{
	{group: GroupOreMetal, words: []string{"ore", "metal", "iron", "copper", "tin", "bronze", "silver", "ingot"}},
	{group: GroupWoodStone, words: []string{"wood", "stone", "flint", "resin"}},
	{group: GroupHideLeather, words: []string{"hide", "leather", "pelt", "scale", "fur"}},
	{group: GroupFood, words: []string{"meat", "mushroom", "honey", "bread", "stew", "fish", "soup"}, suffixes: []string{"berry", "berries"}},
}

// Group classifies an item by the words of its prefab id and display name.
// Consumables that match no keyword are treated as food.
func (c *Catalog) Group(id models.ItemIdentity, displayName string) MaterialGroup {
	words := splitWords(id.PrefabID + " " + displayName)
	for _, g := range groupKeywords {
		for _, w := range words {
			if matchesAny(w, g.words, g.suffixes) {
				return g.group
			}
		}
	}

	if def, ok := c.defs[id.PrefabID]; ok && def.Type == "consumable" {
		return GroupFood
	}
	return GroupOther
}

// matchesAny reports whether word is one of keywords (plural forms included)
// or ends with one of suffixes
func matchesAny(word string, keywords, suffixes []string) bool {
	for _, k := range keywords {
		if word == k || word == k+"s" || word == k+"es" {
			return true
		}
	}
	for _, sfx := range suffixes {
		if strings.HasSuffix(word, sfx) {
			return true
		}
	}
	return false
}

// splitWords lowercases s and splits it on non-letters and camelCase humps:
// "CopperOre" and "Copper ore" both give [copper ore].
func splitWords(s string) []string {
	var (
		words []string
		cur   []rune
	)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}

	var prev rune
	for _, r := range s {
		switch {
		case !unicode.IsLetter(r):
			flush()
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
		prev = r
	}
	flush()
	return words
}
