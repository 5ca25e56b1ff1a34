// Package inventory groups raw item stacks into per-identity totals.
package inventory

import (
	"sort"

	"github.com/iudanet/gophstorage/internal/models"
)

// StackLimitResolver returns the configured stack limit for an identity.
// A value <= 0 means "unknown" and the observed stack limit is used instead.
type StackLimitResolver func(id models.ItemIdentity) int

// Aggregate группирует стеки по identity.
// Стеки с amount <= 0 игнорируются. Результат отсортирован по display name,
// затем по убыванию total amount, затем по identity для детерминизма.
func Aggregate(stacks []models.ItemStack, resolve StackLimitResolver) []models.AggregatedTotal {
	type acc struct {
		total   models.AggregatedTotal
		sources map[string]struct{}
	}

	byID := make(map[models.ItemIdentity]*acc)
	for _, st := range stacks {
		if st.Amount <= 0 {
			continue
		}

		a, ok := byID[st.Identity]
		if !ok {
			a = &acc{
				total:   models.AggregatedTotal{Identity: st.Identity},
				sources: make(map[string]struct{}),
			}
			byID[st.Identity] = a
		}

		a.total.TotalAmount += st.Amount
		if a.total.DisplayName == "" {
			a.total.DisplayName = st.DisplayName
		}
		if st.StackLimit > a.total.StackLimit {
			a.total.StackLimit = st.StackLimit
		}
		a.sources[st.SourceID] = struct{}{}
	}

	out := make([]models.AggregatedTotal, 0, len(byID))
	for id, a := range byID {
		a.total.SourceCount = len(a.sources)
		if resolve != nil {
			if limit := resolve(id); limit > 0 {
				a.total.StackLimit = limit
			}
		}
		if a.total.StackLimit <= 0 {
			a.total.StackLimit = 1
		}
		if a.total.DisplayName == "" {
			a.total.DisplayName = id.PrefabID
		}
		out = append(out, a.total)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		if out[i].TotalAmount != out[j].TotalAmount {
			return out[i].TotalAmount > out[j].TotalAmount
		}
		return out[i].Identity.Less(out[j].Identity)
	})

	return out
}

// VirtualSlots returns how many stack-sized slots the items occupy
func VirtualSlots(items []models.AggregatedTotal) int {
	slots := 0
	for _, it := range items {
		slots += SlotsFor(it.TotalAmount, it.StackLimit)
	}
	return slots
}

// SlotsFor returns ceil(amount/stackLimit), at least 1
func SlotsFor(amount, stackLimit int) int {
	if stackLimit <= 0 {
		stackLimit = 1
	}
	n := (amount + stackLimit - 1) / stackLimit
	if n < 1 {
		n = 1
	}
	return n
}

// Totals converts an aggregated list into an identity -> amount map
func Totals(items []models.AggregatedTotal) map[models.ItemIdentity]int {
	out := make(map[models.ItemIdentity]int, len(items))
	for _, it := range items {
		out[it.Identity] += it.TotalAmount
	}
	return out
}

// FreeUnits returns how many more units of id fit into a container with the
// given slot count. Partial stacks of id are topped up before new slots are used.
func FreeUnits(contents map[models.ItemIdentity]int, slots int, id models.ItemIdentity, stackLimit StackLimitResolver) int {
	limitOf := func(it models.ItemIdentity) int {
		if stackLimit == nil {
			return 1
		}
		if l := stackLimit(it); l > 0 {
			return l
		}
		return 1
	}

	used := 0
	for it, amount := range contents {
		if amount <= 0 {
			continue
		}
		used += SlotsFor(amount, limitOf(it))
	}

	limit := limitOf(id)
	free := 0
	if slots > used {
		free = (slots - used) * limit
	}
	if rem := contents[id] % limit; contents[id] > 0 && rem != 0 {
		free += limit - rem
	}
	return free
}
