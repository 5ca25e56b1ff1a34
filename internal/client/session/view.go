package session

import (
	"encoding/binary"
	"hash"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/iudanet/gophstorage/internal/models"
	"github.com/iudanet/gophstorage/pkg/api"
)

// Slot is one cell of the projected view. An empty slot has a zero identity.
type Slot struct {
	Identity    models.ItemIdentity
	DisplayName string
	Amount      int
	StackLimit  int
}

// Empty reports whether the slot holds nothing
func (s Slot) Empty() bool {
	return s.Amount <= 0
}

// View is the editable grid projected from authoritative totals
type View struct {
	Slots   []Slot
	Columns int
	Rows    int
}

// Totals sums the view contents per identity
func (v View) Totals() map[models.ItemIdentity]int {
	out := make(map[models.ItemIdentity]int)
	for _, s := range v.Slots {
		if !s.Empty() {
			out[s.Identity] += s.Amount
		}
	}
	return out
}

func (v View) clone() View {
	c := v
	c.Slots = append([]Slot(nil), v.Slots...)
	return c
}

// buildView lays the filtered totals out as stacks, one virtual slot per
// stack, plus a spare slot when the containers still have physical room.
func buildView(items []api.ItemTotal, filter string, columns int, spare bool) View {
	if columns <= 0 {
		columns = 1
	}

	var slots []Slot
	for _, it := range items {
		if it.Amount <= 0 || !matchesFilter(it, filter) {
			continue
		}
		limit := max(it.StackLimit, 1)
		id := identityFromAPI(it.Item)
		for left := it.Amount; left > 0; {
			n := min(limit, left)
			slots = append(slots, Slot{
				Identity:    id,
				DisplayName: it.DisplayName,
				Amount:      n,
				StackLimit:  limit,
			})
			left -= n
		}
	}
	if spare {
		slots = append(slots, Slot{})
	}

	rows := max((len(slots)+columns-1)/columns, 1)
	return View{Slots: slots, Columns: columns, Rows: rows}
}

func matchesFilter(it api.ItemTotal, filter string) bool {
	f := strings.ToLower(strings.TrimSpace(filter))
	if f == "" {
		return true
	}
	return strings.Contains(strings.ToLower(it.DisplayName), f) ||
		strings.Contains(strings.ToLower(it.Item.PrefabID), f)
}

// projectionHash is computed over every authoritative total, the filter and
// the physical capacity that decides the spare slot.
func projectionHash(items []api.ItemTotal, filter string, used, total int) [32]byte {
	h, _ := blake2b.New256(nil)
	for _, it := range items {
		writeString(h, it.Item.PrefabID)
		writeInt(h, int64(it.Item.Quality))
		writeInt(h, int64(it.Item.Variant))
		writeString(h, it.DisplayName)
		writeInt(h, int64(it.Amount))
		writeInt(h, int64(it.StackLimit))
	}
	writeString(h, filter)
	writeInt(h, int64(used))
	writeInt(h, int64(total))

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

func writeString(h hash.Hash, s string) {
	writeInt(h, int64(len(s)))
	_, _ = h.Write([]byte(s))
}

func writeInt(h hash.Hash, v int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	_, _ = h.Write(buf[:])
}

func identityFromAPI(id api.ItemIdentity) models.ItemIdentity {
	return models.ItemIdentity{PrefabID: id.PrefabID, Quality: id.Quality, Variant: id.Variant}
}

func identityToAPI(id models.ItemIdentity) api.ItemIdentity {
	return api.ItemIdentity{PrefabID: id.PrefabID, Quality: id.Quality, Variant: id.Variant}
}
