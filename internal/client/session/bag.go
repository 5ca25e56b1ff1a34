package session

import (
	"sync"

	"github.com/iudanet/gophstorage/internal/models"
)

// Bag is the client's mirror of the player's own inventory. It changes
// optimistically on local edits and is corrected by operation results.
type Bag struct {
	items map[models.ItemIdentity]int
	mu    sync.Mutex
}

// NewBag creates a bag with the given contents
func NewBag(items map[models.ItemIdentity]int) *Bag {
	b := &Bag{items: make(map[models.ItemIdentity]int, len(items))}
	for id, n := range items {
		if n > 0 {
			b.items[id] = n
		}
	}
	return b
}

// Add puts n units into the bag
func (b *Bag) Add(id models.ItemIdentity, n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[id] += n
}

// Remove takes up to n units and returns how many were taken
func (b *Bag) Remove(id models.ItemIdentity, n int) int {
	if n <= 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	taken := min(n, b.items[id])
	if taken == b.items[id] {
		delete(b.items, id)
	} else {
		b.items[id] -= taken
	}
	return taken
}

// Amount returns the units of id in the bag
func (b *Bag) Amount(id models.ItemIdentity) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.items[id]
}

// Items returns a copy of the contents
func (b *Bag) Items() map[models.ItemIdentity]int {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[models.ItemIdentity]int, len(b.items))
	for id, n := range b.items {
		out[id] = n
	}
	return out
}
