package session

import (
	"sort"

	"github.com/iudanet/gophstorage/internal/models"
)

// Take moves up to amount units from a view slot into the bag and returns
// how many moved.
func (s *Service) Take(slot, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return 0, ErrNotActive
	}
	if slot < 0 || slot >= len(s.view.Slots) {
		return 0, ErrInvalidSlot
	}
	cell := &s.view.Slots[slot]
	if cell.Empty() {
		return 0, ErrEmptySlot
	}
	n := min(amount, cell.Amount)
	if n <= 0 {
		return 0, ErrNothingToMove
	}

	id := cell.Identity
	cell.Amount -= n
	s.bag.Add(id, n)
	s.detect()
	return n, nil
}

// Put moves up to amount units of id from the bag into a view slot and
// returns how many moved. The slot must be empty or already hold id.
func (s *Service) Put(slot int, id models.ItemIdentity, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return 0, ErrNotActive
	}
	if slot < 0 || slot >= len(s.view.Slots) {
		return 0, ErrInvalidSlot
	}
	cell := &s.view.Slots[slot]
	if !cell.Empty() && cell.Identity != id {
		return 0, ErrSlotOccupied
	}

	limit := cell.StackLimit
	if cell.Empty() {
		limit = s.catalog.EffectiveStack(id)
	}
	room := limit - max(cell.Amount, 0)
	n := min(amount, room, s.bag.Amount(id))
	if n <= 0 {
		return 0, ErrNothingToMove
	}

	if cell.Empty() {
		*cell = Slot{
			Identity:    id,
			DisplayName: s.catalog.DisplayName(id),
			StackLimit:  limit,
		}
	}
	cell.Amount += n
	s.bag.Remove(id, n)
	s.detect()
	return n, nil
}

// BeginDrag suspends edit detection and commits until EndDrag
func (s *Service) BeginDrag() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dragging = true
}

// EndDrag runs edit detection over everything moved during the drag
func (s *Service) EndDrag() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dragging {
		return
	}
	s.dragging = false
	s.detect()
	if s.projectDirty {
		s.project(false)
	}
	s.commitReady()
}

// SetFilter changes the search filter and re-projects the view
func (s *Service) SetFilter(filter string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.filter = filter
	if s.hasSnapshot {
		s.project(false)
	}
}

// detect diffs the edited view against the displayed baseline and issues
// requests for every changed identity.
func (s *Service) detect() {
	if s.dragging || s.detecting || s.state != StateActive {
		return
	}
	s.detecting = true
	defer func() { s.detecting = false }()

	current := s.view.Totals()
	ids := make([]models.ItemIdentity, 0, len(current)+len(s.displayed))
	seen := make(map[models.ItemIdentity]struct{}, cap(ids))
	for _, m := range []map[models.ItemIdentity]int{current, s.displayed} {
		for id := range m {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	baseline := make(map[models.ItemIdentity]int, len(current))
	for id, n := range current {
		if n > 0 {
			baseline[id] = n
		}
	}
	deferred := make(map[models.ItemIdentity]int)

	type change struct {
		id    models.ItemIdentity
		delta int
	}
	var changes []change
	for _, id := range ids {
		delta := current[id] - s.displayed[id]
		if delta == 0 {
			continue
		}
		if s.reserveInFlight(id) {
			deferred[id] = delta
			if n := s.displayed[id]; n > 0 {
				baseline[id] = n
			} else {
				delete(baseline, id)
			}
			continue
		}
		changes = append(changes, change{id: id, delta: delta})
	}

	// базовая линия фиксируется до отправки: откат при ошибке отправки
	// перепроецирует вид и заменит её сам
	s.displayed = baseline
	s.deferred = deferred

	for _, c := range changes {
		if c.delta < 0 {
			s.sendReserve(c.id, -c.delta)
			continue
		}
		if rest := s.shrinkReservations(c.id, c.delta); rest > 0 {
			s.sendDeposit(c.id, rest)
		}
	}
}

// shrinkReservations cancels up to n units from own uncommitted reservations
// of id and returns what is left to deposit.
func (s *Service) shrinkReservations(id models.ItemIdentity, n int) int {
	for _, r := range s.sortedReservations() {
		if n == 0 {
			break
		}
		if r.identity != id {
			continue
		}
		c := min(n, r.cancellable())
		if c <= 0 {
			continue
		}
		s.sendCancel(r, c)
		n -= c
	}
	return n
}
