package terminal

import (
	"context"
	"fmt"

	"github.com/iudanet/gophstorage/internal/models"
	"github.com/iudanet/gophstorage/internal/planner"
	"github.com/iudanet/gophstorage/internal/server/storage"
)

// Drop reasons recorded in the world drop log
const (
	dropCancelOverflow  = "cancel_overflow"
	dropExpiry          = "reservation_restore"
	dropCommitOverflow  = "commit_overflow"
	dropDepositOverflow = "deposit_overflow"
)

// move is one completed source mutation, kept for rollback
type move struct {
	src    storage.Source
	amount int
}

func sourceIndex(chests []storage.Source) map[string]storage.Source {
	idx := make(map[string]storage.Source, len(chests))
	for _, c := range chests {
		idx[c.ID()] = c
	}
	return idx
}

// withdraw removes up to amount units of id from chests, nearest first.
// On a store error every completed step is put back.
func (s *Service) withdraw(ctx context.Context, chests []storage.Source, id models.ItemIdentity, amount int) (int, error) {
	candidates := make([]planner.Candidate, 0, len(chests))
	for _, c := range chests {
		stacks, err := c.ReadTotals(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to read container %s: %w", c.ID(), err)
		}
		available := 0
		for _, st := range stacks {
			if st.Identity == id {
				available += st.Amount
			}
		}
		if available > 0 {
			candidates = append(candidates, planner.Candidate{SourceID: c.ID(), Distance: c.Distance(), Amount: available})
		}
	}

	plan := planner.PlanWithdraw(candidates, amount, planner.Unbounded)
	idx := sourceIndex(chests)

	var (
		done    []move
		removed int
	)
	for _, step := range plan.Steps {
		src := idx[step.SourceID]
		n, err := src.Remove(ctx, id, step.Amount)
		if err != nil {
			s.undo(ctx, id, done, storage.Source.Add)
			return 0, fmt.Errorf("failed to remove %s from %s: %w", id, src.ID(), err)
		}
		if n > 0 {
			done = append(done, move{src: src, amount: n})
			removed += n
		}
	}
	return removed, nil
}

// store puts up to amount units of id into chests, nearest first.
// On a store error every completed step is taken back out.
func (s *Service) store(ctx context.Context, chests []storage.Source, id models.ItemIdentity, amount int) (int, []move, error) {
	candidates := make([]planner.Candidate, 0, len(chests))
	for _, c := range chests {
		free, err := c.FreeSpace(ctx, id)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to check space in %s: %w", c.ID(), err)
		}
		if free > 0 {
			candidates = append(candidates, planner.Candidate{SourceID: c.ID(), Distance: c.Distance(), Amount: free})
		}
	}

	plan := planner.PlanDeposit(candidates, amount, planner.Unbounded)
	idx := sourceIndex(chests)

	var (
		done   []move
		stored int
	)
	for _, step := range plan.Steps {
		src := idx[step.SourceID]
		n, err := src.Add(ctx, id, step.Amount)
		if err != nil {
			s.undo(ctx, id, done, storage.Source.Remove)
			return 0, nil, fmt.Errorf("failed to add %s to %s: %w", id, src.ID(), err)
		}
		if n > 0 {
			done = append(done, move{src: src, amount: n})
			stored += n
		}
	}
	return stored, done, nil
}

// undo reverts completed moves in reverse order
func (s *Service) undo(ctx context.Context, id models.ItemIdentity, done []move,
	op func(storage.Source, context.Context, models.ItemIdentity, int) (int, error),
) {
	for i := len(done) - 1; i >= 0; i-- {
		m := done[i]
		n, err := op(m.src, ctx, id, m.amount)
		if err != nil || n != m.amount {
			s.logger.Error("Failed to roll back container mutation",
				"source_id", m.src.ID(),
				"item", id.String(),
				"amount", m.amount,
				"applied", n,
				"error", err)
		}
	}
}

// drop spawns items near the terminal anchor
func (s *Service) drop(ctx context.Context, st *terminalState, playerID string, id models.ItemIdentity, amount int, reason string) error {
	if amount <= 0 {
		return nil
	}
	err := s.world.Drop(ctx, storage.WorldDrop{
		DroppedAt:  s.now(),
		Identity:   id,
		TerminalID: st.terminalID,
		PlayerID:   playerID,
		Reason:     reason,
		Position:   st.anchor,
		Amount:     amount,
	})
	if err != nil {
		return fmt.Errorf("failed to drop %d %s: %w", amount, id, err)
	}

	s.logger.Warn("Items dropped near terminal",
		"terminal_id", st.terminalID,
		"player_id", playerID,
		"item", id.String(),
		"amount", amount,
		"reason", reason)
	return nil
}

// restore returns reserved units to the chests the owner may use and drops
// what does not fit. Nothing is changed when an error is returned.
func (s *Service) restore(ctx context.Context, st *terminalState, rec *models.ReservationRecord, amount int, reason string) (restored, dropped int, err error) {
	chests, err := s.accessible(ctx, st, rec.PlayerID)
	if err != nil {
		return 0, 0, err
	}

	restored, done, err := s.store(ctx, chests, rec.Identity, amount)
	if err != nil {
		return 0, 0, err
	}

	dropped = amount - restored
	if err := s.drop(ctx, st, rec.PlayerID, rec.Identity, dropped, reason); err != nil {
		s.undo(ctx, rec.Identity, done, storage.Source.Remove)
		return 0, 0, err
	}
	return restored, dropped, nil
}
