package terminal

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/gophstorage/internal/models"
	"github.com/iudanet/gophstorage/internal/server/storage"
	"github.com/iudanet/gophstorage/pkg/api"
)

// DepositRequest moves items from the player's bag into containers
type DepositRequest struct {
	Peer             string
	TerminalID       string
	OperationID      string
	Identity         models.ItemIdentity
	ExpectedRevision int64
	Amount           int
}

// Deposit takes Amount units from the player and stores them nearest first.
// Leftovers go back to the player; what the player cannot hold is dropped.
func (s *Service) Deposit(ctx context.Context, req DepositRequest) (*Result, error) {
	if reason := validateItemOp(req.TerminalID, req.Identity, req.Amount); reason != "" {
		return failure(reason), nil
	}

	return s.run(func(out *[]outbound) (*Result, error) {
		st, playerID, res := s.begin(ctx, req.TerminalID, req.Peer, req.OperationID)
		if res != nil {
			return res, nil
		}
		if revisionConflict(req.ExpectedRevision, st.revision) {
			return s.attachSnapshot(ctx, st, playerID, failure(api.ReasonConflict)), nil
		}

		chests, err := s.accessible(ctx, st, playerID)
		if err != nil {
			return nil, err
		}
		free, err := freeSpace(ctx, chests, req.Identity)
		if err != nil {
			return nil, err
		}
		if free == 0 {
			return s.attachSnapshot(ctx, st, playerID, failure(api.ReasonNoStorageSpace)), nil
		}

		taken, err := s.world.RemoveFromPlayer(ctx, playerID, req.Identity, req.Amount)
		switch {
		case errors.Is(err, storage.ErrPlayerNotFound):
			return s.attachSnapshot(ctx, st, playerID, failure(api.ReasonPlayerNotFound)), nil
		case err != nil:
			return nil, fmt.Errorf("failed to take %s from player %s: %w", req.Identity, playerID, err)
		case taken == 0:
			return s.attachSnapshot(ctx, st, playerID, failure(api.ReasonNoMatchingItem)), nil
		}

		stored, moves, err := s.store(ctx, chests, req.Identity, taken)
		if err != nil {
			s.refund(ctx, playerID, req.Identity, taken)
			return nil, err
		}

		returned, dropped, err := s.giveBack(ctx, st, playerID, req.Identity, taken-stored)
		if err != nil {
			// откат: контейнеры как до операции, игрок получает все обратно
			s.undo(ctx, req.Identity, moves, storage.Source.Remove)
			s.refund(ctx, playerID, req.Identity, taken-returned)
			return nil, err
		}

		if stored == 0 {
			res = failure(api.ReasonNoStorageSpace)
			res.ReturnedAmount = returned
			res.DroppedAmount = dropped
			return s.attachSnapshot(ctx, st, playerID, res), nil
		}

		res = &Result{
			Success:        true,
			StoredAmount:   stored,
			ReturnedAmount: returned,
			DroppedAmount:  dropped,
			Revision:       st.bump(),
		}
		st.processed.Put(opKey(playerID, req.OperationID), *res)
		s.broadcast(ctx, st, out)

		s.logger.Debug("Deposit applied",
			"terminal_id", st.terminalID,
			"player_id", playerID,
			"item", req.Identity.String(),
			"taken", taken,
			"stored", stored,
			"returned", returned,
			"dropped", dropped,
			"revision", st.revision)

		return s.attachSnapshot(ctx, st, playerID, res), nil
	})
}

// refund returns units taken by a failed deposit to the player
func (s *Service) refund(ctx context.Context, playerID string, id models.ItemIdentity, amount int) {
	if amount <= 0 {
		return
	}
	if n, err := s.world.AddToPlayer(ctx, playerID, id, amount); err != nil || n != amount {
		s.logger.Error("Failed to return deposit to player",
			"player_id", playerID,
			"item", id.String(),
			"amount", amount,
			"applied", n,
			"error", err)
	}
}

// giveBack returns leftovers to the player and drops what does not fit
func (s *Service) giveBack(ctx context.Context, st *terminalState, playerID string, id models.ItemIdentity, amount int) (returned, dropped int, err error) {
	if amount <= 0 {
		return 0, 0, nil
	}

	returned, err = s.world.AddToPlayer(ctx, playerID, id, amount)
	if err != nil {
		s.logger.Error("Failed to return leftovers to player",
			"player_id", playerID,
			"item", id.String(),
			"amount", amount,
			"error", err)
		returned = 0
	}

	dropped = amount - returned
	if err := s.drop(ctx, st, playerID, id, dropped, dropDepositOverflow); err != nil {
		return returned, 0, err
	}
	return returned, dropped, nil
}

func freeSpace(ctx context.Context, chests []storage.Source, id models.ItemIdentity) (int, error) {
	total := 0
	for _, c := range chests {
		free, err := c.FreeSpace(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("failed to check space in %s: %w", c.ID(), err)
		}
		total += free
	}
	return total, nil
}
