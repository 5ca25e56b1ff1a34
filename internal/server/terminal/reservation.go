package terminal

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/gophstorage/internal/models"
	"github.com/iudanet/gophstorage/internal/server/storage"
	"github.com/iudanet/gophstorage/internal/validation"
	"github.com/iudanet/gophstorage/pkg/api"
)

// ReserveRequest removes items from containers into a reservation
type ReserveRequest struct {
	Peer             string
	TerminalID       string
	OperationID      string
	Identity         models.ItemIdentity
	ExpectedRevision int64
	Amount           int
}

// CommitRequest hands a reservation to its player
type CommitRequest struct {
	Peer        string
	TerminalID  string
	OperationID string
	Token       string
}

// CancelRequest returns all or part of a reservation. Amount <= 0 means all.
type CancelRequest struct {
	Peer        string
	TerminalID  string
	OperationID string
	Token       string
	Amount      int
}

// ReserveWithdraw removes up to Amount units from the containers the player
// may use and holds them under a fresh token until commit, cancel or expiry.
// A partial reservation is a success.
func (s *Service) ReserveWithdraw(ctx context.Context, req ReserveRequest) (*Result, error) {
	if reason := validateItemOp(req.TerminalID, req.Identity, req.Amount); reason != "" {
		return failure(reason), nil
	}

	return s.run(func(out *[]outbound) (*Result, error) {
		st, playerID, res := s.begin(ctx, req.TerminalID, req.Peer, req.OperationID)
		if res != nil {
			return res, nil
		}
		if revisionConflict(req.ExpectedRevision, st.revision) {
			s.logger.Debug("Reserve rejected on revision",
				"terminal_id", st.terminalID,
				"expected", req.ExpectedRevision,
				"revision", st.revision)
			return s.attachSnapshot(ctx, st, playerID, failure(api.ReasonConflict)), nil
		}

		chests, err := s.accessible(ctx, st, playerID)
		if err != nil {
			return nil, err
		}
		removed, err := s.withdraw(ctx, chests, req.Identity, req.Amount)
		if err != nil {
			return nil, err
		}
		if removed == 0 {
			return s.attachSnapshot(ctx, st, playerID, failure(api.ReasonInsufficientStock)), nil
		}

		token := s.newID()
		st.reservations[token] = &models.ReservationRecord{
			Token:     token,
			OwnerPeer: req.Peer,
			PlayerID:  playerID,
			Identity:  req.Identity,
			Amount:    removed,
			ExpiresAt: s.now().Add(s.cfg.ReservationTTL),
		}

		res = &Result{
			Success:        true,
			Token:          token,
			ReservedAmount: removed,
			Revision:       st.bump(),
		}
		st.processed.Put(opKey(playerID, req.OperationID), *res)
		s.broadcast(ctx, st, out)

		s.logger.Debug("Reservation created",
			"terminal_id", st.terminalID,
			"token", token,
			"item", req.Identity.String(),
			"requested", req.Amount,
			"reserved", removed,
			"revision", st.revision)

		return s.attachSnapshot(ctx, st, playerID, res), nil
	})
}

// CommitReservation ends a reservation by giving its items to the owning
// player. Totals do not change, so the revision stays.
func (s *Service) CommitReservation(ctx context.Context, req CommitRequest) (*Result, error) {
	if err := validation.ValidateTerminalID(req.TerminalID); err != nil {
		return failure(api.ReasonInvalidTerminal), nil
	}
	if req.Token == "" {
		return failure(api.ReasonInvalidRequest), nil
	}

	return s.run(func(out *[]outbound) (*Result, error) {
		st, playerID, res := s.begin(ctx, req.TerminalID, req.Peer, req.OperationID)
		if res != nil {
			return res, nil
		}
		rec, reason := ownedReservation(st, req.Token, req.Peer)
		if reason != "" {
			return s.attachSnapshot(ctx, st, playerID, failure(reason)), nil
		}

		given, err := s.world.AddToPlayer(ctx, rec.PlayerID, rec.Identity, rec.Amount)
		if err != nil && !errors.Is(err, storage.ErrPlayerNotFound) {
			return nil, fmt.Errorf("failed to hand reservation %s to player: %w", rec.Token, err)
		}
		overflow := rec.Amount - given
		if err := s.drop(ctx, st, rec.PlayerID, rec.Identity, overflow, dropCommitOverflow); err != nil {
			if given > 0 {
				if _, rbErr := s.world.RemoveFromPlayer(ctx, rec.PlayerID, rec.Identity, given); rbErr != nil {
					s.logger.Error("Failed to roll back commit", "token", rec.Token, "error", rbErr)
				}
			}
			return nil, err
		}
		delete(st.reservations, rec.Token)

		res = &Result{
			Success:         true,
			Token:           rec.Token,
			CommittedAmount: rec.Amount,
			DroppedAmount:   overflow,
			Revision:        st.revision,
		}
		st.processed.Put(opKey(playerID, req.OperationID), *res)

		s.logger.Debug("Reservation committed",
			"terminal_id", st.terminalID,
			"token", rec.Token,
			"player_id", rec.PlayerID,
			"amount", rec.Amount,
			"dropped", overflow)

		return s.attachSnapshot(ctx, st, playerID, res), nil
	})
}

// CancelReservation returns all or part of a reservation to the containers.
// What does not fit is dropped near the terminal.
func (s *Service) CancelReservation(ctx context.Context, req CancelRequest) (*Result, error) {
	if err := validation.ValidateTerminalID(req.TerminalID); err != nil {
		return failure(api.ReasonInvalidTerminal), nil
	}
	if req.Token == "" {
		return failure(api.ReasonInvalidRequest), nil
	}

	return s.run(func(out *[]outbound) (*Result, error) {
		st, playerID, res := s.begin(ctx, req.TerminalID, req.Peer, req.OperationID)
		if res != nil {
			return res, nil
		}
		rec, reason := ownedReservation(st, req.Token, req.Peer)
		if reason != "" {
			return s.attachSnapshot(ctx, st, playerID, failure(reason)), nil
		}

		amount := req.Amount
		if amount <= 0 || amount > rec.Amount {
			amount = rec.Amount
		}

		restored, dropped, err := s.restore(ctx, st, rec, amount, dropCancelOverflow)
		if err != nil {
			return nil, err
		}
		rec.Amount -= amount
		if rec.Amount == 0 {
			delete(st.reservations, rec.Token)
		}

		res = &Result{
			Success:        true,
			Token:          rec.Token,
			RestoredAmount: restored,
			DroppedAmount:  dropped,
			Revision:       st.revision,
		}
		if restored+dropped > 0 {
			res.Revision = st.bump()
			s.broadcast(ctx, st, out)
		}
		st.processed.Put(opKey(playerID, req.OperationID), *res)

		s.logger.Debug("Reservation cancelled",
			"terminal_id", st.terminalID,
			"token", rec.Token,
			"amount", amount,
			"remaining", rec.Amount,
			"restored", restored,
			"dropped", dropped)

		return s.attachSnapshot(ctx, st, playerID, res), nil
	})
}

// begin resolves the terminal, the caller's identity and a remembered result.
// A non-nil Result ends the operation.
func (s *Service) begin(ctx context.Context, terminalID, peer, opID string) (*terminalState, string, *Result) {
	st, ok := s.terminals[terminalID]
	if !ok {
		return nil, "", failure(api.ReasonSessionNotFound)
	}

	playerID := s.playerFor(st, peer)
	if playerID == "" {
		return nil, "", s.attachSnapshot(ctx, st, playerID, failure(api.ReasonIdentityUnresolved))
	}
	if cached, ok := st.processed.Get(opKey(playerID, opID)); ok {
		s.logger.Debug("Replaying processed operation",
			"terminal_id", terminalID,
			"player_id", playerID,
			"operation_id", opID)
		return nil, "", s.attachSnapshot(ctx, st, playerID, &cached)
	}
	return st, playerID, nil
}

// opKey scopes an operation id to the player that sent it
func opKey(playerID, opID string) string {
	if opID == "" {
		return ""
	}
	return playerID + "/" + opID
}

func ownedReservation(st *terminalState, token, peer string) (*models.ReservationRecord, api.Reason) {
	rec, ok := st.reservations[token]
	if !ok {
		return nil, api.ReasonReservationNotFound
	}
	if rec.OwnerPeer != peer {
		return nil, api.ReasonOwnerMismatch
	}
	return rec, ""
}

func validateItemOp(terminalID string, id models.ItemIdentity, amount int) api.Reason {
	if err := validation.ValidateTerminalID(terminalID); err != nil {
		return api.ReasonInvalidTerminal
	}
	if id.IsZero() {
		return api.ReasonInvalidRequest
	}
	if amount <= 0 {
		return api.ReasonInvalidAmount
	}
	return ""
}
