package terminal

import (
	"context"

	"github.com/iudanet/gophstorage/internal/models"
	"github.com/iudanet/gophstorage/internal/validation"
	"github.com/iudanet/gophstorage/pkg/api"
)

// OpenRequest attaches a peer to a terminal
type OpenRequest struct {
	Peer       string
	TerminalID string
	PlayerID   string // запрошенный клиентом, может быть пустым
	Anchor     models.Vec3
	Radius     float64
}

// OpenSession creates or attaches to the terminal state, binds the peer to
// its player identity and subscribes it to deltas.
func (s *Service) OpenSession(ctx context.Context, req OpenRequest) (*Result, error) {
	if err := validation.ValidateTerminalID(req.TerminalID); err != nil {
		s.logger.Warn("Open session rejected", "terminal_id", req.TerminalID, "error", err)
		return failure(api.ReasonInvalidTerminal), nil
	}
	if req.Peer == "" {
		return failure(api.ReasonInvalidRequest), nil
	}

	return s.run(func(out *[]outbound) (*Result, error) {
		st := s.terminals[req.TerminalID]

		playerID, reason := s.resolveIdentity(st, req.Peer, req.PlayerID)
		if reason != "" {
			s.logger.Warn("Open session identity check failed",
				"terminal_id", req.TerminalID,
				"peer", req.Peer,
				"requested_player", req.PlayerID,
				"reason", reason)
			res := failure(reason)
			if st != nil {
				res.Revision = st.revision
			}
			return res, nil
		}

		if st == nil {
			st = newTerminalState(req.TerminalID, s.newID(), s.cfg.OperationCacheSize)
			s.terminals[req.TerminalID] = st
			s.logger.Info("Terminal state created",
				"terminal_id", st.terminalID,
				"session_id", st.sessionID)
		} else if len(st.subscribers) == 0 {
			st.sessionID = s.newID()
			s.logger.Info("Terminal session restarted",
				"terminal_id", st.terminalID,
				"session_id", st.sessionID)
		}

		st.subscribers[req.Peer] = struct{}{}
		st.peerPlayers[req.Peer] = playerID
		st.anchor = req.Anchor
		st.radius = s.clampRadius(req.Radius)

		s.logger.Debug("Session opened",
			"terminal_id", st.terminalID,
			"peer", req.Peer,
			"player_id", playerID,
			"subscribers", len(st.subscribers))

		return s.attachSnapshot(ctx, st, playerID, &Result{Success: true}), nil
	})
}

// CloseSession detaches the peer and restores every reservation it owns
func (s *Service) CloseSession(ctx context.Context, peer, terminalID string) error {
	_, err := s.run(func(out *[]outbound) (*Result, error) {
		st, ok := s.terminals[terminalID]
		if !ok {
			return nil, nil
		}

		delete(st.subscribers, peer)
		delete(st.peerPlayers, peer)

		changed := s.release(ctx, st, dropCancelOverflow, func(rec *models.ReservationRecord) bool {
			return rec.OwnerPeer == peer
		})
		if changed {
			st.bump()
			s.broadcast(ctx, st, out)
		}

		s.logger.Debug("Session closed",
			"terminal_id", terminalID,
			"peer", peer,
			"subscribers", len(st.subscribers))

		s.collect(st)
		return nil, nil
	})
	return err
}

// resolveIdentity establishes the player behind peer. The connection-level
// identity wins; a previous binding on this terminal must agree with it and
// with whatever the client asked for.
func (s *Service) resolveIdentity(st *terminalState, peer, requested string) (string, api.Reason) {
	var resolved string
	if s.identity != nil {
		if p, ok := s.identity.ResolvePlayer(peer); ok {
			resolved = p
		}
	}

	if st != nil {
		if bound, ok := st.peerPlayers[peer]; ok {
			if resolved != "" && bound != resolved {
				return "", api.ReasonIdentityMismatch
			}
			resolved = bound
		}
	}

	switch {
	case resolved == "" && requested == "":
		return "", api.ReasonIdentityUnresolved
	case resolved == "":
		if err := validation.ValidatePlayerID(requested); err != nil {
			return "", api.ReasonIdentityUnresolved
		}
		return requested, ""
	case requested != "" && requested != resolved:
		return "", api.ReasonIdentityMismatch
	}
	return resolved, ""
}

func (s *Service) clampRadius(r float64) float64 {
	if r <= 0 {
		r = s.cfg.DefaultRadius
	}
	return min(r, s.cfg.MaxRadius)
}

// collect drops a terminal without subscribers and reservations
func (s *Service) collect(st *terminalState) {
	if !st.empty() {
		return
	}
	delete(s.terminals, st.terminalID)
	s.logger.Info("Terminal state released", "terminal_id", st.terminalID)
}
