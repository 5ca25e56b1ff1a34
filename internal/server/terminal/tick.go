package terminal

import (
	"context"
	"sort"

	"github.com/iudanet/gophstorage/internal/models"
)

// Tick drops disconnected subscribers, restores reservations that expired or
// whose owner went away, and releases empty terminals.
func (s *Service) Tick(ctx context.Context) {
	_, _ = s.run(func(out *[]outbound) (*Result, error) {
		now := s.now()

		ids := make([]string, 0, len(s.terminals))
		for id := range s.terminals {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			st := s.terminals[id]

			for peer := range st.subscribers {
				if !s.connected(peer) {
					delete(st.subscribers, peer)
					delete(st.peerPlayers, peer)
					s.logger.Info("Subscriber disconnected",
						"terminal_id", id,
						"peer", peer)
				}
			}

			changed := s.release(ctx, st, dropExpiry, func(rec *models.ReservationRecord) bool {
				return rec.Expired(now) || !s.connected(rec.OwnerPeer)
			})
			if changed {
				st.bump()
				s.broadcast(ctx, st, out)
			}

			s.collect(st)
		}
		return nil, nil
	})
}

// release restores every reservation matching pred in token order and
// reports whether anything went back to the world. A reservation whose
// restore fails stays live for the next tick.
func (s *Service) release(ctx context.Context, st *terminalState, reason string, pred func(*models.ReservationRecord) bool) bool {
	tokens := make([]string, 0, len(st.reservations))
	for token, rec := range st.reservations {
		if pred(rec) {
			tokens = append(tokens, token)
		}
	}
	sort.Strings(tokens)

	changed := false
	for _, token := range tokens {
		rec := st.reservations[token]
		restored, dropped, err := s.restore(ctx, st, rec, rec.Amount, reason)
		if err != nil {
			s.logger.Error("Failed to restore reservation",
				"terminal_id", st.terminalID,
				"token", token,
				"error", err)
			continue
		}
		delete(st.reservations, token)

		s.logger.Info("Reservation released",
			"terminal_id", st.terminalID,
			"token", token,
			"owner", rec.OwnerPeer,
			"item", rec.Identity.String(),
			"restored", restored,
			"dropped", dropped)

		if restored+dropped > 0 {
			changed = true
		}
	}
	return changed
}
