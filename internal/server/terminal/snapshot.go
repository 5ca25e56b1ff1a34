package terminal

import (
	"context"
	"fmt"
	"sort"

	"github.com/iudanet/gophstorage/internal/inventory"
	"github.com/iudanet/gophstorage/internal/models"
	"github.com/iudanet/gophstorage/internal/server/storage"
)

// rescan refreshes the chest list around the terminal anchor
func (s *Service) rescan(ctx context.Context, st *terminalState) error {
	chests, err := s.world.NearbyContainers(ctx, st.anchor, st.radius, st.terminalID)
	if err != nil {
		return fmt.Errorf("failed to scan containers for %s: %w", st.terminalID, err)
	}
	st.chests = chests
	return nil
}

// accessible returns the in-range chests the player may use
func (s *Service) accessible(ctx context.Context, st *terminalState, playerID string) ([]storage.Source, error) {
	if err := s.rescan(ctx, st); err != nil {
		return nil, err
	}
	out := make([]storage.Source, 0, len(st.chests))
	for _, c := range st.chests {
		if c.Accessible(playerID) {
			out = append(out, c)
		}
	}
	return out, nil
}

// buildSnapshot re-reads every accessible chest and aggregates the contents
func (s *Service) buildSnapshot(ctx context.Context, st *terminalState, playerID string) (*Snapshot, error) {
	chests, err := s.accessible(ctx, st, playerID)
	if err != nil {
		return nil, err
	}

	var (
		stacks []models.ItemStack
		slots  int
	)
	for _, c := range chests {
		items, err := c.ReadTotals(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read container %s: %w", c.ID(), err)
		}
		stacks = append(stacks, items...)
		slots += c.Slots()
	}

	totals := inventory.Aggregate(stacks, s.catalog.StackLimit)
	s.catalog.Sort(totals)

	return &Snapshot{
		SessionID:          st.sessionID,
		TerminalID:         st.terminalID,
		Revision:           st.revision,
		Items:              totals,
		SlotsUsedVirtual:   inventory.VirtualSlots(totals),
		SlotsTotalPhysical: slots,
		ChestCount:         len(chests),
	}, nil
}

// attachSnapshot fills res.Snapshot for the caller and the current revision
// when the result carries none. A failed read leaves the snapshot empty.
func (s *Service) attachSnapshot(ctx context.Context, st *terminalState, playerID string, res *Result) *Result {
	if res.Revision == 0 {
		res.Revision = st.revision
	}
	snap, err := s.buildSnapshot(ctx, st, playerID)
	if err != nil {
		s.logger.Error("Failed to build snapshot",
			"terminal_id", st.terminalID,
			"error", err)
		return res
	}
	res.Snapshot = snap
	return res
}

// broadcast queues a delta for every subscriber. One snapshot is built per
// distinct player so owner-restricted chests stay private.
func (s *Service) broadcast(ctx context.Context, st *terminalState, out *[]outbound) {
	peers := make([]string, 0, len(st.subscribers))
	for p := range st.subscribers {
		peers = append(peers, p)
	}
	sort.Strings(peers)

	byPlayer := make(map[string]*Snapshot)
	for _, peer := range peers {
		playerID := st.peerPlayers[peer]
		snap, ok := byPlayer[playerID]
		if !ok {
			var err error
			snap, err = s.buildSnapshot(ctx, st, playerID)
			if err != nil {
				s.logger.Error("Failed to build broadcast snapshot",
					"terminal_id", st.terminalID,
					"player_id", playerID,
					"error", err)
				continue
			}
			byPlayer[playerID] = snap
		}
		*out = append(*out, outbound{
			peer:  peer,
			delta: Delta{TerminalID: st.terminalID, Revision: st.revision, Snapshot: snap},
		})
	}
}
