// Package hub tracks connected peers, their proven player identity and their
// outbound message queues.
package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/iudanet/gophstorage/internal/server/terminal"
	"github.com/iudanet/gophstorage/pkg/api"
)

// DefaultQueueSize is the outbound queue length per peer
const DefaultQueueSize = 64

var (
	// ErrPeerNotFound возвращается, если пир уже отключен
	ErrPeerNotFound = errors.New("peer not found")
	// ErrQueueFull возвращается, если очередь исходящих сообщений переполнена
	ErrQueueFull = errors.New("peer queue full")
)

var (
	_ terminal.Publisher        = (*Hub)(nil)
	_ terminal.PeerRegistry     = (*Hub)(nil)
	_ terminal.IdentityResolver = (*Hub)(nil)
)

// Peer is one live connection
type Peer struct {
	out      chan []byte
	ID       string
	PlayerID string
}

// Outbound returns the queue drained by the connection writer. It is closed
// when the peer is unregistered.
func (p *Peer) Outbound() <-chan []byte {
	return p.out
}

// Hub is the registry of connected peers
type Hub struct {
	logger    *slog.Logger
	peers     map[string]*Peer
	newID     func() string
	queueSize int
	mu        sync.RWMutex
}

// New creates a hub. A non-positive queueSize selects DefaultQueueSize.
func New(logger *slog.Logger, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		logger:    logger,
		peers:     make(map[string]*Peer),
		newID:     uuid.NewString,
		queueSize: queueSize,
	}
}

// Register adds a peer authenticated as playerID
func (h *Hub) Register(playerID string) *Peer {
	p := &Peer{
		ID:       h.newID(),
		PlayerID: playerID,
		out:      make(chan []byte, h.queueSize),
	}

	h.mu.Lock()
	h.peers[p.ID] = p
	h.mu.Unlock()

	h.logger.Info("Peer connected", "peer", p.ID, "player_id", playerID)
	return p
}

// Unregister removes the peer and closes its queue
func (h *Hub) Unregister(peerID string) {
	h.mu.Lock()
	p, ok := h.peers[peerID]
	if ok {
		delete(h.peers, peerID)
		close(p.out)
	}
	h.mu.Unlock()

	if ok {
		h.logger.Info("Peer disconnected", "peer", peerID, "player_id", p.PlayerID)
	}
}

// IsConnected implements terminal.PeerRegistry
func (h *Hub) IsConnected(peerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.peers[peerID]
	return ok
}

// ResolvePlayer implements terminal.IdentityResolver
func (h *Hub) ResolvePlayer(peerID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.peers[peerID]
	if !ok || p.PlayerID == "" {
		return "", false
	}
	return p.PlayerID, true
}

// Count returns the number of connected peers
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Send encodes the envelope and queues it without blocking
func (h *Hub) Send(peerID string, env api.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	// очередь закрывается только под write-lock, поэтому отправка под read-lock безопасна
	h.mu.RLock()
	defer h.mu.RUnlock()

	p, ok := h.peers[peerID]
	if !ok {
		return ErrPeerNotFound
	}
	select {
	case p.out <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// Publish implements terminal.Publisher. Lost deltas are healed by the next
// revision the peer receives.
func (h *Hub) Publish(peerID string, delta terminal.Delta) {
	env, err := api.NewEnvelope(api.TypeSessionDelta, "", delta.ToAPI())
	if err != nil {
		h.logger.Error("Failed to encode delta", "peer", peerID, slog.Any("error", err))
		return
	}

	if err := h.Send(peerID, env); err != nil {
		h.logger.Debug("Delta dropped",
			"peer", peerID,
			"terminal_id", delta.TerminalID,
			"revision", delta.Revision,
			slog.Any("error", err))
	}
}
