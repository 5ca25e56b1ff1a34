// Package terminal is the authority for terminal sessions: it owns one state
// machine per terminal, serializes every mutation behind a single lock,
// manages reservations and revisions, and fans deltas out to subscribers.
package terminal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/gophstorage/internal/catalog"
	"github.com/iudanet/gophstorage/internal/server/storage"
)

const (
	// DefaultReservationTTL is how long a reservation lives without commit or cancel
	DefaultReservationTTL = 3 * time.Second
	// DefaultOperationCacheSize bounds the per-terminal idempotency cache
	DefaultOperationCacheSize = 2048
	// DefaultRadius is the container search radius when a session asks for none
	DefaultRadius = 20.0
	// DefaultMaxRadius caps the requested search radius
	DefaultMaxRadius = 64.0
)

// Config содержит параметры authority
type Config struct {
	ReservationTTL     time.Duration
	OperationCacheSize int
	DefaultRadius      float64
	MaxRadius          float64
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		ReservationTTL:     DefaultReservationTTL,
		OperationCacheSize: DefaultOperationCacheSize,
		DefaultRadius:      DefaultRadius,
		MaxRadius:          DefaultMaxRadius,
	}
}

// IdentityResolver returns the player identity proven by the peer's connection
type IdentityResolver interface {
	ResolvePlayer(peer string) (string, bool)
}

// PeerRegistry reports whether a peer is still connected
type PeerRegistry interface {
	IsConnected(peer string) bool
}

// Publisher delivers a delta to one peer. Delivery is best-effort.
type Publisher interface {
	Publish(peer string, delta Delta)
}

// Stats is a point-in-time count of authority state
type Stats struct {
	Terminals    int
	Subscribers  int
	Reservations int
}

// Service is the terminal authority
type Service struct {
	world     storage.World
	catalog   *catalog.Catalog
	identity  IdentityResolver
	peers     PeerRegistry
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	terminals map[string]*terminalState
	cfg       Config
	mu        sync.Mutex
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces uuid generation for tokens and session ids
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithIdentityResolver sets the connection-level identity source
func WithIdentityResolver(r IdentityResolver) Option {
	return func(s *Service) { s.identity = r }
}

// WithPeerRegistry sets the connection registry consulted by Tick
func WithPeerRegistry(r PeerRegistry) Option {
	return func(s *Service) { s.peers = r }
}

// WithPublisher sets the delta sink
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// NewService creates a new terminal authority
func NewService(world storage.World, cat *catalog.Catalog, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = def.ReservationTTL
	}
	if cfg.OperationCacheSize <= 0 {
		cfg.OperationCacheSize = def.OperationCacheSize
	}
	if cfg.DefaultRadius <= 0 {
		cfg.DefaultRadius = def.DefaultRadius
	}
	if cfg.MaxRadius <= 0 {
		cfg.MaxRadius = def.MaxRadius
	}

	s := &Service{
		world:     world,
		catalog:   cat,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
		terminals: make(map[string]*terminalState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns current counts
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Stats
	st.Terminals = len(s.terminals)
	for _, t := range s.terminals {
		st.Subscribers += len(t.subscribers)
		st.Reservations += len(t.reservations)
	}
	return st
}

// Snapshot builds a fresh read-only snapshot of a terminal for a peer
func (s *Service) Snapshot(ctx context.Context, terminalID, peer string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.terminals[terminalID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.buildSnapshot(ctx, st, st.peerPlayers[peer])
}

// outbound is one queued (peer, delta) pair
type outbound struct {
	peer  string
	delta Delta
}

// run executes fn inside the critical section and publishes queued deltas
// after the lock is released.
func (s *Service) run(fn func(out *[]outbound) (*Result, error)) (*Result, error) {
	var out []outbound

	s.mu.Lock()
	res, err := fn(&out)
	s.mu.Unlock()

	if s.publisher != nil {
		for _, o := range out {
			s.publisher.Publish(o.peer, o.delta)
		}
	}
	return res, err
}

func (s *Service) connected(peer string) bool {
	if s.peers == nil {
		return true
	}
	return s.peers.IsConnected(peer)
}

// playerFor returns the identity bound to peer on this terminal, falling back
// to the connection-level identity.
func (s *Service) playerFor(st *terminalState, peer string) string {
	if p, ok := st.peerPlayers[peer]; ok {
		return p
	}
	if s.identity != nil {
		if p, ok := s.identity.ResolvePlayer(peer); ok {
			return p
		}
	}
	return ""
}

func revisionConflict(expected, current int64) bool {
	return expected >= 0 && expected != current
}
