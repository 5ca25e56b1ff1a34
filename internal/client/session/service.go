// Package session keeps the client's local mirror of one storage terminal:
// it projects authoritative snapshots into an editable view, turns player
// edits into reserve/cancel/deposit requests and reconciles their results.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/gophstorage/internal/catalog"
	"github.com/iudanet/gophstorage/internal/models"
	"github.com/iudanet/gophstorage/internal/validation"
	"github.com/iudanet/gophstorage/pkg/api"
)

var (
	ErrAlreadyOpen     = errors.New("session already open")
	ErrNotActive       = errors.New("session is not active")
	ErrInvalidSlot     = errors.New("invalid slot")
	ErrEmptySlot       = errors.New("slot is empty")
	ErrSlotOccupied    = errors.New("slot holds another item")
	ErrNothingToMove   = errors.New("nothing to move")
	ErrIdentityRefused = errors.New("terminal refused player identity")
	ErrTerminalGone    = errors.New("terminal no longer exists")
)

// State is the lifecycle of the client session
type State int

const (
	StateInactive State = iota
	StateOpening
	StateActive
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateActive:
		return "active"
	default:
		return "inactive"
	}
}

// Transport delivers envelopes to the authority
type Transport interface {
	Send(env api.Envelope) error
}

// TerminalChecker reports whether the terminal block still exists in the world
type TerminalChecker interface {
	TerminalExists(terminalID string) bool
}

// CheckerFunc adapts a function to TerminalChecker
type CheckerFunc func(terminalID string) bool

func (f CheckerFunc) TerminalExists(terminalID string) bool { return f(terminalID) }

// Config tunes the reconciliation loop
type Config struct {
	Columns         int
	RefreshInterval time.Duration
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	ConflictRetries int
}

// DefaultConfig returns the stock settings
func DefaultConfig() Config {
	return Config{
		Columns:         8,
		RefreshInterval: 2 * time.Second,
		BackoffBase:     250 * time.Millisecond,
		BackoffMax:      8 * time.Second,
		ConflictRetries: 2,
	}
}

// OpenParams describes the terminal the player interacts with
type OpenParams struct {
	TerminalID string
	PlayerID   string
	Anchor     models.Vec3
	Radius     float64
}

// Option configures a Service
type Option func(*Service)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator подменяет генератор request/operation id
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithTerminalCheck enables the terminal existence check on every tick
func WithTerminalCheck(p TerminalChecker) Option {
	return func(s *Service) { s.checker = p }
}

// Service is the client half of the protocol. It is driven by Handle for
// inbound frames and Tick for time, both safe to call from different
// goroutines.
type Service struct {
	transport Transport
	catalog   *catalog.Catalog
	bag       *Bag
	checker   TerminalChecker
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	cfg       Config

	params    OpenParams
	sessionID string
	filter    string
	lastErr   error

	totals     []api.ItemTotal
	slotsUsed  int
	slotsTotal int
	chests     int

	view      View
	displayed map[models.ItemIdentity]int
	deferred  map[models.ItemIdentity]int
	projected [32]byte

	pending      map[string]*pendingOp // по request id
	reservations map[string]*reservation

	nextOpenAt time.Time
	lastOpenAt time.Time

	revision     int64
	openFailures int
	state        State

	hasSnapshot    bool
	projectedValid bool
	projectDirty   bool
	dragging       bool
	detecting      bool

	mu sync.Mutex
}

// NewService создает сервис сессии
func NewService(transport Transport, cat *catalog.Catalog, bag *Bag, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.Columns <= 0 {
		cfg.Columns = def.Columns
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = def.RefreshInterval
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = max(def.BackoffMax, cfg.BackoffBase)
	}
	if cfg.ConflictRetries < 0 {
		cfg.ConflictRetries = 0
	}
	if bag == nil {
		bag = NewBag(nil)
	}

	s := &Service{
		transport:    transport,
		catalog:      cat,
		bag:          bag,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
		cfg:          cfg,
		displayed:    make(map[models.ItemIdentity]int),
		deferred:     make(map[models.ItemIdentity]int),
		pending:      make(map[string]*pendingOp),
		reservations: make(map[string]*reservation),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open starts a session against a terminal
func (s *Service) Open(p OpenParams) error {
	if err := validation.ValidateTerminalID(p.TerminalID); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInactive {
		return ErrAlreadyOpen
	}

	s.reset()
	s.params = p
	s.state = StateOpening
	s.lastErr = nil

	s.logger.Info("Opening terminal session", "terminal", p.TerminalID, "player", p.PlayerID)
	s.sendOpen()
	return nil
}

// Close detaches from the terminal. Uncommitted reservations are restored
// by the authority, so they leave the local bag as well.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.close(nil)
}

func (s *Service) close(cause error) {
	if s.state == StateInactive {
		return
	}

	if env, err := api.NewEnvelope(api.TypeCloseSession, "", api.CloseSessionRequest{TerminalID: s.params.TerminalID}); err == nil {
		if err := s.transport.Send(env); err != nil {
			s.logger.Debug("Close session not delivered", "terminal", s.params.TerminalID, slog.Any("error", err))
		}
	}

	// коммит в полете уже отправлен до close_session и дойдет первым
	for _, r := range s.reservations {
		s.bag.Remove(r.identity, r.cancellable())
	}

	s.logger.Info("Terminal session closed",
		"terminal", s.params.TerminalID,
		"revision", s.revision,
		slog.Any("cause", cause))

	s.reset()
	s.state = StateInactive
	s.lastErr = cause
}

func (s *Service) reset() {
	s.sessionID = ""
	s.revision = 0
	s.totals = nil
	s.slotsUsed, s.slotsTotal, s.chests = 0, 0, 0
	s.view = View{Columns: s.cfg.Columns, Rows: 1}
	s.displayed = make(map[models.ItemIdentity]int)
	s.deferred = make(map[models.ItemIdentity]int)
	s.pending = make(map[string]*pendingOp)
	s.reservations = make(map[string]*reservation)
	s.hasSnapshot = false
	s.projectedValid = false
	s.projectDirty = false
	s.dragging = false
	s.openFailures = 0
	s.nextOpenAt = time.Time{}
	s.lastOpenAt = time.Time{}
}

// Status is a read-only summary of the session
type Status struct {
	TerminalID   string
	SessionID    string
	State        State
	Revision     int64
	ChestCount   int
	SlotsUsed    int
	SlotsTotal   int
	Pending      int
	Reservations int
	Err          error
}

// Status returns the current session summary
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		TerminalID:   s.params.TerminalID,
		SessionID:    s.sessionID,
		State:        s.state,
		Revision:     s.revision,
		ChestCount:   s.chests,
		SlotsUsed:    s.slotsUsed,
		SlotsTotal:   s.slotsTotal,
		Pending:      len(s.pending),
		Reservations: len(s.reservations),
		Err:          s.lastErr,
	}
}

// Idle reports whether nothing is in flight and every reservation is settled
func (s *Service) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateActive && s.hasSnapshot && len(s.pending) == 0 &&
		len(s.reservations) == 0 && len(s.deferred) == 0
}

// View returns a copy of the projected grid
func (s *Service) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.clone()
}

// Bag returns the local inventory mirror
func (s *Service) Bag() *Bag {
	return s.bag
}

// Filter returns the active search filter
func (s *Service) Filter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Tick advances timers: open retries, snapshot refresh, the terminal
// existence check and the commit policy.
func (s *Service) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateInactive {
		return
	}
	if s.checker != nil && !s.checker.TerminalExists(s.params.TerminalID) {
		s.close(ErrTerminalGone)
		return
	}

	now := s.now()
	switch s.state {
	case StateOpening:
		if !s.openInFlight() && !now.Before(s.nextOpenAt) {
			s.sendOpen()
		}
	case StateActive:
		if !s.hasSnapshot && !s.openInFlight() && now.Sub(s.lastOpenAt) >= s.cfg.RefreshInterval {
			s.sendOpen()
		}
		s.commitReady()
	}
}

// backoff returns the delay before the n-th open retry
func (s *Service) backoff(n int) time.Duration {
	d := s.cfg.BackoffBase
	for i := 1; i < n; i++ {
		d *= 2
		if d >= s.cfg.BackoffMax {
			return s.cfg.BackoffMax
		}
	}
	return min(d, s.cfg.BackoffMax)
}
