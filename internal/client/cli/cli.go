package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/iudanet/gophstorage/internal/catalog"
	"github.com/iudanet/gophstorage/internal/client/api"
	"github.com/iudanet/gophstorage/internal/client/iocli"
	"github.com/iudanet/gophstorage/internal/client/session"
	"github.com/iudanet/gophstorage/internal/client/storage"
	"github.com/iudanet/gophstorage/internal/config"
	"github.com/iudanet/gophstorage/internal/models"
	wire "github.com/iudanet/gophstorage/pkg/api"
)

const tickInterval = 100 * time.Millisecond

// Store is everything the CLI keeps locally
type Store interface {
	storage.ProfileStorage
	storage.PreferenceStorage
	storage.BagStorage
	Close() error
}

// SessionConn is the websocket channel used by a terminal session
type SessionConn interface {
	Send(env wire.Envelope) error
	Incoming() <-chan wire.Envelope
	Close() error
}

// Dialer opens a session channel
type Dialer func(ctx context.Context, baseURL, token string, logger *slog.Logger) (SessionConn, error)

// DialWebsocket is the production Dialer
func DialWebsocket(ctx context.Context, baseURL, token string, logger *slog.Logger) (SessionConn, error) {
	return api.Dial(ctx, baseURL, token, logger)
}

// Cli holds the dependencies of every command
type Cli struct {
	io      iocli.IO
	cfg     *config.Client
	store   Store
	api     *api.Client
	catalog *catalog.Catalog
	logger  *slog.Logger
	dial    Dialer
}

// New создает CLI поверх открытого хранилища
func New(io iocli.IO, cfg *config.Client, store Store, cat *catalog.Catalog, dial Dialer, logger *slog.Logger) *Cli {
	return &Cli{
		io:      io,
		cfg:     cfg,
		store:   store,
		api:     api.NewClient(cfg.Server),
		catalog: cat,
		logger:  logger,
		dial:    dial,
	}
}

func (c *Cli) requireProfile(ctx context.Context) (*storage.Profile, error) {
	p, err := c.store.GetProfile(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrProfileNotFound) {
			return nil, fmt.Errorf("not logged in. Please run 'gophstorage login <player>' first")
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if time.Now().Unix() >= p.ExpiresAt {
		return nil, fmt.Errorf("token for %s expired. Please run 'gophstorage login %s' again", p.PlayerID, p.PlayerID)
	}
	return p, nil
}

func (c *Cli) viewPreferences(ctx context.Context, terminalID string) (*storage.ViewPreferences, error) {
	prefs, err := c.store.GetView(ctx, terminalID)
	if errors.Is(err, storage.ErrPreferencesNotFound) {
		return &storage.ViewPreferences{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get view preferences: %w", err)
	}
	return prefs, nil
}

// sessionOptions overrides what is derived from the terminal id and preferences
type sessionOptions struct {
	anchor *models.Vec3
	radius float64
}

// sessionResult is what a command reports after the session settled
type sessionResult struct {
	status   session.Status
	view     session.View
	previous int64
}

// runSession opens the terminal, waits for the first snapshot, applies edit
// and waits until every resulting operation settled.
func (c *Cli) runSession(ctx context.Context, terminalID string, opts sessionOptions, edit func(*session.Service) error) (*sessionResult, error) {
	profile, err := c.requireProfile(ctx)
	if err != nil {
		return nil, err
	}
	prefs, err := c.viewPreferences(ctx, terminalID)
	if err != nil {
		return nil, err
	}

	anchor := opts.anchor
	if anchor == nil {
		a, err := AnchorFromTerminalID(terminalID)
		if err != nil {
			return nil, fmt.Errorf("%w; pass --anchor x,y,z", err)
		}
		anchor = &a
	}
	radius := opts.radius
	if radius <= 0 {
		radius = prefs.Radius
	}
	columns := c.cfg.Columns
	if prefs.Columns > 0 {
		columns = prefs.Columns
	}

	items, err := c.store.GetBag(ctx, profile.PlayerID)
	if err != nil {
		return nil, err
	}
	previous, err := c.store.GetLastRevision(ctx, terminalID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	conn, err := c.dial(ctx, profile.ServerURL, profile.AccessToken, c.logger)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	cfg := session.DefaultConfig()
	cfg.Columns = columns
	svc := session.NewService(conn, c.catalog, session.NewBag(items), cfg, c.logger)

	if err := svc.Open(session.OpenParams{
		TerminalID: terminalID,
		PlayerID:   profile.PlayerID,
		Anchor:     *anchor,
		Radius:     radius,
	}); err != nil {
		return nil, err
	}
	svc.SetFilter(prefs.Filter)

	settled := func(s *session.Service) bool { return s.Idle() }
	runErr := session.Run(ctx, svc, conn.Incoming(), tickInterval, settled)
	if runErr == nil && edit != nil {
		if runErr = edit(svc); runErr == nil {
			runErr = session.Run(ctx, svc, conn.Incoming(), tickInterval, settled)
		}
	}

	res := &sessionResult{status: svc.Status(), view: svc.View(), previous: previous}
	svc.Close()

	// сумка сохраняется после Close: незакоммиченные резервации уже вычтены
	if err := c.store.SaveBag(ctx, profile.PlayerID, svc.Bag().Items()); err != nil {
		return nil, err
	}
	if runErr != nil {
		if errors.Is(runErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("terminal %s did not settle within %s", terminalID, c.cfg.Timeout)
		}
		return nil, fmt.Errorf("terminal session failed: %w", runErr)
	}
	if err := c.store.SaveLastRevision(ctx, terminalID, res.status.Revision); err != nil {
		return nil, err
	}
	return res, nil
}

// AnchorFromTerminalID parses positions encoded as "<kind>:x:y:z"
func AnchorFromTerminalID(id string) (models.Vec3, error) {
	parts := strings.Split(id, ":")
	if len(parts) < 4 {
		return models.Vec3{}, fmt.Errorf("terminal id %q carries no position", id)
	}
	return ParseVec3(strings.Join(parts[len(parts)-3:], ","))
}

// ParseVec3 parses "x,y,z"
func ParseVec3(s string) (models.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return models.Vec3{}, fmt.Errorf("invalid position %q, want x,y,z", s)
	}
	var xyz [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return models.Vec3{}, fmt.Errorf("invalid position %q: %w", s, err)
		}
		xyz[i] = v
	}
	return models.Vec3{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}
