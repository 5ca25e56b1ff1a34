package terminal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophstorage/internal/catalog"
	"github.com/iudanet/gophstorage/internal/models"
	"github.com/iudanet/gophstorage/internal/server/storage"
	"github.com/iudanet/gophstorage/internal/server/storage/memory"
	"github.com/iudanet/gophstorage/pkg/api"
)

const testTerminal = "terminal:0:0:0"

var (
	wood  = models.ItemIdentity{PrefabID: "Wood", Quality: 1}
	stone = models.ItemIdentity{PrefabID: "Stone", Quality: 1}
	flint = models.ItemIdentity{PrefabID: "Flint", Quality: 1}
)

func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors in tests
	}
	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}

// fakePeers implements PeerRegistry and IdentityResolver
type fakePeers struct {
	players      map[string]string
	disconnected map[string]bool
	mu           sync.Mutex
}

func newFakePeers() *fakePeers {
	return &fakePeers{players: map[string]string{}, disconnected: map[string]bool{}}
}

func (f *fakePeers) bind(peer, player string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.players[peer] = player
}

func (f *fakePeers) disconnect(peer string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected[peer] = true
}

func (f *fakePeers) ResolvePlayer(peer string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.players[peer]
	return p, ok
}

func (f *fakePeers) IsConnected(peer string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.disconnected[peer]
}

// recordingPublisher collects published deltas
type recordingPublisher struct {
	deltas map[string][]Delta
	mu     sync.Mutex
}

func (p *recordingPublisher) Publish(peer string, delta Delta) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deltas == nil {
		p.deltas = map[string][]Delta{}
	}
	p.deltas[peer] = append(p.deltas[peer], delta)
}

func (p *recordingPublisher) For(peer string) []Delta {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Delta(nil), p.deltas[peer]...)
}

type fixture struct {
	world *memory.World
	peers *fakePeers
	pub   *recordingPublisher
	svc   *Service
	now   time.Time
	mu    sync.Mutex
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// newFixture builds the wood scenario world: a near chest with 3 wood and a
// far chest with 4 wood around the terminal at the origin.
func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	cat := catalog.MustDefault()
	w := memory.New(cat)
	w.AddContainer("chest-near", models.Vec3{X: 2}, 4, "")
	w.AddContainer("chest-far", models.Vec3{X: 6}, 4, "")
	require.NoError(t, w.Fill("chest-near", wood, 3))
	require.NoError(t, w.Fill("chest-far", wood, 4))
	w.AddPlayer("alice", 0)
	w.AddPlayer("bob", 0)

	f := &fixture{
		world: w,
		peers: newFakePeers(),
		pub:   &recordingPublisher{},
		now:   time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	seq := 0
	var seqMu sync.Mutex
	f.svc = NewService(w, cat, cfg, setupTestLogger(),
		WithClock(f.clock),
		WithIDGenerator(func() string {
			seqMu.Lock()
			defer seqMu.Unlock()
			seq++
			return fmt.Sprintf("id-%d", seq)
		}),
		WithIdentityResolver(f.peers),
		WithPeerRegistry(f.peers),
		WithPublisher(f.pub),
	)
	return f
}

func (f *fixture) open(t *testing.T, peer, player string) *Result {
	t.Helper()
	f.peers.bind(peer, player)
	res, err := f.svc.OpenSession(context.Background(), OpenRequest{
		Peer:       peer,
		TerminalID: testTerminal,
		Radius:     10,
	})
	require.NoError(t, err)
	require.True(t, res.Success, "open failed: %s", res.Reason)
	return res
}

func (f *fixture) reserve(t *testing.T, peer, opID string, id models.ItemIdentity, amount int) *Result {
	t.Helper()
	res, err := f.svc.ReserveWithdraw(context.Background(), ReserveRequest{
		Peer:             peer,
		TerminalID:       testTerminal,
		OperationID:      opID,
		ExpectedRevision: api.AnyRevision,
		Identity:         id,
		Amount:           amount,
	})
	require.NoError(t, err)
	return res
}

func totalOf(snap *Snapshot, id models.ItemIdentity) int {
	if snap == nil {
		return 0
	}
	for _, it := range snap.Items {
		if it.Identity == id {
			return it.TotalAmount
		}
	}
	return 0
}

func TestNewService_Defaults(t *testing.T) {
	svc := NewService(memory.New(catalog.MustDefault()), catalog.MustDefault(), Config{}, setupTestLogger())

	assert.Equal(t, DefaultReservationTTL, svc.cfg.ReservationTTL)
	assert.Equal(t, DefaultOperationCacheSize, svc.cfg.OperationCacheSize)
	assert.Equal(t, DefaultRadius, svc.cfg.DefaultRadius)
	assert.Equal(t, DefaultMaxRadius, svc.cfg.MaxRadius)
	assert.Equal(t, Stats{}, svc.Stats())
}

func TestOpenSession_Validation(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	tests := []struct {
		name   string
		req    OpenRequest
		reason api.Reason
	}{
		{
			name:   "empty terminal",
			req:    OpenRequest{Peer: "p1", PlayerID: "alice"},
			reason: api.ReasonInvalidTerminal,
		},
		{
			name:   "malformed terminal",
			req:    OpenRequest{Peer: "p1", TerminalID: "terminal 1", PlayerID: "alice"},
			reason: api.ReasonInvalidTerminal,
		},
		{
			name:   "empty peer",
			req:    OpenRequest{TerminalID: testTerminal, PlayerID: "alice"},
			reason: api.ReasonInvalidRequest,
		},
		{
			name:   "no identity",
			req:    OpenRequest{Peer: "anonymous", TerminalID: testTerminal},
			reason: api.ReasonIdentityUnresolved,
		},
		{
			name:   "invalid requested identity",
			req:    OpenRequest{Peer: "anonymous", TerminalID: testTerminal, PlayerID: "a!"},
			reason: api.ReasonIdentityUnresolved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.OpenSession(ctx, tt.req)
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Nil(t, res.Snapshot)
		})
	}

	assert.Equal(t, 0, f.svc.Stats().Terminals, "failed opens must not create state")
}

func TestOpenSession_Snapshot(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	res := f.open(t, "p1", "alice")

	require.NotNil(t, res.Snapshot)
	snap := res.Snapshot
	assert.Equal(t, int64(1), res.Revision)
	assert.Equal(t, int64(1), snap.Revision)
	assert.Equal(t, "id-1", snap.SessionID)
	assert.Equal(t, testTerminal, snap.TerminalID)
	assert.Equal(t, 2, snap.ChestCount)
	assert.Equal(t, 8, snap.SlotsTotalPhysical)
	assert.Equal(t, 1, snap.SlotsUsedVirtual)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, wood, snap.Items[0].Identity)
	assert.Equal(t, 7, snap.Items[0].TotalAmount)
	assert.Equal(t, 2, snap.Items[0].SourceCount)
	assert.Equal(t, 50, snap.Items[0].StackLimit)

	assert.Equal(t, Stats{Terminals: 1, Subscribers: 1}, f.svc.Stats())
}

func TestOpenSession_RequestedIdentityWithoutResolver(t *testing.T) {
	cat := catalog.MustDefault()
	svc := NewService(memory.New(cat), cat, DefaultConfig(), setupTestLogger())
	ctx := context.Background()

	res, err := svc.OpenSession(ctx, OpenRequest{Peer: "p1", TerminalID: testTerminal, PlayerID: "alice"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	// повторный open с другим игроком для того же peer: подмена личности
	res, err = svc.OpenSession(ctx, OpenRequest{Peer: "p1", TerminalID: testTerminal, PlayerID: "mallory"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, api.ReasonIdentityMismatch, res.Reason)
	assert.Equal(t, int64(1), res.Revision)

	// тот же игрок без явного запроса берется из привязки
	res, err = svc.OpenSession(ctx, OpenRequest{Peer: "p1", TerminalID: testTerminal})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestOpenSession_IdentityMismatchWithResolver(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.peers.bind("p1", "alice")

	res, err := f.svc.OpenSession(context.Background(), OpenRequest{
		Peer:       "p1",
		TerminalID: testTerminal,
		PlayerID:   "bob",
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, api.ReasonIdentityMismatch, res.Reason)
	assert.ErrorIs(t, res.Err(), ErrIdentity)
}

func TestOpenSession_RadiusClamp(t *testing.T) {
	f := newFixture(t, Config{DefaultRadius: 3, MaxRadius: 5})
	f.peers.bind("p1", "alice")
	ctx := context.Background()

	// радиус по умолчанию 3 видит только ближний сундук
	res, err := f.svc.OpenSession(ctx, OpenRequest{Peer: "p1", TerminalID: testTerminal})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Snapshot.ChestCount)
	assert.Equal(t, 3, totalOf(res.Snapshot, wood))

	// запрошенный радиус 100 ограничен пятью, дальний сундук на 6 не виден
	res, err = f.svc.OpenSession(ctx, OpenRequest{Peer: "p1", TerminalID: testTerminal, Radius: 100})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Snapshot.ChestCount)
}

func TestOpenSession_SessionIDRegeneratedForFirstSubscriber(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	first := f.open(t, "p1", "alice")
	second := f.open(t, "p2", "bob")
	assert.Equal(t, first.Snapshot.SessionID, second.Snapshot.SessionID)

	// bob держит резерв, поэтому состояние переживает уход всех подписчиков
	f.peers.bind("p3", "bob")
	res := f.reserve(t, "p3", "op-1", wood, 1)
	require.True(t, res.Success)

	require.NoError(t, f.svc.CloseSession(ctx, "p1", testTerminal))
	require.NoError(t, f.svc.CloseSession(ctx, "p2", testTerminal))
	assert.Equal(t, 1, f.svc.Stats().Terminals)

	reopened := f.open(t, "p1", "alice")
	assert.NotEqual(t, first.Snapshot.SessionID, reopened.Snapshot.SessionID)
}

func TestCloseSession_RestoresOwnedReservations(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	f.open(t, "p1", "alice")
	f.open(t, "p2", "bob")
	res := f.reserve(t, "p1", "op-1", wood, 5)
	require.True(t, res.Success)
	require.Equal(t, 2, f.world.TotalAmount(wood))

	require.NoError(t, f.svc.CloseSession(ctx, "p1", testTerminal))

	assert.Equal(t, 7, f.world.TotalAmount(wood))
	assert.Equal(t, Stats{Terminals: 1, Subscribers: 1}, f.svc.Stats())

	deltas := f.pub.For("p2")
	require.NotEmpty(t, deltas)
	last := deltas[len(deltas)-1]
	assert.Equal(t, int64(3), last.Revision)
	assert.Equal(t, 7, totalOf(last.Snapshot, wood))

	require.NoError(t, f.svc.CloseSession(ctx, "p2", testTerminal))
	assert.Equal(t, Stats{}, f.svc.Stats(), "empty terminal is released")

	// закрытие отсутствующей сессии не ошибка
	assert.NoError(t, f.svc.CloseSession(ctx, "p2", testTerminal))
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	_, err := f.svc.Snapshot(ctx, testTerminal, "p1")
	assert.ErrorIs(t, err, ErrNotFound)

	f.open(t, "p1", "alice")
	require.NoError(t, f.world.Fill("chest-far", stone, 10))

	snap, err := f.svc.Snapshot(ctx, testTerminal, "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, totalOf(snap, stone), "snapshot re-reads containers")
}

func TestSnapshot_OwnerRestrictedChest(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.world.AddContainer("alice-private", models.Vec3{Z: 3}, 10, "alice")
	require.NoError(t, f.world.Fill("alice-private", stone, 20))

	a := f.open(t, "p1", "alice")
	b := f.open(t, "p2", "bob")

	assert.Equal(t, 3, a.Snapshot.ChestCount)
	assert.Equal(t, 20, totalOf(a.Snapshot, stone))
	assert.Equal(t, 2, b.Snapshot.ChestCount)
	assert.Equal(t, 0, totalOf(b.Snapshot, stone))

	// bob не может снять чужое
	res := f.reserve(t, "p2", "op-1", stone, 5)
	assert.False(t, res.Success)
	assert.Equal(t, api.ReasonInsufficientStock, res.Reason)
	assert.Equal(t, 20, f.world.ContainerAmount("alice-private", stone))

	// дельты содержат снимок своего игрока
	res = f.reserve(t, "p1", "op-2", wood, 1)
	require.True(t, res.Success)
	da := f.pub.For("p1")
	db := f.pub.For("p2")
	require.Len(t, da, 1)
	require.Len(t, db, 1)
	assert.Equal(t, 20, totalOf(da[0].Snapshot, stone))
	assert.Equal(t, 0, totalOf(db[0].Snapshot, stone))
	assert.Equal(t, da[0].Revision, db[0].Revision)
}

func TestResult_Err(t *testing.T) {
	tests := []struct {
		reason api.Reason
		want   error
	}{
		{api.ReasonInvalidAmount, ErrValidation},
		{api.ReasonIdentityMismatch, ErrIdentity},
		{api.ReasonConflict, ErrConflict},
		{api.ReasonReservationNotFound, ErrNotFound},
		{api.ReasonNoStorageSpace, ErrCapacity},
		{api.ReasonOwnerMismatch, ErrOwnership},
		{api.ReasonInternal, ErrInternal},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			err := failure(tt.reason).Err()
			assert.True(t, errors.Is(err, tt.want))
			assert.Contains(t, err.Error(), string(tt.reason))
		})
	}

	assert.NoError(t, (&Result{Success: true}).Err())
	var nilResult *Result
	assert.NoError(t, nilResult.Err())
}

// failingWorld wraps the memory world and breaks Remove on one source
type failingWorld struct {
	*memory.World
	failRemove string
}

type failingSource struct {
	storage.Source
	fail bool
}

func (s failingSource) Remove(ctx context.Context, id models.ItemIdentity, amount int) (int, error) {
	if s.fail {
		return 0, errors.New("container jammed")
	}
	return s.Source.Remove(ctx, id, amount)
}

func (w *failingWorld) NearbyContainers(ctx context.Context, anchor models.Vec3, radius float64, exclude string) ([]storage.Source, error) {
	found, err := w.World.NearbyContainers(ctx, anchor, radius, exclude)
	if err != nil {
		return nil, err
	}
	for i, s := range found {
		found[i] = failingSource{Source: s, fail: s.ID() == w.failRemove}
	}
	return found, nil
}
