package audit

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophstorage/internal/catalog"
	"github.com/iudanet/gophstorage/internal/models"
	"github.com/iudanet/gophstorage/internal/server/storage"
	"github.com/iudanet/gophstorage/internal/server/storage/memory"
)

var wood = models.ItemIdentity{PrefabID: "Wood", Quality: 1}

func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError,
	}
	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}

func TestDropLog_RecordsDrops(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	world := memory.New(catalog.MustDefault())
	log := NewDropLog(world, dir, setupTestLogger())

	drop := storage.WorldDrop{
		DroppedAt:  time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC),
		Identity:   wood,
		TerminalID: "terminal:1:2:3",
		PlayerID:   "alice",
		Reason:     "cancel_overflow",
		Position:   models.Vec3{X: 1, Y: 2, Z: 3},
		Amount:     4,
	}
	require.NoError(t, log.Drop(ctx, drop))
	require.NoError(t, log.Drop(ctx, storage.WorldDrop{Identity: wood, TerminalID: "t", Amount: 2}))

	// невалидный drop не доходит до журнала
	assert.ErrorIs(t, log.Drop(ctx, storage.WorldDrop{Identity: wood}), storage.ErrInvalidAmount)
	require.NoError(t, log.Close())

	assert.Equal(t, 6, world.DroppedAmount(wood))

	entries, err := ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Wood:1:0", entries[0].Item)
	assert.Equal(t, "alice", entries[0].PlayerID)
	assert.Equal(t, models.Vec3{X: 1, Y: 2, Z: 3}, entries[0].Position)
	assert.True(t, drop.DroppedAt.Equal(entries[0].DroppedAt))
	assert.Equal(t, 6, Total(entries, wood))
}

func TestJSONLZstdWriter_Rotation(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "drops")

	now := time.Date(2026, 5, 1, 8, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	require.NoError(t, w.Write(Entry{Item: "a"}))
	first := w.Path(now)

	now = now.Add(2 * time.Minute)
	require.NoError(t, w.Write(Entry{Item: "b"}))
	require.NoError(t, w.Write(Entry{Item: "c"}))
	second := w.Path(now)
	require.NoError(t, w.Close())

	assert.NotEqual(t, first, second)

	got, err := ReadFile(first)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Item)

	got, err = ReadFile(second)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[1].Item)

	all, err := ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(t.TempDir() + "/nope.jsonl.zst")
	assert.Error(t, err)
}
