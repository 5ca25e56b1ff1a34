package hub

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophstorage/internal/server/terminal"
	"github.com/iudanet/gophstorage/pkg/api"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := New(setupTestLogger(), 0)
	assert.Equal(t, DefaultQueueSize, h.queueSize)

	p := h.Register("alice")
	require.NotEmpty(t, p.ID)
	assert.Equal(t, 1, h.Count())
	assert.True(t, h.IsConnected(p.ID))

	player, ok := h.ResolvePlayer(p.ID)
	assert.True(t, ok)
	assert.Equal(t, "alice", player)

	h.Unregister(p.ID)
	assert.Equal(t, 0, h.Count())
	assert.False(t, h.IsConnected(p.ID))
	_, ok = h.ResolvePlayer(p.ID)
	assert.False(t, ok)

	_, open := <-p.Outbound()
	assert.False(t, open, "queue must be closed")

	// повторное отключение безопасно
	h.Unregister(p.ID)
}

func TestHub_ResolvePlayerAnonymous(t *testing.T) {
	h := New(setupTestLogger(), 1)
	p := h.Register("")

	_, ok := h.ResolvePlayer(p.ID)
	assert.False(t, ok)
	assert.True(t, h.IsConnected(p.ID))
}

func TestHub_Send(t *testing.T) {
	h := New(setupTestLogger(), 1)
	p := h.Register("alice")

	env, err := api.NewEnvelope(api.TypeResponse, "req-1", api.SessionResponse{Success: true, Revision: 3})
	require.NoError(t, err)

	require.NoError(t, h.Send(p.ID, env))
	assert.ErrorIs(t, h.Send(p.ID, env), ErrQueueFull)
	assert.ErrorIs(t, h.Send("missing", env), ErrPeerNotFound)

	var got api.Envelope
	require.NoError(t, json.Unmarshal(<-p.Outbound(), &got))
	assert.Equal(t, api.TypeResponse, got.Type)
	assert.Equal(t, "req-1", got.RequestID)

	var resp api.SessionResponse
	require.NoError(t, got.Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(3), resp.Revision)
}

func TestHub_Publish(t *testing.T) {
	h := New(setupTestLogger(), 1)
	p := h.Register("alice")

	delta := terminal.Delta{
		TerminalID: "t1",
		Revision:   5,
		Snapshot:   &terminal.Snapshot{SessionID: "s1", TerminalID: "t1", Revision: 5},
	}
	h.Publish(p.ID, delta)
	// очередь заполнена: вторая дельта отбрасывается без блокировки
	h.Publish(p.ID, delta)
	// отключенный пир игнорируется
	h.Publish("missing", delta)

	var env api.Envelope
	require.NoError(t, json.Unmarshal(<-p.Outbound(), &env))
	assert.Equal(t, api.TypeSessionDelta, env.Type)
	assert.Empty(t, env.RequestID)

	var got api.SessionDelta
	require.NoError(t, env.Decode(&got))
	assert.Equal(t, "t1", got.TerminalID)
	assert.Equal(t, int64(5), got.Revision)
	require.NotNil(t, got.Snapshot)
	assert.Equal(t, "s1", got.Snapshot.SessionID)

	select {
	case <-p.Outbound():
		t.Fatal("second delta must have been dropped")
	default:
	}
}

func TestHub_ConcurrentSendAndUnregister(t *testing.T) {
	h := New(setupTestLogger(), 4)
	p := h.Register("alice")
	env := api.Envelope{Type: api.TypeSessionDelta}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			_ = h.Send(p.ID, env)
		}
	}()
	go func() {
		for range p.Outbound() {
		}
	}()
	h.Unregister(p.ID)
	<-done
	assert.False(t, h.IsConnected(p.ID))
}
