package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophstorage/internal/catalog"
	"github.com/iudanet/gophstorage/internal/models"
	"github.com/iudanet/gophstorage/internal/server/hub"
	"github.com/iudanet/gophstorage/internal/server/identity"
	"github.com/iudanet/gophstorage/internal/server/middleware"
	"github.com/iudanet/gophstorage/internal/server/storage/memory"
	"github.com/iudanet/gophstorage/internal/server/terminal"
	"github.com/iudanet/gophstorage/pkg/api"
)

var wood = models.ItemIdentity{PrefabID: "Wood", Quality: 1}

type testServer struct {
	srv      *httptest.Server
	world    *memory.World
	svc      *terminal.Service
	hub      *hub.Hub
	identity identity.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := setupTestLogger()
	cat := catalog.MustDefault()

	w := memory.New(cat)
	w.AddContainer("chest-near", models.Vec3{X: 2}, 4, "")
	w.AddContainer("chest-far", models.Vec3{X: 6}, 4, "")
	require.NoError(t, w.Fill("chest-near", wood, 3))
	require.NoError(t, w.Fill("chest-far", wood, 4))
	w.AddPlayer("alice", 0)
	w.AddPlayer("bob", 0)

	h := hub.New(logger, 0)
	svc := terminal.NewService(w, cat, terminal.DefaultConfig(), logger,
		terminal.WithIdentityResolver(h),
		terminal.WithPeerRegistry(h),
		terminal.WithPublisher(h),
	)
	d, err := NewDispatcher(svc, logger)
	require.NoError(t, err)

	idCfg := identity.Config{Secret: []byte("test-secret"), TokenTTL: time.Hour}
	router := NewRouter(RouterConfig{
		Logger:   logger,
		Health:   NewHealthHandler(logger, svc, "test"),
		Token:    NewTokenHandler(logger, w, idCfg),
		Session:  NewSessionHandler(h, d, logger),
		Identity: idCfg,
	})

	ts := &testServer{srv: httptest.NewServer(router), world: w, svc: svc, hub: h, identity: idCfg}
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) token(t *testing.T, player string) string {
	t.Helper()
	body, err := json.Marshal(api.TokenRequest{PlayerID: player})
	require.NoError(t, err)

	resp, err := http.Post(ts.srv.URL+PathToken, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tok api.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
	assert.Equal(t, player, tok.PlayerID)
	assert.Equal(t, int64(3600), tok.ExpiresIn)
	return tok.AccessToken
}

func (ts *testServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.srv.URL, "http")+PathSession, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ api.MessageType, requestID string, payload any) {
	t.Helper()
	env, err := api.NewEnvelope(typ, requestID, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
}

func read(t *testing.T, conn *websocket.Conn) api.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env api.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

// readResponse skips pushed deltas until the response to requestID arrives
func readResponse(t *testing.T, conn *websocket.Conn, requestID string) api.SessionResponse {
	t.Helper()
	for {
		env := read(t, conn)
		if env.Type != api.TypeResponse {
			continue
		}
		require.Equal(t, requestID, env.RequestID)
		var resp api.SessionResponse
		require.NoError(t, env.Decode(&resp))
		return resp
	}
}

func readDelta(t *testing.T, conn *websocket.Conn) api.SessionDelta {
	t.Helper()
	for {
		env := read(t, conn)
		if env.Type != api.TypeSessionDelta {
			continue
		}
		var d api.SessionDelta
		require.NoError(t, env.Decode(&d))
		return d
	}
}

func TestSession_EndToEnd(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.dial(t, ts.token(t, "alice"))
	bob := ts.dial(t, ts.token(t, "bob"))

	open := api.OpenSessionRequest{TerminalID: "terminal-1", Radius: 10}
	send(t, alice, api.TypeOpenSession, "a1", open)
	resp := readResponse(t, alice, "a1")
	require.True(t, resp.Success, "open failed: %s", resp.Reason)
	require.NotNil(t, resp.Snapshot)
	assert.Equal(t, 2, resp.Snapshot.ChestCount)
	require.Len(t, resp.Snapshot.Items, 1)
	assert.Equal(t, 7, resp.Snapshot.Items[0].Amount)

	send(t, bob, api.TypeOpenSession, "b1", open)
	require.True(t, readResponse(t, bob, "b1").Success)

	send(t, alice, api.TypeReserveWithdraw, "a2", api.ReserveWithdrawRequest{
		TerminalID:       "terminal-1",
		OperationID:      "op-1",
		Item:             terminal.IdentityToAPI(wood),
		ExpectedRevision: api.AnyRevision,
		Amount:           5,
	})
	reserve := readResponse(t, alice, "a2")
	require.True(t, reserve.Success)
	assert.Equal(t, 5, reserve.ReservedAmount)
	require.NotEmpty(t, reserve.Token)

	// bob получает дельту с новой ревизией
	delta := readDelta(t, bob)
	assert.Equal(t, "terminal-1", delta.TerminalID)
	assert.Equal(t, reserve.Revision, delta.Revision)
	require.Len(t, delta.Snapshot.Items, 1)
	assert.Equal(t, 2, delta.Snapshot.Items[0].Amount)

	send(t, alice, api.TypeCommitReservation, "a3", api.CommitReservationRequest{
		TerminalID:  "terminal-1",
		OperationID: "op-2",
		Token:       reserve.Token,
	})
	commit := readResponse(t, alice, "a3")
	require.True(t, commit.Success)
	assert.Equal(t, 5, commit.CommittedAmount)
	assert.Equal(t, 5, ts.world.PlayerAmount("alice", wood))

	send(t, alice, api.TypeCloseSession, "a4", api.CloseSessionRequest{TerminalID: "terminal-1"})
	// close_session без ответа: следующий ответ относится к следующему запросу
	send(t, bob, api.TypeReserveWithdraw, "b2", api.ReserveWithdrawRequest{
		TerminalID:       "terminal-1",
		OperationID:      "op-3",
		Item:             terminal.IdentityToAPI(wood),
		ExpectedRevision: 1,
		Amount:           1,
	})
	stale := readResponse(t, bob, "b2")
	assert.False(t, stale.Success)
	assert.Equal(t, api.ReasonConflict, stale.Reason)
	assert.Equal(t, reserve.Revision, stale.Revision)

	require.Eventually(t, func() bool {
		return ts.svc.Stats().Subscribers == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSession_DisconnectRestoresReservation(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.dial(t, ts.token(t, "alice"))

	send(t, alice, api.TypeOpenSession, "a1", api.OpenSessionRequest{TerminalID: "terminal-1", Radius: 10})
	require.True(t, readResponse(t, alice, "a1").Success)
	send(t, alice, api.TypeReserveWithdraw, "a2", api.ReserveWithdrawRequest{
		TerminalID:       "terminal-1",
		OperationID:      "op-1",
		Item:             terminal.IdentityToAPI(wood),
		ExpectedRevision: api.AnyRevision,
		Amount:           3,
	})
	require.True(t, readResponse(t, alice, "a2").Success)
	assert.Equal(t, 4, ts.world.TotalAmount(wood))

	require.NoError(t, alice.Close())
	require.Eventually(t, func() bool { return ts.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)

	ts.svc.Tick(context.Background())
	assert.Equal(t, 7, ts.world.TotalAmount(wood))
	assert.Equal(t, terminal.Stats{}, ts.svc.Stats())
}

func TestSession_Unauthorized(t *testing.T) {
	ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + PathSession

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=forged", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// токен в query принимается
	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+ts.token(t, "alice"), nil)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestSession_InvalidEnvelope(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.dial(t, ts.token(t, "alice"))

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"type":"open_session","request_id":"x1","payload":{}}`)))
	resp := readResponse(t, alice, "x1")
	assert.False(t, resp.Success)
	assert.Equal(t, api.ReasonInvalidRequest, resp.Reason)
}

func TestTokenHandler_Issue(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{name: "unknown player", body: `{"player_id":"carol"}`, expectedStatus: http.StatusNotFound},
		{name: "invalid player id", body: `{"player_id":""}`, expectedStatus: http.StatusBadRequest},
		{name: "malformed body", body: `{`, expectedStatus: http.StatusBadRequest},
		{name: "ok", body: `{"player_id":"bob"}`, expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.srv.URL+PathToken, "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			if tt.expectedStatus == http.StatusOK {
				var tok api.TokenResponse
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
				player, err := identity.Validate(ts.identity, tok.AccessToken)
				require.NoError(t, err)
				assert.Equal(t, "bob", player)
			}
		})
	}
}

func TestTokenHandler_RateLimited(t *testing.T) {
	logger := setupTestLogger()
	w := memory.New(catalog.MustDefault())
	w.AddPlayer("alice", 0)
	idCfg := identity.Config{Secret: []byte("s"), TokenTTL: time.Minute}
	svc := terminal.NewService(w, catalog.MustDefault(), terminal.Config{}, logger)
	d, err := NewDispatcher(svc, logger)
	require.NoError(t, err)

	router := NewRouter(RouterConfig{
		Logger:   logger,
		Health:   NewHealthHandler(logger, svc, "test"),
		Token:    NewTokenHandler(logger, w, idCfg),
		Session:  NewSessionHandler(hub.New(logger, 0), d, logger),
		Limiter:  middleware.NewRateLimiter(1, time.Hour),
		Identity: idCfg,
	})

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, PathToken, strings.NewReader(`{"player_id":"alice"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, "request %d", i)
	}
}

func TestHealthHandler_Health(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.dial(t, ts.token(t, "alice"))
	send(t, alice, api.TypeOpenSession, "a1", api.OpenSessionRequest{TerminalID: "terminal-1"})
	require.True(t, readResponse(t, alice, "a1").Success)

	resp, err := http.Get(ts.srv.URL + PathHealth)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var health api.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
	assert.Equal(t, 1, health.Terminals)
	assert.Equal(t, 1, health.Subscribers)
	assert.Equal(t, 0, health.Reservations)
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.srv.URL + PathToken)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
