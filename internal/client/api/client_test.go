package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophstorage/pkg/api"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/")
	assert.Equal(t, "http://localhost:8080", client.baseURL)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
}

func TestClient_IssueToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/token", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req api.TokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.PlayerID != "alice" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "player not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(api.TokenResponse{AccessToken: "jwt", PlayerID: "alice", ExpiresIn: 60})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	resp, err := client.IssueToken(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "jwt", resp.AccessToken)
	assert.Equal(t, int64(60), resp.ExpiresIn)

	_, err = client.IssueToken(context.Background(), "carol")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "player not found")
	assert.Contains(t, err.Error(), "404")
}

func TestClient_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/health" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
			return
		}
		_ = json.NewEncoder(w).Encode(api.HealthResponse{Status: "ok", Terminals: 2})
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Terminals)

	_, err = NewClient(server.URL+"/broken").Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestSessionURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "http://localhost:8080", want: "ws://localhost:8080/api/v1/session"},
		{in: "https://example.com/game/", want: "wss://example.com/game/api/v1/session"},
		{in: "ws://h:1", want: "ws://h:1/api/v1/session"},
		{in: "ftp://h", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := SessionURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// echoServer answers every request with a success response carrying the
// same request id and pushes a delta before it.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var env api.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			delta, _ := api.NewEnvelope(api.TypeSessionDelta, "", api.SessionDelta{TerminalID: "t1", Revision: 2, Success: true})
			_ = conn.WriteJSON(delta)
			resp, _ := api.NewEnvelope(api.TypeResponse, env.RequestID, api.SessionResponse{Success: true, Revision: 2})
			_ = conn.WriteJSON(resp)
		}
	}))
}

func TestConn_CallAndIncoming(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Dial(ctx, server.URL, "good", setupTestLogger())
	require.NoError(t, err)
	defer conn.Close()

	resp, err := conn.Call(ctx, api.TypeOpenSession, api.OpenSessionRequest{TerminalID: "t1"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, int64(2), resp.Revision)

	select {
	case env := <-conn.Incoming():
		assert.Equal(t, api.TypeSessionDelta, env.Type)
	case <-ctx.Done():
		t.Fatal("delta not delivered")
	}

	// ответ на запрос без Call попадает в Incoming
	env, err := api.NewEnvelope(api.TypeOpenSession, "manual-1", api.OpenSessionRequest{TerminalID: "t1"})
	require.NoError(t, err)
	require.NoError(t, conn.Send(env))

	var gotResponse bool
	for !gotResponse {
		select {
		case env := <-conn.Incoming():
			if env.Type == api.TypeResponse {
				assert.Equal(t, "manual-1", env.RequestID)
				gotResponse = true
			}
		case <-ctx.Done():
			t.Fatal("response not delivered")
		}
	}
}

func TestConn_ClosedByServer(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Dial(ctx, server.URL, "good", setupTestLogger())
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	select {
	case <-conn.Done():
	case <-ctx.Done():
		t.Fatal("read loop did not stop")
	}
	assert.Error(t, conn.Err())
	assert.ErrorIs(t, conn.Send(api.Envelope{Type: api.TypeCloseSession}), ErrClosed)

	_, err = conn.Call(ctx, api.TypeOpenSession, api.OpenSessionRequest{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDial_Unauthorized(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	_, err := Dial(context.Background(), server.URL, "bad", setupTestLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
