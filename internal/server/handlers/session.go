package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/gophstorage/internal/server/hub"
	"github.com/iudanet/gophstorage/internal/server/middleware"
)

const (
	writeTimeout = 5 * time.Second
	readTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
	maxFrameSize = 64 * 1024
)

// SessionHandler serves the websocket channel carrying session requests,
// responses and pushed deltas.
type SessionHandler struct {
	hub        *hub.Hub
	dispatcher *Dispatcher
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

// NewSessionHandler создает websocket handler
func NewSessionHandler(h *hub.Hub, dispatcher *Dispatcher, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		hub:        h,
		dispatcher: dispatcher,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxFrameSize,
			WriteBufferSize: maxFrameSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Connect обрабатывает GET /api/v1/session. Игрок уже аутентифицирован
// AuthMiddleware.
func (h *SessionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	playerID, ok := middleware.PlayerID(r.Context())
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameSize)

	peer := h.hub.Register(playerID)
	defer h.hub.Unregister(peer.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.writeLoop(ctx, cancel, conn, peer)

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("Websocket read finished", "peer", peer.ID, slog.Any("error", err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		reply := h.dispatcher.Dispatch(ctx, peer.ID, msg)
		if reply == nil {
			continue
		}
		if err := h.hub.Send(peer.ID, *reply); err != nil {
			h.logger.Warn("Response dropped",
				"peer", peer.ID,
				"request_id", reply.RequestID,
				slog.Any("error", err))
			if errors.Is(err, hub.ErrQueueFull) {
				// клиент не читает ответы, разрываем соединение
				return
			}
		}
	}
}

// writeLoop drains the peer queue into the connection and keeps it alive
// with pings.
func (h *SessionHandler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, peer *hub.Peer) {
	defer cancel()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				_ = conn.Close()
				return
			}
		case b, ok := <-peer.Outbound():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				h.logger.Debug("Websocket write failed", "peer", peer.ID, slog.Any("error", err))
				// закрытие соединения разблокирует ReadMessage
				_ = conn.Close()
				return
			}
		}
	}
}
