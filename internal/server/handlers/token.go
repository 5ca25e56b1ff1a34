package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iudanet/gophstorage/internal/server/identity"
	"github.com/iudanet/gophstorage/internal/validation"
	"github.com/iudanet/gophstorage/pkg/api"
)

// PlayerDirectory reports whether a player exists in the world
type PlayerDirectory interface {
	HasPlayer(ctx context.Context, playerID string) (bool, error)
}

// TokenHandler выдает identity токены игрокам
type TokenHandler struct {
	logger  *slog.Logger
	players PlayerDirectory
	cfg     identity.Config
}

// NewTokenHandler создает handler выдачи токенов
func NewTokenHandler(logger *slog.Logger, players PlayerDirectory, cfg identity.Config) *TokenHandler {
	return &TokenHandler{
		logger:  logger,
		players: players,
		cfg:     cfg,
	}
}

// Issue обрабатывает POST /api/v1/token
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode token request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validation.ValidatePlayerID(req.PlayerID); err != nil {
		h.logger.WarnContext(ctx, "invalid player id", slog.String("player_id", req.PlayerID), slog.Any("error", err))
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	ok, err := h.players.HasPlayer(ctx, req.PlayerID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to look up player", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !ok {
		sendError(h.logger, w, "player not found", http.StatusNotFound)
		return
	}

	token, expiresIn, err := identity.Issue(h.cfg, req.PlayerID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue token", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "token issued", slog.String("player_id", req.PlayerID))
	sendJSON(h.logger, w, api.TokenResponse{
		AccessToken: token,
		PlayerID:    req.PlayerID,
		ExpiresIn:   expiresIn,
	}, http.StatusOK)
}
