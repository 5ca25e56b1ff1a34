package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/gophstorage/internal/server/identity"
)

type contextKey string

const playerIDKey contextKey = "player_id"

// WithPlayerID stores the authenticated player in ctx
func WithPlayerID(ctx context.Context, playerID string) context.Context {
	return context.WithValue(ctx, playerIDKey, playerID)
}

// PlayerID returns the player authenticated by AuthMiddleware
func PlayerID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(playerIDKey).(string)
	return id, ok && id != ""
}

// AuthMiddleware проверяет identity токен игрока.
// Токен берется из заголовка Authorization: Bearer <token>, а если его нет,
// из query параметра token (браузерные websocket клиенты не умеют заголовки).
func AuthMiddleware(logger *slog.Logger, cfg identity.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractToken(r)
			if !ok {
				logger.Warn("Missing or malformed credentials", "path", r.URL.Path)
				writeError(logger, w, "unauthorized: missing token", http.StatusUnauthorized)
				return
			}

			playerID, err := identity.Validate(cfg, token)
			if err != nil {
				logger.Warn("Invalid identity token", slog.Any("error", err))
				writeError(logger, w, "unauthorized: invalid token", http.StatusUnauthorized)
				return
			}

			logger.Debug("Player authenticated", "player_id", playerID)
			next.ServeHTTP(w, r.WithContext(WithPlayerID(r.Context(), playerID)))
		})
	}
}

func extractToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}

	token := r.URL.Query().Get("token")
	return token, token != ""
}
