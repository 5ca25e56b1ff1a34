package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/gophstorage/internal/server/identity"
	"github.com/iudanet/gophstorage/internal/server/middleware"
)

const (
	PathHealth  = "/api/v1/health"
	PathToken   = "/api/v1/token"
	PathSession = "/api/v1/session"
)

// RouterConfig собирает зависимости HTTP слоя
type RouterConfig struct {
	Logger   *slog.Logger
	Health   *HealthHandler
	Token    *TokenHandler
	Session  *SessionHandler
	Limiter  *middleware.RateLimiter
	Identity identity.Config
}

// NewRouter builds the HTTP handler tree
func NewRouter(cfg RouterConfig) http.Handler {
	limit := func(h http.Handler) http.Handler { return h }
	if cfg.Limiter != nil {
		limit = middleware.RateLimitMiddleware(cfg.Limiter, cfg.Logger)
	}
	auth := middleware.AuthMiddleware(cfg.Logger, cfg.Identity)

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathHealth, cfg.Health.Health)
	if cfg.Token != nil {
		mux.Handle("POST "+PathToken, limit(http.HandlerFunc(cfg.Token.Issue)))
	}
	mux.Handle("GET "+PathSession, limit(auth(http.HandlerFunc(cfg.Session.Connect))))

	var h http.Handler = mux
	h = middleware.LoggingMiddleware(cfg.Logger, PathHealth)(h)
	h = middleware.RecoveryMiddleware(cfg.Logger)(h)
	return h
}

// DefaultRateLimiter limits token issue and connects per client address
func DefaultRateLimiter() *middleware.RateLimiter {
	return middleware.NewRateLimiter(30, time.Minute)
}
