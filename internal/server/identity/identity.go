// Package identity issues and validates the signed tokens that prove which
// player stands behind a connection.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iudanet/gophstorage/internal/validation"
)

// Issuer is written into every token
const Issuer = "gophstorage"

// ErrInvalidToken is returned for any token that does not prove an identity
var ErrInvalidToken = errors.New("invalid token")

// CustomClaims представляет JWT claims игрока
type CustomClaims struct {
	PlayerID string `json:"player_id"`
	jwt.RegisteredClaims
}

// Config содержит конфигурацию для JWT
type Config struct {
	Secret   []byte
	TokenTTL time.Duration
}

// Issue создает новый JWT для игрока
func Issue(cfg Config, playerID string) (string, int64, error) {
	if err := validation.ValidatePlayerID(playerID); err != nil {
		return "", 0, fmt.Errorf("invalid player id: %w", err)
	}
	if len(cfg.Secret) == 0 {
		return "", 0, fmt.Errorf("identity secret is not configured")
	}

	now := time.Now()
	expiresAt := now.Add(cfg.TokenTTL)

	claims := CustomClaims{
		PlayerID: playerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(cfg.Secret)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, int64(cfg.TokenTTL.Seconds()), nil
}

// Validate валидирует токен и возвращает player id
func Validate(cfg Config, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Проверяем что используется правильный алгоритм подписи
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.Secret, nil
	}, jwt.WithIssuer(Issuer))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.PlayerID == "" {
		return "", ErrInvalidToken
	}
	return claims.PlayerID, nil
}
