package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{Secret: []byte("test-secret"), TokenTTL: time.Hour}
}

func TestIssueAndValidate(t *testing.T) {
	cfg := testConfig()

	token, expiresIn, err := Issue(cfg, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, int64(3600), expiresIn)

	player, err := Validate(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", player)
}

func TestIssue_Errors(t *testing.T) {
	_, _, err := Issue(testConfig(), "a")
	assert.Error(t, err)

	_, _, err = Issue(Config{TokenTTL: time.Hour}, "alice")
	assert.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	cfg := testConfig()
	good, _, err := Issue(cfg, "alice")
	require.NoError(t, err)

	expired, _, err := Issue(Config{Secret: cfg.Secret, TokenTTL: -time.Minute}, "alice")
	require.NoError(t, err)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, CustomClaims{
		PlayerID:         "alice",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
	})
	foreignToken, err := foreign.SignedString(cfg.Secret)
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, CustomClaims{
		PlayerID:         "alice",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		cfg   Config
		token string
	}{
		{name: "garbage", cfg: cfg, token: "not-a-token"},
		{name: "wrong secret", cfg: Config{Secret: []byte("other")}, token: good},
		{name: "expired", cfg: cfg, token: expired},
		{name: "wrong issuer", cfg: cfg, token: foreignToken},
		{name: "alg none", cfg: cfg, token: noneToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.cfg, tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
