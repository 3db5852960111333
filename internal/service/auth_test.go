package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pinboard/event-delivery-service/config"
	"github.com/pinboard/event-delivery-service/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.MapClaims, key string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func newAuth() *AuthService {
	return NewAuthService(config.AuthConfig{Secret: secret, CacheSize: 16, CacheTTL: time.Minute})
}

func TestAuthService_AcceptsValidToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := sign(t, jwt.MapClaims{
		"sub":   "alice",
		"exp":   exp.Unix(),
		"roles": []string{"member"},
		"scope": "pins:read chat:write",
	}, secret)

	id, err := newAuth().Inspect(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.UserID)
	assert.Equal(t, []string{"member", "pins:read", "chat:write"}, id.Roles)
	assert.True(t, id.ExpiresAt.Equal(exp))
}

func TestAuthService_Rejects(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	cases := map[string]string{
		"empty":        "",
		"garbage":      "not.a.jwt",
		"wrong secret": sign(t, jwt.MapClaims{"sub": "alice", "exp": future}, "other"),
		"expired":      sign(t, jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(-time.Minute).Unix()}, secret),
		"no exp":       sign(t, jwt.MapClaims{"sub": "alice"}, secret),
		"no subject":   sign(t, jwt.MapClaims{"exp": future}, secret),
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "alice", "exp": future}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	cases["alg none"] = unsigned

	a := newAuth()
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			id, err := a.Inspect(context.Background(), token)
			assert.ErrorIs(t, err, ErrUnauthenticated)
			assert.Empty(t, id.UserID, "never anonymous")
		})
	}
}

func TestAuthService_TimeoutFailsClosed(t *testing.T) {
	a := newAuth()
	a.verify = func(string) (model.Identity, error) {
		time.Sleep(200 * time.Millisecond)
		return model.Identity{UserID: "alice"}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	id, err := a.Inspect(ctx, "slow-token")
	assert.ErrorIs(t, err, ErrAuthTimeout)
	assert.Empty(t, id.UserID)
}

func TestAuthService_CachesVerifiedTokens(t *testing.T) {
	a := newAuth()
	calls := 0
	a.verify = func(string) (model.Identity, error) {
		calls++
		return model.Identity{UserID: "alice", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}

	for i := 0; i < 3; i++ {
		id, err := a.Inspect(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, "alice", id.UserID)
	}
	assert.Equal(t, 1, calls)
}

func TestAuthService_IssuerEnforced(t *testing.T) {
	a := NewAuthService(config.AuthConfig{Secret: secret, Issuer: "pinboard-auth"})
	future := time.Now().Add(time.Hour).Unix()

	_, err := a.Inspect(context.Background(), sign(t, jwt.MapClaims{"sub": "alice", "exp": future, "iss": "elsewhere"}, secret))
	assert.ErrorIs(t, err, ErrUnauthenticated)

	id, err := a.Inspect(context.Background(), sign(t, jwt.MapClaims{"sub": "alice", "exp": future, "iss": "pinboard-auth"}, secret))
	require.NoError(t, err)
	assert.Equal(t, "alice", id.UserID)
}
