package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/songparty/internal/errors"
	"github.com/victornm/songparty/internal/identity"
)

func TestTokens(t *testing.T) {
	now := time.Now()
	id := identity.Identity{PlayerID: "p1", PlayerName: "Alice", RoomID: "AB12"}

	tests := map[string]struct {
		token  func(t *testing.T) string
		assert func(t *testing.T, got identity.Identity, err error)
	}{
		"valid token": {
			token: func(t *testing.T) string {
				tok, err := identity.NewTokens(identity.TokensConfig{Secret: "s"}).Issue(id, now)
				require.NoError(t, err)
				return tok
			},
			assert: func(t *testing.T, got identity.Identity, err error) {
				require.NoError(t, err)
				assert.Equal(t, id, got)
			},
		},
		"expired token": {
			token: func(t *testing.T) string {
				tok, err := identity.NewTokens(identity.TokensConfig{Secret: "s", TTL: time.Minute}).Issue(id, now.Add(-time.Hour))
				require.NoError(t, err)
				return tok
			},
			assert: func(t *testing.T, got identity.Identity, err error) {
				assert.ErrorIs(t, err, identity.ErrExpiredToken)
			},
		},
		"other secret": {
			token: func(t *testing.T) string {
				tok, err := identity.NewTokens(identity.TokensConfig{Secret: "other"}).Issue(id, now)
				require.NoError(t, err)
				return tok
			},
			assert: func(t *testing.T, got identity.Identity, err error) {
				assert.ErrorIs(t, err, identity.ErrInvalidToken)
			},
		},
		"garbage": {
			token: func(t *testing.T) string { return "not.a.token" },
			assert: func(t *testing.T, got identity.Identity, err error) {
				assert.True(t, errors.HasCode(err, errors.CodeUnauthenticated))
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := identity.NewTokens(identity.TokensConfig{Secret: "s"}).Verify(tt.token(t))
			tt.assert(t, got, err)
		})
	}
}

func TestRedisCredentials(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { rc.Close() })

	p := identity.NewRedisCredentials(identity.CredentialsConfig{Redis: rc, Prefix: "test"})
	ctx := context.Background()

	_, err := p.Credential(ctx, "AB12")
	assert.ErrorIs(t, err, identity.ErrReauthenticate)

	require.NoError(t, p.Store(ctx, "AB12", "tok", time.Hour))
	got, err := p.Credential(ctx, "AB12")
	require.NoError(t, err)
	assert.Equal(t, "tok", got)

	mr.FastForward(2 * time.Hour)
	_, err = p.Credential(ctx, "AB12")
	assert.ErrorIs(t, err, identity.ErrReauthenticate)

	require.NoError(t, p.Store(ctx, "AB12", "tok2", time.Hour))
	require.NoError(t, p.Invalidate(ctx, "AB12"))
	_, err = p.Credential(ctx, "AB12")
	assert.ErrorIs(t, err, identity.ErrReauthenticate)

	assert.Error(t, p.Store(ctx, "AB12", "", time.Hour))
}
