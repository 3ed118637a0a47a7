package identity

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/songparty/internal/errors"
)

// ErrReauthenticate means the room has no valid music credential and the host has to connect again.
var ErrReauthenticate = errors.New(errors.CodeUnauthenticated, errors.WithMessagef("music service credential expired, reconnect"))

type CredentialsConfig struct {
	Redis  redis.UniversalClient
	Prefix string
}

// RedisCredentials keeps each room's music credential until it expires. It is the only credential provider:
// callers ask for the current credential and get ErrReauthenticate once it is gone, whichever flow issued it.
type RedisCredentials struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisCredentials(c CredentialsConfig) *RedisCredentials {
	return &RedisCredentials{
		redis:  c.Redis,
		prefix: c.Prefix,
	}
}

// Store saves the room's credential, valid for expiresIn.
func (p *RedisCredentials) Store(ctx context.Context, roomID, token string, expiresIn time.Duration) error {
	if token == "" || expiresIn <= 0 {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("credential and a positive expiry are required"))
	}

	if err := p.redis.Set(ctx, p.key(roomID), token, expiresIn).Err(); err != nil {
		return fmt.Errorf("identity: store credential: %w", err)
	}

	return nil
}

// Credential returns the room's current credential.
func (p *RedisCredentials) Credential(ctx context.Context, roomID string) (string, error) {
	token, err := p.redis.Get(ctx, p.key(roomID)).Result()
	if stderrors.Is(err, redis.Nil) {
		return "", ErrReauthenticate
	}
	if err != nil {
		return "", fmt.Errorf("identity: read credential: %w", err)
	}

	return token, nil
}

// Invalidate forgets the credential, typically after the music service rejected it.
func (p *RedisCredentials) Invalidate(ctx context.Context, roomID string) error {
	return p.redis.Del(ctx, p.key(roomID)).Err()
}

func (p *RedisCredentials) key(roomID string) string {
	return fmt.Sprintf("%s:room:%s:credential", p.prefix, roomID)
}
