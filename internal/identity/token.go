// Package identity issues the tokens players use to act and rejoin, and keeps the host's music credential.
package identity

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/victornm/songparty/internal/errors"
)

const defaultTokenTTL = 24 * time.Hour

var (
	ErrInvalidToken = errors.New(errors.CodeUnauthenticated, errors.WithMessagef("invalid identity token"))
	ErrExpiredToken = errors.New(errors.CodeUnauthenticated, errors.WithMessagef("identity token expired, join again"))

	errSigningMethod = stderrors.New("unexpected signing method")
)

// Identity is who a client is within one room.
type Identity struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	RoomID     string `json:"roomId"`
}

type claims struct {
	Identity
	jwt.RegisteredClaims
}

type TokensConfig struct {
	Secret string
	TTL    time.Duration
}

// Tokens signs identities with HMAC.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

func NewTokens(c TokensConfig) *Tokens {
	t := &Tokens{
		secret: []byte(c.Secret),
		ttl:    c.TTL,
	}

	if t.ttl <= 0 {
		t.ttl = defaultTokenTTL
	}

	return t
}

func (t *Tokens) Issue(id Identity, now time.Time) (string, error) {
	c := claims{
		Identity: id,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.PlayerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("identity: sign token: %w", err)
	}

	return signed, nil
}

func (t *Tokens) Verify(token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errSigningMethod
		}
		return t.secret, nil
	})

	switch {
	case stderrors.Is(err, jwt.ErrTokenExpired):
		return Identity{}, ErrExpiredToken
	case err != nil:
		return Identity{}, ErrInvalidToken.Wrap(err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.PlayerID == "" || c.RoomID == "" {
		return Identity{}, ErrInvalidToken
	}

	return c.Identity, nil
}
