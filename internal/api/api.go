package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/victornm/songparty/internal/domain"
	"github.com/victornm/songparty/internal/event"
	"github.com/victornm/songparty/internal/game"
	"github.com/victornm/songparty/internal/history"
	"github.com/victornm/songparty/internal/identity"
	"github.com/victornm/songparty/internal/leaderboard"
	"github.com/victornm/songparty/internal/music"
)

type Config struct {
	GRPC         *grpc.Server
	HTTP         *gin.Engine
	AllowOrigins []string

	EventBus    *event.Bus
	Game        *game.Service
	Leaderboard *leaderboard.Service
	// History is nil when no database is configured.
	History     *history.Service
	Search      *music.Searcher
	Catalog     *music.Catalog
	Tokens      *identity.Tokens
	Credentials *identity.RedisCredentials

	Redis        Redis
	PubsubPrefix string
	PublicURL    string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	game        *game.Service
	leaderboard *leaderboard.Service
	history     *history.Service
	search      *music.Searcher
	catalog     *music.Catalog
	tokens      *identity.Tokens
	credentials *identity.RedisCredentials

	redis     Redis
	prefix    string
	publicURL string
	now       func() time.Time
}

func New(c Config) *API {
	a := &API{
		game:        c.Game,
		leaderboard: c.Leaderboard,
		history:     c.History,
		search:      c.Search,
		catalog:     c.Catalog,
		tokens:      c.Tokens,
		credentials: c.Credentials,
		redis:       c.Redis,
		prefix:      c.PubsubPrefix,
		publicURL:   c.PublicURL,
		now:         time.Now,
	}

	// gRPC APIs
	if c.GRPC != nil {
		c.GRPC.RegisterService(&gameServiceDesc, a)
	}

	// HTTP and websocket APIs
	if c.HTTP != nil {
		a.registerHTTP(c.HTTP, c.AllowOrigins)
	}

	// Register event handlers
	event.On(c.EventBus, domain.EventNameLeaderboardUpdated, func(ctx context.Context, e domain.EventLeaderboardUpdated) error {
		return a.PublishLeaderboardUpdated(ctx, e)
	})
	event.On(c.EventBus, domain.EventNamePhaseChanged, func(ctx context.Context, e domain.EventPhaseChanged) error {
		return a.PublishPhaseChanged(ctx, e)
	})

	return a
}
