package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/victornm/songparty/internal/api"
	"github.com/victornm/songparty/internal/event"
	"github.com/victornm/songparty/internal/game"
	"github.com/victornm/songparty/internal/history"
	"github.com/victornm/songparty/internal/history/migrations"
	"github.com/victornm/songparty/internal/identity"
	"github.com/victornm/songparty/internal/leaderboard"
	"github.com/victornm/songparty/internal/music"
	"github.com/victornm/songparty/internal/openai"
	"github.com/victornm/songparty/internal/question"
	"github.com/victornm/songparty/internal/speech"
	"github.com/victornm/songparty/internal/store"
	"github.com/victornm/songparty/internal/telemetry"
)

type RedisConfig struct {
	Addrs  []string
	Pass   string
	Prefix string
}

type Config struct {
	HTTP struct {
		Port         int32
		PublicURL    string
		AllowOrigins []string
	}

	GRPC struct {
		Port int32
	}

	Redis struct {
		Store struct {
			Addrs      []string
			Pass       string
			Prefix     string
			RoomTTL    time.Duration
			MaxRetries int
		}

		Pubsub      RedisConfig
		Leaderboard RedisConfig
	}

	Postgres struct {
		History struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}

	Game struct {
		Rounds            int
		MinPlayers        int
		PointsPerCorrect  int
		CodeLength        int
		RequireAllGuesses bool
		ServiceTimeout    time.Duration
	}

	OpenAI struct {
		BaseURL     string
		APIKey      string
		Model       string
		SpeechModel string
		Voice       string
	}

	Music struct {
		BaseURL     string
		SearchRate  float64
		SearchBurst int
	}

	Identity struct {
		Secret string
		TTL    time.Duration
	}
}

// DefaultConfig is overridden by the config file and the environment.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.HTTP.PublicURL = "http://localhost:8080"
	c.GRPC.Port = 9090
	c.Redis.Store.Prefix = "songparty"
	c.Redis.Store.RoomTTL = 12 * time.Hour
	c.Redis.Pubsub.Prefix = "songparty"
	c.Redis.Leaderboard.Prefix = "songparty"
	c.Game.Rounds = game.DefaultRounds
	c.Game.MinPlayers = game.DefaultMinGuests
	c.Game.PointsPerCorrect = game.DefaultPointsPerCorrect
	c.Game.CodeLength = game.DefaultCodeLength
	c.Game.ServiceTimeout = 8 * time.Second
	c.Identity.TTL = 24 * time.Hour
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			store       redis.UniversalClient
			pubsub      redis.UniversalClient
			leaderboard redis.UniversalClient
		}

		postgres struct {
			history *pgxpool.Pool
		}
	}

	service struct {
		game        *game.Service
		leaderboard *leaderboard.Service
		history     *history.Service
		search      *music.Searcher
		catalog     *music.Catalog
		tokens      *identity.Tokens
		credentials *identity.RedisCredentials
	}

	http *http.Server
	grpc *grpc.Server
}

// ErrNoSecret is returned by Init when no identity secret is configured.
var ErrNoSecret = errors.New("server: identity secret is required")

func Init(c Config) (*Server, error) {
	// Tokens signed with an empty key can be minted by anyone.
	if c.Identity.Secret == "" {
		return nil, ErrNoSecret
	}

	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

// initRedis connects the configured clients. A client without addresses stays nil and the features that
// need it are reported as not configured.
func (s *Server) initRedis() error {
	connect := func(name string, c RedisConfig) (redis.UniversalClient, error) {
		if len(c.Addrs) == 0 {
			slog.Warn("server: redis not configured", "client", name)
			return nil, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    c.Addrs,
			Password: c.Pass,
		})

		if err := telemetry.MonitorRedis(r, name); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.store, err = connect("store", RedisConfig{
		Addrs:  s.c.Redis.Store.Addrs,
		Pass:   s.c.Redis.Store.Pass,
		Prefix: s.c.Redis.Store.Prefix,
	})
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	s.infra.redis.pubsub, err = connect("pubsub", s.c.Redis.Pubsub)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	s.infra.redis.leaderboard, err = connect("leaderboard", s.c.Redis.Leaderboard)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() error {
	h := s.c.Postgres.History
	if h.Addr == "" {
		slog.Warn("server: postgres not configured, history disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s", h.User, h.Pass, h.Addr, h.Name)
	if err := migrations.Up(ctx, dsn); err != nil {
		return fmt.Errorf("history: %w", err)
	}

	cc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return fmt.Errorf("history: %w", err)
	}

	s.infra.postgres.history = db
	return nil
}

func (s *Server) initService() {
	ai := openai.NewClient(openai.Config{
		BaseURL:     s.c.OpenAI.BaseURL,
		APIKey:      s.c.OpenAI.APIKey,
		Model:       s.c.OpenAI.Model,
		SpeechModel: s.c.OpenAI.SpeechModel,
		Voice:       s.c.OpenAI.Voice,
	})

	var (
		questionGen question.Generator
		matcher     *music.TextMatcher
		synth       speech.Synthesizer
	)
	if ai.Configured() {
		questionGen = ai
		matcher = music.NewTextMatcher(ai)
		synth = ai
	} else {
		slog.Warn("server: openai not configured, using built-in prompts and songs")
	}

	s.service.catalog = music.NewCatalog(music.CatalogConfig{BaseURL: s.c.Music.BaseURL})
	s.service.search = music.NewSearcher(music.SearchConfig{
		Catalog:     s.service.catalog,
		Matcher:     matcher,
		SearchRate:  s.c.Music.SearchRate,
		SearchBurst: s.c.Music.SearchBurst,
	})

	s.service.tokens = identity.NewTokens(identity.TokensConfig{
		Secret: s.c.Identity.Secret,
		TTL:    s.c.Identity.TTL,
	})

	gc := game.Config{
		EventBus:          s.eb,
		Questions:         question.NewService(question.Config{Generator: questionGen}),
		Playback:          s.service.catalog,
		Rounds:            s.c.Game.Rounds,
		MinGuests:         s.c.Game.MinPlayers,
		PointsPerCorrect:  s.c.Game.PointsPerCorrect,
		CodeLength:        s.c.Game.CodeLength,
		RequireAllGuesses: s.c.Game.RequireAllGuesses,
		ServiceTimeout:    s.c.Game.ServiceTimeout,
	}
	if synth != nil {
		gc.Announcer = speech.NewService(speech.Config{Synthesizer: synth})
	}
	if s.infra.redis.store != nil {
		gc.Store = store.NewRedis(store.Config{
			Redis:      s.infra.redis.store,
			Prefix:     s.c.Redis.Store.Prefix,
			RoomTTL:    s.c.Redis.Store.RoomTTL,
			MaxRetries: s.c.Redis.Store.MaxRetries,
		})
		s.service.credentials = identity.NewRedisCredentials(identity.CredentialsConfig{
			Redis:  s.infra.redis.store,
			Prefix: s.c.Redis.Store.Prefix,
		})
		gc.Credentials = s.service.credentials
	}
	s.service.game = game.NewService(gc)

	if s.infra.redis.leaderboard != nil {
		s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
			EventBus: s.eb,
			Redis:    s.infra.redis.leaderboard,
			Prefix:   s.c.Redis.Leaderboard.Prefix,
			TTL:      s.c.Redis.Store.RoomTTL,
		})
	}

	if s.infra.postgres.history != nil {
		s.service.history = history.NewService(history.Config{
			EventBus: s.eb,
			DB:       s.infra.postgres.history,
		})
	}
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptors()...)

	c := api.Config{
		GRPC:         s.grpc,
		HTTP:         e,
		AllowOrigins: s.c.HTTP.AllowOrigins,
		EventBus:     s.eb,
		Game:         s.service.game,
		Leaderboard:  s.service.leaderboard,
		History:      s.service.history,
		Search:       s.service.search,
		Catalog:      s.service.catalog,
		Tokens:       s.service.tokens,
		Credentials:  s.service.credentials,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
		PublicURL:    s.c.HTTP.PublicURL,
	}
	if s.infra.redis.pubsub != nil {
		c.Redis = s.infra.redis.pubsub
	}
	api.New(c)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, "server: gRPC listening", "port", s.c.GRPC.Port)
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, "server: HTTP listening", "port", s.c.HTTP.Port, "public_url", s.c.HTTP.PublicURL)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	if db := s.infra.postgres.history; db != nil {
		db.Close()
	}
	for _, r := range []redis.UniversalClient{s.infra.redis.store, s.infra.redis.pubsub, s.infra.redis.leaderboard} {
		if r != nil {
			_ = r.Close()
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
