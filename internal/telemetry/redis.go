package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// MonitorRedis instruments a client. name tells the store, pubsub and leaderboard clients apart.
func MonitorRedis(r redis.UniversalClient, name string) error {
	if err := redisotel.InstrumentTracing(r); err != nil {
		return fmt.Errorf("instrument tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(r); err != nil {
		return fmt.Errorf("instrument metrics: %w", err)
	}
	r.AddHook(redisLog{name: name})
	return nil
}

type redisLog struct {
	name string
}

func (h redisLog) DialHook(hook redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := hook(ctx, network, addr)
		if err != nil {
			slog.WarnContext(ctx, "redis: dial failed", "client", h.name, "addr", addr, "error", err)
			return nil, err
		}

		slog.InfoContext(ctx, "redis: connected", "client", h.name, "network", network, "addr", addr)
		return conn, nil
	}
}

func (h redisLog) ProcessHook(hook redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := hook(ctx, cmd)
		h.log(ctx, "redis: command", cmd.Name(), err)
		return err
	}
}

func (h redisLog) ProcessPipelineHook(hook redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := hook(ctx, cmds)
		h.log(ctx, "redis: pipeline", fmt.Sprintf("%d commands", len(cmds)), err)
		return err
	}
}

// log treats redis.Nil as a regular miss and TxFailedErr as an expected optimistic retry.
func (h redisLog) log(ctx context.Context, msg, what string, err error) {
	switch err {
	case nil, redis.Nil, redis.TxFailedErr:
		slog.DebugContext(ctx, msg, "client", h.name, "cmd", what, "error", err)
	default:
		RedisErrors.WithLabelValues(h.name).Inc()
		slog.WarnContext(ctx, msg+" failed", "client", h.name, "cmd", what, "error", err)
	}
}
