package leaderboard

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/songparty/internal/domain"
	"github.com/victornm/songparty/internal/errors"
	"github.com/victornm/songparty/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond

	// joinOrderSlots packs the join order under the score in one sorted set score, so that a reverse range
	// ranks by score and then by earliest join. Rooms never come close to this many players.
	joinOrderSlots = 1000
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
	TTL      time.Duration
}

type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    c.TTL,
	}

	if s.ttl <= 0 {
		s.ttl = 12 * time.Hour
	}

	event.On(s.eb, domain.EventNameRoundScored, func(ctx context.Context, e domain.EventRoundScored) error {
		return s.UpdateLeaderboard(ctx, e)
	})

	return s
}

type GetLeaderboardRequest struct {
	RoomID string
}

// GetLeaderboard returns the room's guests ranked by score, highest first. Equal scores keep join order.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.getLeaderboardKey(req.RoomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard not found: room=%s", req.RoomID))
	}

	ids := make([]string, 0, len(res))
	for _, z := range res {
		ids = append(ids, z.Member.(string))
	}

	names, err := s.redis.HMGet(ctx, s.getNamesKey(req.RoomID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard names: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for i, z := range res {
		name, _ := names[i].(string)
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID: ids[i],
			Name:     name,
			Score:    int(math.Floor(z.Score / joinOrderSlots)),
		})
	}

	return &domain.Leaderboard{
		RoomID:  req.RoomID,
		Entries: entries,
	}, nil
}

// UpdateLeaderboard overwrites every guest's score with the scored room's totals.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventRoundScored) error {
	r := e.Room
	guests := r.Guests()
	if len(guests) == 0 {
		return nil
	}

	members := make([]redis.Z, 0, len(guests))
	names := make(map[string]any, len(guests))
	for _, p := range guests {
		members = append(members, redis.Z{Score: rankScore(p), Member: p.ID})
		names[p.ID] = p.Name
	}

	key, namesKey := s.getLeaderboardKey(r.RoomID), s.getNamesKey(r.RoomID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, members...)
		pipe.HSet(ctx, namesKey, names)
		pipe.Expire(ctx, key, s.ttl)
		pipe.Expire(ctx, namesKey, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublishLeaderboard(ctx, r.RoomID)
}

func rankScore(p domain.Player) float64 {
	return float64(p.Score)*joinOrderSlots + float64(joinOrderSlots-1-min(p.JoinOrder, joinOrderSlots-1))
}

// schedulePublishLeaderboard publishes the leaderboard at most once per interval per room.
// Several instances may score the same room; the SETNX key lets only one of them publish.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, roomID string) error {
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(roomID), time.Now().UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishLeaderboard(ctx, roomID)
}

func (s *Service) publishLeaderboard(ctx context.Context, roomID string) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{
		RoomID: roomID,
	})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: room=%s: %w", roomID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) getLeaderboardKey(room string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, room)
}

func (s *Service) getNamesKey(room string) string {
	return fmt.Sprintf("%s:%s:names", s.prefix, room)
}

func (s *Service) getLeaderboardTimeKey(room string) string {
	return fmt.Sprintf("%s:%s:time", s.prefix, room)
}
