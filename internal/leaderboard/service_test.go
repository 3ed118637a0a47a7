package leaderboard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/songparty/internal/domain"
	"github.com/victornm/songparty/internal/errors"
	"github.com/victornm/songparty/internal/event"
	"github.com/victornm/songparty/internal/leaderboard"
)

func scored(roomID string, scores ...int) domain.EventRoundScored {
	names := []string{"Alice", "Bob", "Carol"}
	r := domain.Room{
		RoomID:  roomID,
		Players: map[string]domain.Player{"h": {ID: "h", Name: "Host", IsHost: true}},
	}
	for i, sc := range scores {
		id := names[i][:1]
		r.Players[id] = domain.Player{ID: id, Name: names[i], Score: sc, JoinOrder: i + 1}
	}

	return domain.EventRoundScored{Room: r}
}

func TestService_UpdateLeaderboard(t *testing.T) {
	s := makeService(t)

	err := s.UpdateLeaderboard(context.Background(), scored("AB12", 10, 20, 10))
	require.NoError(t, err)

	resp, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{
		RoomID: "AB12",
	})
	require.NoError(t, err)

	want := &domain.Leaderboard{
		RoomID: "AB12",
		Entries: []domain.LeaderboardEntry{
			{PlayerID: "B", Name: "Bob", Score: 20},
			{PlayerID: "A", Name: "Alice", Score: 10},
			{PlayerID: "C", Name: "Carol", Score: 10},
		},
	}
	require.Equal(t, want, resp)
}

func TestService_GetLeaderboard_NotFound(t *testing.T) {
	s := makeService(t)

	_, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{RoomID: "NOPE"})
	require.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func TestServer_PublishLeaderboardUpdated(t *testing.T) {
	type (
		inputs struct {
			receivedEvents []domain.EventRoundScored
		}

		outputs struct {
			publishedEvents []domain.EventLeaderboardUpdated
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"should publish correct event leaderboard.updated after receiving round.scored": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventRoundScored{scored("AB12", 10, 0)},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 leaderboard updated event")
				require.Equal(t, domain.Leaderboard{
					RoomID: "AB12",
					Entries: []domain.LeaderboardEntry{
						{PlayerID: "A", Name: "Alice", Score: 10},
						{PlayerID: "B", Name: "Bob", Score: 0},
					},
				}, out.publishedEvents[0].Leaderboard)
			},
		},

		"should publish 2 events leaderboard.updated after receiving events round.scored for 2 different rooms": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventRoundScored{scored("AB12", 10), scored("CD34", 20)},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 2, "should receive 2 leaderboard updated event")
			},
		},

		"should publish 1 event leaderboard.updated after receiving events round.scored for the same room within the publish interval": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventRoundScored{scored("AB12", 10), scored("AB12", 20)},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 leaderboard updated event")
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in, out := tt.arrange(), outputs{}

			eb := event.NewBus()

			var mu sync.Mutex
			eb.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
				mu.Lock()
				out.publishedEvents = append(out.publishedEvents, e.(domain.EventLeaderboardUpdated))
				mu.Unlock()
				return nil
			})

			s := makeService(t,
				withEventBus(eb),
			)

			for _, e := range in.receivedEvents {
				err := s.UpdateLeaderboard(context.Background(), e)
				require.NoError(t, err)
			}

			eb.Stop()

			tt.assert(t, out)
		})
	}
}

func TestService_SubscribesToRoundScored(t *testing.T) {
	eb := event.NewBus()
	s := makeService(t, withEventBus(eb))

	eb.Publish(context.Background(), scored("AB12", 10))
	eb.Stop()

	l, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{RoomID: "AB12"})
	require.NoError(t, err)
	require.Len(t, l.Entries, 1)
}

type options func(c *leaderboard.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}

func makeService(t *testing.T, opts ...options) *leaderboard.Service {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	t.Cleanup(func() { rc.Close() })
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := leaderboard.Config{
		EventBus: event.NewBus(),
		Redis:    rc,
		Prefix:   "test",
	}

	for _, opt := range opts {
		opt(&c)
	}

	return leaderboard.NewService(c)
}
