//go:build integration_test

package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/victornm/songparty/internal/api"
	"github.com/victornm/songparty/internal/domain"
)

const (
	addr         = "localhost:9090"
	pubsubPrefix = "songparty"
)

// TestRound plays one round against a running server: three guests submit and guess concurrently while
// the host drives the phases.
func TestRound(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		conn   = makeConn(t)
		wg     = new(sync.WaitGroup)
		guests = []string{"Alice", "Bob", "Carol"}
	)

	host := &player{conn: conn, name: "Host"}
	created := host.call(ctx, t, "CreateRoom", map[string]any{"name": host.name})
	room := field[map[string]any](created, "room")["roomId"].(string)
	host.token = created["token"].(string)
	t.Logf("Room %s created", room)

	// Prepare Redis subscriber
	subscribeToRoom(ctx, t, makeRedis(t), wg, room)

	players := make([]*player, len(guests))
	{
		var eg errgroup.Group
		for i, name := range guests {
			eg.Go(func() error {
				p := &player{conn: conn, name: name}
				resp, err := p.invoke(ctx, "JoinRoom", map[string]any{"roomId": room, "name": name})
				if err != nil {
					return fmt.Errorf("%s join: %w", name, err)
				}
				p.token = resp["token"].(string)
				players[i] = p
				return nil
			})
		}
		require.NoError(t, eg.Wait())
	}

	host.call(ctx, t, "StartGame", nil)
	view := host.call(ctx, t, "OpenSubmissions", nil)
	t.Logf("Question: %s", field[map[string]any](view, "room")["question"])

	{
		var eg errgroup.Group
		for _, p := range players {
			eg.Go(func() error {
				song := map[string]any{"id": uuid.NewString(), "title": p.name + "'s pick", "artist": "Demo"}
				_, err := p.invoke(ctx, "SubmitSong", map[string]any{"song": song})
				return err
			})
		}
		require.NoError(t, eg.Wait())
	}

	for phase(host.call(ctx, t, "GetRoom", map[string]any{"roomId": room})) != domain.PhaseVoting {
		host.call(ctx, t, "NextTrack", nil)
	}

	{
		var eg errgroup.Group
		for i, p := range players {
			target := players[(i+1)%len(players)]
			eg.Go(func() error {
				resp, err := p.invoke(ctx, "GetRoom", map[string]any{"roomId": room})
				if err != nil {
					return fmt.Errorf("%s get room: %w", p.name, err)
				}

				v := field[map[string]any](resp, "room")
				targetID := playerID(v, target.name)
				for _, tr := range v["tracks"].([]any) {
					track := tr.(map[string]any)
					if track["mine"].(bool) {
						continue
					}
					_, err := p.invoke(ctx, "SubmitGuess", map[string]any{
						"submissionId":   track["submissionId"],
						"targetPlayerId": targetID,
					})
					if err != nil {
						return fmt.Errorf("%s guess: %w", p.name, err)
					}
				}
				return nil
			})
		}
		require.NoError(t, eg.Wait())
	}

	host.call(ctx, t, "FinalizeVoting", map[string]any{"force": true})
	for phase(host.call(ctx, t, "GetRoom", map[string]any{"roomId": room})) != domain.PhaseScoreboard {
		host.call(ctx, t, "NextReveal", nil)
	}

	time.Sleep(2 * time.Second)
	lb := host.call(ctx, t, "GetLeaderboard", nil)
	t.Logf("Leaderboard: %v", lb["entries"])

	cancel()
	wg.Wait()
}

type player struct {
	conn  *grpc.ClientConn
	name  string
	token string
}

func (p *player) invoke(ctx context.Context, method string, in map[string]any) (map[string]any, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}

	if p.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+p.token)
	}

	out := new(structpb.Struct)
	if err := p.conn.Invoke(ctx, "/songparty.v1.Game/"+method, req, out); err != nil {
		return nil, err
	}

	return out.AsMap(), nil
}

func (p *player) call(ctx context.Context, t *testing.T, method string, in map[string]any) map[string]any {
	out, err := p.invoke(ctx, method, in)
	require.NoError(t, err, "%s %s", p.name, method)
	return out
}

func field[T any](m map[string]any, name string) T {
	v, _ := m[name].(T)
	return v
}

func phase(resp map[string]any) domain.Phase {
	return domain.Phase(field[string](field[map[string]any](resp, "room"), "phase"))
}

func playerID(room map[string]any, name string) string {
	for _, p := range room["players"].([]any) {
		pl := p.(map[string]any)
		if pl["name"] == name {
			return pl["id"].(string)
		}
	}
	return ""
}

func makeConn(t *testing.T) *grpc.ClientConn {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func subscribeToRoom(ctx context.Context, t *testing.T, rc redis.UniversalClient, wg *sync.WaitGroup, room string) {
	sub := rc.Subscribe(ctx, fmt.Sprintf("%s:room:%s", pubsubPrefix, room))
	t.Cleanup(func() { sub.Close() })

	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			msg, err := sub.ReceiveMessage(ctx)
			if err != nil {
				return
			}

			var n struct {
				Event string          `json:"event"`
				Data  json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				t.Logf("unmarshal notification: %v", err)
				continue
			}

			switch n.Event {
			case domain.EventNameLeaderboardUpdated:
				var l api.Leaderboard
				if err := json.Unmarshal(n.Data, &l); err != nil {
					t.Logf("unmarshal leaderboard: %v", err)
					continue
				}

				t.Logf("leaderboard:\n%s", formatLeaderboard(l))
			}
		}
	}()
}

func makeRedis(t *testing.T) redis.UniversalClient {
	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{"localhost:6379"},
	})
	t.Cleanup(func() { r.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.Ping(ctx).Err(); err != nil {
		t.Fatal(err)
	}

	return r
}

func formatLeaderboard(l api.Leaderboard) string {
	var s string
	for _, e := range l.Entries {
		s += fmt.Sprintf("%s: %d\n", e.Name, e.Score)
	}
	return s
}
