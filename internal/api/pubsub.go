package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/songparty/internal/domain"
)

const maxConcurrent = 100

type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// PublishLeaderboardUpdated notifies the room channel and each ranked player's own channel.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	if a.redis == nil {
		return nil
	}

	data := toLeaderboard(e.Leaderboard)

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	eg.Go(func() error {
		return a.publishNotification(ctx, a.roomChannel(data.RoomID), e.Name(), data)
	})

	for _, entry := range data.Entries {
		eg.Go(func() error {
			return a.publishNotification(ctx, a.playerChannel(data.RoomID, entry.PlayerID), e.Name(), data)
		})
	}

	return eg.Wait()
}

type PhaseChanged struct {
	RoomID string       `json:"roomId"`
	From   domain.Phase `json:"from"`
	To     domain.Phase `json:"to"`
	// Final is set once the game is over and clients can stop listening.
	Final bool `json:"final"`
}

// PublishPhaseChanged notifies the room channel that the room moved to another phase.
func (a *API) PublishPhaseChanged(ctx context.Context, e domain.EventPhaseChanged) error {
	if a.redis == nil {
		return nil
	}

	return a.publishNotification(ctx, a.roomChannel(e.RoomID), e.Name(), PhaseChanged{
		RoomID: e.RoomID,
		From:   e.From,
		To:     e.To,
		Final:  e.To.Terminal(),
	})
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}

func (a *API) roomChannel(roomID string) string {
	return fmt.Sprintf("%s:room:%s", a.prefix, roomID)
}

func (a *API) playerChannel(roomID, playerID string) string {
	return fmt.Sprintf("%s:room:%s:player:%s", a.prefix, roomID, playerID)
}
