package event_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/songparty/internal/domain"
	"github.com/victornm/songparty/internal/event"
)

var (
	scored   = domain.EventRoundScored{Room: domain.Room{RoomID: "AB12", RoundID: 1}}
	finished = domain.EventGameFinished{Room: domain.Room{RoomID: "AB12"}}
	changed  = domain.EventPhaseChanged{RoomID: "AB12", From: domain.PhaseReveal, To: domain.PhaseScoreboard}
)

func TestBus_PublishSubscribe(t *testing.T) {
	tests := map[string]struct {
		published   []event.Event
		subscribers map[string][]string
		want        map[string][]string
	}{
		"a subscriber only receives the events it subscribed to": {
			published:   []event.Event{scored, changed},
			subscribers: map[string][]string{"leaderboard": {domain.EventNameRoundScored}},
			want:        map[string][]string{"leaderboard": {domain.EventNameRoundScored}},
		},
		"every publish is delivered": {
			published:   []event.Event{scored, scored},
			subscribers: map[string][]string{"leaderboard": {domain.EventNameRoundScored}},
			want:        map[string][]string{"leaderboard": {domain.EventNameRoundScored, domain.EventNameRoundScored}},
		},
		"an event reaches all of its subscribers": {
			published: []event.Event{scored},
			subscribers: map[string][]string{
				"leaderboard": {domain.EventNameRoundScored},
				"history":     {domain.EventNameRoundScored},
			},
			want: map[string][]string{
				"leaderboard": {domain.EventNameRoundScored},
				"history":     {domain.EventNameRoundScored},
			},
		},
		"several events fan out to several subscribers": {
			published: []event.Event{scored, changed, scored, finished},
			subscribers: map[string][]string{
				"leaderboard": {domain.EventNameRoundScored},
				"history":     {domain.EventNameRoundScored, domain.EventNameGameFinished},
				"audit":       {domain.EventNamePhaseChanged, domain.EventNameGameFinished},
			},
			want: map[string][]string{
				"leaderboard": {domain.EventNameRoundScored, domain.EventNameRoundScored},
				"history":     {domain.EventNameRoundScored, domain.EventNameRoundScored, domain.EventNameGameFinished},
				"audit":       {domain.EventNamePhaseChanged, domain.EventNameGameFinished},
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var mu sync.Mutex
			received := make(map[string][]string)

			b := event.NewBus()
			for sub, names := range tt.subscribers {
				for _, n := range names {
					b.Subscribe(n, func(ctx context.Context, e event.Event) error {
						mu.Lock()
						received[sub] = append(received[sub], e.Name())
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range tt.published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			for sub, want := range tt.want {
				assert.ElementsMatch(t, want, received[sub], sub)
			}
		})
	}
}

func TestOn(t *testing.T) {
	b := event.NewBus()

	var (
		mu  sync.Mutex
		got []string
	)
	event.On(b, "e1", func(ctx context.Context, e eventWithName) error {
		mu.Lock()
		got = append(got, string(e))
		mu.Unlock()
		return nil
	})
	event.On(b, "e1", func(ctx context.Context, e otherEvent) error {
		mu.Lock()
		got = append(got, "other")
		mu.Unlock()
		return nil
	})

	b.Publish(context.Background(), eventWithName("e1"))
	b.Stop()

	assert.Equal(t, []string{"e1"}, got, "only the handler typed to the published event should run")
}

func TestBus_HandlerPanicDoesNotStopBus(t *testing.T) {
	b := event.NewBus()

	var (
		mu    sync.Mutex
		count int
	)
	b.Subscribe("e1", func(ctx context.Context, e event.Event) error {
		panic("boom")
	})
	b.Subscribe("e1", func(ctx context.Context, e event.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	b.Publish(context.Background(), eventWithName("e1"))
	b.Publish(context.Background(), eventWithName("e1"))
	b.Stop()

	assert.Equal(t, 2, count)
}

type otherEvent struct{}

func (otherEvent) Name() string { return "e1" }

type eventWithName string

func (e eventWithName) Name() string {
	return string(e)
}
