package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/victornm/songparty/internal/domain"
)

// Subscribe calls fn with the current room and then with every newer snapshot until the returned
// unsubscribe func is called or ctx is done. Snapshots are delivered latest-wins: a slow fn skips
// intermediate snapshots and never sees an older revision after a newer one.
func (s *Redis) Subscribe(ctx context.Context, roomID string, fn func(r *domain.Room)) (unsubscribe func(), err error) {
	ps := s.redis.Subscribe(ctx, s.channel(roomID))

	// Wait for the subscription to be confirmed before reading, so no write falls in between.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("store: subscribe %s: %w", roomID, err)
	}

	cur, err := s.Read(ctx, roomID)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			_ = ps.Close()
		})
	}

	latest := make(chan *domain.Room, 1)
	latest <- cur

	go func() {
		for msg := range ps.Channel() {
			r, err := decodeNotification(msg.Payload)
			if err != nil {
				slog.WarnContext(ctx, "store: drop malformed notification", "room", roomID, "error", err)
				continue
			}
			offer(latest, r)
		}
	}()

	go func() {
		var last int64 = -1
		for {
			select {
			case <-ctx.Done():
				stop()
				return
			case r := <-latest:
				if r.Revision <= last {
					continue
				}
				last = r.Revision
				fn(r)
			}
		}
	}()

	return stop, nil
}

// offer replaces any undelivered snapshot with r. There is a single producer per channel.
func offer(ch chan *domain.Room, r *domain.Room) {
	for {
		select {
		case ch <- r:
			return
		default:
		}

		select {
		case old := <-ch:
			if old.Revision > r.Revision {
				r = old
			}
		default:
		}
	}
}
