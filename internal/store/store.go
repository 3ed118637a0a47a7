package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/songparty/internal/domain"
	"github.com/victornm/songparty/internal/errors"
	"github.com/victornm/songparty/internal/telemetry"
)

const (
	defaultRoomTTL    = 12 * time.Hour
	defaultMaxRetries = 100
)

var (
	ErrNotFound      = errors.New(errors.CodeNotFound, errors.WithMessagef("room not found"))
	ErrAlreadyExists = errors.New(errors.CodeAlreadyExists, errors.WithMessagef("room already exists"))
	ErrConflict      = errors.New(errors.CodeAborted, errors.WithMessagef("room is being updated concurrently, try again"))

	// ErrNoChange is returned by a Mutator to leave the room untouched. Update then returns the current room and no error.
	ErrNoChange = stderrors.New("store: no change")
)

// Mutator receives a private copy of the freshly read room and edits it in place.
// It may run several times when concurrent writers force a retry, so it must not have side effects.
type Mutator func(r *domain.Room) error

// Fields is a partial room keyed by the Field* names.
type Fields map[string]any

type Config struct {
	Redis      redis.UniversalClient
	Prefix     string
	RoomTTL    time.Duration
	MaxRetries int
}

// Redis is the shared room store. Every write publishes the full resulting room on the room's channel.
type Redis struct {
	redis      redis.UniversalClient
	prefix     string
	ttl        time.Duration
	maxRetries int
}

func NewRedis(c Config) *Redis {
	s := &Redis{
		redis:      c.Redis,
		prefix:     c.Prefix,
		ttl:        c.RoomTTL,
		maxRetries: c.MaxRetries,
	}

	if s.ttl <= 0 {
		s.ttl = defaultRoomTTL
	}
	if s.maxRetries <= 0 {
		s.maxRetries = defaultMaxRetries
	}

	return s
}

// Create stores a new room. It fails with ErrAlreadyExists when the room ID is taken.
func (s *Redis) Create(ctx context.Context, r *domain.Room) error {
	key := s.roomKey(r.RoomID)

	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrAlreadyExists
		}

		return s.write(ctx, tx, r)
	}, key)

	if stderrors.Is(err, redis.TxFailedErr) {
		// someone wrote the key between EXISTS and EXEC
		return ErrAlreadyExists
	}

	return err
}

// Read returns the current room.
func (s *Redis) Read(ctx context.Context, roomID string) (*domain.Room, error) {
	m, err := s.redis.HGetAll(ctx, s.roomKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", roomID, err)
	}

	return decodeRoom(ctx, m)
}

// Update atomically applies fn to the current room: read, mutate, write back, retried when another
// writer changed the room in between. It returns the room as written.
func (s *Redis) Update(ctx context.Context, roomID string, fn Mutator) (*domain.Room, error) {
	key := s.roomKey(roomID)

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		var result *domain.Room

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			m, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}

			cur, err := decodeRoom(ctx, m)
			if err != nil {
				return err
			}

			next := cur.Clone()
			if err := fn(next); err != nil {
				if stderrors.Is(err, ErrNoChange) {
					result = cur
					return nil
				}
				return err
			}

			next.RoomID = cur.RoomID
			next.Revision = cur.Revision + 1
			if err := s.write(ctx, tx, next); err != nil {
				return err
			}

			result = next
			return nil
		}, key)

		if stderrors.Is(err, redis.TxFailedErr) {
			telemetry.StoreTxRetries.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}

		return result, nil
	}

	telemetry.StoreTxAborted.Inc()
	slog.WarnContext(ctx, "store: transaction retries exhausted", "room", roomID, "retries", s.maxRetries)
	return nil, ErrConflict
}

// Patch writes the given fields without reading the room first. It must only be used for fields with a single writer.
func (s *Redis) Patch(ctx context.Context, roomID string, fields Fields) (*domain.Room, error) {
	for name := range fields {
		if !patchable[name] {
			return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("field %q cannot be patched", name))
		}
	}

	values, err := encodeFields(fields)
	if err != nil {
		return nil, err
	}

	key := s.roomKey(roomID)
	n, err := s.redis.Exists(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("store: patch %s: %w", roomID, err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values)
		pipe.HIncrBy(ctx, key, FieldRevision, 1)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: patch %s: %w", roomID, err)
	}

	// The snapshot may already include later writes; subscribers order snapshots by revision.
	r, err := s.Read(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if err := s.publish(ctx, s.redis, r); err != nil {
		return nil, err
	}

	return r, nil
}

func (s *Redis) write(ctx context.Context, tx *redis.Tx, r *domain.Room) error {
	fields, err := encodeRoom(r)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: encode snapshot: %w", err)
	}

	key := s.roomKey(r.RoomID)
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, s.ttl)
		pipe.Publish(ctx, s.channel(r.RoomID), payload)
		return nil
	})

	return err
}

func (s *Redis) publish(ctx context.Context, c redis.Cmdable, r *domain.Room) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: encode snapshot: %w", err)
	}

	return c.Publish(ctx, s.channel(r.RoomID), payload).Err()
}

func (s *Redis) roomKey(roomID string) string {
	return fmt.Sprintf("%s:room:%s", s.prefix, roomID)
}

func (s *Redis) channel(roomID string) string {
	return fmt.Sprintf("%s:room:%s:updates", s.prefix, roomID)
}
