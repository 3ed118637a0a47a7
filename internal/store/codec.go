package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/victornm/songparty/internal/domain"
	"github.com/victornm/songparty/internal/telemetry"
)

// A room is stored as a Redis hash, one JSON-encoded value per top-level field.
const (
	FieldRoomID               = "roomId"
	FieldPhase                = "phase"
	FieldCurrentQuestionIndex = "currentQuestionIndex"
	FieldRoundID              = "roundId"
	FieldQuestions            = "questions"
	FieldPlayers              = "players"
	FieldSubmissions          = "submissions"
	FieldGuesses              = "guesses"
	FieldCurrentRevealIndex   = "currentRevealIndex"
	FieldCurrentTrackIndex    = "currentTrackIndex"
	FieldHostToken            = "hostToken"
	FieldCreatedAt            = "createdAt"
	FieldRevision             = "revision"
)

// patchable lists the fields Patch may write. roomId is immutable and revision is owned by the store.
var patchable = map[string]bool{
	FieldPhase:                true,
	FieldCurrentQuestionIndex: true,
	FieldRoundID:              true,
	FieldQuestions:            true,
	FieldPlayers:              true,
	FieldSubmissions:          true,
	FieldGuesses:              true,
	FieldCurrentRevealIndex:   true,
	FieldCurrentTrackIndex:    true,
	FieldHostToken:            true,
	FieldCreatedAt:            true,
}

func encodeRoom(r *domain.Room) (map[string]any, error) {
	values := map[string]any{
		FieldRoomID:               r.RoomID,
		FieldPhase:                r.Phase,
		FieldCurrentQuestionIndex: r.CurrentQuestionIndex,
		FieldRoundID:              r.RoundID,
		FieldQuestions:            r.Questions,
		FieldPlayers:              r.Players,
		FieldSubmissions:          r.Submissions,
		FieldGuesses:              r.Guesses,
		FieldCurrentRevealIndex:   r.CurrentRevealIndex,
		FieldCurrentTrackIndex:    r.CurrentTrackIndex,
		FieldHostToken:            r.HostToken,
		FieldCreatedAt:            r.CreatedAt,
	}

	fields, err := encodeFields(values)
	if err != nil {
		return nil, err
	}

	fields[FieldRevision] = strconv.FormatInt(r.Revision, 10)
	return fields, nil
}

func encodeFields(values map[string]any) (map[string]any, error) {
	fields := make(map[string]any, len(values))
	for name, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		fields[name] = string(b)
	}

	return fields, nil
}

// decodeRoom parses a stored hash into the typed schema. Malformed fields fall back to their zero value and
// malformed collection entries are discarded individually, then the room is normalized.
func decodeRoom(ctx context.Context, m map[string]string) (*domain.Room, error) {
	if len(m) == 0 {
		return nil, ErrNotFound
	}

	r := &domain.Room{}
	dropped := 0

	field := func(name string, dst any) {
		raw, ok := m[name]
		if !ok {
			return
		}
		if err := json.Unmarshal([]byte(raw), dst); err != nil {
			slog.WarnContext(ctx, "store: malformed room field", "field", name, "error", err)
			dropped++
		}
	}

	field(FieldRoomID, &r.RoomID)
	field(FieldPhase, &r.Phase)
	field(FieldCurrentQuestionIndex, &r.CurrentQuestionIndex)
	field(FieldRoundID, &r.RoundID)
	field(FieldQuestions, &r.Questions)
	field(FieldCurrentRevealIndex, &r.CurrentRevealIndex)
	field(FieldCurrentTrackIndex, &r.CurrentTrackIndex)
	field(FieldHostToken, &r.HostToken)
	field(FieldCreatedAt, &r.CreatedAt)
	field(FieldRevision, &r.Revision)

	var players map[string]json.RawMessage
	field(FieldPlayers, &players)
	r.Players = make(map[string]domain.Player, len(players))
	for id, raw := range players {
		var p domain.Player
		if err := json.Unmarshal(raw, &p); err != nil {
			dropped++
			continue
		}
		r.Players[id] = p
	}

	var subs []json.RawMessage
	field(FieldSubmissions, &subs)
	r.Submissions = decodeEach[domain.Submission](subs, &dropped)

	var guesses []json.RawMessage
	field(FieldGuesses, &guesses)
	r.Guesses = decodeEach[domain.Guess](guesses, &dropped)

	dropped += r.Normalize()
	if dropped > 0 {
		telemetry.StoreDroppedEntries.Add(float64(dropped))
		slog.WarnContext(ctx, "store: discarded malformed room entries", "room", r.RoomID, "dropped", dropped)
	}

	return r, nil
}

func decodeEach[T any](raws []json.RawMessage, dropped *int) []T {
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			*dropped++
			continue
		}
		out = append(out, v)
	}

	return out
}

// decodeNotification parses a pushed snapshot. Snapshots are produced from normalized rooms,
// normalizing again keeps the boundary the only place remote data is trusted from.
func decodeNotification(payload string) (*domain.Room, error) {
	var r domain.Room
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}

	r.Normalize()
	return &r, nil
}
