package game

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/victornm/songparty/internal/domain"
	"github.com/victornm/songparty/internal/errors"
	"github.com/victornm/songparty/internal/store"
)

const (
	maxNameLength     = 32
	maxCreateAttempts = 5
)

type CreateRoomRequest struct {
	HostName string
	Avatar   string
}

type CreateRoomResponse struct {
	Room *domain.Room
	Host domain.Player
}

// CreateRoom creates a room in LOBBY whose only player is its host.
func (s *Service) CreateRoom(ctx context.Context, req CreateRoomRequest) (*CreateRoomResponse, error) {
	if s.store == nil {
		return nil, ErrStoreNotConfigured
	}

	name, err := playerName(req.HostName)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate player ID: %w", err)
	}

	host := domain.Player{
		ID:        id.String(),
		Name:      name,
		IsHost:    true,
		Avatar:    req.Avatar,
		JoinOrder: 0,
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		r := &domain.Room{
			RoomID:    NewRoomCode(s.codeLength),
			Phase:     domain.PhaseLobby,
			Players:   map[string]domain.Player{host.ID: host},
			CreatedAt: time.Now().UTC(),
		}

		err := s.store.Create(ctx, r)
		if errors.HasCode(err, errors.CodeAlreadyExists) {
			slog.WarnContext(ctx, "game: room code collision", "room", r.RoomID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		slog.InfoContext(ctx, "game: room created", "room", r.RoomID, "host", host.ID)
		return &CreateRoomResponse{Room: r, Host: host}, nil
	}

	return nil, errors.New(errors.CodeAborted, errors.WithMessagef("could not allocate a free room code"))
}

type JoinRoomRequest struct {
	RoomID string
	// PlayerID re-attaches a returning player to their roster entry.
	PlayerID string
	Name     string
	Avatar   string
}

type JoinRoomResponse struct {
	Room     *domain.Room
	Player   domain.Player
	Rejoined bool
}

// JoinRoom adds a player to the roster. New players may only join in LOBBY; a known PlayerID rejoins in any phase.
func (s *Service) JoinRoom(ctx context.Context, req JoinRoomRequest) (*JoinRoomResponse, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate player ID: %w", err)
	}

	var resp JoinRoomResponse
	r, err := s.update(ctx, req.RoomID, func(r *domain.Room) error {
		resp = JoinRoomResponse{}

		if p, ok := r.Players[req.PlayerID]; ok && req.PlayerID != "" {
			resp.Player, resp.Rejoined = p, true
			return store.ErrNoChange
		}

		if r.Phase != domain.PhaseLobby {
			return ErrGameStarted
		}

		name, err := playerName(req.Name)
		if err != nil {
			return err
		}

		p := domain.Player{
			ID:        id.String(),
			Name:      name,
			Avatar:    req.Avatar,
			JoinOrder: nextJoinOrder(r),
		}
		r.Players[p.ID] = p
		resp.Player = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp.Room = r
	slog.InfoContext(ctx, "game: player joined", "room", r.RoomID, "player", resp.Player.ID, "rejoined", resp.Rejoined)
	return &resp, nil
}

type SetHostTokenRequest struct {
	RoomID   string
	PlayerID string
	Token    string
}

// SetHostToken shares the host's music service credential with the room so guests can search without their own.
// The host is the only writer of the field, so it is patched without a transaction.
func (s *Service) SetHostToken(ctx context.Context, req SetHostTokenRequest) (*domain.Room, error) {
	if _, err := s.readAsHost(ctx, req.RoomID, req.PlayerID); err != nil {
		return nil, err
	}

	return s.store.Patch(ctx, req.RoomID, store.Fields{store.FieldHostToken: req.Token})
}

// DropHostToken clears the credential shared on the room, after the music service rejected it or it expired.
func (s *Service) DropHostToken(ctx context.Context, roomID string) (*domain.Room, error) {
	if s.store == nil {
		return nil, ErrStoreNotConfigured
	}

	r, err := s.store.Patch(ctx, roomID, store.Fields{store.FieldHostToken: ""})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "game: host token dropped", "room", roomID)
	return r, nil
}

// hostToken returns the room's current music credential, or "" when there is none. When the credential is gone
// but the room still advertises one, the room is patched and the patched room is returned.
func (s *Service) hostToken(ctx context.Context, r *domain.Room) (*domain.Room, string) {
	if s.creds == nil || r.HostToken == "" {
		return r, r.HostToken
	}

	token, err := s.creds.Credential(ctx, r.RoomID)
	switch {
	case err == nil:
		return r, token
	case !errors.HasCode(err, errors.CodeUnauthenticated):
		slog.WarnContext(ctx, "game: read credential failed", "room", r.RoomID, "error", err)
		return r, ""
	}

	patched, err := s.DropHostToken(ctx, r.RoomID)
	if err != nil {
		slog.WarnContext(ctx, "game: drop host token failed", "room", r.RoomID, "error", err)
		return r, ""
	}

	return patched, ""
}

func nextJoinOrder(r *domain.Room) int {
	next := 0
	for _, p := range r.Players {
		next = max(next, p.JoinOrder+1)
	}

	return next
}

func playerName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New(errors.CodeInvalidArgument, errors.WithMessagef("name is required"))
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", errors.New(errors.CodeInvalidArgument, errors.WithMessagef("name is longer than %d characters", maxNameLength))
	}

	return name, nil
}
