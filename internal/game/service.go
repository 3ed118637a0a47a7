package game

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/victornm/songparty/internal/domain"
	"github.com/victornm/songparty/internal/errors"
	"github.com/victornm/songparty/internal/event"
	"github.com/victornm/songparty/internal/store"
	"github.com/victornm/songparty/internal/telemetry"
)

const (
	DefaultRounds           = 10
	DefaultMinGuests        = 2
	DefaultPointsPerCorrect = 10
	DefaultCodeLength       = 4
	defaultServiceTimeout   = 8 * time.Second
)

var (
	ErrStoreNotConfigured = errors.New(errors.CodeUnavailable, errors.WithMessagef("shared store is not configured"))
	ErrNotHost            = errors.New(errors.CodePermissionDenied, errors.WithMessagef("only the host can do this"))
	ErrUnknownPlayer      = errors.New(errors.CodePermissionDenied, errors.WithMessagef("player is not in this room"))
	ErrHostCannotPlay     = errors.New(errors.CodePermissionDenied, errors.WithMessagef("the host does not submit or guess"))
	ErrInvalidPhase       = errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("action not allowed in the current phase"))
	ErrNotEnoughPlayers   = errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("not enough players to start"))
	ErrGameStarted        = errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("game already started"))
	ErrGuessesIncomplete  = errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("not every player finished guessing"))
	ErrSongTaken          = errors.New(errors.CodeAlreadyExists, errors.WithMessagef("song already submitted this round"))
	ErrUnknownSubmission  = errors.New(errors.CodeNotFound, errors.WithMessagef("submission is not part of the current round"))
	ErrOwnSubmission      = errors.New(errors.CodeInvalidArgument, errors.WithMessagef("cannot guess on your own submission"))
	ErrUnknownTarget      = errors.New(errors.CodeInvalidArgument, errors.WithMessagef("guessed player is not in this room"))
)

// Store is the shared room document store.
type Store interface {
	Create(ctx context.Context, r *domain.Room) error
	Read(ctx context.Context, roomID string) (*domain.Room, error)
	Update(ctx context.Context, roomID string, fn store.Mutator) (*domain.Room, error)
	Patch(ctx context.Context, roomID string, fields store.Fields) (*domain.Room, error)
	Subscribe(ctx context.Context, roomID string, fn func(r *domain.Room)) (func(), error)
}

// QuestionSource returns count prompts. It never fails: unavailable generators degrade to built-in prompts.
type QuestionSource interface {
	Questions(ctx context.Context, count int) []string
}

// Playback controls the host's remote music player.
type Playback interface {
	PlayTrack(ctx context.Context, token, deviceID, trackID string) error
	Pause(ctx context.Context, token, deviceID string) error
}

// Announcer synthesizes the spoken reveal of a submission.
type Announcer interface {
	Announce(ctx context.Context, title, artist, submitter string) ([]byte, error)
}

// Credentials returns the room's current music service credential. A missing or expired credential is an
// Unauthenticated error.
type Credentials interface {
	Credential(ctx context.Context, roomID string) (string, error)
}

type Config struct {
	// Store is nil when the shared store is not configured; every room operation then fails with ErrStoreNotConfigured.
	Store     Store
	EventBus  *event.Bus
	Questions QuestionSource
	Playback  Playback
	Announcer Announcer
	// Credentials is the source of the host's music credential. Without it the token shared on the room is used.
	Credentials Credentials

	Rounds            int
	MinGuests         int
	PointsPerCorrect  int
	CodeLength        int
	RequireAllGuesses bool
	ServiceTimeout    time.Duration
}

// Service runs the room state machine on behalf of the acting player. Authority is checked against the
// isHost flag of the freshly read roster, the store itself does not enforce it.
type Service struct {
	store     Store
	eb        *event.Bus
	questions QuestionSource
	playback  Playback
	announcer Announcer
	creds     Credentials

	rounds            int
	minGuests         int
	points            int
	codeLength        int
	requireAllGuesses bool
	timeout           time.Duration
}

func NewService(c Config) *Service {
	s := &Service{
		store:             c.Store,
		eb:                c.EventBus,
		questions:         c.Questions,
		playback:          c.Playback,
		announcer:         c.Announcer,
		creds:             c.Credentials,
		rounds:            c.Rounds,
		minGuests:         c.MinGuests,
		points:            c.PointsPerCorrect,
		codeLength:        c.CodeLength,
		requireAllGuesses: c.RequireAllGuesses,
		timeout:           c.ServiceTimeout,
	}

	if s.rounds <= 0 {
		s.rounds = DefaultRounds
	}
	if s.minGuests <= 0 {
		s.minGuests = DefaultMinGuests
	}
	if s.points <= 0 {
		s.points = DefaultPointsPerCorrect
	}
	if s.codeLength <= 0 {
		s.codeLength = DefaultCodeLength
	}
	if s.timeout <= 0 {
		s.timeout = defaultServiceTimeout
	}

	return s
}

// Configured reports whether a shared store is available.
func (s *Service) Configured() bool {
	return s.store != nil
}

type GetRoomRequest struct {
	RoomID string
}

// GetRoom reads the current room. A shared credential that has expired since it was set is dropped from the room.
func (s *Service) GetRoom(ctx context.Context, req GetRoomRequest) (*domain.Room, error) {
	if s.store == nil {
		return nil, ErrStoreNotConfigured
	}

	r, err := s.store.Read(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}

	r, _ = s.hostToken(ctx, r)
	return r, nil
}

// Watch calls fn with the current room and every later snapshot until the returned func is called.
func (s *Service) Watch(ctx context.Context, roomID string, fn func(r *domain.Room)) (func(), error) {
	if s.store == nil {
		return nil, ErrStoreNotConfigured
	}

	return s.store.Subscribe(ctx, roomID, fn)
}

// update runs fn in a room transaction and publishes a phase change event once the write is committed.
func (s *Service) update(ctx context.Context, roomID string, fn store.Mutator) (*domain.Room, error) {
	if s.store == nil {
		return nil, ErrStoreNotConfigured
	}

	var from domain.Phase
	r, err := s.store.Update(ctx, roomID, func(r *domain.Room) error {
		from = r.Phase
		return fn(r)
	})
	if err != nil {
		return nil, err
	}

	if r.Phase != from {
		telemetry.PhaseTransitions.WithLabelValues(r.Phase.String()).Inc()
		slog.InfoContext(ctx, "game: phase changed", "room", roomID, "from", from, "to", r.Phase, "round", r.RoundID)
		s.publish(ctx, domain.EventPhaseChanged{RoomID: roomID, From: from, To: r.Phase})
	}

	return r, nil
}

// hostUpdate is update restricted to the room's host.
func (s *Service) hostUpdate(ctx context.Context, roomID, playerID string, fn store.Mutator) (*domain.Room, error) {
	return s.update(ctx, roomID, func(r *domain.Room) error {
		if !r.IsHost(playerID) {
			return ErrNotHost
		}
		return fn(r)
	})
}

// readAsHost reads the room and checks the actor is its host.
func (s *Service) readAsHost(ctx context.Context, roomID, playerID string) (*domain.Room, error) {
	if s.store == nil {
		return nil, ErrStoreNotConfigured
	}

	r, err := s.store.Read(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if !r.IsHost(playerID) {
		return nil, ErrNotHost
	}

	return r, nil
}

func (s *Service) publish(ctx context.Context, e event.Event) {
	if s.eb == nil {
		return
	}

	s.eb.Publish(ctx, e)
}

// transition moves r to the target phase when the state machine allows it.
func transition(r *domain.Room, to domain.Phase) error {
	if !r.Phase.CanTransitionTo(to) {
		return invalidPhase(r.Phase)
	}

	r.Phase = to
	return nil
}

func requirePhase(r *domain.Room, p domain.Phase) error {
	if r.Phase != p {
		return invalidPhase(r.Phase)
	}

	return nil
}

func invalidPhase(p domain.Phase) error {
	return ErrInvalidPhase.Wrap(fmt.Errorf("phase=%s", p))
}
