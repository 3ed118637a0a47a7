package game

import (
	"context"
	"log/slog"

	"github.com/victornm/songparty/internal/domain"
	"github.com/victornm/songparty/internal/question"
	"github.com/victornm/songparty/internal/telemetry"
)

// HostRequest identifies the acting player of a host-only transition.
type HostRequest struct {
	RoomID   string
	PlayerID string
}

// StartGame fetches the game's prompts and moves the room from LOBBY to PROMPT with round 0.
func (s *Service) StartGame(ctx context.Context, req HostRequest) (*domain.Room, error) {
	r, err := s.readAsHost(ctx, req.RoomID, req.PlayerID)
	if err != nil {
		return nil, err
	}
	if err := startable(r, s.minGuests); err != nil {
		return nil, err
	}

	questions := s.fetchQuestions(ctx)

	return s.hostUpdate(ctx, req.RoomID, req.PlayerID, func(r *domain.Room) error {
		if err := startable(r, s.minGuests); err != nil {
			return err
		}

		r.Questions = questions
		r.CurrentQuestionIndex = 0
		r.RoundID = 0
		r.CurrentRevealIndex = 0
		r.CurrentTrackIndex = 0
		return transition(r, domain.PhasePrompt)
	})
}

func startable(r *domain.Room, minGuests int) error {
	if err := requirePhase(r, domain.PhaseLobby); err != nil {
		return err
	}
	if len(r.Guests()) < minGuests {
		return ErrNotEnoughPlayers
	}

	return nil
}

func (s *Service) fetchQuestions(ctx context.Context) []string {
	if s.questions == nil {
		return question.Fallback(s.rounds)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	qs := s.questions.Questions(ctx, s.rounds)
	if len(qs) < s.rounds {
		slog.WarnContext(ctx, "game: question source came up short, using built-in prompts", "got", len(qs), "want", s.rounds)
		telemetry.Fallbacks.WithLabelValues("question", "short").Inc()
		return question.Fallback(s.rounds)
	}

	return qs[:s.rounds]
}

// OpenSubmissions moves PROMPT to SUBMITTING. Earlier rounds' entries stay in the room, the new round only
// differs by its roundId.
func (s *Service) OpenSubmissions(ctx context.Context, req HostRequest) (*domain.Room, error) {
	return s.hostUpdate(ctx, req.RoomID, req.PlayerID, func(r *domain.Room) error {
		r.CurrentRevealIndex = 0
		r.CurrentTrackIndex = 0
		return transition(r, domain.PhaseSubmitting)
	})
}

// ForceListening ends SUBMITTING before every guest submitted.
func (s *Service) ForceListening(ctx context.Context, req HostRequest) (*domain.Room, error) {
	return s.hostUpdate(ctx, req.RoomID, req.PlayerID, func(r *domain.Room) error {
		if err := requirePhase(r, domain.PhaseSubmitting); err != nil {
			return err
		}

		r.CurrentTrackIndex = 0
		return transition(r, domain.PhaseListening)
	})
}

type NextTrackRequest struct {
	RoomID   string
	PlayerID string
	// DeviceID is the playback device to pause when listening ends, empty for the active one.
	DeviceID string
}

// NextTrack moves the listening cursor forward, and past the last track moves the room to VOTING.
func (s *Service) NextTrack(ctx context.Context, req NextTrackRequest) (*domain.Room, error) {
	r, err := s.hostUpdate(ctx, req.RoomID, req.PlayerID, func(r *domain.Room) error {
		if err := requirePhase(r, domain.PhaseListening); err != nil {
			return err
		}

		if r.CurrentTrackIndex+1 < len(CurrentSubmissions(r)) {
			r.CurrentTrackIndex++
			return nil
		}

		return transition(r, domain.PhaseVoting)
	})
	if err != nil {
		return nil, err
	}

	if r.Phase == domain.PhaseVoting {
		s.pause(ctx, r, req.DeviceID)
	}

	return r, nil
}

type FinalizeVotingRequest struct {
	RoomID   string
	PlayerID string
	// Force skips the all-guesses gate even when the service requires it.
	Force bool
}

// FinalizeVoting closes VOTING and starts the reveal at the first submission.
func (s *Service) FinalizeVoting(ctx context.Context, req FinalizeVotingRequest) (*domain.Room, error) {
	return s.hostUpdate(ctx, req.RoomID, req.PlayerID, func(r *domain.Room) error {
		if err := requirePhase(r, domain.PhaseVoting); err != nil {
			return err
		}

		if s.requireAllGuesses && !req.Force {
			for _, p := range r.Guests() {
				if !AllGuessesComplete(r, p.ID) {
					return ErrGuessesIncomplete
				}
			}
		}

		r.CurrentRevealIndex = 0
		return transition(r, domain.PhaseReveal)
	})
}

// NextReveal reveals the next submission. Past the last one it scores the round and writes the scores
// together with the SCOREBOARD phase, so a replayed request can never award twice.
func (s *Service) NextReveal(ctx context.Context, req HostRequest) (*domain.Room, error) {
	var deltas map[string]int

	r, err := s.hostUpdate(ctx, req.RoomID, req.PlayerID, func(r *domain.Room) error {
		deltas = nil
		if err := requirePhase(r, domain.PhaseReveal); err != nil {
			return err
		}

		if r.CurrentRevealIndex+1 < len(CurrentSubmissions(r)) {
			r.CurrentRevealIndex++
			return nil
		}

		deltas = ScoreRound(r, s.points)
		applyScores(r, deltas)
		return transition(r, domain.PhaseScoreboard)
	})
	if err != nil {
		return nil, err
	}

	if deltas != nil {
		slog.InfoContext(ctx, "game: round scored", "room", r.RoomID, "round", r.RoundID, "deltas", deltas)
		s.publish(ctx, domain.EventRoundScored{Room: *r.Clone(), Deltas: deltas})
	}

	return r, nil
}

// NextRound leaves SCOREBOARD: into the next round's PROMPT, or to FINAL after the last question.
func (s *Service) NextRound(ctx context.Context, req HostRequest) (*domain.Room, error) {
	r, err := s.hostUpdate(ctx, req.RoomID, req.PlayerID, func(r *domain.Room) error {
		if err := requirePhase(r, domain.PhaseScoreboard); err != nil {
			return err
		}

		if r.LastQuestion() {
			return transition(r, domain.PhaseFinal)
		}

		r.RoundID++
		r.CurrentQuestionIndex++
		r.CurrentRevealIndex = 0
		r.CurrentTrackIndex = 0
		return transition(r, domain.PhasePrompt)
	})
	if err != nil {
		return nil, err
	}

	if r.Phase == domain.PhaseFinal {
		s.publish(ctx, domain.EventGameFinished{Room: *r.Clone()})
	}

	return r, nil
}
