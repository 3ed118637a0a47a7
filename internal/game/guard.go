package game

import (
	"context"
	"log/slog"
	"strings"

	"github.com/victornm/songparty/internal/domain"
	"github.com/victornm/songparty/internal/errors"
	"github.com/victornm/songparty/internal/store"
)

// Submissions and guesses are only ever written inside a room transaction. Every check below runs
// against the freshly read room, never against a snapshot the caller holds.

type SubmitSongRequest struct {
	RoomID   string
	PlayerID string
	Song     domain.Song
}

type SubmitSongResponse struct {
	Room *domain.Room
	// Accepted is false when the player had already submitted this round; the earlier submission stands.
	Accepted bool
}

// SubmitSong records the player's song for the current round. The submission that completes the round
// moves the room to LISTENING in the same write.
func (s *Service) SubmitSong(ctx context.Context, req SubmitSongRequest) (*SubmitSongResponse, error) {
	song := req.Song
	song.ID = strings.TrimSpace(song.ID)
	song.Title = strings.TrimSpace(song.Title)
	song.Artist = strings.TrimSpace(song.Artist)
	if song.ID == "" || song.Title == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("song id and title are required"))
	}

	var accepted bool
	r, err := s.update(ctx, req.RoomID, func(r *domain.Room) error {
		accepted = false

		if err := requirePhase(r, domain.PhaseSubmitting); err != nil {
			return err
		}
		if err := requireGuest(r, req.PlayerID); err != nil {
			return err
		}

		if _, ok := submissionByPlayer(r, req.PlayerID); ok {
			return store.ErrNoChange
		}

		sub := domain.Submission{PlayerID: req.PlayerID, Song: song, RoundID: r.RoundID}
		if _, ok := CurrentSubmission(r, sub.Key()); ok {
			return ErrSongTaken
		}

		r.Submissions = append(r.Submissions, sub)
		accepted = true

		if len(CurrentSubmissions(r)) >= len(r.Guests()) {
			r.CurrentTrackIndex = 0
			return transition(r, domain.PhaseListening)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if !accepted {
		slog.InfoContext(ctx, "game: duplicate submission ignored", "room", r.RoomID, "player", req.PlayerID, "round", r.RoundID)
	}

	return &SubmitSongResponse{Room: r, Accepted: accepted}, nil
}

type SubmitGuessRequest struct {
	RoomID         string
	PlayerID       string
	SubmissionID   string
	TargetPlayerID string
}

// SubmitGuess records who the voter thinks submitted a song, replacing their previous guess for it.
func (s *Service) SubmitGuess(ctx context.Context, req SubmitGuessRequest) (*domain.Room, error) {
	key := domain.SubmissionKey(req.SubmissionID)
	if _, _, err := key.Parse(); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid submission id"), errors.WithCause(err))
	}

	return s.update(ctx, req.RoomID, func(r *domain.Room) error {
		if err := requirePhase(r, domain.PhaseVoting); err != nil {
			return err
		}
		if err := requireGuest(r, req.PlayerID); err != nil {
			return err
		}

		sub, ok := CurrentSubmission(r, key)
		if !ok {
			return ErrUnknownSubmission
		}
		if sub.PlayerID == req.PlayerID {
			return ErrOwnSubmission
		}
		if _, ok := r.Players[req.TargetPlayerID]; !ok {
			return ErrUnknownTarget
		}

		kept := r.Guesses[:0]
		for _, g := range r.Guesses {
			if g.VoterID == req.PlayerID && g.SubmissionID == key && g.RoundID == r.RoundID {
				continue
			}
			kept = append(kept, g)
		}

		r.Guesses = append(kept, domain.Guess{
			VoterID:        req.PlayerID,
			SubmissionID:   key,
			TargetPlayerID: req.TargetPlayerID,
			RoundID:        r.RoundID,
		})
		return nil
	})
}

func requireGuest(r *domain.Room, playerID string) error {
	p, ok := r.Players[playerID]
	if !ok {
		return ErrUnknownPlayer
	}
	if p.IsHost {
		return ErrHostCannotPlay
	}

	return nil
}
