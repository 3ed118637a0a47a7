package game

import (
	"context"
	"log/slog"

	"github.com/victornm/songparty/internal/domain"
	"github.com/victornm/songparty/internal/errors"
	"github.com/victornm/songparty/internal/telemetry"
)

const (
	GuidanceNotPlayable    = "This track is not in the music catalog, play it on a local device."
	GuidanceNoCredential   = "Connect the music service to play tracks remotely."
	GuidancePlaybackFailed = "Remote playback is unavailable right now, play the track on a local device."
)

type PlayTrackRequest struct {
	RoomID   string
	PlayerID string
	DeviceID string
}

// PlayTrackResponse is never an error for playback problems: Guidance tells the host what to do instead.
type PlayTrackResponse struct {
	Song     domain.Song `json:"song"`
	Played   bool        `json:"played"`
	Guidance string      `json:"guidance,omitempty"`
}

// PlayTrack plays the current listening track on the host's remote player.
func (s *Service) PlayTrack(ctx context.Context, req PlayTrackRequest) (*PlayTrackResponse, error) {
	r, err := s.readAsHost(ctx, req.RoomID, req.PlayerID)
	if err != nil {
		return nil, err
	}
	if err := requirePhase(r, domain.PhaseListening); err != nil {
		return nil, err
	}

	sub, ok := cursor(r, r.CurrentTrackIndex)
	if !ok {
		return nil, ErrUnknownSubmission
	}

	resp := &PlayTrackResponse{Song: sub.Song}
	_, token := s.hostToken(ctx, r)
	switch {
	case !sub.Song.Playable():
		resp.Guidance = GuidanceNotPlayable
		return resp, nil
	case s.playback == nil:
		resp.Guidance = GuidancePlaybackFailed
		return resp, nil
	case token == "":
		resp.Guidance = GuidanceNoCredential
		return resp, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.playback.PlayTrack(ctx, token, req.DeviceID, sub.Song.ID); err != nil {
		resp.Guidance = playbackGuidance(err)
		slog.WarnContext(ctx, "game: play track failed", "room", r.RoomID, "track", sub.Song.ID, "error", err)
		return resp, nil
	}

	resp.Played = true
	return resp, nil
}

// playbackGuidance turns an expected playback failure into a message for the host.
// Expected failures are FailedPrecondition or Unauthenticated errors whose message is already user facing.
func playbackGuidance(err error) string {
	e := errors.Convert(err)
	switch e.Code {
	case errors.CodeFailedPrecondition:
		return e.Message
	case errors.CodeUnauthenticated:
		return GuidanceNoCredential
	default:
		telemetry.Fallbacks.WithLabelValues("playback", "error").Inc()
		return GuidancePlaybackFailed
	}
}

func (s *Service) pause(ctx context.Context, r *domain.Room, deviceID string) {
	if s.playback == nil {
		return
	}
	_, token := s.hostToken(ctx, r)
	if token == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.playback.Pause(ctx, token, deviceID); err != nil {
		slog.WarnContext(ctx, "game: pause playback failed", "error", err)
	}
}

type AnnounceRevealResponse struct {
	Submission domain.Submission `json:"submission"`
	Submitter  string            `json:"submitter"`
	// Audio is empty when the announcement could not be synthesized.
	Audio []byte `json:"audio,omitempty"`
}

// AnnounceReveal synthesizes the spoken reveal of the current submission. It is best effort.
func (s *Service) AnnounceReveal(ctx context.Context, req HostRequest) (*AnnounceRevealResponse, error) {
	r, err := s.readAsHost(ctx, req.RoomID, req.PlayerID)
	if err != nil {
		return nil, err
	}
	if err := requirePhase(r, domain.PhaseReveal); err != nil {
		return nil, err
	}

	sub, ok := cursor(r, r.CurrentRevealIndex)
	if !ok {
		return nil, ErrUnknownSubmission
	}

	resp := &AnnounceRevealResponse{Submission: sub, Submitter: r.Players[sub.PlayerID].Name}
	if s.announcer == nil {
		return resp, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	audio, err := s.announcer.Announce(ctx, sub.Song.Title, sub.Song.Artist, resp.Submitter)
	if err != nil {
		telemetry.Fallbacks.WithLabelValues("speech", "error").Inc()
		slog.WarnContext(ctx, "game: announcement skipped", "room", r.RoomID, "error", err)
		return resp, nil
	}

	resp.Audio = audio
	return resp, nil
}
