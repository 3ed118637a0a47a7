package game

import "github.com/victornm/songparty/internal/domain"

// RoomView is what one player is allowed to see of the room. Track owners stay hidden until revealed,
// and the host's music credential is never included.
type RoomView struct {
	RoomID             string          `json:"roomId"`
	Phase              domain.Phase    `json:"phase"`
	Revision           int64           `json:"revision"`
	RoundID            int             `json:"roundId"`
	QuestionIndex      int             `json:"currentQuestionIndex"`
	QuestionCount      int             `json:"questionCount"`
	Question           string          `json:"question,omitempty"`
	Players            []domain.Player `json:"players"`
	Waiting            []string        `json:"waiting"`
	Tracks             []TrackView     `json:"tracks"`
	CurrentTrackIndex  int             `json:"currentTrackIndex"`
	CurrentRevealIndex int             `json:"currentRevealIndex"`
	Guesses            []domain.Guess  `json:"guesses"`
	GuessesComplete    bool            `json:"guessesComplete"`
	HasHostToken       bool            `json:"hasHostToken"`
}

type TrackView struct {
	SubmissionID domain.SubmissionKey `json:"submissionId"`
	Song         domain.Song          `json:"song"`
	Mine         bool                 `json:"mine"`
	Revealed     bool                 `json:"revealed"`
	PlayerID     string               `json:"playerId,omitempty"`
}

// View builds viewerID's view of r. An unknown viewer gets the anonymous spectator view.
func View(r *domain.Room, viewerID string) RoomView {
	v := RoomView{
		RoomID:             r.RoomID,
		Phase:              r.Phase,
		Revision:           r.Revision,
		RoundID:            r.RoundID,
		QuestionIndex:      r.CurrentQuestionIndex,
		QuestionCount:      len(r.Questions),
		Players:            r.OrderedPlayers(),
		Waiting:            []string{},
		Tracks:             []TrackView{},
		CurrentTrackIndex:  r.CurrentTrackIndex,
		CurrentRevealIndex: r.CurrentRevealIndex,
		Guesses:            []domain.Guess{},
		HasHostToken:       r.HostToken != "",
	}

	if r.Phase != domain.PhaseLobby {
		v.Question = r.CurrentQuestion()
	}

	if r.Phase == domain.PhaseSubmitting {
		for _, p := range RemainingSubmitters(r) {
			v.Waiting = append(v.Waiting, p.ID)
		}
	}

	for i, s := range CurrentSubmissions(r) {
		mine := s.PlayerID == viewerID
		if r.Phase == domain.PhaseSubmitting && !mine {
			continue
		}

		t := TrackView{SubmissionID: s.Key(), Song: s.Song, Mine: mine, Revealed: revealed(r, i)}
		if t.Revealed || mine {
			t.PlayerID = s.PlayerID
		}
		v.Tracks = append(v.Tracks, t)
	}

	for _, g := range CurrentGuesses(r) {
		if g.VoterID == viewerID {
			v.Guesses = append(v.Guesses, g)
		}
	}
	v.GuessesComplete = AllGuessesComplete(r, viewerID)

	return v
}

func revealed(r *domain.Room, i int) bool {
	switch r.Phase {
	case domain.PhaseReveal:
		return i <= r.CurrentRevealIndex
	case domain.PhaseScoreboard, domain.PhaseFinal:
		return true
	default:
		return false
	}
}
