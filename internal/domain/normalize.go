package domain

import "strings"

// Normalize coerces a decoded room into the schema: unknown phases default to LOBBY,
// negative counters to zero, and malformed or duplicate entries are discarded.
// It returns the number of discarded entries.
func (r *Room) Normalize() int {
	dropped := 0

	if !r.Phase.Valid() {
		r.Phase = PhaseLobby
	}

	r.CurrentQuestionIndex = max(r.CurrentQuestionIndex, 0)
	r.RoundID = max(r.RoundID, 0)
	r.CurrentRevealIndex = max(r.CurrentRevealIndex, 0)
	r.CurrentTrackIndex = max(r.CurrentTrackIndex, 0)

	questions := r.Questions[:0]
	for _, q := range r.Questions {
		if q = strings.TrimSpace(q); q == "" {
			dropped++
			continue
		}
		questions = append(questions, q)
	}
	r.Questions = questions

	if r.Players == nil {
		r.Players = make(map[string]Player)
	}
	for id, p := range r.Players {
		if id == "" {
			delete(r.Players, id)
			dropped++
			continue
		}
		if p.ID != id {
			p.ID = id
			r.Players[id] = p
		}
	}

	type submitted struct {
		player string
		round  int
	}
	seen := make(map[submitted]struct{}, len(r.Submissions))
	subs := make([]Submission, 0, len(r.Submissions))
	for _, s := range r.Submissions {
		k := submitted{s.PlayerID, s.RoundID}
		if _, dup := seen[k]; dup || s.PlayerID == "" || s.Song.ID == "" || s.RoundID < 0 {
			dropped++
			continue
		}
		seen[k] = struct{}{}
		subs = append(subs, s)
	}
	r.Submissions = subs

	// Later guesses supersede earlier ones for the same voter and submission.
	type guessed struct {
		voter string
		key   SubmissionKey
		round int
	}
	last := make(map[guessed]int, len(r.Guesses))
	for i, g := range r.Guesses {
		last[guessed{g.VoterID, g.SubmissionID, g.RoundID}] = i
	}
	guesses := make([]Guess, 0, len(r.Guesses))
	for i, g := range r.Guesses {
		if last[guessed{g.VoterID, g.SubmissionID, g.RoundID}] != i ||
			g.VoterID == "" || g.TargetPlayerID == "" || g.SubmissionID.Round() != g.RoundID {
			dropped++
			continue
		}
		guesses = append(guesses, g)
	}
	r.Guesses = guesses

	return dropped
}
