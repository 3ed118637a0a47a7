package game

import "github.com/victornm/songparty/internal/domain"

// Submissions and guesses accumulate for the whole room lifetime. A round never deletes the previous
// round's entries, it only tags new ones with a fresh roundId; every "current" view filters on it.

// CurrentSubmissions returns the submissions of the room's current round, in submission order.
func CurrentSubmissions(r *domain.Room) []domain.Submission {
	out := make([]domain.Submission, 0, len(r.Submissions))
	for _, s := range r.Submissions {
		if s.RoundID == r.RoundID {
			out = append(out, s)
		}
	}

	return out
}

// CurrentGuesses returns the guesses of the room's current round.
func CurrentGuesses(r *domain.Room) []domain.Guess {
	out := make([]domain.Guess, 0, len(r.Guesses))
	for _, g := range r.Guesses {
		if g.RoundID == r.RoundID {
			out = append(out, g)
		}
	}

	return out
}

// RemainingSubmitters returns the non-host players without a submission in the current round, in join order.
func RemainingSubmitters(r *domain.Room) []domain.Player {
	submitted := make(map[string]bool)
	for _, s := range CurrentSubmissions(r) {
		submitted[s.PlayerID] = true
	}

	var out []domain.Player
	for _, p := range r.Guests() {
		if !submitted[p.ID] {
			out = append(out, p)
		}
	}

	return out
}

// AllGuessesComplete reports whether voterID has a current-round guess for every current-round
// submission they did not author.
func AllGuessesComplete(r *domain.Room, voterID string) bool {
	guessed := make(map[domain.SubmissionKey]bool)
	for _, g := range CurrentGuesses(r) {
		if g.VoterID == voterID {
			guessed[g.SubmissionID] = true
		}
	}

	for _, s := range CurrentSubmissions(r) {
		if s.PlayerID != voterID && !guessed[s.Key()] {
			return false
		}
	}

	return true
}

// CurrentSubmission finds the current-round submission with the given key.
// Keys of other rounds never match.
func CurrentSubmission(r *domain.Room, key domain.SubmissionKey) (domain.Submission, bool) {
	for _, s := range CurrentSubmissions(r) {
		if s.Key() == key {
			return s, true
		}
	}

	return domain.Submission{}, false
}

func submissionByPlayer(r *domain.Room, playerID string) (domain.Submission, bool) {
	for _, s := range CurrentSubmissions(r) {
		if s.PlayerID == playerID {
			return s, true
		}
	}

	return domain.Submission{}, false
}

// cursor returns the current-round submission at index i, used by the listening and reveal cursors.
func cursor(r *domain.Room, i int) (domain.Submission, bool) {
	subs := CurrentSubmissions(r)
	if i < 0 || i >= len(subs) {
		return domain.Submission{}, false
	}

	return subs[i], true
}
