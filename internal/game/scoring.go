package game

import (
	"sort"

	"github.com/victornm/songparty/internal/domain"
)

// ScoreRound returns the points each guest earned in the current round: points per guess whose target
// is the true owner of the guessed submission. Every guest has an entry, zero included. The host never does.
func ScoreRound(r *domain.Room, points int) map[string]int {
	owners := make(map[domain.SubmissionKey]string)
	for _, s := range CurrentSubmissions(r) {
		owners[s.Key()] = s.PlayerID
	}

	correct := make(map[string]int)
	for _, g := range CurrentGuesses(r) {
		if owner, ok := owners[g.SubmissionID]; ok && owner == g.TargetPlayerID {
			correct[g.VoterID]++
		}
	}

	deltas := make(map[string]int)
	for _, p := range r.Guests() {
		deltas[p.ID] = correct[p.ID] * points
	}

	return deltas
}

func applyScores(r *domain.Room, deltas map[string]int) {
	for id, d := range deltas {
		p, ok := r.Players[id]
		if !ok || p.IsHost {
			continue
		}

		p.Score += d
		r.Players[id] = p
	}
}

// Rank orders the guests by score, highest first. Equal scores keep join order.
func Rank(r *domain.Room) []domain.LeaderboardEntry {
	guests := r.Guests()
	sort.SliceStable(guests, func(i, j int) bool {
		return guests[i].Score > guests[j].Score
	})

	entries := make([]domain.LeaderboardEntry, 0, len(guests))
	for _, p := range guests {
		entries = append(entries, domain.LeaderboardEntry{PlayerID: p.ID, Name: p.Name, Score: p.Score})
	}

	return entries
}
