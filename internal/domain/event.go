package domain

const (
	EventNamePhaseChanged       = "phase.changed"
	EventNameRoundScored        = "round.scored"
	EventNameGameFinished       = "game.finished"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventPhaseChanged struct {
	RoomID string
	From   Phase
	To     Phase
}

func (EventPhaseChanged) Name() string { return EventNamePhaseChanged }

// EventRoundScored is published once per round, after the scores were persisted together with the SCOREBOARD phase.
type EventRoundScored struct {
	Room   Room
	Deltas map[string]int
}

func (EventRoundScored) Name() string { return EventNameRoundScored }

type EventGameFinished struct {
	Room Room
}

func (EventGameFinished) Name() string { return EventNameGameFinished }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }

// Leaderboard represents the players of a room ranked by score in descending order.
// Equal scores keep join order.
type Leaderboard struct {
	RoomID  string
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	PlayerID string
	Name     string
	Score    int
}
