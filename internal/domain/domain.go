package domain

import (
	"sort"
	"strings"
	"time"
)

// SyntheticSongPrefix marks song IDs that did not come from the music catalog
// and therefore cannot be played through remote playback.
const SyntheticSongPrefix = "synthetic:"

// Room is the single shared document of a game instance.
type Room struct {
	RoomID               string            `json:"roomId"`
	Phase                Phase             `json:"phase"`
	CurrentQuestionIndex int               `json:"currentQuestionIndex"`
	RoundID              int               `json:"roundId"`
	Questions            []string          `json:"questions"`
	Players              map[string]Player `json:"players"`
	Submissions          []Submission      `json:"submissions"`
	Guesses              []Guess           `json:"guesses"`
	CurrentRevealIndex   int               `json:"currentRevealIndex"`
	CurrentTrackIndex    int               `json:"currentTrackIndex"`
	HostToken            string            `json:"hostToken,omitempty"`
	CreatedAt            time.Time         `json:"createdAt"`
	Revision             int64             `json:"revision"`
}

// Player is a member of a room. Players are never removed from the roster.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
	IsHost bool   `json:"isHost"`
	Avatar string `json:"avatar,omitempty"`

	// JoinOrder is the 0-based position in which the player joined, used for display and tie-breaks.
	JoinOrder int `json:"joinOrder"`
}

type Song struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	AlbumArt string `json:"albumArt,omitempty"`
}

// Playable reports whether the song can be played through the catalog's remote playback.
func (s Song) Playable() bool {
	return s.ID != "" && !strings.HasPrefix(s.ID, SyntheticSongPrefix)
}

type Submission struct {
	PlayerID string `json:"playerId"`
	Song     Song   `json:"song"`
	RoundID  int    `json:"roundId"`
}

// Key returns the round-scoped key guesses use to reference this submission.
func (s Submission) Key() SubmissionKey {
	return NewSubmissionKey(s.RoundID, s.Song.ID)
}

type Guess struct {
	VoterID        string        `json:"voterId"`
	SubmissionID   SubmissionKey `json:"submissionId"`
	TargetPlayerID string        `json:"targetPlayerId"`
	RoundID        int           `json:"roundId"`
}

// IsHost reports whether the given player is the host according to the synced roster.
func (r *Room) IsHost(playerID string) bool {
	p, ok := r.Players[playerID]
	return ok && p.IsHost
}

// Guests returns the non-host players in join order.
func (r *Room) Guests() []Player {
	out := make([]Player, 0, len(r.Players))
	for _, p := range r.OrderedPlayers() {
		if !p.IsHost {
			out = append(out, p)
		}
	}

	return out
}

// OrderedPlayers returns all players in join order.
func (r *Room) OrderedPlayers() []Player {
	out := make([]Player, 0, len(r.Players))
	for _, p := range r.Players {
		out = append(out, p)
	}

	sortByJoinOrder(out)
	return out
}

// LastQuestion reports whether the current question is the last one of the game.
func (r *Room) LastQuestion() bool {
	return r.CurrentQuestionIndex >= len(r.Questions)-1
}

// CurrentQuestion returns the prompt of the current round, or "" before the game started.
func (r *Room) CurrentQuestion() string {
	if r.CurrentQuestionIndex < 0 || r.CurrentQuestionIndex >= len(r.Questions) {
		return ""
	}

	return r.Questions[r.CurrentQuestionIndex]
}

// Clone returns a deep copy, so a mutator can never alias a cached snapshot.
func (r *Room) Clone() *Room {
	c := *r
	c.Questions = append([]string(nil), r.Questions...)
	c.Submissions = append([]Submission(nil), r.Submissions...)
	c.Guesses = append([]Guess(nil), r.Guesses...)
	c.Players = make(map[string]Player, len(r.Players))
	for id, p := range r.Players {
		c.Players[id] = p
	}

	return &c
}

func sortByJoinOrder(ps []Player) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].JoinOrder != ps[j].JoinOrder {
			return ps[i].JoinOrder < ps[j].JoinOrder
		}
		return ps[i].ID < ps[j].ID
	})
}
