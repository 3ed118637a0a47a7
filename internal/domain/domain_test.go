package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/songparty/internal/domain"
)

func TestPhase_CanTransitionTo(t *testing.T) {
	allowed := [][2]domain.Phase{
		{domain.PhaseLobby, domain.PhasePrompt},
		{domain.PhasePrompt, domain.PhaseSubmitting},
		{domain.PhaseSubmitting, domain.PhaseListening},
		{domain.PhaseListening, domain.PhaseVoting},
		{domain.PhaseVoting, domain.PhaseReveal},
		{domain.PhaseReveal, domain.PhaseReveal},
		{domain.PhaseReveal, domain.PhaseScoreboard},
		{domain.PhaseScoreboard, domain.PhasePrompt},
		{domain.PhaseScoreboard, domain.PhaseFinal},
	}
	for _, tr := range allowed {
		assert.True(t, tr[0].CanTransitionTo(tr[1]), "%s -> %s", tr[0], tr[1])
	}

	denied := [][2]domain.Phase{
		{domain.PhaseLobby, domain.PhaseSubmitting},
		{domain.PhaseVoting, domain.PhaseListening},
		{domain.PhaseScoreboard, domain.PhaseReveal},
		{domain.PhaseFinal, domain.PhasePrompt},
		{domain.PhaseFinal, domain.PhaseLobby},
	}
	for _, tr := range denied {
		assert.False(t, tr[0].CanTransitionTo(tr[1]), "%s -> %s", tr[0], tr[1])
	}

	assert.True(t, domain.PhaseFinal.Valid())
	assert.True(t, domain.PhaseFinal.Terminal())
	assert.False(t, domain.Phase("WAITING").Valid())
}

func TestSubmissionKey(t *testing.T) {
	k := domain.NewSubmissionKey(3, "spotify:track:abc")
	assert.Equal(t, domain.SubmissionKey("3:spotify:track:abc"), k)

	r, s, err := k.Parse()
	require.NoError(t, err)
	assert.Equal(t, 3, r)
	assert.Equal(t, "spotify:track:abc", s)

	for _, bad := range []domain.SubmissionKey{"", "abc", "x:song", "-1:song", "2:"} {
		_, _, err := bad.Parse()
		assert.Error(t, err, "key %q", bad)
		assert.Equal(t, -1, bad.Round())
	}
}

func TestSong_Playable(t *testing.T) {
	assert.True(t, domain.Song{ID: "4uLU6hMCjMI75M1A2tKUQC"}.Playable())
	assert.False(t, domain.Song{ID: domain.SyntheticSongPrefix + "local-3"}.Playable())
	assert.False(t, domain.Song{}.Playable())
}

func TestRoom_Normalize(t *testing.T) {
	r := &domain.Room{
		Phase:              "BOGUS",
		RoundID:            -2,
		CurrentRevealIndex: -1,
		Questions:          []string{" A song for a road trip ", "", "  "},
		Players: map[string]domain.Player{
			"p1": {ID: "p1", Name: "Host", IsHost: true},
			"p2": {ID: "wrong", Name: "Alice", JoinOrder: 1},
			"":   {Name: "ghost"},
		},
		Submissions: []domain.Submission{
			{PlayerID: "p2", Song: domain.Song{ID: "s1"}, RoundID: 0},
			{PlayerID: "p2", Song: domain.Song{ID: "s2"}, RoundID: 0},
			{PlayerID: "", Song: domain.Song{ID: "s3"}, RoundID: 0},
			{PlayerID: "p3", Song: domain.Song{}, RoundID: 0},
		},
		Guesses: []domain.Guess{
			{VoterID: "p2", SubmissionID: "0:s9", TargetPlayerID: "p1", RoundID: 0},
			{VoterID: "p2", SubmissionID: "0:s9", TargetPlayerID: "p3", RoundID: 0},
			{VoterID: "p2", SubmissionID: "1:s9", TargetPlayerID: "p3", RoundID: 0},
			{VoterID: "", SubmissionID: "0:s8", TargetPlayerID: "p3", RoundID: 0},
		},
	}

	dropped := r.Normalize()

	assert.Equal(t, 9, dropped)
	assert.Equal(t, domain.PhaseLobby, r.Phase)
	assert.Zero(t, r.RoundID)
	assert.Zero(t, r.CurrentRevealIndex)
	assert.Equal(t, []string{"A song for a road trip"}, r.Questions)
	require.Len(t, r.Players, 2)
	assert.Equal(t, "p2", r.Players["p2"].ID)
	assert.Equal(t, []domain.Submission{{PlayerID: "p2", Song: domain.Song{ID: "s1"}, RoundID: 0}}, r.Submissions)
	assert.Equal(t, []domain.Guess{{VoterID: "p2", SubmissionID: "0:s9", TargetPlayerID: "p3", RoundID: 0}}, r.Guesses)
}

func TestRoom_Clone(t *testing.T) {
	r := &domain.Room{
		Players:     map[string]domain.Player{"p1": {ID: "p1", Score: 10}},
		Submissions: []domain.Submission{{PlayerID: "p1"}},
	}

	c := r.Clone()
	c.Players["p1"] = domain.Player{ID: "p1", Score: 20}
	c.Submissions[0].PlayerID = "p2"

	assert.Equal(t, 10, r.Players["p1"].Score)
	assert.Equal(t, "p1", r.Submissions[0].PlayerID)
}

func TestRoom_Guests(t *testing.T) {
	r := &domain.Room{
		Players: map[string]domain.Player{
			"h": {ID: "h", IsHost: true, JoinOrder: 0},
			"b": {ID: "b", JoinOrder: 2},
			"a": {ID: "a", JoinOrder: 1},
		},
	}

	guests := r.Guests()
	require.Len(t, guests, 2)
	assert.Equal(t, "a", guests[0].ID)
	assert.Equal(t, "b", guests[1].ID)
	assert.True(t, r.IsHost("h"))
	assert.False(t, r.IsHost("a"))
	assert.False(t, r.IsHost("zzz"))
}
