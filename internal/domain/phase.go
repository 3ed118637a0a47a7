package domain

// Phase is a state of the game state machine.
type Phase string

const (
	PhaseLobby      Phase = "LOBBY"
	PhasePrompt     Phase = "PROMPT"
	PhaseSubmitting Phase = "SUBMITTING"
	PhaseListening  Phase = "LISTENING"
	PhaseVoting     Phase = "VOTING"
	PhaseReveal     Phase = "REVEAL"
	PhaseScoreboard Phase = "SCOREBOARD"
	PhaseFinal      Phase = "FINAL"
)

var transitions = map[Phase][]Phase{
	PhaseLobby:      {PhasePrompt},
	PhasePrompt:     {PhaseSubmitting},
	PhaseSubmitting: {PhaseListening},
	PhaseListening:  {PhaseVoting},
	PhaseVoting:     {PhaseReveal},
	PhaseReveal:     {PhaseReveal, PhaseScoreboard},
	PhaseScoreboard: {PhasePrompt, PhaseFinal},
}

func (p Phase) String() string {
	return string(p)
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	if p == PhaseFinal {
		return true
	}

	_, ok := transitions[p]
	return ok
}

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool {
	return p == PhaseFinal
}

// CanTransitionTo reports whether the state machine allows moving from p to target.
func (p Phase) CanTransitionTo(target Phase) bool {
	for _, to := range transitions[p] {
		if to == target {
			return true
		}
	}

	return false
}
