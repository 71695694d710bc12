package cards

import "fmt"

// Phase is the game's position in the round state machine.
type Phase int

const (
	PhaseLobby Phase = iota
	PhaseSubmission
	PhaseSelection
	PhaseResolved
	PhaseGameOver
)

var phaseNames = map[Phase]string{
	PhaseLobby:      "lobby",
	PhaseSubmission: "submission",
	PhaseSelection:  "selection",
	PhaseResolved:   "resolved",
	PhaseGameOver:   "game_over",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for phase, name := range phaseNames {
		if name == string(text) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// InRound reports whether submissions or the czar's pick are underway.
func (p Phase) InRound() bool {
	return p == PhaseSubmission || p == PhaseSelection
}
