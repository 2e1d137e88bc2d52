package presence

import "fmt"

// State is the presence lifecycle state.
type State int

const (
	// StateSearching cycles through rooms until one confirms membership.
	StateSearching State = iota
	// StateJoined means membership was confirmed; periodic checks run.
	StateJoined
	// StateLost means a presence check failed. Always followed by StateRejoining.
	StateLost
	// StateRejoining cancels the presence check and restarts the join loop.
	StateRejoining
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "SEARCHING"
	case StateJoined:
		return "JOINED"
	case StateLost:
		return "LOST"
	case StateRejoining:
		return "REJOINING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// transitions is the table of legal moves. Anything else is a programming error.
var transitions = map[State][]State{
	StateSearching: {StateSearching, StateJoined},
	StateJoined:    {StateJoined, StateLost},
	StateLost:      {StateRejoining},
	StateRejoining: {StateSearching},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
