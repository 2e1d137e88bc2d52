package presence

// Probe holds the raw visibility results of one room classification.
type Probe struct {
	HostNotStarted bool
	InMeeting      bool
	InSpace        bool
}

// Outcome is the classification of a join attempt.
type Outcome int

const (
	// OutcomeUnconfirmed means no indicator appeared.
	OutcomeUnconfirmed Outcome = iota
	// OutcomeHostNotStarted means the room owner has not opened the room.
	OutcomeHostNotStarted
	// OutcomeJoined means an in-meeting surface is visible.
	OutcomeJoined
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHostNotStarted:
		return "host-not-started"
	case OutcomeJoined:
		return "joined"
	default:
		return "unconfirmed"
	}
}

// Classify applies the tie-break order host-not-started > in-meeting >
// unconfirmed. Either in-meeting surface counts as joined.
func Classify(p Probe) Outcome {
	switch {
	case p.HostNotStarted:
		return OutcomeHostNotStarted
	case p.InMeeting || p.InSpace:
		return OutcomeJoined
	default:
		return OutcomeUnconfirmed
	}
}
