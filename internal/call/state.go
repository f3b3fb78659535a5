package call

import "fmt"

// State is the phase of a call.
type State int

const (
	StateIdle State = iota
	StateAcquiringMedia
	StateAwaitingRoom
	StateNegotiating
	StateConnected
	StateEnded
	StateError
)

var stateNames = [...]string{
	StateIdle:           "Idle",
	StateAcquiringMedia: "AcquiringMedia",
	StateAwaitingRoom:   "AwaitingRoom",
	StateNegotiating:    "Negotiating",
	StateConnected:      "Connected",
	StateEnded:          "Ended",
	StateError:          "Error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateError
}

// Event drives the state machine.
type Event int

const (
	EventStart             Event = iota // session start
	EventMediaReady                     // local tracks acquired
	EventJoined                         // room joined (and offer sent, for the tutor)
	EventRemoteDescription              // an offer or answer is about to be applied
	EventRemoteTrack                    // first media from the other side
	EventHangup                         // local hang-up, remote hang-up or peer gone after connecting
	EventFailure                        // anything fatal
)

var eventNames = [...]string{
	EventStart:             "start",
	EventMediaReady:        "media_ready",
	EventJoined:            "joined",
	EventRemoteDescription: "remote_description",
	EventRemoteTrack:       "remote_track",
	EventHangup:            "hangup",
	EventFailure:           "failure",
}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return fmt.Sprintf("Event(%d)", int(e))
	}
	return eventNames[e]
}

// transition returns the state reached from s on e.
// Illegal moves leave the state unchanged and return ErrIllegalTransition.
func transition(s State, e Event) (State, error) {
	if s.Terminal() {
		return s, illegal(s, e)
	}

	switch e {
	case EventHangup:
		return StateEnded, nil
	case EventFailure:
		return StateError, nil
	}

	switch s {
	case StateIdle:
		if e == EventStart {
			return StateAcquiringMedia, nil
		}
	case StateAcquiringMedia:
		if e == EventMediaReady {
			return StateAwaitingRoom, nil
		}
	case StateAwaitingRoom:
		if e == EventJoined {
			return StateNegotiating, nil
		}
	case StateNegotiating:
		switch e {
		case EventRemoteDescription:
			return StateNegotiating, nil
		case EventRemoteTrack:
			return StateConnected, nil
		}
	case StateConnected:
		// More tracks may follow the first one; a new description mid-call is not supported.
		if e == EventRemoteTrack {
			return StateConnected, nil
		}
	}
	return s, illegal(s, e)
}

func illegal(s State, e Event) error {
	return fmt.Errorf("%w: %s on %s", ErrIllegalTransition, s, e)
}
