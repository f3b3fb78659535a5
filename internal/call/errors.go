package call

import (
	"errors"
	"fmt"
)

var (
	ErrMediaUnavailable   = errors.New("camera or microphone unavailable")
	ErrRoomCreation       = errors.New("room creation failed")
	ErrRelayUnavailable   = errors.New("signaling relay unreachable")
	ErrRelayLost          = errors.New("signaling relay connection lost")
	ErrRelayRejected      = errors.New("signaling relay rejected the request")
	ErrPeerLeft           = errors.New("other participant left")
	ErrPeerFailed         = errors.New("peer connection failed")
	ErrNegotiation        = errors.New("negotiation failed")
	ErrNegotiationTimeout = errors.New("negotiation timed out")
	ErrIllegalTransition  = errors.New("illegal state transition")
	ErrNoRoom             = errors.New("no room id")
	ErrInvalidOptions     = errors.New("invalid call options")
)

// Error is a failure of one call step.
type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}

// Cause ties a sentinel to the underlying error, keeping both reachable through errors.Is.
func Cause(op string, sentinel, cause error) *Error {
	if cause == nil {
		return &Error{Op: op, Err: sentinel}
	}
	return &Error{Op: op, Err: fmt.Errorf("%w: %w", sentinel, cause)}
}
