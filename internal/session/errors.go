package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLoggedOn is returned by Send before the first successful logon
	ErrNotLoggedOn = errors.New("session never logged on")
	// ErrAuthRejected means the venue refused the logon
	ErrAuthRejected = errors.New("logon rejected")
	// ErrRetriesExhausted means MaxConnectAttempts consecutive dials failed
	ErrRetriesExhausted = errors.New("connect retries exhausted")
	// ErrHeartbeatTimeout means a TestRequest went unanswered
	ErrHeartbeatTimeout = errors.New("test request not answered")
	// ErrLoggedOut means the venue ended a logged-on session
	ErrLoggedOut = errors.New("logout received")
	// ErrClosed is returned after Disconnect
	ErrClosed = errors.New("session closed")
	// ErrReserve means the numbering high-water mark could not be saved, so
	// the message was not sent
	ErrReserve = errors.New("sequence reservation failed")
)

// Kind classifies session failures by how they are handled
type Kind int

const (
	// KindTransport errors are retried by reconnecting
	KindTransport Kind = iota + 1
	// KindSequence errors are recovered with a ResendRequest
	KindSequence
	// KindDecode errors drop a single inbound message
	KindDecode
	// KindAuth errors stop the session and are delivered on Fatal
	KindAuth
	// KindContract errors are caller mistakes returned from Send
	KindContract
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindSequence:
		return "sequence"
	case KindDecode:
		return "decode"
	case KindAuth:
		return "auth"
	case KindContract:
		return "contract"
	}
	return "unknown"
}

// Error carries a Kind alongside the underlying cause
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain
func KindOf(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

func transportErr(err error) error { return &Error{Kind: KindTransport, Err: err} }
