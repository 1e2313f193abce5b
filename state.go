package guestws

import (
	"fmt"
	"time"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CloseReason qualifies StateClosed.
type CloseReason int

const (
	ReasonNone CloseReason = iota
	// ReasonNormal: the remote closed with 1000. No reconnect.
	ReasonNormal
	// ReasonAbnormal: any other close code, or a stale connection. Reconnect scheduled.
	ReasonAbnormal
	// ReasonError: the attempt never reached Open. Caller has to retry.
	ReasonError
	// ReasonUserRequested: Disconnect was called.
	ReasonUserRequested
)

func (r CloseReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNormal:
		return "normal"
	case ReasonAbnormal:
		return "abnormal"
	case ReasonError:
		return "error"
	case ReasonUserRequested:
		return "user-requested"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Status is a snapshot of the manager's connection state, meant for display.
type Status struct {
	State  State
	Reason CloseReason
	// Identity is the identity on record, empty after Disconnect.
	Identity string
	// Err is the last error seen: broker refusal, dial failure, transport error or
	// remote close.
	Err        error
	CloseCode  int
	Reconnects int
	SessionID  string
	Since      time.Time
}

func (s Status) IsConnected() bool { return s.State == StateOpen }

func (s Status) IsConnecting() bool { return s.State == StateConnecting }

func (s Status) ErrorText() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

func (s Status) String() string {
	if s.State == StateClosed {
		return fmt.Sprintf("%s(%s)", s.State, s.Reason)
	}
	return s.State.String()
}

// EventType names the manager events listeners can subscribe to.
type EventType string

const (
	EventStateChange EventType = "state_change"
	EventOpen        EventType = "open"
	EventClose       EventType = "close"
	EventReconnect   EventType = "reconnect"
)

// StateHandler receives a Status snapshot.
type StateHandler func(Status)
