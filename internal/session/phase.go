package session

import (
	"errors"
	"fmt"
)

// Phase is the connection stage of the engine
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseOpening
	PhaseConnecting
	PhaseStreaming
	PhaseTerminated
)

var phaseNames = [...]string{
	PhaseIdle:       "idle",
	PhaseOpening:    "opening",
	PhaseConnecting: "connecting",
	PhaseStreaming:  "streaming",
	PhaseTerminated: "terminated",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

// Reason says why a session ended
type Reason int

const (
	ReasonNone Reason = iota
	ReasonUnplugged
	ReasonPhaseZero
	ReasonLivenessTimeout
	ReasonChannelError
	ReasonShutdown
)

var reasonNames = [...]string{
	ReasonNone:            "none",
	ReasonUnplugged:       "unplugged",
	ReasonPhaseZero:       "phase_zero",
	ReasonLivenessTimeout: "liveness_timeout",
	ReasonChannelError:    "channel_error",
	ReasonShutdown:        "shutdown",
}

func (r Reason) String() string {
	if r >= 0 && int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// UserMessage is the coarse status shown to users. Protocol detail stays in
// the logs.
func (r Reason) UserMessage() string {
	switch r {
	case ReasonShutdown:
		return "adapter stopped"
	case ReasonNone:
		return ""
	default:
		return "adapter disconnected, retrying"
	}
}

// Recoverable reports whether the supervisor should reopen after r
func (r Reason) Recoverable() bool {
	return r != ReasonShutdown && r != ReasonNone
}

// ErrNotOpen is returned by Send when no session is running
var ErrNotOpen = errors.New("session: no open session")
