// Package state defines the enumerations shared by the signaling
// connection state machine: connection states, call direction, the
// glare outcome, and wire message kinds.
package state

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of a Conn.
type State int

const (
	Idle State = iota
	PendingOutgoing
	PendingIncoming
	ConflictResolution
	Answered
	DatachanEstablished
	UpdateSent
	UpdateRecv
	HangupSent
	HangupRecv
	Terminating
)

// String returns the name used in log lines and the debug formatter.
func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case PendingOutgoing:
		return "PENDING_OUTGOING"
	case PendingIncoming:
		return "PENDING_INCOMING"
	case ConflictResolution:
		return "CONFLICT_RESOLUTION"
	case Answered:
		return "ANSWERED"
	case DatachanEstablished:
		return "DATACHAN_ESTABLISHED"
	case UpdateSent:
		return "UPDATE_SENT"
	case UpdateRecv:
		return "UPDATE_RECV"
	case HangupSent:
		return "HANGUP_SENT"
	case HangupRecv:
		return "HANGUP_RECV"
	case Terminating:
		return "TERMINATING"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// IsTerminal reports whether the connection may only be destroyed
// from this state onward.
func (s State) IsTerminal() bool {
	return s == Terminating
}

// HasTimer reports whether invariant 3 of spec.md §3 requires a
// scheduled timer while in this state (the 1ms cancel-tick entered
// from End() is scheduled explicitly by the caller, not implied by
// reaching Terminating itself).
func (s State) HasTimer() bool {
	switch s {
	case PendingOutgoing, PendingIncoming, ConflictResolution,
		UpdateSent, UpdateRecv, HangupSent:
		return true
	default:
		return false
	}
}

// Direction indicates which side originated the connection.
type Direction int

const (
	DirUnknown Direction = iota
	DirOutgoing
	DirIncoming
)

func (d Direction) String() string {
	switch d {
	case DirOutgoing:
		return "OUTGOING"
	case DirIncoming:
		return "INCOMING"
	default:
		return "UNKNOWN"
	}
}

// Conflict is the tri-state glare outcome recorded on a Conn.
type Conflict int

const (
	ConflictNone Conflict = 0
	ConflictWon  Conflict = 1
	ConflictLost Conflict = -1
)

func (c Conflict) String() string {
	switch c {
	case ConflictWon:
		return "Winner"
	case ConflictLost:
		return "Loser"
	default:
		return "None"
	}
}

// MsgKind enumerates the wire message variants of spec.md §4.A.
type MsgKind int

const (
	KindUnknown MsgKind = iota
	KindSetup
	KindUpdate
	KindCancel
	KindHangup
	KindPropsync
)

// String returns the lower-case wire name used to encode "type".
func (k MsgKind) String() string {
	switch k {
	case KindSetup:
		return "setup"
	case KindUpdate:
		return "update"
	case KindCancel:
		return "cancel"
	case KindHangup:
		return "hangup"
	case KindPropsync:
		return "propsync"
	default:
		return "unknown"
	}
}

// ParseMsgKind matches a wire "type" value case-insensitively.
func ParseMsgKind(s string) MsgKind {
	switch strings.ToLower(s) {
	case "setup":
		return KindSetup
	case "update":
		return KindUpdate
	case "cancel":
		return KindCancel
	case "hangup":
		return KindHangup
	case "propsync":
		return KindPropsync
	default:
		return KindUnknown
	}
}
