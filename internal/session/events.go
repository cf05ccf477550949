package session

import "github.com/Aidin1998/fixengine/internal/codec"

// State is the session lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateLogonSent
	StateActive
	StateResendPending
	StateLogoutSent
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateLogonSent:
		return "LogonSent"
	case StateActive:
		return "Active"
	case StateResendPending:
		return "ResendPending"
	case StateLogoutSent:
		return "LogoutSent"
	case StateFailed:
		return "Failed"
	}
	return "Unknown"
}

// EventKind classifies events handed to the application layer.
type EventKind int

const (
	// EventActive fires once when the logon handshake completes.
	EventActive EventKind = iota
	// EventMessage delivers a validated, in-sequence application message.
	EventMessage
	// EventDuplicate delivers a PossDup replay of an already-processed
	// sequence number. Informational; the inbound counter did not move.
	EventDuplicate
	// EventRejected reports an inbound message this side rejected. A Reject
	// was sent to the peer; Err describes the failure.
	EventRejected
	// EventPeerReject delivers a Reject the peer sent us.
	EventPeerReject
	// EventGarbled reports an inbound byte sequence that could not be framed.
	// The bytes were discarded.
	EventGarbled
	// EventDisconnected reports an orderly end of session.
	EventDisconnected
	// EventFailed reports a fatal session error. The state is terminal;
	// recovery requires a fresh connection.
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventActive:
		return "Active"
	case EventMessage:
		return "Message"
	case EventDuplicate:
		return "Duplicate"
	case EventRejected:
		return "Rejected"
	case EventPeerReject:
		return "PeerReject"
	case EventGarbled:
		return "Garbled"
	case EventDisconnected:
		return "Disconnected"
	case EventFailed:
		return "Failed"
	}
	return "Unknown"
}

// Event is one observation the application layer must consume.
type Event struct {
	Kind   EventKind
	Msg    *codec.Message // Message, Duplicate, PeerReject
	Reason string         // Disconnected, Failed, Garbled
	Err    error          // Rejected
}
