// Package sasl implements the server side of the D-Bus SASL line dialogue:
// the text exchange a session runs before it is allowed into the message
// phase. It supports the two mechanisms a broker must accept from any
// conforming peer, EXTERNAL and ANONYMOUS; it does not implement
// DBUS_COOKIE_SHA1 or Kerberos/GSSAPI mechanisms, which are out of scope for
// a broker (those authenticate a *client* to a remote bus, not a peer to this
// one).
package sasl

import (
	"encoding/hex"
	"strings"
)

// state is the SASL exchange's own sub-state machine, distinct from (and
// nested inside) the session's AUTH/MSG framing state.
type state int

const (
	stateWaitingForAuth state = iota
	stateWaitingForData
	stateWaitingForBegin
	stateAuthenticated
)

// AuthServer runs one session's SASL dialogue. It is parameterised by the
// listener's UUID, which it returns on a successful OK and nowhere else.
type AuthServer struct {
	uuid  string
	state state
	mech  string
}

// NewAuthServer creates an AuthServer for a session accepted on the listener
// identified by uuid (hex-encoded, no dashes, as required by the SASL OK
// line and GetId).
func NewAuthServer(uuid string) *AuthServer {
	return &AuthServer{uuid: uuid, state: stateWaitingForAuth}
}

// IsAuthenticated reports whether BEGIN has been received, ending the SASL
// exchange and handing the connection to the message phase.
func (a *AuthServer) IsAuthenticated() bool {
	return a.state == stateAuthenticated
}

// ProcessRequest consumes one line (without its trailing \r\n) and returns
// zero or more response lines, each to be written back with a \r\n appended
// by the caller.
func (a *AuthServer) ProcessRequest(line string) []string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return []string{"ERROR"}
	}
	cmd := fields[0]

	switch a.state {
	case stateWaitingForAuth, stateWaitingForData:
		switch cmd {
		case "AUTH":
			return a.handleAuth(fields[1:])
		case "CANCEL":
			a.state = stateWaitingForAuth
			return []string{"REJECTED EXTERNAL ANONYMOUS"}
		case "ERROR":
			a.state = stateWaitingForAuth
			return []string{"REJECTED EXTERNAL ANONYMOUS"}
		case "DATA":
			if a.state != stateWaitingForData {
				return []string{"ERROR"}
			}
			// Both supported mechanisms are single-round; any further DATA is
			// accepted without further scrutiny.
			a.state = stateWaitingForBegin
			return []string{"OK " + a.uuid}
		case "NEGOTIATE_UNIX_FD":
			return []string{"ERROR"}
		default:
			return []string{"ERROR"}
		}
	case stateWaitingForBegin:
		switch cmd {
		case "BEGIN":
			a.state = stateAuthenticated
			return nil
		case "CANCEL":
			a.state = stateWaitingForAuth
			return []string{"REJECTED EXTERNAL ANONYMOUS"}
		default:
			return []string{"ERROR"}
		}
	default:
		return []string{"ERROR"}
	}
}

func (a *AuthServer) handleAuth(args []string) []string {
	if len(args) == 0 {
		return []string{"REJECTED EXTERNAL ANONYMOUS"}
	}
	mech := strings.ToUpper(args[0])
	switch mech {
	case "EXTERNAL":
		a.mech = mech
		if len(args) > 1 {
			// The initial response may carry the hex-encoded uid inline;
			// accept it immediately rather than issuing a DATA round.
			if _, err := hex.DecodeString(args[1]); err != nil {
				return []string{"REJECTED EXTERNAL ANONYMOUS"}
			}
			a.state = stateWaitingForBegin
			return []string{"OK " + a.uuid}
		}
		a.state = stateWaitingForData
		return []string{"DATA"}
	case "ANONYMOUS":
		a.mech = mech
		a.state = stateWaitingForBegin
		return []string{"OK " + a.uuid}
	default:
		return []string{"REJECTED EXTERNAL ANONYMOUS"}
	}
}
