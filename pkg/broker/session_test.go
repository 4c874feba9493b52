package broker

import "net"

// newAuthenticatedSession wires a Session to one end of an in-memory
// net.Pipe and drives its embedded SASL exchange directly (bypassing the
// wire for the auth phase, since that state machine is exercised on its
// own in internal/sasl's tests) so message-phase tests can write D-Bus
// messages straight onto the pipe.
func newAuthenticatedSession(uniqueName string, listenerID uint64, uuid string) (*Session, net.Conn) {
	server, client := net.Pipe()
	s := NewSession(server, uniqueName, listenerID, uuid)
	s.auth.ProcessRequest("AUTH EXTERNAL 31303030")
	s.auth.ProcessRequest("BEGIN")
	return s, client
}
