package peer

import "net"

// Conn is one registered peer connection. The socket is owned by the
// connection's reader loop plus the table entry pointing at it; once the
// entry is removed the socket is closed and never reused.
type Conn struct {
	ID   int
	Sock net.Conn
	IP   string
	Port int // the peer's advertised listening port, not the ephemeral source port
}

// Info is the user-visible view of a connection.
type Info struct {
	ID   int
	IP   string
	Port int
}

type NoteKind int

const (
	NoteMessage NoteKind = iota
	NotePeerConnected
	NotePeerDropped
)

// Note is an asynchronous user-visible event (incoming message, new inbound
// connection, dropped connection) delivered on the Notes channel.
type Note struct {
	Kind NoteKind
	ID   int
	IP   string
	Port int
	Text string
}

var (
	ErrInvalidIP      = errorString("invalid IP address")
	ErrSelfConnection = errorString("self-connection is not allowed")
	ErrDuplicate      = errorString("duplicate connection is not allowed")
	ErrNotFound       = errorString("connection does not exist")
	ErrMessageTooLong = errorString("message too long")
	ErrShuttingDown   = errorString("shutting down")
)

type errorString string

func (e errorString) Error() string { return string(e) }
