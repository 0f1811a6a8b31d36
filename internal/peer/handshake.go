package peer

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// The handshake is a bare exchange of decimal ASCII port numbers, one short
// write per direction with no delimiter or length prefix. It is only correct
// when each side's write arrives as a single receivable chunk before any
// chat payload follows; see DESIGN.md. Both reads and writes carry a
// deadline so a stalled peer cannot wedge the accept loop or a connect call.

// acceptHandshake runs the accept-side exchange: read the peer's advertised
// listening port, then answer with our own.
func acceptHandshake(conn net.Conn, ownPort int, timeout time.Duration) (int, error) {
	theirPort, err := readPort(conn, timeout)
	if err != nil {
		return 0, err
	}
	if err := writePort(conn, ownPort, timeout); err != nil {
		return 0, err
	}
	return theirPort, nil
}

// dialHandshake runs the dial-side exchange with the roles reversed.
func dialHandshake(conn net.Conn, ownPort int, timeout time.Duration) (int, error) {
	if err := writePort(conn, ownPort, timeout); err != nil {
		return 0, err
	}
	return readPort(conn, timeout)
}

func readPort(conn net.Conn, timeout time.Duration) (int, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("handshake read: %w", err)
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil {
		return 0, fmt.Errorf("handshake decode %q: %w", buf[:n], err)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("handshake decode: port %d out of range", port)
	}
	return port, nil
}

func writePort(conn net.Conn, port int, timeout time.Duration) error {
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	if _, err := conn.Write([]byte(strconv.Itoa(port))); err != nil {
		return fmt.Errorf("handshake write: %w", err)
	}
	return nil
}
