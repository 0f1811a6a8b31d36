// Package peer implements the connection core of the chat utility: the
// accept loop, outbound dialing with its validation rules, one reader loop
// per live connection, the guarded connection table, and idempotent
// shutdown.
//
// Design:
//   - One goroutine runs the accept loop; one goroutine runs a reader loop
//     per registered connection. Dialing happens synchronously on the
//     caller's goroutine.
//   - Every blocking socket operation carries a deadline of one timeout
//     period. The deadline is the only cancellation mechanism: loops
//     re-check the running flag after each timeout, so no loop outlives a
//     shutdown request by more than one period.
//   - User-visible events (messages, joins, drops) are published on a
//     buffered channel and dropped when the consumer lags; operational
//     events go through slog.
package peer

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultTimeout bounds every accept, handshake, read and write.
	DefaultTimeout = 1 * time.Second

	maxMessageBytes = 100  // sender-side cap on encoded message length
	maxRecvBytes    = 1024 // receive buffer; one Read is one logical message

	noteBuffer = 64
)

// Peer is one chat process: it listens on a port, dials out to other peers,
// and keeps the table of live connections.
type Peer struct {
	port    int
	timeout time.Duration
	logger  *slog.Logger

	table *Table
	ln    *net.TCPListener
	notes chan Note

	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a Peer that will listen on port. A port of 0 picks an
// ephemeral port at Start, which tests rely on. A zero timeout falls back
// to DefaultTimeout.
func New(port int, timeout time.Duration, logger *slog.Logger) *Peer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Peer{
		port:    port,
		timeout: timeout,
		logger:  logger,
		table:   NewTable(),
		notes:   make(chan Note, noteBuffer),
	}
}

// Port returns the listening port. Valid after Start.
func (p *Peer) Port() int { return p.port }

// Notes returns the channel of user-visible events.
func (p *Peer) Notes() <-chan Note { return p.notes }

// Start binds the listener and launches the accept loop.
func (p *Peer) Start() error {
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{Port: p.port})
	if err != nil {
		return fmt.Errorf("peer: listen: %w", err)
	}
	p.ln = ln
	if p.port == 0 {
		p.port = ln.Addr().(*net.TCPAddr).Port
	}
	p.running.Store(true)

	p.wg.Add(1)
	go p.acceptLoop()

	p.logger.Info("peer started", "port", p.port)
	return nil
}

// LocalIP returns the non-localhost address of this machine, learned from
// the interface the OS would route an outbound packet through. The target
// does not need to be reachable; no packet is sent.
func (p *Peer) LocalIP() string {
	conn, err := net.Dial("udp4", "10.255.255.255:1")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

func (p *Peer) acceptLoop() {
	defer p.wg.Done()
	for p.running.Load() {
		p.ln.SetDeadline(time.Now().Add(p.timeout))
		conn, err := p.ln.AcceptTCP()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if !p.running.Load() {
				return
			}
			p.logger.Error("accept failed", "error", err)
			continue
		}
		// A socket accepted in flight during shutdown is closed unused.
		if !p.running.Load() {
			conn.Close()
			return
		}

		theirPort, err := acceptHandshake(conn, p.port, p.timeout)
		if err != nil {
			HandshakeFailures.Inc()
			p.logger.Warn("inbound handshake failed", "remote", conn.RemoteAddr().String(), "error", err)
			conn.Close()
			continue
		}
		if !p.running.Load() {
			conn.Close()
			return
		}

		ip := remoteHost(conn)
		rec := p.table.Register(conn, ip, theirPort)
		ActiveConnections.Set(float64(p.table.Len()))
		p.logger.Info("peer connected", "id", rec.ID, "ip", ip, "port", theirPort)
		p.publish(Note{Kind: NotePeerConnected, ID: rec.ID, IP: ip, Port: theirPort})

		p.wg.Add(1)
		go p.readLoop(rec)
	}
}

// Connect validates the target, dials it, runs the handshake and registers
// the connection. The three validations run before any socket is created;
// a failure anywhere leaves no record behind.
func (p *Peer) Connect(ip string, port int) (int, error) {
	if !p.running.Load() {
		return 0, ErrShuttingDown
	}
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil {
		return 0, ErrInvalidIP
	}
	if ip == p.LocalIP() && port == p.port {
		return 0, ErrSelfConnection
	}
	if p.table.FindAddr(ip, port) {
		return 0, ErrDuplicate
	}

	start := time.Now()
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(ip, strconv.Itoa(port)), p.timeout)
	if err != nil {
		return 0, fmt.Errorf("dial %s:%d: %w", ip, port, err)
	}
	theirPort, err := dialHandshake(conn, p.port, p.timeout)
	if err != nil {
		HandshakeFailures.Inc()
		conn.Close()
		return 0, err
	}
	if !p.running.Load() {
		conn.Close()
		return 0, ErrShuttingDown
	}

	rec := p.table.Register(conn, ip, theirPort)
	ActiveConnections.Set(float64(p.table.Len()))
	DialDuration.Observe(time.Since(start).Seconds())
	p.logger.Info("connected to peer", "id", rec.ID, "ip", ip, "port", theirPort)

	p.wg.Add(1)
	go p.readLoop(rec)
	return rec.ID, nil
}

// readLoop receives messages on one connection until the peer disconnects
// or the process shuts down. One successful Read is one logical message.
func (p *Peer) readLoop(rec *Conn) {
	defer p.wg.Done()
	buf := make([]byte, maxRecvBytes)
	for p.running.Load() {
		rec.Sock.SetReadDeadline(time.Now().Add(p.timeout))
		n, err := rec.Sock.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			// EOF means the peer closed; any other error is treated the
			// same. During shutdown the coordinator owns teardown, so the
			// loop just exits.
			if p.running.Load() {
				p.disconnect(rec.ID)
			}
			return
		}
		if n == 0 {
			if p.running.Load() {
				p.disconnect(rec.ID)
			}
			return
		}
		MessagesTotal.WithLabelValues("received").Inc()
		p.publish(Note{Kind: NoteMessage, ID: rec.ID, IP: rec.IP, Port: rec.Port, Text: string(buf[:n])})
	}
}

// Send writes one message to the given connection. The length cap applies
// before anything else, even before the id is resolved, so an oversized
// message never touches the table or the network.
func (p *Peer) Send(id int, message string) error {
	if len(message) > maxMessageBytes {
		return ErrMessageTooLong
	}
	rec, ok := p.table.Lookup(id)
	if !ok {
		return ErrNotFound
	}
	rec.Sock.SetWriteDeadline(time.Now().Add(p.timeout))
	if _, err := rec.Sock.Write([]byte(message)); err != nil {
		p.disconnect(id)
		return fmt.Errorf("send to %d: %w", id, err)
	}
	MessagesTotal.WithLabelValues("sent").Inc()
	return nil
}

// Terminate closes one connection by id and removes it from the table.
// A second call with the same id reports ErrNotFound and touches nothing.
func (p *Peer) Terminate(id int) (Info, error) {
	rec, ok := p.table.Remove(id)
	if !ok {
		return Info{}, ErrNotFound
	}
	rec.Sock.Close()
	ActiveConnections.Set(float64(p.table.Len()))
	p.logger.Info("connection terminated", "id", id, "ip", rec.IP, "port", rec.Port)
	return Info{ID: rec.ID, IP: rec.IP, Port: rec.Port}, nil
}

// List returns the live connections in insertion order.
func (p *Peer) List() []Info { return p.table.List() }

// disconnect is the shared teardown path for peer-initiated closes and
// failed writes. Racing calls for the same id are safe: only the one that
// wins the table removal closes the socket and publishes the drop.
func (p *Peer) disconnect(id int) {
	rec, ok := p.table.Remove(id)
	if !ok {
		return
	}
	rec.Sock.Close()
	ActiveConnections.Set(float64(p.table.Len()))
	p.logger.Info("peer disconnected", "id", id, "ip", rec.IP, "port", rec.Port)
	p.publish(Note{Kind: NotePeerDropped, ID: id, IP: rec.IP, Port: rec.Port})
}

// Shutdown flips the running flag exactly once, tears down every live
// connection, releases the listener and waits for all loops to exit.
// Teardown errors are swallowed; calling Shutdown again is a no-op.
func (p *Peer) Shutdown() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.logger.Info("shutting down")

	for _, rec := range p.table.Drain() {
		if tcp, ok := rec.Sock.(*net.TCPConn); ok {
			tcp.CloseRead()
			tcp.CloseWrite()
		}
		rec.Sock.Close()
	}
	ActiveConnections.Set(0)

	if p.ln != nil {
		p.ln.Close()
	}
	p.wg.Wait()
	p.logger.Info("shutdown complete")
}

func (p *Peer) publish(n Note) {
	// Non-blocking: a slow consumer drops notes instead of stalling the
	// accept or reader loops.
	select {
	case p.notes <- n:
	default:
	}
}

func remoteHost(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
