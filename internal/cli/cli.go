// Package cli implements the interactive command prompt that drives a peer:
// parsing user commands, printing command results, and echoing asynchronous
// peer events between prompts.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/peerchat/peerchat/internal/peer"
)

// Chat is the part of the peer the command loop drives.
type Chat interface {
	Connect(ip string, port int) (int, error)
	Send(id int, message string) error
	Terminate(id int) (peer.Info, error)
	List() []peer.Info
	LocalIP() string
	Port() int
	Shutdown()
}

const helpText = `
Available commands:
  help                  - Display this help message
  myip                  - Display your IP address
  myport                - Display your port number
  connect <ip> <port>   - Connect to a peer
  list                  - List all active connections
  terminate <id>        - Terminate a connection
  send <id> <message>   - Send a message to a peer
  exit                  - Close all connections and exit
`

// Loop reads commands from in and writes results to out. Asynchronous
// events share the same writer, guarded by a mutex so a message arriving
// mid-prompt does not interleave with command output.
type Loop struct {
	chat Chat
	in   io.Reader

	mu  sync.Mutex
	out io.Writer
}

func New(chat Chat, in io.Reader, out io.Writer) *Loop {
	return &Loop{chat: chat, in: in, out: out}
}

// Notify starts a goroutine that prints peer events as they arrive and
// re-draws the prompt, the way the reference client does.
func (l *Loop) Notify(notes <-chan peer.Note) {
	go func() {
		for n := range notes {
			switch n.Kind {
			case peer.NoteMessage:
				l.printf("\nMessage received from %s\nSender's Port: %d\nMessage: \"%s\"\n>> ", n.IP, n.Port, n.Text)
			case peer.NotePeerConnected:
				l.printf("\nNew connection from %s:%d\n>> ", n.IP, n.Port)
			case peer.NotePeerDropped:
				l.printf("\nConnection %d (%s:%d) has been terminated\n>> ", n.ID, n.IP, n.Port)
			}
		}
	}()
}

// Run processes commands until exit or EOF. Both paths shut the peer down.
func (l *Loop) Run() {
	l.printf("Chat application started on port %d\n", l.chat.Port())
	l.printf("%s", helpText)

	scanner := bufio.NewScanner(l.in)
	for {
		l.printf(">> ")
		if !scanner.Scan() {
			break
		}
		if l.dispatch(scanner.Text()) {
			return
		}
	}
	l.chat.Shutdown()
}

// dispatch runs one command line and reports whether the loop should exit.
// Malformed arguments print a usage line and change no state.
func (l *Loop) dispatch(line string) (exit bool) {
	parts := splitCommand(line)
	if len(parts) == 0 {
		return false
	}

	switch strings.ToLower(parts[0]) {
	case "help":
		l.printf("%s", helpText)

	case "myip":
		l.printf("%s\n", l.chat.LocalIP())

	case "myport":
		l.printf("%d\n", l.chat.Port())

	case "connect":
		if len(parts) != 3 {
			l.printf("Usage: connect <ip> <port>\n")
			return false
		}
		port, err := strconv.Atoi(parts[2])
		if err != nil {
			l.printf("Invalid port number\n")
			return false
		}
		l.connect(parts[1], port)

	case "list":
		l.list()

	case "terminate":
		if len(parts) != 2 {
			l.printf("Usage: terminate <connection_id>\n")
			return false
		}
		id, err := strconv.Atoi(parts[1])
		if err != nil {
			l.printf("Invalid connection ID\n")
			return false
		}
		l.terminate(id)

	case "send":
		if len(parts) < 3 {
			l.printf("Usage: send <connection_id> <message>\n")
			return false
		}
		id, err := strconv.Atoi(parts[1])
		if err != nil {
			l.printf("Invalid connection ID\n")
			return false
		}
		l.send(id, parts[2])

	case "exit":
		l.chat.Shutdown()
		return true

	default:
		l.printf("Unknown command. Type 'help' for available commands.\n")
	}
	return false
}

func (l *Loop) connect(ip string, port int) {
	_, err := l.chat.Connect(ip, port)
	switch {
	case err == nil:
		l.printf("Connected to %s:%d\n", ip, port)
	case errors.Is(err, peer.ErrInvalidIP):
		l.printf("Invalid IP address\n")
	case errors.Is(err, peer.ErrSelfConnection):
		l.printf("Self-connection is not allowed\n")
	case errors.Is(err, peer.ErrDuplicate):
		l.printf("Duplicate connection is not allowed\n")
	default:
		l.printf("Connection failed: %v\n", err)
	}
}

func (l *Loop) list() {
	conns := l.chat.List()
	if len(conns) == 0 {
		l.printf("No active connections\n")
		return
	}
	l.printf("id: IP address      Port No.\n")
	for _, c := range conns {
		l.printf("%d: %-15s %d\n", c.ID, c.IP, c.Port)
	}
}

func (l *Loop) terminate(id int) {
	info, err := l.chat.Terminate(id)
	if err != nil {
		l.printf("Connection %d does not exist\n", id)
		return
	}
	l.printf("Connection %d (%s:%d) terminated\n", info.ID, info.IP, info.Port)
}

func (l *Loop) send(id int, message string) {
	err := l.chat.Send(id, message)
	switch {
	case err == nil:
		l.printf("Message sent to %d\n", id)
	case errors.Is(err, peer.ErrMessageTooLong):
		l.printf("Message too long (max 100 characters)\n")
	case errors.Is(err, peer.ErrNotFound):
		l.printf("Connection %d does not exist\n", id)
	default:
		l.printf("Failed to send message: %v\n", err)
	}
}

func (l *Loop) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, format, args...)
}

// splitCommand splits a line into at most three fields: command, first
// argument, and the untouched remainder. Whitespace inside the remainder
// is preserved so sent messages keep their internal spacing.
func splitCommand(line string) []string {
	line = strings.TrimSpace(line)
	parts := make([]string, 0, 3)
	for i := 0; i < 2; i++ {
		cut := strings.IndexFunc(line, unicode.IsSpace)
		if cut < 0 {
			break
		}
		parts = append(parts, line[:cut])
		line = strings.TrimLeftFunc(line[cut:], unicode.IsSpace)
	}
	if line != "" {
		parts = append(parts, line)
	}
	return parts
}
