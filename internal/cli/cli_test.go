package cli

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerchat/peerchat/internal/peer"
)

// syncBuilder is a strings.Builder safe to read while Notify's goroutine
// writes to it.
type syncBuilder struct {
	mu sync.Mutex
	b  strings.Builder
}

func (s *syncBuilder) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuilder) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

type sentMessage struct {
	id   int
	text string
}

type fakeChat struct {
	port       int
	ip         string
	conns      []peer.Info
	connectErr error
	sendErr    error
	termErr    error

	sent      []sentMessage
	dialed    []string
	shutdowns int
}

func (f *fakeChat) Connect(ip string, port int) (int, error) {
	f.dialed = append(f.dialed, ip)
	if f.connectErr != nil {
		return 0, f.connectErr
	}
	return 1, nil
}

func (f *fakeChat) Send(id int, message string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{id, message})
	return nil
}

func (f *fakeChat) Terminate(id int) (peer.Info, error) {
	if f.termErr != nil {
		return peer.Info{}, f.termErr
	}
	return peer.Info{ID: id, IP: "10.0.0.9", Port: 6000}, nil
}

func (f *fakeChat) List() []peer.Info { return f.conns }
func (f *fakeChat) LocalIP() string   { return f.ip }
func (f *fakeChat) Port() int         { return f.port }
func (f *fakeChat) Shutdown()         { f.shutdowns++ }

// run feeds a script of commands through the loop and returns everything
// it printed.
func run(t *testing.T, chat *fakeChat, script string) string {
	t.Helper()
	var out strings.Builder
	New(chat, strings.NewReader(script), &out).Run()
	return out.String()
}

func TestRun_MyIPAndMyPort(t *testing.T) {
	chat := &fakeChat{port: 5000, ip: "192.168.1.5"}
	out := run(t, chat, "myip\nmyport\n")
	assert.Contains(t, out, "192.168.1.5\n")
	assert.Contains(t, out, "5000\n")
}

func TestRun_UnknownCommand(t *testing.T) {
	out := run(t, &fakeChat{}, "frobnicate\n")
	assert.Contains(t, out, "Unknown command. Type 'help' for available commands.")
}

func TestRun_ConnectUsageAndValidation(t *testing.T) {
	chat := &fakeChat{}
	out := run(t, chat, "connect\nconnect 10.0.0.1\nconnect 10.0.0.1 abc\n")
	assert.Equal(t, 2, strings.Count(out, "Usage: connect <ip> <port>"))
	assert.Contains(t, out, "Invalid port number")
	assert.Empty(t, chat.dialed, "no dial should happen on malformed input")
}

func TestRun_ConnectReportsSentinelErrors(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{peer.ErrInvalidIP, "Invalid IP address"},
		{peer.ErrSelfConnection, "Self-connection is not allowed"},
		{peer.ErrDuplicate, "Duplicate connection is not allowed"},
	}
	for _, tc := range cases {
		out := run(t, &fakeChat{connectErr: tc.err}, "connect 10.0.0.1 5000\n")
		assert.Contains(t, out, tc.want)
	}
}

func TestRun_ConnectSuccess(t *testing.T) {
	out := run(t, &fakeChat{}, "connect 10.0.0.1 5000\n")
	assert.Contains(t, out, "Connected to 10.0.0.1:5000")
}

func TestRun_ListEmptyAndPopulated(t *testing.T) {
	out := run(t, &fakeChat{}, "list\n")
	assert.Contains(t, out, "No active connections")

	chat := &fakeChat{conns: []peer.Info{
		{ID: 1, IP: "10.0.0.1", Port: 5001},
		{ID: 3, IP: "10.0.0.3", Port: 5003},
	}}
	out = run(t, chat, "list\n")
	assert.Contains(t, out, "id: IP address      Port No.")
	assert.Contains(t, out, "1: 10.0.0.1        5001")
	assert.Contains(t, out, "3: 10.0.0.3        5003")
}

func TestRun_Terminate(t *testing.T) {
	out := run(t, &fakeChat{}, "terminate 2\n")
	assert.Contains(t, out, "Connection 2 (10.0.0.9:6000) terminated")

	out = run(t, &fakeChat{termErr: peer.ErrNotFound}, "terminate 2\n")
	assert.Contains(t, out, "Connection 2 does not exist")

	out = run(t, &fakeChat{}, "terminate\nterminate abc\n")
	assert.Contains(t, out, "Usage: terminate <connection_id>")
	assert.Contains(t, out, "Invalid connection ID")
}

func TestRun_SendKeepsMessageSpacing(t *testing.T) {
	chat := &fakeChat{}
	out := run(t, chat, "send 4 hello   spaced world\n")
	assert.Contains(t, out, "Message sent to 4")
	require.Len(t, chat.sent, 1)
	assert.Equal(t, 4, chat.sent[0].id)
	assert.Equal(t, "hello   spaced world", chat.sent[0].text)
}

func TestRun_SendErrors(t *testing.T) {
	out := run(t, &fakeChat{sendErr: peer.ErrMessageTooLong}, "send 1 x\n")
	assert.Contains(t, out, "Message too long (max 100 characters)")

	out = run(t, &fakeChat{sendErr: peer.ErrNotFound}, "send 1 x\n")
	assert.Contains(t, out, "Connection 1 does not exist")

	out = run(t, &fakeChat{}, "send\nsend 1\nsend abc hi\n")
	assert.Equal(t, 2, strings.Count(out, "Usage: send <connection_id> <message>"))
	assert.Contains(t, out, "Invalid connection ID")
}

func TestRun_ExitAndEOFBothShutDown(t *testing.T) {
	chat := &fakeChat{}
	run(t, chat, "exit\n")
	assert.Equal(t, 1, chat.shutdowns)

	chat = &fakeChat{}
	run(t, chat, "list\n") // script ends, EOF
	assert.Equal(t, 1, chat.shutdowns)
}

func TestNotify_PrintsPeerEvents(t *testing.T) {
	var out syncBuilder
	l := New(&fakeChat{}, strings.NewReader(""), &out)

	notes := make(chan peer.Note, 3)
	notes <- peer.Note{Kind: peer.NoteMessage, IP: "10.0.0.1", Port: 5001, Text: "hey"}
	notes <- peer.Note{Kind: peer.NotePeerConnected, IP: "10.0.0.2", Port: 5002}
	notes <- peer.Note{Kind: peer.NotePeerDropped, ID: 3, IP: "10.0.0.3", Port: 5003}
	close(notes)

	l.Notify(notes)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Connection 3 (10.0.0.3:5003) has been terminated")
	}, time.Second, 10*time.Millisecond)

	s := out.String()
	assert.Contains(t, s, "Message received from 10.0.0.1")
	assert.Contains(t, s, "Sender's Port: 5001")
	assert.Contains(t, s, "Message: \"hey\"")
	assert.Contains(t, s, "New connection from 10.0.0.2:5002")
}

func TestSplitCommand(t *testing.T) {
	assert.Empty(t, splitCommand("   "))
	assert.Equal(t, []string{"list"}, splitCommand("list"))
	assert.Equal(t, []string{"connect", "10.0.0.1", "5000"}, splitCommand("  connect   10.0.0.1  5000 "))
	assert.Equal(t, []string{"send", "2", "a  b c"}, splitCommand("send 2 a  b c"))
}
