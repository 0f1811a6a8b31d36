package peer

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshake_BothSidesLearnAdvertisedPorts(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	type result struct {
		port int
		err  error
	}
	acceptCh := make(chan result, 1)
	go func() {
		p, err := acceptHandshake(server, 6000, time.Second)
		acceptCh <- result{p, err}
	}()

	clientGot, err := dialHandshake(client, 5000, time.Second)
	require.NoError(t, err)

	accepted := <-acceptCh
	require.NoError(t, accepted.err)
	assert.Equal(t, 6000, clientGot, "dialer should learn the acceptor's port")
	assert.Equal(t, 5000, accepted.port, "acceptor should learn the dialer's port")
}

func TestReadPort_RejectsMalformedPayload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		client.Write([]byte("not-a-port"))
	}()

	_, err := readPort(server, time.Second)
	require.Error(t, err)
}

func TestReadPort_RejectsOutOfRangePort(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		client.Write([]byte("99999"))
	}()

	_, err := readPort(server, time.Second)
	require.Error(t, err)
}

func TestReadPort_TimesOutWithoutData(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	_, err := readPort(server, 20*time.Millisecond)
	require.Error(t, err)
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
}
