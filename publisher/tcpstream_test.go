package publisher

import (
	"bufio"
	"net"
	"testing"
	"time"

	nmea "github.com/sealane/nmeagate"
	"github.com/sealane/nmeagate/pseudo0183"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPStreamPublisher_broadcastsToConnectedClient(t *testing.T) {
	p := NewTCPStreamPublisher("tcp1", TCPStreamConfig{
		ListenAddr: "127.0.0.1:0",
		Format:     pseudo0183.FormatStatus,
		MaxSilent:  time.Minute,
	})
	require.NoError(t, p.Start())
	defer p.Stop()

	addr := p.listener.Addr().String()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	time.Sleep(20 * time.Millisecond) // let acceptLoop register the client

	msg := nmea.RawMessage{Header: nmea.CanBusHeader{PGN: 130306, Source: 3}, Data: []byte{1, 2, 3}}
	p.Enqueue(nmea.NewRaw2000Envelope("c1", msg))

	reader := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "!PGNST")
}
