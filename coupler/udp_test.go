package coupler

import (
	"context"
	"net"
	"testing"
	"time"

	nmea "github.com/sealane/nmeagate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPCoupler_receivesDecodedSentence(t *testing.T) {
	c := NewUDPCoupler("udp1", UDPConfig{ListenAddr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	client, err := net.Dial("udp", c.conn.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()
	_, err = client.Write([]byte("$GPGGA,1,2,3\r\n"))
	require.NoError(t, err)

	select {
	case env := <-c.Envelopes():
		assert.Equal(t, "GGA", env.Sentence.Formatter)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a decoded envelope")
	}
}

func TestUDPCoupler_sendIsReadOnly(t *testing.T) {
	c := NewUDPCoupler("udp1", UDPConfig{ListenAddr: "127.0.0.1:0"})
	assert.Error(t, c.Send(context.Background(), nmea.Envelope{}))
}
