package coupler

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPCoupler_receivesDecodedSentence(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	c := NewTCPCoupler("tcp1", TCPConfig{Addr: ln.Addr().String()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))

	conn := <-accepted
	defer conn.Close()
	_, err = conn.Write([]byte("$GPGGA,1,2,3\r\n"))
	require.NoError(t, err)

	select {
	case env := <-c.Envelopes():
		assert.Equal(t, "GP", env.Sentence.Talker)
		assert.Equal(t, "GGA", env.Sentence.Formatter)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a decoded envelope")
	}
	assert.NoError(t, c.Stop())
}
