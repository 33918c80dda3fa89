package coupler

import (
	"bytes"
	"context"
	"fmt"
	"net"

	nmea "github.com/sealane/nmeagate"
)

// UDPConfig configures a UDP-receiver coupler (spec §4.9: "UDP receiver").
type UDPConfig struct {
	ListenAddr string
	Decode     LineDecoder
}

// UDPCoupler listens for NMEA0183/pseudo-PGN datagrams. It is receive-only:
// Send returns an error, matching a UDP broadcast source that has no
// reverse channel.
type UDPCoupler struct {
	*Base

	listenAddr string
	decode     LineDecoder

	conn   *net.UDPConn
	cancel context.CancelFunc
}

func NewUDPCoupler(name string, cfg UDPConfig) *UDPCoupler {
	decode := cfg.Decode
	if decode == nil {
		decode = AutoDecoder
	}
	return &UDPCoupler{
		Base:       NewBase(name, 256),
		listenAddr: cfg.ListenAddr,
		decode:     decode,
	}
}

// Class identifies the driver variant for a status surface (package console).
func (c *UDPCoupler) Class() string { return "udp" }

func (c *UDPCoupler) Start(ctx context.Context) error {
	c.setStatus(Opening)
	addr, err := net.ResolveUDPAddr("udp", c.listenAddr)
	if err != nil {
		c.setStatus(Failed)
		return fmt.Errorf("coupler %s: %w", c.Name(), err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		c.setStatus(Failed)
		return fmt.Errorf("coupler %s: %w", c.Name(), err)
	}
	c.conn = conn
	c.setStatus(Open)
	c.setStatus(Connected)

	readCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.setStatus(Active)
	go c.readLoop(readCtx)
	return nil
}

func (c *UDPCoupler) readLoop(ctx context.Context) {
	buf := make([]byte, 64*1024)
	for {
		if err := c.waitWhileSuspended(ctx); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, _, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		for _, line := range bytes.Split(buf[:n], []byte("\n")) {
			line = bytes.TrimRight(line, "\r")
			if len(line) == 0 {
				continue
			}
			env, err := c.decode(c.Name(), line)
			if err != nil {
				continue
			}
			c.emit(env)
		}
	}
}

func (c *UDPCoupler) Send(ctx context.Context, env nmea.Envelope) error {
	return fmt.Errorf("coupler %s: UDP receiver coupler is read-only", c.Name())
}

func (c *UDPCoupler) Suspend() error {
	c.suspend()
	return nil
}

func (c *UDPCoupler) Resume() error {
	c.resume()
	return nil
}

func (c *UDPCoupler) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.setStatus(Stopped)
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
