package coupler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	nmea "github.com/sealane/nmeagate"
	"github.com/sealane/nmeagate/pseudo0183"
)

// LineDecoder turns one newline-terminated wire line into an Envelope.
type LineDecoder func(coupler string, line []byte) (nmea.Envelope, error)

// LineEncoder turns an outbound Envelope into a wire line (without the
// trailing CR LF, which lineCoupler appends).
type LineEncoder func(env nmea.Envelope) ([]byte, error)

// AutoDecoder dispatches between the pseudo-PGN carriers and plain
// NMEA0183 sentences by tag, the default for serial/TCP/UDP couplers.
func AutoDecoder(coupler string, line []byte) (nmea.Envelope, error) {
	return pseudo0183.DecodeLine(coupler, line)
}

// lineCoupler is the shared implementation behind Serial/TCP/UDP: it opens
// an io.ReadWriteCloser via dial, line-buffers reads (bufio.Scanner), and
// decodes each line with decode. Reconnect policy is left to dial, which
// may itself retry; lineCoupler calls dial once per Start. When the stream
// ends, readLoop returns and the connection is not re-dialled.
type lineCoupler struct {
	*Base

	class   string
	dial    func(ctx context.Context) (io.ReadWriteCloser, error)
	decode  LineDecoder
	encode  LineEncoder
	timeNow func() time.Time

	mu   sync.Mutex
	conn io.ReadWriteCloser

	cancel context.CancelFunc
}

// Class identifies the driver variant for a status surface (package
// console); lineCoupler backs both the serial and TCP client couplers.
func (c *lineCoupler) Class() string { return c.class }

func newLineCoupler(name, class string, bufferSize int, dial func(ctx context.Context) (io.ReadWriteCloser, error), decode LineDecoder, encode LineEncoder) *lineCoupler {
	if decode == nil {
		decode = AutoDecoder
	}
	return &lineCoupler{
		Base:    NewBase(name, bufferSize),
		class:   class,
		dial:    dial,
		decode:  decode,
		encode:  encode,
		timeNow: time.Now,
	}
}

func (c *lineCoupler) Start(ctx context.Context) error {
	c.setStatus(Opening)
	conn, err := c.dial(ctx)
	if err != nil {
		c.setStatus(Failed)
		return fmt.Errorf("coupler %s: %w", c.Name(), err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setStatus(Open)
	c.setStatus(Connected)

	readCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.setStatus(Active)
	go c.readLoop(readCtx, conn)
	return nil
}

func (c *lineCoupler) readLoop(ctx context.Context, conn io.ReadWriteCloser) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		if err := c.waitWhileSuspended(ctx); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		env, err := c.decode(c.Name(), line)
		if err != nil {
			continue // malformed/checksum-failed line: drop and keep reading
		}
		c.emit(env)
	}
}

func (c *lineCoupler) Send(ctx context.Context, env nmea.Envelope) error {
	if c.encode == nil {
		return fmt.Errorf("coupler %s: read-only, no encoder configured", c.Name())
	}
	line, err := c.encode(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("coupler %s: not connected", c.Name())
	}
	_, err = conn.Write(append(line, '\r', '\n'))
	return err
}

func (c *lineCoupler) Suspend() error {
	c.suspend()
	return nil
}

func (c *lineCoupler) Resume() error {
	c.resume()
	return nil
}

func (c *lineCoupler) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.setStatus(Stopped)
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
