package coupler

import (
	"context"
	"errors"
	"fmt"

	nmea "github.com/sealane/nmeagate"
	"github.com/sealane/nmeagate/socketcan"
)

// SocketCANCoupler adapts socketcan.Device (the direct-CAN raw socket plus
// Fast-Packet assembler/segmenter) to the Coupler contract: it owns the
// read loop, wraps each reassembled PGN in a Raw2000 Envelope, and applies
// the bus's minimum inter-message spacing on writes via the wrapped
// device. Spec §4.9: "the direct-CAN coupler additionally binds an active
// controller ... and enforces a minimum inter-message spacing".
type SocketCANCoupler struct {
	*Base

	ifName string
	config socketcan.Config
	device *socketcan.Device

	cancel context.CancelFunc
}

// NewSocketCANCoupler builds a direct-CAN coupler bound to ifName (e.g.
// "can0").
func NewSocketCANCoupler(name, ifName string, config socketcan.Config) *SocketCANCoupler {
	return &SocketCANCoupler{
		Base:   NewBase(name, 256),
		ifName: ifName,
		config: config,
	}
}

// Class identifies the driver variant for a status surface (package console).
func (c *SocketCANCoupler) Class() string { return "socketcan" }

func (c *SocketCANCoupler) Start(ctx context.Context) error {
	c.setStatus(Opening)
	if c.config.BringUpInterface {
		if err := socketcan.EnsureInterfaceUp(c.ifName); err != nil {
			c.setStatus(Failed)
			return fmt.Errorf("coupler %s: %w", c.Name(), err)
		}
	}
	device := socketcan.NewDevice(c.ifName, c.config)
	if err := device.Initialize(); err != nil {
		c.setStatus(Failed)
		return fmt.Errorf("coupler %s: %w", c.Name(), err)
	}
	c.device = device
	c.setStatus(Open)
	c.setStatus(Connected)

	readCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.setStatus(Active)
	go c.readLoop(readCtx)
	return nil
}

func (c *SocketCANCoupler) readLoop(ctx context.Context) {
	for {
		if err := c.waitWhileSuspended(ctx); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg, err := c.device.ReadRawMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			continue // transient bus read error/timeout: keep polling
		}
		c.emit(nmea.NewRaw2000Envelope(c.Name(), msg))
	}
}

func (c *SocketCANCoupler) Send(ctx context.Context, env nmea.Envelope) error {
	if env.Kind != nmea.EnvelopeRaw2000 {
		return fmt.Errorf("coupler %s: direct-CAN can only send Raw2000 envelopes, got %s", c.Name(), env.Kind)
	}
	return c.device.WriteRawMessage(ctx, env.Raw2000)
}

func (c *SocketCANCoupler) Suspend() error {
	c.suspend()
	return nil
}

func (c *SocketCANCoupler) Resume() error {
	c.resume()
	return nil
}

func (c *SocketCANCoupler) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.setStatus(Stopped)
	if c.device == nil {
		return nil
	}
	return c.device.Close()
}
