package socketcan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sealane/nmeagate"
	"github.com/vishvananda/netlink"
)

// Device is the direct-CAN coupler (spec §4.9): a raw SocketCAN socket plus
// Fast-Packet reassembly/segmentation and the bus's minimum inter-message
// spacing. Unlike the teacher's original (read-only) socketcan.Device, this
// assembles Fast-Packets and implements writes; ISO-TP frames are passed
// on unassembled.
type Device struct {
	conn *Connection

	// ifName is SocketCAN interface name. For example: can0
	ifName string

	// receiveDataTimeout bounds how long ReadRawMessage may go without any
	// frame at all before it gives up; individual socket reads still use a
	// short poll interval so ctx cancellation is observed promptly.
	receiveDataTimeout time.Duration

	// minInterFrameSpacing is the minimum gap enforced between consecutive
	// writes to the bus (spec §4.9 default 5ms).
	minInterFrameSpacing time.Duration
	lastWrite            time.Time

	assembler *nmea.FastPacketAssembler
	segmenter *nmea.FastPacketSegmenter

	timeNow func() time.Time
}

// Config configures the direct-CAN coupler.
type Config struct {
	// FastPacketPGNs lists the PGNs that must be reassembled/segmented as
	// NMEA2000 Fast-Packet messages.
	FastPacketPGNs []uint32
	// ReceiveDataTimeout bounds silence on the bus (default 5s).
	ReceiveDataTimeout time.Duration
	// MinInterFrameSpacing bounds how often frames may be written (default 5ms).
	MinInterFrameSpacing time.Duration
	// BringUpInterface, when true, asks netlink to ensure the CAN interface
	// is administratively up before binding the raw socket.
	BringUpInterface bool
}

func NewDevice(ifName string, config Config) *Device {
	if config.ReceiveDataTimeout == 0 {
		config.ReceiveDataTimeout = 5 * time.Second
	}
	if config.MinInterFrameSpacing == 0 {
		config.MinInterFrameSpacing = 5 * time.Millisecond
	}
	return &Device{
		ifName: ifName,

		receiveDataTimeout:   config.ReceiveDataTimeout,
		minInterFrameSpacing: config.MinInterFrameSpacing,

		assembler: nmea.NewFastPacketAssembler(config.FastPacketPGNs),
		segmenter: nmea.NewFastPacketSegmenter(config.FastPacketPGNs),

		timeNow: time.Now,
	}
}

func (d *Device) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

// EnsureInterfaceUp brings a CAN network interface administratively up,
// the bring-up step a direct-CAN coupler needs before the raw AF_CAN
// socket will pass traffic (equivalent to `ip link set can0 up`).
func EnsureInterfaceUp(ifName string) error {
	link, err := netlink.LinkByName(ifName)
	if err != nil {
		return fmt.Errorf("socketcan: could not look up interface %q: %w", ifName, err)
	}
	if link.Attrs().OperState == netlink.OperUp {
		return nil
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("socketcan: could not bring up interface %q: %w", ifName, err)
	}
	return nil
}

func (d *Device) Initialize() error {
	conn, err := NewConnection(d.ifName)
	if err != nil {
		return err
	}
	d.conn = conn
	return nil
}

// WriteRawMessage segments msg (if it is a registered Fast-Packet PGN) and
// writes each resulting frame to the bus, pacing writes no closer together
// than minInterFrameSpacing (spec §4.9, §5: "single writer serializes
// SocketCAN transmission and respects the inter-frame spacing").
func (d *Device) WriteRawMessage(ctx context.Context, msg nmea.RawMessage) error {
	frames, err := d.segmenter.Segment(msg)
	if err != nil {
		return fmt.Errorf("socketcan: failed to segment outgoing message: %w", err)
	}
	for _, frame := range frames {
		if wait := d.minInterFrameSpacing - d.timeNow().Sub(d.lastWrite); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := d.conn.SendFrame(frame); err != nil {
			return err
		}
		d.lastWrite = d.timeNow()
	}
	return nil
}

func (d *Device) ReadRawMessage(ctx context.Context) (nmea.RawMessage, error) {
	start := d.timeNow()
	var msg nmea.RawMessage
	for {
		select {
		case <-ctx.Done():
			return nmea.RawMessage{}, ctx.Err()
		default:
		}

		if err := d.conn.SetReadTimeout(50 * time.Millisecond); err != nil { // max 50ms block time for read per iteration
			return nmea.RawMessage{}, err
		}
		frame, err := d.conn.ReadRawFrame()

		now := d.timeNow()
		// a read timeout (errReadTimeout) is retried until receiveDataTimeout
		// has passed since start; any other read error is returned
		if err != nil {
			if errors.Is(err, errReadTimeout) {
				if now.Sub(start) > d.receiveDataTimeout {
					return nmea.RawMessage{}, err
				}
				continue
			}
			return nmea.RawMessage{}, err
		}

		if d.assembler.Assemble(frame, &msg) {
			return msg, nil
		}
		start = now // reset silence timer: bus is active, just mid fast-packet
	}
}
