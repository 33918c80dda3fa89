// Package coupler implements the Coupler Drivers contract (spec §4.9):
// every coupler variant (serial, TCP, UDP, direct-CAN, log-replay,
// injector) exposes the same start/stop/suspend/resume/send surface and
// feeds reassembled Envelopes to the Router (package router) over a
// producer channel.
package coupler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	nmea "github.com/sealane/nmeagate"
)

// Status is a coupler's supervised lifecycle state (spec §4.8).
type Status int

const (
	NotReady Status = iota
	Opening
	Open
	Connected
	Active
	Stopped
	Failed
)

func (s Status) String() string {
	switch s {
	case NotReady:
		return "not-ready"
	case Opening:
		return "opening"
	case Open:
		return "open"
	case Connected:
		return "connected"
	case Active:
		return "active"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Coupler is the common contract every driver variant satisfies.
type Coupler interface {
	// Name identifies this coupler instance for logging, device-table
	// tagging, and router subscription configuration.
	Name() string

	// Start opens the underlying device/connection and begins producing
	// Envelopes on the channel returned by Envelopes. It blocks until the
	// coupler reaches Open/Connected/Active or ctx is done.
	Start(ctx context.Context) error

	// Stop releases the underlying device and transitions to Stopped.
	Stop() error

	// Suspend pauses reading without releasing the device (Active -> Open).
	Suspend() error

	// Resume reverses Suspend (Open -> Active).
	Resume() error

	// Send writes an outbound Envelope to the device, segmenting/encoding
	// as the driver's wire format requires.
	Send(ctx context.Context, env nmea.Envelope) error

	// Envelopes is the producer channel the router drains.
	Envelopes() <-chan nmea.Envelope

	Status() Status
}

// Base implements the bookkeeping every driver needs: status transitions,
// the envelope producer channel, and the suspend gate —
// grounded on devicetable.DeviceTable's mutex-guarded state plus
// subscriber-channel pattern (devicetable/devicetable.go).
type Base struct {
	name string

	mu     sync.Mutex
	status Status

	envelopes chan nmea.Envelope
	suspended chan struct{}

	msgIn uint64
}

// NewBase creates a Base with the given name and envelope buffer size.
func NewBase(name string, bufferSize int) *Base {
	return &Base{
		name:      name,
		status:    NotReady,
		envelopes: make(chan nmea.Envelope, bufferSize),
	}
}

func (b *Base) Name() string { return b.name }

func (b *Base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Base) setStatus(s Status) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

func (b *Base) Envelopes() <-chan nmea.Envelope { return b.envelopes }

// emit delivers env to the producer channel, dropping it if the channel is
// full rather than blocking the read loop (a slow router is the router's
// problem, not the coupler's: spec §4.8 "the coupler is never blocked
// waiting on a slow publisher" generalizes to never blocking on the router
// either).
func (b *Base) emit(env nmea.Envelope) bool {
	select {
	case b.envelopes <- env:
		atomic.AddUint64(&b.msgIn, 1)
		return true
	default:
		return false
	}
}

// MsgIn reports how many envelopes this coupler has produced, for a
// status surface (package console); spec §6's coupler enumeration
// `msg_in` field.
func (b *Base) MsgIn() uint64 { return atomic.LoadUint64(&b.msgIn) }

// isSuspended reports whether Suspend has been called without a matching
// Resume; read loops should poll this between reads.
func (b *Base) isSuspended() bool {
	b.mu.Lock()
	ch := b.suspended
	b.mu.Unlock()
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return false
	default:
		return true
	}
}

func (b *Base) suspend() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != Active {
		return
	}
	b.suspended = make(chan struct{})
	b.status = Open
}

func (b *Base) resume() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != Open || b.suspended == nil {
		return
	}
	close(b.suspended)
	b.suspended = nil
	b.status = Active
}

// waitWhileSuspended blocks the read loop until Resume is called or ctx is
// done.
func (b *Base) waitWhileSuspended(ctx context.Context) error {
	for b.isSuspended() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return nil
}
