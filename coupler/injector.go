package coupler

import (
	"context"
	"fmt"

	nmea "github.com/sealane/nmeagate"
)

// InjectorCoupler is the special sink spec §4.8 describes: its Send writes
// back into another coupler's input rather than a device of its own. It
// produces no envelopes: Envelopes returns a channel that is immediately
// closed once Start runs, so the router never blocks draining it.
//
// The writeOnly flag records the target's configured direction and is
// stored as given; Send forwards to the target whatever its value, and no
// other behaviour of the injector depends on it.
type InjectorCoupler struct {
	*Base
	target    Coupler
	writeOnly bool
}

// NewInjectorCoupler wraps target so it can be addressed as a publisher's
// sink by name.
func NewInjectorCoupler(name string, target Coupler, writeOnly bool) *InjectorCoupler {
	return &InjectorCoupler{
		Base:      NewBase(name, 0),
		target:    target,
		writeOnly: writeOnly,
	}
}

// Class identifies the driver variant for a status surface (package console).
func (c *InjectorCoupler) Class() string { return "injector" }

func (c *InjectorCoupler) Start(ctx context.Context) error {
	c.setStatus(Active)
	close(c.Base.envelopes)
	return nil
}

func (c *InjectorCoupler) Send(ctx context.Context, env nmea.Envelope) error {
	if c.target == nil {
		return fmt.Errorf("injector %s: no target coupler bound", c.Name())
	}
	return c.target.Send(ctx, env)
}

func (c *InjectorCoupler) Suspend() error { return nil }
func (c *InjectorCoupler) Resume() error  { return nil }

func (c *InjectorCoupler) Stop() error {
	c.setStatus(Stopped)
	return nil
}
