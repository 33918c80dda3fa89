package coupler

import (
	"context"
	"testing"

	nmea "github.com/sealane/nmeagate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCoupler struct {
	*Base
	sent []nmea.Envelope
}

func newFakeCoupler(name string) *fakeCoupler {
	return &fakeCoupler{Base: NewBase(name, 4)}
}

func (f *fakeCoupler) Start(ctx context.Context) error { return nil }
func (f *fakeCoupler) Stop() error                      { return nil }
func (f *fakeCoupler) Suspend() error                   { return nil }
func (f *fakeCoupler) Resume() error                    { return nil }
func (f *fakeCoupler) Send(ctx context.Context, env nmea.Envelope) error {
	f.sent = append(f.sent, env)
	return nil
}

func TestInjectorCoupler_forwardsSendToTarget(t *testing.T) {
	target := newFakeCoupler("target")
	injector := NewInjectorCoupler("inject1", target, true)
	require.NoError(t, injector.Start(context.Background()))

	env := nmea.NewRaw2000Envelope("src", nmea.RawMessage{Header: nmea.CanBusHeader{PGN: 1}})
	require.NoError(t, injector.Send(context.Background(), env))
	require.Len(t, target.sent, 1)
	assert.Equal(t, uint32(1), target.sent[0].Raw2000.Header.PGN)

	_, ok := <-injector.Envelopes()
	assert.False(t, ok, "injector's own Envelopes channel should be closed")
}
