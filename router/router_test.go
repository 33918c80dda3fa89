package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	nmea "github.com/sealane/nmeagate"
	"github.com/sealane/nmeagate/coupler"
	"github.com/sealane/nmeagate/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCoupler satisfies coupler.Coupler without touching any real device;
// Start returns startErr and counts its calls in startedAt.
type fakeCoupler struct {
	*coupler.Base
	startErr  error
	startedAt int
}

func newFakeCoupler(name string, startErr error) *fakeCoupler {
	return &fakeCoupler{Base: coupler.NewBase(name, 16), startErr: startErr}
}

func (f *fakeCoupler) Start(ctx context.Context) error {
	f.startedAt++
	if f.startErr != nil {
		return f.startErr
	}
	return nil
}
func (f *fakeCoupler) Stop() error    { return nil }
func (f *fakeCoupler) Suspend() error { return nil }
func (f *fakeCoupler) Resume() error  { return nil }
func (f *fakeCoupler) Send(ctx context.Context, env nmea.Envelope) error {
	return errors.New("not implemented")
}

type fakePublisher struct {
	name string
	mu   sync.Mutex
	got  []nmea.Envelope
}

func (p *fakePublisher) Name() string { return p.name }
func (p *fakePublisher) Start() error { return nil }
func (p *fakePublisher) Stop() error  { return nil }
func (p *fakePublisher) Enqueue(env nmea.Envelope) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, env)
	return true
}
func (p *fakePublisher) Status() coupler.Status            { return coupler.Active }
func (p *fakePublisher) Stats() (enqueued, dropped uint64) { return uint64(len(p.got)), 0 }
func (p *fakePublisher) snapshot() []nmea.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]nmea.Envelope{}, p.got...)
}

func TestRouter_routesForSeparatesSubscriptionsByCoupler(t *testing.T) {
	r := New(DefaultRetryPolicy, nil)
	r.AddCoupler(newFakeCoupler("c1", nil))
	r.AddCoupler(newFakeCoupler("c2", nil))

	pubA := &fakePublisher{name: "a"}
	pubB := &fakePublisher{name: "b"}
	r.AddPublisher(Route{Publisher: pubA, Sources: []string{"c1"}, Chain: filter.Chain{}})
	r.AddPublisher(Route{Publisher: pubB, Sources: []string{"c2"}, Chain: filter.Chain{}})

	routesC1 := r.routesFor("c1")
	require.Len(t, routesC1, 1)
	assert.Equal(t, "a", routesC1[0].Publisher.Name())

	routesC2 := r.routesFor("c2")
	require.Len(t, routesC2, 1)
	assert.Equal(t, "b", routesC2[0].Publisher.Name())
}

func TestRouter_wildcardSubscribesToAllCouplers(t *testing.T) {
	r := New(DefaultRetryPolicy, nil)
	r.AddCoupler(newFakeCoupler("c1", nil))

	pub := &fakePublisher{name: "all"}
	r.AddPublisher(Route{Publisher: pub, Chain: filter.Chain{}})

	routes := r.routesFor("c1")
	require.Len(t, routes, 1)
	assert.Equal(t, "all", routes[0].Publisher.Name())
}

func TestRouter_stopSystemCalledOnRetryExhaustion(t *testing.T) {
	r := New(RetryPolicy{MaxAttempt: 2, OpenDelay: time.Millisecond}, nil)
	called := make(chan struct{}, 1)
	r.stopSystem = func() { called <- struct{}{} }

	c1 := newFakeCoupler("broken", errors.New("dial failed"))
	r.AddCoupler(c1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = r.Run(ctx)

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("stopSystem was not invoked after retry exhaustion")
	}
	assert.Equal(t, 2, c1.startedAt)
}

func TestRouter_filterChainDiscardsBeforeEnqueue(t *testing.T) {
	discardAll := filter.Chain{Rules: []filter.Rule{{Filter: alwaysMatch{}, Action: filter.Discard}}}
	env := nmea.NewRaw2000Envelope("c1", nmea.RawMessage{})
	assert.False(t, discardAll.Apply(env))

	passThrough := filter.Chain{}
	assert.True(t, passThrough.Apply(env))
}

type alwaysMatch struct{}

func (alwaysMatch) Match(nmea.Envelope) bool { return true }
