// Package router implements the Router Core (spec §4.8): it pushes each
// Envelope a coupler produces through that publisher's filter chain and
// onto its bounded queue, supervises every coupler's open/retry lifecycle,
// and honors the FIFO-per-(coupler,publisher) ordering and 500ms shutdown
// deadline in spec §5.
package router

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sealane/nmeagate/coupler"
	"github.com/sealane/nmeagate/filter"
	"github.com/sealane/nmeagate/publisher"
	"golang.org/x/sync/errgroup"
)

// ShutdownGrace is the per-worker exit deadline after cancellation (spec
// §5: "each worker must exit within 500 ms of cancellation").
const ShutdownGrace = 500 * time.Millisecond

// RetryPolicy governs how a failed coupler is reopened (spec §4.8:
// "retries opening up to max_attempt with open_delay between attempts").
type RetryPolicy struct {
	MaxAttempt int
	OpenDelay  time.Duration
}

// DefaultRetryPolicy matches the coupler `timeout`/reconnect defaults
// described in spec §5.
var DefaultRetryPolicy = RetryPolicy{MaxAttempt: 5, OpenDelay: time.Second}

// Route is one publisher's configuration: which couplers feed it, the
// filter chain that runs on its thread before serialization, and whether
// filter_select restricts it to select-matched envelopes only (spec
// §4.11).
type Route struct {
	Publisher publisher.Publisher
	Sources   []string // coupler names this publisher subscribes to; nil/empty means all
	Chain     filter.Chain
}

// Event is emitted on the router's Events channel for state changes a
// caller (e.g. a console/status component) wants to observe.
type Event struct {
	Time    time.Time
	Coupler string
	Status  coupler.Status
	Err     error
}

// Router wires couplers to publishers: the inverted subscription map built
// at configuration time (spec §4.8 "the router builds an inverted map
// (coupler → publishers)").
type Router struct {
	retry RetryPolicy

	mu         sync.Mutex
	couplers   map[string]coupler.Coupler
	publishers map[string]*Route
	subs       map[string][]*Route // coupler name -> routes subscribed to it

	events     chan Event
	stopSystem func()
}

// New creates an empty Router. stopSystem, if non-nil, is invoked when a
// coupler exhausts its retry budget and was configured with stop_system
// (spec §4.8: "signals process shutdown").
func New(retry RetryPolicy, stopSystem func()) *Router {
	if retry.MaxAttempt <= 0 {
		retry = DefaultRetryPolicy
	}
	return &Router{
		retry:      retry,
		couplers:   map[string]coupler.Coupler{},
		publishers: map[string]*Route{},
		subs:       map[string][]*Route{},
		events:     make(chan Event, 64),
		stopSystem: stopSystem,
	}
}

// Events is the router's status-change feed; callers should drain it
// (e.g. to log or forward to a console) or it fills and further events
// are dropped.
func (r *Router) Events() <-chan Event { return r.events }

func (r *Router) emitEvent(ev Event) {
	select {
	case r.events <- ev:
	default:
	}
}

// AddCoupler registers a coupler as a message source.
func (r *Router) AddCoupler(c coupler.Coupler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.couplers[c.Name()] = c
}

// AddPublisher registers a publisher and the routing rule that feeds it.
// An empty route.Sources subscribes the publisher to every coupler.
func (r *Router) AddPublisher(route Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[route.Publisher.Name()] = &route
	if len(route.Sources) == 0 {
		r.subs[""] = append(r.subs[""], &route) // every coupler, including ones added later
		return
	}
	for _, src := range route.Sources {
		r.subs[src] = append(r.subs[src], &route)
	}
}

// Couplers returns every registered coupler, for a status surface
// (package console) to enumerate.
func (r *Router) Couplers() []coupler.Coupler {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]coupler.Coupler, 0, len(r.couplers))
	for _, c := range r.couplers {
		out = append(out, c)
	}
	return out
}

// Publishers returns every registered publisher, for a status surface
// (package console) to enumerate.
func (r *Router) Publishers() []publisher.Publisher {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]publisher.Publisher, 0, len(r.publishers))
	for _, route := range r.publishers {
		out = append(out, route.Publisher)
	}
	return out
}

// routesFor returns the routes subscribed to coupler name, followed by
// every wildcard ("subscribe to all") route.
func (r *Router) routesFor(name string) []*Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	routes := append([]*Route{}, r.subs[name]...)
	routes = append(routes, r.subs[""]...)
	return routes
}

// Run starts every publisher and coupler, supervises coupler lifecycles
// until ctx is cancelled, and forwards each coupler's Envelopes through
// its subscribers' filter chains. It returns once every worker has exited
// (or ShutdownGrace elapses after cancellation, whichever is first).
func (r *Router) Run(ctx context.Context) error {
	r.mu.Lock()
	publishers := make([]publisher.Publisher, 0, len(r.publishers))
	for _, route := range r.publishers {
		publishers = append(publishers, route.Publisher)
	}
	couplers := make([]coupler.Coupler, 0, len(r.couplers))
	for _, c := range r.couplers {
		couplers = append(couplers, c)
	}
	r.mu.Unlock()

	for _, p := range publishers {
		if err := p.Start(); err != nil {
			return fmt.Errorf("router: starting publisher %s: %w", p.Name(), err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range couplers {
		c := c
		g.Go(func() error { return r.superviseCoupler(gctx, c) })
	}

	err := g.Wait()

	stopped := make(chan struct{})
	go func() {
		for _, c := range couplers {
			_ = c.Stop()
		}
		for _, p := range publishers {
			_ = p.Stop()
		}
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(ShutdownGrace):
		log.Printf("router: shutdown grace period (%s) elapsed before all workers stopped", ShutdownGrace)
	}
	return err
}

// superviseCoupler opens c, forwards its Envelopes while it stays open,
// and retries per r.retry when it fails, up to MaxAttempt (spec §4.8).
func (r *Router) superviseCoupler(ctx context.Context, c coupler.Coupler) error {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		attempts++
		err := c.Start(ctx)
		if err != nil {
			r.emitEvent(Event{Time: time.Now(), Coupler: c.Name(), Status: coupler.Failed, Err: err})
			if attempts >= r.retry.MaxAttempt {
				if r.stopSystem != nil {
					r.stopSystem()
				}
				return fmt.Errorf("coupler %s: exhausted %d attempts: %w", c.Name(), attempts, err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.retry.OpenDelay):
			}
			continue
		}
		r.emitEvent(Event{Time: time.Now(), Coupler: c.Name(), Status: c.Status()})
		attempts = 0

		r.forward(ctx, c)

		if ctx.Err() != nil {
			return nil
		}
		if c.Status() == coupler.Failed {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.retry.OpenDelay):
			}
			continue
		}
		return nil
	}
}

// forward drains c's Envelopes channel, running each one through its
// subscribers' filter chains and onto their bounded queues, until the
// channel closes or ctx is cancelled. Per spec §5, one coupler feeding one
// publisher is FIFO: a single goroutine per coupler, iterating subscribers
// in registration order, guarantees that.
func (r *Router) forward(ctx context.Context, c coupler.Coupler) {
	routes := r.routesFor(c.Name())
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-c.Envelopes():
			if !ok {
				return
			}
			for _, route := range routes {
				if !route.Chain.Apply(env) {
					continue
				}
				if !route.Publisher.Enqueue(env) {
					log.Printf("router: publisher %s dropped an envelope from coupler %s", route.Publisher.Name(), c.Name())
				}
			}
		}
	}
}
