// Package publisher implements the Publisher Drivers (spec §4.10): sinks
// the router (package router) feeds Envelopes to over a bounded,
// best-effort queue. TCP-stream, RPC/MQTT push, and trace-file variants
// are provided; the injector variant lives in package coupler since its
// target is another coupler's input, not a sink of its own.
package publisher

import (
	"sync"

	nmea "github.com/sealane/nmeagate"
	"github.com/sealane/nmeagate/coupler"
	"github.com/sealane/nmeagate/internal/utils"
)

// DefaultQueueSize and DefaultMaxLost are the spec §4.8 defaults ("default
// 20 envelopes" / "default 5" consecutive drops before the publisher is
// marked stopped).
const (
	DefaultQueueSize = 20
	DefaultMaxLost   = 5
)

// Publisher is the contract the router drives every sink through.
type Publisher interface {
	Name() string
	Start() error
	Stop() error
	// Enqueue offers env to the publisher's bounded queue. It never
	// blocks: a full queue counts as a drop (spec §4.8).
	Enqueue(env nmea.Envelope) bool
	Status() coupler.Status
	// Stats reports lifetime enqueued/dropped counts.
	Stats() (enqueued, dropped uint64)
}

// Base implements the bounded-queue, max_lost-triggered-stop bookkeeping
// every publisher variant shares, grounded on the same mutex-guarded
// status pattern as coupler.Base plus the shared utils.Queue.
type Base struct {
	name    string
	maxLost int

	mu              sync.Mutex
	status          coupler.Status
	queue           *utils.Queue[nmea.Envelope]
	consecutiveLost int
	enqueued        uint64
	dropped         uint64

	wake chan struct{}
}

// NewBase creates a Base with the given queue capacity and max_lost.
func NewBase(name string, queueSize, maxLost int) *Base {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if maxLost <= 0 {
		maxLost = DefaultMaxLost
	}
	return &Base{
		name:    name,
		maxLost: maxLost,
		status:  coupler.NotReady,
		queue:   utils.NewQueue[nmea.Envelope](queueSize),
		wake:    make(chan struct{}, 1),
	}
}

func (b *Base) Name() string { return b.name }

func (b *Base) Status() coupler.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Base) setStatus(s coupler.Status) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

func (b *Base) Stats() (uint64, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enqueued, b.dropped
}

// Enqueue offers env to the queue. Once maxLost consecutive offers have
// failed because the queue was full, the publisher is marked Stopped and
// every subsequent Enqueue fails immediately (spec §4.8: "the router marks
// the publisher stopped and stops forwarding").
func (b *Base) Enqueue(env nmea.Envelope) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == coupler.Stopped || b.status == coupler.Failed {
		return false
	}
	if !b.queue.Enqueue(env) {
		b.dropped++
		b.consecutiveLost++
		if b.consecutiveLost >= b.maxLost {
			b.status = coupler.Stopped
		}
		return false
	}
	b.consecutiveLost = 0
	b.enqueued++
	select {
	case b.wake <- struct{}{}:
	default:
	}
	return true
}

// dequeue removes and returns the oldest queued envelope, if any.
func (b *Base) dequeue() (nmea.Envelope, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Dequeue()
}

// woken returns the channel a worker loop selects on between drains.
func (b *Base) woken() <-chan struct{} { return b.wake }
