package publisher

import (
	"testing"

	nmea "github.com/sealane/nmeagate"
	"github.com/sealane/nmeagate/coupler"
	"github.com/stretchr/testify/assert"
)

func TestBase_enqueueCountsAndStopsOnMaxLost(t *testing.T) {
	b := NewBase("p1", 1, 2)
	env := nmea.NewRaw2000Envelope("c1", nmea.RawMessage{})

	assert.True(t, b.Enqueue(env)) // fills the size-1 queue
	assert.False(t, b.Enqueue(env))
	enq, drop := b.Stats()
	assert.Equal(t, uint64(1), enq)
	assert.Equal(t, uint64(1), drop)
	assert.NotEqual(t, coupler.Stopped, b.Status())

	assert.False(t, b.Enqueue(env)) // second consecutive drop hits maxLost=2
	assert.Equal(t, coupler.Stopped, b.Status())
	assert.False(t, b.Enqueue(env), "a stopped publisher refuses further enqueues")
}

func TestBase_consecutiveLostResetsOnSuccess(t *testing.T) {
	b := NewBase("p1", 1, 2)
	env := nmea.NewRaw2000Envelope("c1", nmea.RawMessage{})

	assert.True(t, b.Enqueue(env))
	assert.False(t, b.Enqueue(env))
	_, _ = b.dequeue()
	assert.True(t, b.Enqueue(env)) // drains, so this succeeds and resets the streak
	assert.NotEqual(t, coupler.Stopped, b.Status())
}
