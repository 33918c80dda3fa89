package coupler

import (
	"context"
	"testing"
	"time"

	nmea "github.com/sealane/nmeagate"
	"github.com/stretchr/testify/assert"
)

func TestBase_statusTransitions(t *testing.T) {
	b := NewBase("c1", 4)
	assert.Equal(t, NotReady, b.Status())
	b.setStatus(Active)
	assert.Equal(t, Active, b.Status())
}

func TestBase_emitDropsWhenFull(t *testing.T) {
	b := NewBase("c1", 1)
	env := nmea.NewRaw2000Envelope("c1", nmea.RawMessage{})
	assert.True(t, b.emit(env))
	assert.False(t, b.emit(env), "second emit should drop: buffer size 1 already full")
}

func TestBase_suspendResume(t *testing.T) {
	b := NewBase("c1", 1)
	b.setStatus(Active)
	b.suspend()
	assert.Equal(t, Open, b.Status())
	assert.True(t, b.isSuspended())
	b.resume()
	assert.Equal(t, Active, b.Status())
	assert.False(t, b.isSuspended())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "not-ready", NotReady.String())
	assert.Equal(t, "failed", Failed.String())
}

func TestBase_waitWhileSuspendedReturnsOnResume(t *testing.T) {
	b := NewBase("c1", 1)
	b.setStatus(Active)
	b.suspend()
	done := make(chan error, 1)
	go func() { done <- b.waitWhileSuspended(context.Background()) }()
	time.Sleep(10 * time.Millisecond)
	b.resume()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waitWhileSuspended did not return after resume")
	}
}
