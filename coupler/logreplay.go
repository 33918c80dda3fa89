package coupler

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	nmea "github.com/sealane/nmeagate"
	"github.com/sealane/nmeagate/trace"
)

// LogReplayConfig configures a coupler that re-emits a previously captured
// trace file (spec §4.9: "reads a previously captured trace file and
// re-emits frames respecting original inter-arrival times").
type LogReplayConfig struct {
	Path string
	// Speed scales playback: 2.0 replays twice as fast; 0 selects the
	// default 1.0; a negative value means "as fast as possible" (no
	// inter-arrival sleep).
	Speed  float64
	Decode LineDecoder
}

// LogReplayCoupler is write-side inert (Send returns an error): it only
// produces the envelopes recorded in its trace file, on the file's own
// timeline.
type LogReplayCoupler struct {
	*Base

	path   string
	speed  float64
	decode LineDecoder

	cancel context.CancelFunc
}

func NewLogReplayCoupler(name string, cfg LogReplayConfig) *LogReplayCoupler {
	if cfg.Speed == 0 {
		cfg.Speed = 1.0
	}
	decode := cfg.Decode
	if decode == nil {
		decode = AutoDecoder
	}
	return &LogReplayCoupler{
		Base:   NewBase(name, 256),
		path:   cfg.Path,
		speed:  cfg.Speed,
		decode: decode,
	}
}

// Class identifies the driver variant for a status surface (package console).
func (c *LogReplayCoupler) Class() string { return "log-replay" }

func (c *LogReplayCoupler) Start(ctx context.Context) error {
	c.setStatus(Opening)
	f, err := os.Open(c.path)
	if err != nil {
		c.setStatus(Failed)
		return fmt.Errorf("coupler %s: %w", c.Name(), err)
	}
	c.setStatus(Open)
	c.setStatus(Connected)

	readCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.setStatus(Active)
	go c.replay(readCtx, f)
	return nil
}

func (c *LogReplayCoupler) replay(ctx context.Context, f *os.File) {
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	var last time.Time
	for scanner.Scan() {
		if err := c.waitWhileSuspended(ctx); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		rec, err := trace.Parse(scanner.Text())
		if err != nil || rec.Kind != trace.KindRaw || rec.Direction != trace.DirectionIngress {
			continue
		}
		if !last.IsZero() && c.speed > 0 {
			gap := rec.Time.Sub(last)
			if scaled := time.Duration(float64(gap) / c.speed); scaled > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(scaled):
				}
			}
		}
		last = rec.Time

		line, err := hex.DecodeString(rec.Content)
		if err != nil {
			continue
		}
		env, err := c.decode(c.Name(), line)
		if err != nil {
			continue
		}
		c.emit(env)
	}
	c.setStatus(Stopped)
}

func (c *LogReplayCoupler) Send(ctx context.Context, env nmea.Envelope) error {
	return fmt.Errorf("coupler %s: log-replay coupler is read-only", c.Name())
}

func (c *LogReplayCoupler) Suspend() error {
	c.suspend()
	return nil
}

func (c *LogReplayCoupler) Resume() error {
	c.resume()
	return nil
}

func (c *LogReplayCoupler) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.setStatus(Stopped)
	return nil
}
