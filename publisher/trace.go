package publisher

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	nmea "github.com/sealane/nmeagate"
	"github.com/sealane/nmeagate/canboat"
	"github.com/sealane/nmeagate/coupler"
	"github.com/sealane/nmeagate/trace"
)

// TraceConfig configures the trace-file publisher (spec §4.10: "writes
// per-PGN decoded records to stdout and/or a file with automatic names
// TRACE-<name>-<ISO-timestamp>.log").
type TraceConfig struct {
	Dir       string // empty means no file is written
	ToStdout  bool
	QueueSize int
	MaxLost   int
	Now       func() time.Time // for tests; defaults to time.Now
}

// TraceWriterPublisher renders every enqueued envelope as one trace.Record
// line (Kind 'M', direction ingress) and writes it to stdout and/or a
// rotated-per-run file.
type TraceWriterPublisher struct {
	*Base

	writers []io.Writer
	file    *os.File

	now func() time.Time
	seq uint64

	stop chan struct{}
}

func NewTraceWriterPublisher(name string, cfg TraceConfig) (*TraceWriterPublisher, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	p := &TraceWriterPublisher{
		Base: NewBase(name, cfg.QueueSize, cfg.MaxLost),
		now:  cfg.Now,
		stop: make(chan struct{}),
	}
	if cfg.ToStdout {
		p.writers = append(p.writers, os.Stdout)
	}
	if cfg.Dir != "" {
		fname := fmt.Sprintf("TRACE-%s-%s.log", name, cfg.Now().UTC().Format(time.RFC3339))
		f, err := os.Create(filepath.Join(cfg.Dir, fname))
		if err != nil {
			return nil, fmt.Errorf("publisher %s: %w", name, err)
		}
		p.file = f
		p.writers = append(p.writers, f)
	}
	return p, nil
}

func (p *TraceWriterPublisher) Start() error {
	p.setStatus(coupler.Active)
	go p.drainLoop()
	return nil
}

func (p *TraceWriterPublisher) drainLoop() {
	for {
		select {
		case <-p.stop:
			return
		case <-p.woken():
		case <-time.After(time.Second):
		}
		for {
			env, ok := p.dequeue()
			if !ok {
				break
			}
			p.write(env)
		}
	}
}

func (p *TraceWriterPublisher) write(env nmea.Envelope) {
	p.seq++
	rec := trace.Record{
		Kind:      trace.KindEnvelope,
		Seq:       p.seq,
		Time:      p.now(),
		Direction: trace.DirectionIngress,
		Content:   p.render(env),
	}
	line := rec.Format() + "\n"
	for _, w := range p.writers {
		_, _ = io.WriteString(w, line)
	}
}

func (p *TraceWriterPublisher) render(env nmea.Envelope) string {
	switch env.Kind {
	case nmea.EnvelopeRaw2000:
		b, err := canboat.MarshalRawMessage(env.Raw2000)
		if err != nil {
			return fmt.Sprintf("pgn=%d source=%d (marshal error: %v)", env.Raw2000.Header.PGN, env.Raw2000.Header.Source, err)
		}
		return string(b)
	case nmea.EnvelopeDecoded2000:
		return fmt.Sprintf("pgn=%d source=%d fields=%v", env.Decoded2000.Header.PGN, env.Decoded2000.Header.Source, env.Decoded2000.Fields)
	case nmea.EnvelopeSentence0183:
		return string(env.Sentence.Raw)
	default:
		return hex.EncodeToString(env.Passthrough.Data)
	}
}

func (p *TraceWriterPublisher) Stop() error {
	close(p.stop)
	p.setStatus(coupler.Stopped)
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}
