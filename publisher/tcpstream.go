package publisher

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	nmea "github.com/sealane/nmeagate"
	"github.com/sealane/nmeagate/coupler"
	"github.com/sealane/nmeagate/pseudo0183"
)

// TCPStreamConfig configures the TCP-stream publisher (spec §4.10).
type TCPStreamConfig struct {
	ListenAddr string
	// Format selects transparent/dyfmt/stfmt serialization.
	Format pseudo0183.Format
	// MaxSilent closes a client socket after this much time without a
	// successful write to it.
	MaxSilent time.Duration
	QueueSize int
	MaxLost   int
}

type tcpClient struct {
	conn      net.Conn
	lastWrite time.Time
}

// TCPStreamPublisher serializes every enqueued envelope per its
// configured format and fans it out to every currently connected client,
// dropping a client once it has gone silent for MaxSilent.
type TCPStreamPublisher struct {
	*Base

	addr      string
	format    pseudo0183.Format
	maxSilent time.Duration

	listener net.Listener
	cancel   context.CancelFunc

	mu      sync.Mutex
	clients map[net.Conn]*tcpClient
}

func NewTCPStreamPublisher(name string, cfg TCPStreamConfig) *TCPStreamPublisher {
	if cfg.MaxSilent == 0 {
		cfg.MaxSilent = 60 * time.Second
	}
	return &TCPStreamPublisher{
		Base:      NewBase(name, cfg.QueueSize, cfg.MaxLost),
		addr:      cfg.ListenAddr,
		format:    cfg.Format,
		maxSilent: cfg.MaxSilent,
		clients:   make(map[net.Conn]*tcpClient),
	}
}

func (p *TCPStreamPublisher) Start() error {
	p.setStatus(coupler.Opening)
	ln, err := net.Listen("tcp", p.addr)
	if err != nil {
		p.setStatus(coupler.Failed)
		return fmt.Errorf("publisher %s: %w", p.Name(), err)
	}
	p.listener = ln
	p.setStatus(coupler.Open)

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.setStatus(coupler.Active)
	go p.acceptLoop(ctx)
	go p.drainLoop(ctx)
	go p.silenceSweep(ctx)
	return nil
}

func (p *TCPStreamPublisher) acceptLoop(ctx context.Context) {
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.clients[conn] = &tcpClient{conn: conn, lastWrite: time.Now()}
		p.mu.Unlock()
		p.setStatus(coupler.Connected)
	}
}

func (p *TCPStreamPublisher) drainLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.woken():
		case <-time.After(time.Second):
		}
		for {
			env, ok := p.dequeue()
			if !ok {
				break
			}
			p.broadcast(env)
		}
	}
}

func (p *TCPStreamPublisher) broadcast(env nmea.Envelope) {
	line, err := p.render(env)
	if err != nil {
		return
	}
	line = append(line, '\r', '\n')

	p.mu.Lock()
	defer p.mu.Unlock()
	for conn, client := range p.clients {
		if _, err := conn.Write(line); err != nil {
			conn.Close()
			delete(p.clients, conn)
			continue
		}
		client.lastWrite = time.Now()
	}
}

func (p *TCPStreamPublisher) render(env nmea.Envelope) ([]byte, error) {
	if p.format == pseudo0183.FormatTransparent {
		switch env.Kind {
		case nmea.EnvelopeSentence0183:
			return env.Sentence.Raw, nil
		case nmea.EnvelopePassthrough:
			return env.Passthrough.Data, nil
		default:
			return pseudo0183.EncodeEnvelope(env, pseudo0183.FormatStatus)
		}
	}
	return pseudo0183.EncodeEnvelope(env, p.format)
}

func (p *TCPStreamPublisher) silenceSweep(ctx context.Context) {
	interval := p.maxSilent / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.mu.Lock()
			for conn, client := range p.clients {
				if now.Sub(client.lastWrite) > p.maxSilent {
					conn.Close()
					delete(p.clients, conn)
				}
			}
			p.mu.Unlock()
		}
	}
}

func (p *TCPStreamPublisher) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.setStatus(coupler.Stopped)
	p.mu.Lock()
	for conn := range p.clients {
		conn.Close()
	}
	p.clients = map[net.Conn]*tcpClient{}
	p.mu.Unlock()
	if p.listener == nil {
		return nil
	}
	return p.listener.Close()
}
