package publisher

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	nmea "github.com/sealane/nmeagate"
	"github.com/sealane/nmeagate/canboat"
	"github.com/sealane/nmeagate/coupler"
)

// ConversionMode selects how an envelope is turned into an MQTT payload
// (spec §4.10: "NMEA0183→2000 conversion modes").
type ConversionMode int

const (
	// PassThru forwards the envelope's original bytes unmodified.
	PassThru ConversionMode = iota
	// ConvertStrict rejects envelopes it cannot render as Raw2000.
	ConvertStrict
	// ConvertPass renders Raw2000 where possible and falls back to raw
	// bytes otherwise.
	ConvertPass
)

// RPCPushConfig configures the MQTT push publisher.
type RPCPushConfig struct {
	Broker        string
	ClientID      string
	Topic         string
	RetryInterval time.Duration
	Mode          ConversionMode
	QueueSize     int
	MaxLost       int
}

// RPCPushPublisher maintains a persistent MQTT connection (spec §4.10:
// "RPC push publisher maintains a persistent stream to a peer, reconnects
// every retry_interval"), publishing one MQTT message per envelope.
type RPCPushPublisher struct {
	*Base

	topic  string
	mode   ConversionMode
	client mqtt.Client

	stop chan struct{}
}

func NewRPCPushPublisher(name string, cfg RPCPushConfig) *RPCPushPublisher {
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(cfg.RetryInterval).
		SetConnectRetry(true)
	return &RPCPushPublisher{
		Base:  NewBase(name, cfg.QueueSize, cfg.MaxLost),
		topic: cfg.Topic,
		mode:  cfg.Mode,
		client: mqtt.NewClient(opts),
		stop:  make(chan struct{}),
	}
}

func (p *RPCPushPublisher) Start() error {
	p.setStatus(coupler.Opening)
	token := p.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		p.setStatus(coupler.Failed)
		return fmt.Errorf("publisher %s: mqtt connect: %w", p.Name(), err)
	}
	p.setStatus(coupler.Connected)
	p.setStatus(coupler.Active)
	go p.drainLoop()
	return nil
}

func (p *RPCPushPublisher) drainLoop() {
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
			payload, err := p.render(env)
			if err != nil {
				continue
			}
			if !p.client.IsConnected() {
				continue // AutoReconnect is in flight: drop rather than block the worker
			}
			p.client.Publish(p.topic, 0, false, payload)
		}
	}
}

func (p *RPCPushPublisher) render(env nmea.Envelope) ([]byte, error) {
	switch p.mode {
	case PassThru:
		return passThruBytes(env)
	case ConvertStrict:
		if env.Kind != nmea.EnvelopeRaw2000 {
			return nil, fmt.Errorf("publisher %s: convert_strict requires a Raw2000 envelope, got %s", p.Name(), env.Kind)
		}
		return canboat.MarshalRawMessage(env.Raw2000)
	default: // ConvertPass
		if env.Kind == nmea.EnvelopeRaw2000 {
			return canboat.MarshalRawMessage(env.Raw2000)
		}
		return passThruBytes(env)
	}
}

func passThruBytes(env nmea.Envelope) ([]byte, error) {
	switch env.Kind {
	case nmea.EnvelopeSentence0183:
		return env.Sentence.Raw, nil
	case nmea.EnvelopePassthrough:
		return env.Passthrough.Data, nil
	default:
		return canboat.MarshalRawMessage(env.Raw2000)
	}
}

func (p *RPCPushPublisher) Stop() error {
	close(p.stop)
	p.setStatus(coupler.Stopped)
	p.client.Disconnect(250)
	return nil
}
