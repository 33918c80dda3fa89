package coupler

import (
	"context"
	"io"
	"net"
	"time"
)

// TCPConfig configures a TCP-client coupler (spec §4.9). The initial dial
// is retried every RetryInterval; a connection that drops after Start is
// not re-dialled.
type TCPConfig struct {
	Addr          string
	DialTimeout   time.Duration
	RetryInterval time.Duration
	Decode        LineDecoder
	Encode        LineEncoder
}

// NewTCPCoupler dials cfg.Addr, retrying every cfg.RetryInterval until ctx
// is done or a connection succeeds.
func NewTCPCoupler(name string, cfg TCPConfig) Coupler {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		dialer := net.Dialer{Timeout: cfg.DialTimeout}
		for {
			conn, err := dialer.DialContext(ctx, "tcp", cfg.Addr)
			if err == nil {
				return conn, nil
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.RetryInterval):
			}
		}
	}
	return newLineCoupler(name, "tcp", 256, dial, cfg.Decode, cfg.Encode)
}
