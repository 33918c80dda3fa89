package coupler

import (
	"context"
	"io"
	"time"

	"github.com/tarm/serial"
)

// SerialConfig configures a serial-line coupler (spec §4.9: "serial line,
// baud configurable, default 4800 for NMEA0183, 38400 for GNSS").
type SerialConfig struct {
	Port        string
	Baud        int
	ReadTimeout time.Duration
	Decode      LineDecoder
	Encode      LineEncoder
}

// DefaultNMEA0183Baud and DefaultGNSSBaud are the spec's named serial
// defaults.
const (
	DefaultNMEA0183Baud = 4800
	DefaultGNSSBaud     = 38400
)

// NewSerialCoupler opens cfg.Port via github.com/tarm/serial, the same
// driver the teacher's cmd/n2kreader uses for its non-TCP, non-SocketCAN
// device path.
func NewSerialCoupler(name string, cfg SerialConfig) Coupler {
	if cfg.Baud == 0 {
		cfg.Baud = DefaultNMEA0183Baud
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 100 * time.Millisecond
	}
	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		return serial.OpenPort(&serial.Config{
			Name:        cfg.Port,
			Baud:        cfg.Baud,
			ReadTimeout: cfg.ReadTimeout,
			Size:        8,
		})
	}
	return newLineCoupler(name, "serial", 256, dial, cfg.Decode, cfg.Encode)
}
