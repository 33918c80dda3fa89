package nmea

import (
	"context"
)

// RawMessageReader is the read half of a device: something that produces
// reassembled PGNs (RawMessage) from whatever wire framing it owns.
type RawMessageReader interface {
	ReadRawMessage(ctx context.Context) (RawMessage, error)
	Initialize() error
	Close() error
}

// RawMessageWriter is the write half of a device: something that can take
// a RawMessage, segment/frame it as its wire protocol requires, and send
// it. ctx governs the write, matching spec §5's rule that couplers may
// block on writes but must still honour cancellation.
type RawMessageWriter interface {
	WriteRawMessage(ctx context.Context, msg RawMessage) error
	Close() error
}

type RawMessageReaderWriter interface {
	RawMessageReader
	RawMessageWriter
}
