package nmea

import "fmt"

// Segmenter is the transmit-side counterpart of Assembler: it splits an
// outgoing RawMessage into the CAN frames Fast-Packet requires when its
// payload exceeds a single frame.
type Segmenter interface {
	Segment(msg RawMessage) ([]RawFrame, error)
}

// FastPacketSegmenter rolls an independent 3-bit sequence counter per
// (PGN, source address), exactly mirroring the counter FastPacketAssembler
// reads out of payload byte 0.
type FastPacketSegmenter struct {
	pgns      []uint32
	sequences map[uint64]uint8
}

// NewFastPacketSegmenter creates a segmenter for the same list of
// Fast-Packet PGNs an Assembler was constructed with.
func NewFastPacketSegmenter(fpPGNs []uint32) *FastPacketSegmenter {
	return &FastPacketSegmenter{
		pgns:      append([]uint32{}, fpPGNs...),
		sequences: map[uint64]uint8{},
	}
}

func (s *FastPacketSegmenter) isFastPacket(pgn uint32) bool {
	if !couldBeFastPacket(pgn) {
		return false
	}
	for _, p := range s.pgns {
		if p == pgn {
			return true
		}
	}
	return false
}

// Segment splits msg into one or more CAN frames. Messages that are not
// registered as Fast-Packet PGNs and fit in 8 bytes are returned as a
// single frame unchanged.
func (s *FastPacketSegmenter) Segment(msg RawMessage) ([]RawFrame, error) {
	if len(msg.Data) > FastRawPacketMaxSize {
		return nil, fmt.Errorf("fast-packet payload of %d bytes exceeds maximum %d", len(msg.Data), FastRawPacketMaxSize)
	}

	if !s.isFastPacket(msg.Header.PGN) {
		if len(msg.Data) > 8 {
			return nil, fmt.Errorf("PGN %d payload of %d bytes needs fast-packet but is not registered as one", msg.Header.PGN, len(msg.Data))
		}
		frame := RawFrame{Time: msg.Time, Header: msg.Header, Length: uint8(len(msg.Data))}
		copy(frame.Data[:], msg.Data)
		return []RawFrame{frame}, nil
	}

	key := uint64(msg.Header.Source)<<32 | uint64(msg.Header.PGN)
	sequence := s.sequences[key]
	s.sequences[key] = (sequence + 1) % 8

	frameCount := 1
	if len(msg.Data) > 6 {
		frameCount += (len(msg.Data) - 6 + 6) / 7
	}

	frames := make([]RawFrame, 0, frameCount)
	written := 0
	for frameNr := 0; frameNr < frameCount; frameNr++ {
		frame := RawFrame{Time: msg.Time, Header: msg.Header}
		frame.Data[0] = (sequence << 5) | uint8(frameNr&0b0001_1111)

		if frameNr == 0 {
			frame.Data[1] = uint8(len(msg.Data))
			n := copy(frame.Data[2:], msg.Data)
			written += n
			frame.Length = uint8(2 + n)
		} else {
			n := copy(frame.Data[1:], msg.Data[written:])
			written += n
			frame.Length = uint8(1 + n)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}
