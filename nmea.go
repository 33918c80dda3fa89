// Package nmea holds the bus-level building blocks shared by every other
// package in this module: the CAN frame/header types, the canonical
// in-process message Envelope, the Fast-Packet byte layout, and the
// bit-level field codec (fieldvalue.go).
package nmea

import "time"

// FastRawPacketMaxSize is the largest payload a Fast-Packet PGN can carry:
// first frame has 6 data bytes, the remaining 31 frames have 7, so
// 6 + 31*7 = 223.
const FastRawPacketMaxSize = 223

// RawFrame is a single CAN frame as read from (or written to) the wire,
// before Fast-Packet/ISO-Transport reassembly.
type RawFrame struct {
	Time   time.Time
	Header CanBusHeader
	Length uint8
	Data   [8]byte
}

// RawMessage is a complete, reassembled NMEA2000/J1939 PGN: the spec's
// Raw2000 Envelope variant. Data is 1-223 bytes, already stripped of
// Fast-Packet/ISO-Transport framing.
type RawMessage struct {
	Time   time.Time
	Header CanBusHeader
	Data   []byte
}

// Message is a decoded PGN: the spec's Decoded2000 Envelope variant. It
// always corresponds to a known PGN descriptor (see canboat.Decoder).
type Message struct {
	Header CanBusHeader
	Fields FieldValues
}

// Sentence0183 is a parsed NMEA0183 sentence: talker (2 chars), formatter
// (3 chars, or a "P..." proprietary tag), ordered comma-separated fields,
// and the original raw bytes (useful for re-emitting a bit-identical line).
type Sentence0183 struct {
	Time      time.Time
	Talker    string
	Formatter string
	Fields    []string
	Raw       []byte
	// Delimiter is the leading '$' or '!' byte. Zero value defaults to '$'
	// when re-encoding.
	Delimiter byte
}

// IsProprietary reports whether the sentence uses a manufacturer-specific
// "P" formatter tag (e.g. PGRME, PGRMZ) instead of a standard 3-letter one.
func (s Sentence0183) IsProprietary() bool {
	return len(s.Formatter) > 0 && s.Formatter[0] == 'P'
}

// Passthrough is opaque data plus a source-coupler tag, used by couplers
// running in transparent mode where no decoding is attempted.
type Passthrough struct {
	Time      time.Time
	Coupler   string
	Data      []byte
}

// couldBeFastPacket reports whether a PGN's dictionary byte-length would
// force it across multiple CAN frames. The dictionary is authoritative
// (canboat.PGN.Type == PacketTypeFast); this is the fallback used by
// FastPacketAssembler when no dictionary entry is available, classifying
// by the PDU1/PDU2 Fast-Packet PGN ranges also used by CanBusHeader.
// ProprietaryType, generalized to the non-proprietary SAE ranges that
// canboat assigns Fast-Packet as well: anything above the single-frame
// ISO-TP/address-claim management PGNs is treated as a candidate.
func couldBeFastPacket(pgn uint32) bool {
	return pgn != uint32(PGNISOAddressClaim) &&
		pgn != uint32(PGNISORequest) &&
		pgn != uint32(PGNCommandedAddress) &&
		pgn != uint32(PGNISOTPConnManagement) &&
		pgn != uint32(PGNISOTPDataTransfer)
}
