package pseudo0183

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	nmea "github.com/sealane/nmeagate"
)

// Format identifies which pseudo-sentence carrier an envelope was read
// from or should be written as; publishers (C10) pick one per configured
// server (spec §4.10 "per-server formatting choice").
type Format int

const (
	// FormatTransparent passes bytes through unmodified (no PGN carrier).
	FormatTransparent Format = iota
	// FormatDigitalYacht is the !PDGY base64 carrier.
	FormatDigitalYacht
	// FormatStatus is the !PGNST hex carrier.
	FormatStatus
	// FormatShipmodul is the $MXPGN carrier used by Miniplex3-style units.
	FormatShipmodul
)

const (
	tagPDGY   = "PDGY"
	tagPGNST  = "PGNST"
	tagMXPGN  = "MXPGN"
	mxpgnSend = 1 << 15 // "is-send" bit of the $MXPGN attribute word
)

// ParsePDGY decodes a Digital Yacht "!PDGY,<pgn>,<priority>,<sa>,<da>,
// <timestamp_ms>,<base64-payload>*HH" sentence into a RawMessage.
func ParsePDGY(line []byte) (nmea.RawMessage, error) {
	delim, payload, err := splitSentence(line)
	if err != nil {
		return nmea.RawMessage{}, err
	}
	fields := splitFields(payload)
	if len(fields) != 7 || delim != '!' || fields[0] != tagPDGY {
		return nmea.RawMessage{}, fmt.Errorf("pseudo0183: not a !PDGY sentence: %q", line)
	}
	header, err := parseCarrierHeader(fields[1:5])
	if err != nil {
		return nmea.RawMessage{}, err
	}
	tsMillis, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return nmea.RawMessage{}, fmt.Errorf("pseudo0183: !PDGY bad timestamp: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(fields[6])
	if err != nil {
		return nmea.RawMessage{}, fmt.Errorf("pseudo0183: !PDGY bad base64 payload: %w", err)
	}
	return nmea.RawMessage{Time: time.UnixMilli(tsMillis).UTC(), Header: header, Data: data}, nil
}

// EncodePDGY re-renders msg as a "!PDGY" sentence.
func EncodePDGY(msg nmea.RawMessage) []byte {
	payload := fmt.Sprintf("%s,%d,%d,%d,%d,%d,%s", tagPDGY,
		msg.Header.PGN, msg.Header.Priority, msg.Header.Source, msg.Header.Destination,
		msg.Time.UnixMilli(), base64.StdEncoding.EncodeToString(msg.Data))
	return []byte(fmt.Sprintf("!%s*%02X", payload, Checksum([]byte(payload))))
}

// ParsePGNST decodes a "!PGNST,<pgn>,<priority>,<sa>,<da>,<timestamp_ms>,
// <hex-payload>*HH" sentence into a RawMessage.
func ParsePGNST(line []byte) (nmea.RawMessage, error) {
	delim, payload, err := splitSentence(line)
	if err != nil {
		return nmea.RawMessage{}, err
	}
	fields := splitFields(payload)
	if len(fields) != 7 || delim != '!' || fields[0] != tagPGNST {
		return nmea.RawMessage{}, fmt.Errorf("pseudo0183: not a !PGNST sentence: %q", line)
	}
	header, err := parseCarrierHeader(fields[1:5])
	if err != nil {
		return nmea.RawMessage{}, err
	}
	tsMillis, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return nmea.RawMessage{}, fmt.Errorf("pseudo0183: !PGNST bad timestamp: %w", err)
	}
	data, err := hex.DecodeString(fields[6])
	if err != nil {
		return nmea.RawMessage{}, fmt.Errorf("pseudo0183: !PGNST bad hex payload: %w", err)
	}
	return nmea.RawMessage{Time: time.UnixMilli(tsMillis).UTC(), Header: header, Data: data}, nil
}

// EncodePGNST re-renders msg as a "!PGNST" sentence.
func EncodePGNST(msg nmea.RawMessage) []byte {
	payload := fmt.Sprintf("%s,%d,%d,%d,%d,%d,%s", tagPGNST,
		msg.Header.PGN, msg.Header.Priority, msg.Header.Source, msg.Header.Destination,
		msg.Time.UnixMilli(), hex.EncodeToString(msg.Data))
	return []byte(fmt.Sprintf("!%s*%02X", payload, Checksum([]byte(payload))))
}

// ParseMXPGN decodes a Shipmodul "$MXPGN,<pgn-hex>,<attr-hex>,<hex-payload>
// *HH" sentence. The attribute word packs DLC (bits 0-3), source address
// (bits 4-11), priority (bits 12-14), and the "is-send" direction bit
// (returned separately: the format carries no destination field, so
// RawMessage.Header.Destination is always nmea.AddressGlobal).
func ParseMXPGN(line []byte) (msg nmea.RawMessage, isSend bool, err error) {
	delim, payload, err := splitSentence(line)
	if err != nil {
		return nmea.RawMessage{}, false, err
	}
	fields := splitFields(payload)
	if len(fields) != 4 || delim != '$' || fields[0] != tagMXPGN {
		return nmea.RawMessage{}, false, fmt.Errorf("pseudo0183: not a $MXPGN sentence: %q", line)
	}
	pgn, err := strconv.ParseUint(fields[1], 16, 32)
	if err != nil {
		return nmea.RawMessage{}, false, fmt.Errorf("pseudo0183: $MXPGN bad pgn %q: %w", fields[1], err)
	}
	attr, err := strconv.ParseUint(fields[2], 16, 16)
	if err != nil {
		return nmea.RawMessage{}, false, fmt.Errorf("pseudo0183: $MXPGN bad attribute word %q: %w", fields[2], err)
	}
	data, err := hex.DecodeString(fields[3])
	if err != nil {
		return nmea.RawMessage{}, false, fmt.Errorf("pseudo0183: $MXPGN bad hex payload: %w", err)
	}
	dlc := uint8(attr & 0xF)
	source := uint8((attr >> 4) & 0xFF)
	priority := uint8((attr >> 12) & 0x7)
	isSend = attr&mxpgnSend != 0
	if int(dlc) <= len(data) {
		data = data[:dlc]
	}
	return nmea.RawMessage{
		Header: nmea.CanBusHeader{
			PGN:         uint32(pgn),
			Priority:    priority,
			Source:      source,
			Destination: nmea.AddressGlobal,
		},
		Data: data,
	}, isSend, nil
}

// EncodeMXPGN re-renders msg as a "$MXPGN" sentence. isSend marks the
// attribute word's direction bit (set when the local device is
// transmitting msg, clear when it was received off the bus).
func EncodeMXPGN(msg nmea.RawMessage, isSend bool) []byte {
	attr := uint16(len(msg.Data)&0xF) |
		uint16(msg.Header.Source)<<4 |
		uint16(msg.Header.Priority&0x7)<<12
	if isSend {
		attr |= mxpgnSend
	}
	payload := fmt.Sprintf("%s,%06X,%04X,%s", tagMXPGN, msg.Header.PGN, attr, hex.EncodeToString(msg.Data))
	return []byte(fmt.Sprintf("$%s*%02X", payload, Checksum([]byte(payload))))
}

func parseCarrierHeader(fields []string) (nmea.CanBusHeader, error) {
	pgn, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return nmea.CanBusHeader{}, fmt.Errorf("pseudo0183: bad pgn %q: %w", fields[0], err)
	}
	priority, err := strconv.ParseUint(fields[1], 10, 8)
	if err != nil {
		return nmea.CanBusHeader{}, fmt.Errorf("pseudo0183: bad priority %q: %w", fields[1], err)
	}
	sa, err := strconv.ParseUint(fields[2], 10, 8)
	if err != nil {
		return nmea.CanBusHeader{}, fmt.Errorf("pseudo0183: bad source address %q: %w", fields[2], err)
	}
	da, err := strconv.ParseUint(fields[3], 10, 8)
	if err != nil {
		return nmea.CanBusHeader{}, fmt.Errorf("pseudo0183: bad destination address %q: %w", fields[3], err)
	}
	return nmea.CanBusHeader{
		PGN:         uint32(pgn),
		Priority:    uint8(priority),
		Source:      uint8(sa),
		Destination: uint8(da),
	}, nil
}

func splitFields(payload []byte) []string {
	return strings.Split(string(payload), ",")
}
