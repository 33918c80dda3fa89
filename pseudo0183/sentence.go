// Package pseudo0183 implements the Pseudo-0183 Codec (spec §4.7): generic
// NMEA0183 sentence framing and checksum, plus the three pseudo-sentence
// carriers adapter drivers use to tunnel NMEA2000/J1939 PGNs over a
// line-oriented transport (!PDGY, !PGNST, $MXPGN).
package pseudo0183

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	nmea "github.com/sealane/nmeagate"
)

// ErrChecksum is returned when a sentence carries a *HH checksum that does
// not match its payload; the spec requires such a sentence be dropped and
// counted by the caller.
var ErrChecksum = errors.New("pseudo0183: checksum mismatch")

// Checksum XORs every byte of payload together, the way the optional *HH
// trailer of an NMEA0183 sentence is computed: the XOR of every byte
// between the leading '$'/'!' (exclusive) and the '*' (exclusive).
func Checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum ^= b
	}
	return sum
}

// trimCRLF strips a trailing CR, LF, or CRLF.
func trimCRLF(line []byte) []byte {
	return bytes.TrimRight(line, "\r\n")
}

// splitSentence separates a raw line into its payload (between the leading
// delimiter and the optional '*') and verifies the checksum when present.
func splitSentence(line []byte) (delim byte, payload []byte, err error) {
	line = trimCRLF(line)
	if len(line) < 1 {
		return 0, nil, errors.New("pseudo0183: empty sentence")
	}
	delim = line[0]
	if delim != '$' && delim != '!' {
		return 0, nil, fmt.Errorf("pseudo0183: sentence does not start with '$' or '!': %q", line)
	}
	body := line[1:]
	idx := bytes.LastIndexByte(body, '*')
	if idx < 0 {
		return delim, body, nil
	}
	payload = body[:idx]
	hexSum := body[idx+1:]
	want, err := strconv.ParseUint(string(hexSum), 16, 8)
	if err != nil {
		return 0, nil, fmt.Errorf("pseudo0183: malformed checksum %q: %w", hexSum, err)
	}
	if byte(want) != Checksum(payload) {
		return 0, nil, ErrChecksum
	}
	return delim, payload, nil
}

// ParseSentence parses one generic NMEA0183 line into its talker,
// formatter, and comma-separated fields. Proprietary sentences (tag
// starting with 'P', e.g. PGRME) have no talker: the whole tag is the
// formatter.
func ParseSentence(line []byte) (nmea.Sentence0183, error) {
	delim, payload, err := splitSentence(line)
	if err != nil {
		return nmea.Sentence0183{}, err
	}
	fields := bytes.Split(payload, []byte(","))
	if len(fields) == 0 || len(fields[0]) == 0 {
		return nmea.Sentence0183{}, errors.New("pseudo0183: sentence has no tag")
	}
	tag := string(fields[0])

	var talker, formatter string
	if tag[0] == 'P' {
		formatter = tag
	} else if len(tag) == 5 {
		talker, formatter = tag[:2], tag[2:]
	} else {
		return nmea.Sentence0183{}, fmt.Errorf("pseudo0183: unrecognized sentence tag %q", tag)
	}

	rest := make([]string, len(fields)-1)
	for i, f := range fields[1:] {
		rest[i] = string(f)
	}
	return nmea.Sentence0183{
		Talker:    talker,
		Formatter: formatter,
		Fields:    rest,
		Raw:       append([]byte{}, line...),
		Delimiter: delim,
	}, nil
}

// EncodeSentence re-renders a Sentence0183 as "$TAG,f1,f2*HH" (no trailing
// CR LF; callers append it when writing to a stream). A zero Delimiter
// encodes as '$'.
func EncodeSentence(s nmea.Sentence0183) []byte {
	delim := s.Delimiter
	if delim == 0 {
		delim = '$'
	}
	tag := s.Talker + s.Formatter
	payload := tag
	if len(s.Fields) > 0 {
		payload += "," + strings.Join(s.Fields, ",")
	}
	sum := Checksum([]byte(payload))
	return []byte(fmt.Sprintf("%c%s*%02X", delim, payload, sum))
}
