package pseudo0183

import (
	"bytes"
	"fmt"

	nmea "github.com/sealane/nmeagate"
)

// DecodeLine auto-detects which of the three pseudo-PGN carriers (or plain
// NMEA0183) a line is, decodes it, and wraps the result in the matching
// Envelope variant. coupler couplers that don't pin a single wire format
// (serial, TCP, UDP, log-replay) use this as their default line decoder.
func DecodeLine(coupler string, line []byte) (nmea.Envelope, error) {
	body := trimCRLF(line)
	switch {
	case len(body) < 2:
		return nmea.Envelope{}, fmt.Errorf("pseudo0183: line too short to decode: %q", line)
	case bytes.HasPrefix(body, []byte("!"+tagPDGY)):
		msg, err := ParsePDGY(line)
		if err != nil {
			return nmea.Envelope{}, err
		}
		return nmea.NewRaw2000Envelope(coupler, msg), nil
	case bytes.HasPrefix(body, []byte("!"+tagPGNST)):
		msg, err := ParsePGNST(line)
		if err != nil {
			return nmea.Envelope{}, err
		}
		return nmea.NewRaw2000Envelope(coupler, msg), nil
	case bytes.HasPrefix(body, []byte("$"+tagMXPGN)):
		msg, _, err := ParseMXPGN(line)
		if err != nil {
			return nmea.Envelope{}, err
		}
		return nmea.NewRaw2000Envelope(coupler, msg), nil
	default:
		s, err := ParseSentence(line)
		if err != nil {
			return nmea.Envelope{}, err
		}
		return nmea.NewSentenceEnvelope(coupler, s), nil
	}
}

// EncodeEnvelope renders env back to wire bytes for the given carrier
// format, the inverse of DecodeLine. For FormatTransparent only Sentence0183
// envelopes are encoded; other envelope kinds are rejected with an error.
func EncodeEnvelope(env nmea.Envelope, format Format) ([]byte, error) {
	switch format {
	case FormatDigitalYacht:
		if env.Kind != nmea.EnvelopeRaw2000 {
			return nil, fmt.Errorf("pseudo0183: !PDGY can only carry a Raw2000 envelope, got %s", env.Kind)
		}
		return EncodePDGY(env.Raw2000), nil
	case FormatStatus:
		if env.Kind != nmea.EnvelopeRaw2000 {
			return nil, fmt.Errorf("pseudo0183: !PGNST can only carry a Raw2000 envelope, got %s", env.Kind)
		}
		return EncodePGNST(env.Raw2000), nil
	case FormatShipmodul:
		if env.Kind != nmea.EnvelopeRaw2000 {
			return nil, fmt.Errorf("pseudo0183: $MXPGN can only carry a Raw2000 envelope, got %s", env.Kind)
		}
		return EncodeMXPGN(env.Raw2000, true), nil
	default:
		if env.Kind != nmea.EnvelopeSentence0183 {
			return nil, fmt.Errorf("pseudo0183: no carrier for envelope kind %s", env.Kind)
		}
		return EncodeSentence(env.Sentence), nil
	}
}
