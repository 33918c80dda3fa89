package nmea

import "time"

// EnvelopeKind discriminates which of Envelope's variants is populated.
type EnvelopeKind uint8

const (
	EnvelopeRaw2000 EnvelopeKind = iota
	EnvelopeDecoded2000
	EnvelopeSentence0183
	EnvelopePassthrough
)

func (k EnvelopeKind) String() string {
	switch k {
	case EnvelopeRaw2000:
		return "raw2000"
	case EnvelopeDecoded2000:
		return "decoded2000"
	case EnvelopeSentence0183:
		return "sentence0183"
	case EnvelopePassthrough:
		return "passthrough"
	default:
		return "unknown"
	}
}

// Envelope is the canonical in-process message the router (§4.8) pushes
// from couplers to publishers: one of Raw2000, Decoded2000, Sentence0183,
// or Passthrough, tagged by Kind and by the coupler that produced it.
// Envelopes are owned by the producing coupler until enqueued; each
// publisher's worker takes ownership of its own queued copy, so callers
// must not mutate Data/Fields slices after handing an Envelope to a
// publisher queue.
type Envelope struct {
	Kind    EnvelopeKind
	Coupler string
	Time    time.Time

	Raw2000     RawMessage
	Decoded2000 Message
	Sentence    Sentence0183
	Passthrough Passthrough
}

// NewRaw2000Envelope wraps a reassembled PGN produced by coupler.
func NewRaw2000Envelope(coupler string, msg RawMessage) Envelope {
	return Envelope{Kind: EnvelopeRaw2000, Coupler: coupler, Time: msg.Time, Raw2000: msg}
}

// NewDecoded2000Envelope wraps a decoded PGN produced by coupler.
func NewDecoded2000Envelope(coupler string, msg Message, at time.Time) Envelope {
	return Envelope{Kind: EnvelopeDecoded2000, Coupler: coupler, Time: at, Decoded2000: msg}
}

// NewSentenceEnvelope wraps a parsed NMEA0183 sentence produced by coupler.
func NewSentenceEnvelope(coupler string, s Sentence0183) Envelope {
	return Envelope{Kind: EnvelopeSentence0183, Coupler: coupler, Time: s.Time, Sentence: s}
}

// NewPassthroughEnvelope wraps opaque bytes from a transparent-mode coupler.
func NewPassthroughEnvelope(p Passthrough) Envelope {
	return Envelope{Kind: EnvelopePassthrough, Coupler: p.Coupler, Time: p.Time, Passthrough: p}
}

// PGN returns the envelope's PGN number for Raw2000/Decoded2000 variants,
// and false for the others (filters use this to match PGN lists).
func (e Envelope) PGN() (uint32, bool) {
	switch e.Kind {
	case EnvelopeRaw2000:
		return e.Raw2000.Header.PGN, true
	case EnvelopeDecoded2000:
		return e.Decoded2000.Header.PGN, true
	default:
		return 0, false
	}
}

// Source returns the envelope's source address for Raw2000/Decoded2000
// variants, and false for the others.
func (e Envelope) Source() (uint8, bool) {
	switch e.Kind {
	case EnvelopeRaw2000:
		return e.Raw2000.Header.Source, true
	case EnvelopeDecoded2000:
		return e.Decoded2000.Header.Source, true
	default:
		return 0, false
	}
}
