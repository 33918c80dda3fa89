package filter

import nmea "github.com/sealane/nmeagate"

// SentenceFilter matches NMEA0183 Sentence0183 envelopes by talker and/or
// formatter list. Per spec §4.11, "if neither talker nor formatter is set
// on a 0183 filter, the filter is disabled" — Match always returns false.
type SentenceFilter struct {
	Talkers    []string
	Formatters []string
}

func (f SentenceFilter) Match(env nmea.Envelope) bool {
	if len(f.Talkers) == 0 && len(f.Formatters) == 0 {
		return false
	}
	if env.Kind != nmea.EnvelopeSentence0183 {
		return false
	}
	if len(f.Talkers) > 0 && !contains(f.Talkers, env.Sentence.Talker) {
		return false
	}
	if len(f.Formatters) > 0 && !contains(f.Formatters, env.Sentence.Formatter) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
