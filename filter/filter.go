// Package filter implements the Filter Engine (spec §4.11): 0183 and 2000
// match filters, a time-window throttle, and the select/discard chain
// semantics a publisher or server connection runs before serialization.
package filter

import nmea "github.com/sealane/nmeagate"

// Action is what a matching filter does to an envelope.
type Action int

const (
	Select Action = iota
	Discard
)

// Filter reports whether env matches this filter's criteria.
type Filter interface {
	Match(env nmea.Envelope) bool
}

// Rule pairs one Filter with the Action it triggers.
type Rule struct {
	Filter Filter
	Action Action
}

// Chain is an ordered list of rules run on a publisher's (or connection's)
// thread before serialization (spec §4.8, §4.11).
type Chain struct {
	Rules []Rule
	// FilterSelect mirrors the publisher's filter_select setting: false
	// passes anything not discarded; true passes only what a select rule
	// matched.
	FilterSelect bool
}

// Apply reports whether env should be forwarded. A Discard match always
// wins immediately; otherwise FilterSelect decides whether an unmatched
// envelope passes.
func (c Chain) Apply(env nmea.Envelope) bool {
	matchedSelect := false
	for _, r := range c.Rules {
		if !r.Filter.Match(env) {
			continue
		}
		if r.Action == Discard {
			return false
		}
		matchedSelect = true
	}
	if c.FilterSelect {
		return matchedSelect
	}
	return true
}
