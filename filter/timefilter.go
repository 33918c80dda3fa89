package filter

import (
	"sync"
	"time"

	nmea "github.com/sealane/nmeagate"
)

// TimeFilter throttles by (PGN, source): it matches (and so can gate a
// Discard rule) at most once per MinPeriod for a given tuple, passing the
// first message of each window through and discarding the rest. This
// generalizes the single-global `throttled := map[uint64]time.Time{}` window
// cmd/n2kreader keeps for its -throttle flag into one window per tuple.
type TimeFilter struct {
	MinPeriod time.Duration

	mu   sync.Mutex
	next map[uint64]time.Time
}

func tupleKey(pgn uint32, source uint8) uint64 {
	return uint64(pgn)<<8 | uint64(source)
}

// Match reports whether env falls within an already-throttled window, i.e.
// whether it should be discarded. Use it as the Filter of a Discard rule.
func (f *TimeFilter) Match(env nmea.Envelope) bool {
	if f.MinPeriod <= 0 {
		return false
	}
	pgn, ok := env.PGN()
	if !ok {
		return false
	}
	source, _ := env.Source()
	key := tupleKey(pgn, source)
	now := env.Time
	if now.IsZero() {
		now = time.Now()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next == nil {
		f.next = map[uint64]time.Time{}
	}
	due, seen := f.next[key]
	if seen && now.Before(due) {
		return true
	}
	f.next[key] = now.Add(f.MinPeriod)
	return false
}
