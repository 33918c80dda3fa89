// Package trace implements the trace-file record grammar (spec §6):
// one line per record, `{R|M}#<seq>#<ISO-timestamp>{>|<}<content>`. The
// trace publisher (package publisher) writes these; the log-replay
// coupler (package coupler) reads them back.
package trace

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind distinguishes a raw on-wire record from a canonical-envelope one.
type Kind byte

const (
	KindRaw      Kind = 'R'
	KindEnvelope Kind = 'M'
)

// Direction marks whether the record was captured on ingress (from a
// coupler) or egress (to a publisher/coupler).
type Direction byte

const (
	DirectionIngress Direction = '>'
	DirectionEgress  Direction = '<'
)

// Record is one parsed trace-file line.
type Record struct {
	Kind      Kind
	Seq       uint64
	Time      time.Time
	Direction Direction
	Content   string
}

// Format renders r as one trace-file line, without a trailing newline.
func (r Record) Format() string {
	return fmt.Sprintf("%c#%d#%s%c%s", byte(r.Kind), r.Seq, r.Time.Format(time.RFC3339Nano), byte(r.Direction), r.Content)
}

// Parse decodes one trace-file line.
func Parse(line string) (Record, error) {
	parts := strings.SplitN(line, "#", 3)
	if len(parts) != 3 {
		return Record{}, fmt.Errorf("trace: malformed record %q", line)
	}
	kind := Kind(parts[0][0])
	if kind != KindRaw && kind != KindEnvelope {
		return Record{}, fmt.Errorf("trace: unknown record kind %q", parts[0])
	}
	seq, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("trace: bad sequence number %q: %w", parts[1], err)
	}
	rest := parts[2]
	idx := strings.IndexAny(rest, "><")
	if idx < 0 {
		return Record{}, fmt.Errorf("trace: record missing direction marker: %q", line)
	}
	ts, err := time.Parse(time.RFC3339Nano, rest[:idx])
	if err != nil {
		return Record{}, fmt.Errorf("trace: bad timestamp %q: %w", rest[:idx], err)
	}
	return Record{
		Kind:      kind,
		Seq:       seq,
		Time:      ts,
		Direction: Direction(rest[idx]),
		Content:   rest[idx+1:],
	}, nil
}
