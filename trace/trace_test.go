package trace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_roundTrip(t *testing.T) {
	r := Record{
		Kind:      KindRaw,
		Seq:       42,
		Time:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Direction: DirectionIngress,
		Content:   "18EEFF00 08 01020304050607",
	}
	line := r.Format()

	got, err := Parse(line)
	require.NoError(t, err)
	assert.Equal(t, r.Kind, got.Kind)
	assert.Equal(t, r.Seq, got.Seq)
	assert.True(t, r.Time.Equal(got.Time))
	assert.Equal(t, r.Direction, got.Direction)
	assert.Equal(t, r.Content, got.Content)
}

func TestParse_malformed(t *testing.T) {
	_, err := Parse("not a trace record")
	assert.Error(t, err)
}

func TestParse_envelopeEgress(t *testing.T) {
	line := "M#7#2026-01-02T03:04:05Z<126208,2,0,255,...decoded..."
	got, err := Parse(line)
	require.NoError(t, err)
	assert.Equal(t, KindEnvelope, got.Kind)
	assert.Equal(t, DirectionEgress, got.Direction)
	assert.Equal(t, uint64(7), got.Seq)
}
