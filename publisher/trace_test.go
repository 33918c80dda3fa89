package publisher

import (
	"bufio"
	"os"
	"testing"
	"time"

	nmea "github.com/sealane/nmeagate"
	"github.com/sealane/nmeagate/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceWriterPublisher_writesParsableRecords(t *testing.T) {
	dir := t.TempDir()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p, err := NewTraceWriterPublisher("trace1", TraceConfig{
		Dir: dir,
		Now: func() time.Time { return fixed },
	})
	require.NoError(t, err)
	require.NoError(t, p.Start())

	msg := nmea.RawMessage{Header: nmea.CanBusHeader{PGN: 127245, Source: 1}, Data: []byte{1, 2}}
	p.Enqueue(nmea.NewRaw2000Envelope("c1", msg))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, p.Stop())

	f, err := os.Open(p.file.Name())
	require.NoError(t, err)
	defer f.Close()
	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())
	rec, err := trace.Parse(scanner.Text())
	require.NoError(t, err)
	assert.Equal(t, trace.KindEnvelope, rec.Kind)
	assert.Equal(t, trace.DirectionIngress, rec.Direction)
	assert.Contains(t, rec.Content, "127245")
}
