package coupler

import (
	"context"
	"encoding/hex"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogReplayCoupler_replaysRecordedSentences(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "trace-*.log")
	require.NoError(t, err)
	defer f.Close()

	line1 := hex.EncodeToString([]byte("$GPGGA,1,2,3\r\n"))
	line2 := hex.EncodeToString([]byte("$GPRMC,1,2,3\r\n"))
	_, err = f.WriteString("R#1#2026-01-02T03:04:05Z>" + line1 + "\n")
	require.NoError(t, err)
	_, err = f.WriteString("R#2#2026-01-02T03:04:05.010Z>" + line2 + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	c := NewLogReplayCoupler("replay1", LogReplayConfig{Path: f.Name(), Speed: 1000})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case env := <-c.Envelopes():
			got = append(got, env.Sentence.Formatter)
		case <-time.After(2 * time.Second):
			t.Fatal("expected replayed envelope")
		}
	}
	assert.Equal(t, []string{"GGA", "RMC"}, got)
	assert.NoError(t, c.Stop())
}
