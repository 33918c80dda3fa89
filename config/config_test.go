package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
log_level: info
trace_dir: /var/log/nmeagate/trace
stop_system: true
retry:
  max_attempt: 5
  open_delay: 2s

couplers:
  - name: helm0
    kind: serial
    port: /dev/ttyUSB0
    baud: 4800
  - name: bus0
    kind: socketcan
    interface: can0
    bring_up_interface: true

publishers:
  - name: tcp-out
    kind: tcpstream
    sources: [bus0]
    listen_addr: ":4500"
    format: transparent
    max_silent: 60s
  - name: mqtt-out
    kind: rpcpush
    sources: [bus0, helm0]
    broker: "tcp://localhost:1883"
    topic: "nmeagate/out"
    mode: pass_thru
`

func TestLoad_parsesAllSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nmeagate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", c.Globals.LogLevel)
	assert.True(t, c.StopSystem)
	assert.Equal(t, 5, c.Retry.MaxAttempt)
	assert.Equal(t, 2*time.Second, c.Retry.OpenDelay)

	require.Len(t, c.Couplers, 2)
	assert.Equal(t, "serial", c.Couplers[0].Kind)
	assert.Equal(t, 4800, c.Couplers[0].Baud)
	assert.Equal(t, "can0", c.Couplers[1].Interface)
	assert.True(t, c.Couplers[1].BringUpInterface)

	require.Len(t, c.Publishers, 2)
	assert.Equal(t, []string{"bus0"}, c.Publishers[0].Sources)
	assert.Equal(t, "transparent", c.Publishers[0].Format)
	assert.Equal(t, "pass_thru", c.Publishers[1].Mode)
}

func TestLoad_missingFile(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}
