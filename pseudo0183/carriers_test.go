package pseudo0183

import (
	"testing"
	"time"

	nmea "github.com/sealane/nmeagate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage() nmea.RawMessage {
	return nmea.RawMessage{
		Time: time.UnixMilli(1700000000123).UTC(),
		Header: nmea.CanBusHeader{
			PGN:         130306,
			Priority:    2,
			Source:      3,
			Destination: 255,
		},
		Data: []byte{0x02, 0x00, 0xff, 0x7f, 0x00},
	}
}

func TestPDGY_roundTrip(t *testing.T) {
	msg := testMessage()
	line := EncodePDGY(msg)

	got, err := ParsePDGY(line)
	require.NoError(t, err)
	assert.Equal(t, msg.Header, got.Header)
	assert.Equal(t, msg.Data, got.Data)
	assert.Equal(t, msg.Time.UnixMilli(), got.Time.UnixMilli())
}

func TestPDGY_badChecksumRejected(t *testing.T) {
	line := EncodePDGY(testMessage())
	line[len(line)-1] = 'F' // corrupt the last checksum digit
	_, err := ParsePDGY(line)
	assert.Error(t, err)
}

func TestPGNST_roundTrip(t *testing.T) {
	msg := testMessage()
	line := EncodePGNST(msg)

	got, err := ParsePGNST(line)
	require.NoError(t, err)
	assert.Equal(t, msg.Header, got.Header)
	assert.Equal(t, msg.Data, got.Data)
}

func TestPDGYAndPGNST_sameEnvelopeEqualOnParse(t *testing.T) {
	msg := testMessage()
	a, err := ParsePDGY(EncodePDGY(msg))
	require.NoError(t, err)
	b, err := ParsePGNST(EncodePGNST(msg))
	require.NoError(t, err)
	assert.Equal(t, a.Header, b.Header)
	assert.Equal(t, a.Data, b.Data)
}

func TestMXPGN_roundTrip(t *testing.T) {
	msg := nmea.RawMessage{
		Header: nmea.CanBusHeader{PGN: 127245, Priority: 2, Source: 0x28},
		Data:   []byte{0xff, 0x07, 0xff, 0x7f, 0x00, 0x00, 0xff, 0xff},
	}
	line := EncodeMXPGN(msg, true)

	got, isSend, err := ParseMXPGN(line)
	require.NoError(t, err)
	assert.True(t, isSend)
	assert.Equal(t, msg.Header.PGN, got.Header.PGN)
	assert.Equal(t, msg.Header.Priority, got.Header.Priority)
	assert.Equal(t, msg.Header.Source, got.Header.Source)
	assert.Equal(t, nmea.AddressGlobal, got.Header.Destination)
	assert.Equal(t, msg.Data, got.Data)
}

func TestMXPGN_isSendBitClear(t *testing.T) {
	msg := nmea.RawMessage{
		Header: nmea.CanBusHeader{PGN: 127245, Priority: 2, Source: 0x01},
		Data:   []byte{0x01, 0x02},
	}
	line := EncodeMXPGN(msg, false)
	_, isSend, err := ParseMXPGN(line)
	require.NoError(t, err)
	assert.False(t, isSend)
}

func TestMXPGN_realWorldExample(t *testing.T) {
	// Miniplex-3: PGN 0x01F201 (127489), priority 2, 8 data bytes, source
	// 0x80, so attr 0x2808. Constructed here rather than cited, since the
	// wire example depends on the particular Miniplex3 firmware version.
	msg := nmea.RawMessage{
		Header: nmea.CanBusHeader{PGN: 0x01F201, Priority: 2, Source: 0x80},
		Data:   []byte{0x2F, 0x01, 0x05, 0x00, 0x8A, 0x7F, 0x20, 0x00},
	}
	line := EncodeMXPGN(msg, false)
	got, _, err := ParseMXPGN(line)
	require.NoError(t, err)
	assert.Equal(t, msg.Header.PGN, got.Header.PGN)
	assert.Equal(t, msg.Data, got.Data)
}
