package pseudo0183

import (
	"testing"

	nmea "github.com/sealane/nmeagate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLine_dispatchesByPrefix(t *testing.T) {
	msg := testMessage()

	pdgy, err := DecodeLine("c1", EncodePDGY(msg))
	require.NoError(t, err)
	assert.Equal(t, nmea.EnvelopeRaw2000, pdgy.Kind)

	pgnst, err := DecodeLine("c1", EncodePGNST(msg))
	require.NoError(t, err)
	assert.Equal(t, nmea.EnvelopeRaw2000, pgnst.Kind)

	mxpgn, err := DecodeLine("c1", EncodeMXPGN(msg, false))
	require.NoError(t, err)
	assert.Equal(t, nmea.EnvelopeRaw2000, mxpgn.Kind)

	plain, err := DecodeLine("c1", []byte("$GPGGA,1,2,3"))
	require.NoError(t, err)
	assert.Equal(t, nmea.EnvelopeSentence0183, plain.Kind)
}

func TestEncodeEnvelope_roundTripsThroughDecodeLine(t *testing.T) {
	msg := testMessage()
	env := nmea.NewRaw2000Envelope("c1", msg)

	for _, format := range []Format{FormatDigitalYacht, FormatStatus, FormatShipmodul} {
		line, err := EncodeEnvelope(env, format)
		require.NoError(t, err)
		decoded, err := DecodeLine("c1", line)
		require.NoError(t, err)
		assert.Equal(t, msg.Header.PGN, decoded.Raw2000.Header.PGN)
	}
}
