package filter

import (
	"testing"

	nmea "github.com/sealane/nmeagate"
	"github.com/sealane/nmeagate/devicetable"
	"github.com/stretchr/testify/assert"
)

func rawEnv(pgn uint32, source uint8) nmea.Envelope {
	return nmea.NewRaw2000Envelope("c1", nmea.RawMessage{Header: nmea.CanBusHeader{PGN: pgn, Source: source}})
}

func TestPGNFilter_sourceAndPGN(t *testing.T) {
	f := PGNFilter{Sources: []uint8{5}, PGNs: []uint32{127245}}
	assert.True(t, f.Match(rawEnv(127245, 5)))
	assert.False(t, f.Match(rawEnv(127245, 6)))
	assert.False(t, f.Match(rawEnv(129025, 5)))
}

func TestPGNFilter_emptyCriteriaMatchesAll(t *testing.T) {
	f := PGNFilter{}
	assert.True(t, f.Match(rawEnv(127245, 5)))
}

func TestPGNFilter_manufacturerRequiresNodeLookup(t *testing.T) {
	f := PGNFilter{ManufacturerIDs: []uint16{135}}
	assert.False(t, f.Match(rawEnv(127245, 5)), "no Nodes lookup configured")

	f.Nodes = func() map[uint8]devicetable.Node {
		return map[uint8]devicetable.Node{
			5: {Source: 5, ValidName: true, Name: devicetable.NodeName{Manufacturer: 135}},
		}
	}
	assert.True(t, f.Match(rawEnv(127245, 5)))
	assert.False(t, f.Match(rawEnv(127245, 6)))
}

func TestPGNFilter_productNameSubstringMatch(t *testing.T) {
	f := PGNFilter{
		ProductNames: []string{"Chart"},
		Nodes: func() map[uint8]devicetable.Node {
			return map[uint8]devicetable.Node{
				5: {Source: 5, ValidProductInfo: true, ProductInfo: devicetable.ProductInfo{ModelID: "ChartPlotter 9000"}},
			}
		},
	}
	assert.True(t, f.Match(rawEnv(1, 5)))
	assert.False(t, f.Match(rawEnv(1, 6)))
}
