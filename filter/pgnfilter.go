package filter

import (
	"strings"

	nmea "github.com/sealane/nmeagate"
	"github.com/sealane/nmeagate/devicetable"
)

// PGNFilter matches Raw2000/Decoded2000 envelopes by source address, PGN,
// manufacturer id, and/or product name (spec §4.11 2000-filter). Manufacturer
// and product criteria are resolved by looking the envelope's source address
// up in Nodes, since neither the raw frame nor the decoded fields carry a
// manufacturer name — only the NAME (60928) and Product Info (126996)
// messages a device table already accumulates per source.
type PGNFilter struct {
	Sources         []uint8
	PGNs            []uint32
	ManufacturerIDs []uint16
	ProductNames    []string

	// Nodes, if set, resolves a source address to its known device table
	// entry for the ManufacturerIDs/ProductNames criteria. Filters that only
	// use Sources/PGNs can leave it nil.
	Nodes func() map[uint8]devicetable.Node
}

func (f PGNFilter) Match(env nmea.Envelope) bool {
	pgn, ok := env.PGN()
	if !ok {
		return false
	}
	source, _ := env.Source()

	if len(f.Sources) > 0 && !containsUint8(f.Sources, source) {
		return false
	}
	if len(f.PGNs) > 0 && !containsUint32(f.PGNs, pgn) {
		return false
	}
	if len(f.ManufacturerIDs) > 0 && !f.matchManufacturer(source) {
		return false
	}
	if len(f.ProductNames) > 0 && !f.matchProductName(source) {
		return false
	}
	return true
}

func (f PGNFilter) matchManufacturer(source uint8) bool {
	if f.Nodes == nil {
		return false
	}
	node, ok := f.Nodes()[source]
	if !ok || !node.ValidName {
		return false
	}
	return containsUint16(f.ManufacturerIDs, node.Name.Manufacturer)
}

func (f PGNFilter) matchProductName(source uint8) bool {
	if f.Nodes == nil {
		return false
	}
	node, ok := f.Nodes()[source]
	if !ok || !node.ValidProductInfo {
		return false
	}
	for _, want := range f.ProductNames {
		if strings.Contains(node.ProductInfo.ModelID, want) {
			return true
		}
	}
	return false
}

func containsUint8(list []uint8, v uint8) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsUint32(list []uint32, v uint32) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsUint16(list []uint16, v uint16) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
