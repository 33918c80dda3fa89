package nmea

// PGN is a J1939/NMEA2000 Parameter Group Number. It is 18 bits wide but
// carried in a uint32 throughout this package to match CanBusHeader.PGN.
type PGN uint32

// Well-known bus-management PGNs used by address claim, device discovery
// and ISO transport. Field values follow SAE J1939-21/-73 and the NMEA2000
// PGN corrigenda; see canboat/canboatpgns.go for the data-driven dictionary
// covering everything else.
const (
	PGNISORequest                PGN = 59904
	PGNCommandedAddress          PGN = 65240
	PGNISOTPConnManagement       PGN = 60416 // TP.CM
	PGNISOTPDataTransfer         PGN = 60160 // TP.DT
	PGNISOAddressClaim           PGN = 60928
	PGNProductInfo               PGN = 126996
	PGNConfigurationInformation  PGN = 126998
	PGNPGNList                   PGN = 126464 // "Transmit/Receive PGNs group function"
	PGNHeartbeat                 PGN = 126993 // heartbeat
	PGNGroupFunction             PGN = 126208 // request/command/acknowledge group function
	PGNGNSSPosition              PGN = 129029
	PGNFluidLevel                PGN = 127505
)

// Bus addresses with reserved meaning (SAE J1939-81).
const (
	// AddressNull (254) marks "no address" / "cannot claim" / an unassigned CA.
	AddressNull uint8 = 254
	// AddressGlobal (255) is the broadcast destination address.
	AddressGlobal uint8 = 255
)

// ISOTPDataMaxSize is the largest PDU an ISO Transport (BAM or RTS/CTS)
// session may carry: 255 packets of 7 payload bytes each.
const ISOTPDataMaxSize = 1785

// IsBroadcastPGN reports whether pgn is PDU2-format (PF >= 240), meaning it
// is always broadcast and never carries a destination address.
func (p PGN) IsBroadcastPGN() bool {
	pf := uint8(uint32(p) >> 8)
	return pf >= 240
}
