// Package devicetable implements the bus-management half of NMEA2000/J1939
// (spec §4.6): NAME arbitration for a local controller-application claiming
// its own bus address, and the device table that tracks every other node
// seen on the bus (added/changed/expired).
package devicetable

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	nmea "github.com/sealane/nmeagate"
	"github.com/sealane/nmeagate/internal/utils"
)

const writeChannelSize = 20

// claimContestWindow is how long a local CA waits after sending an Address
// Claim before it considers the address uncontested (spec §4.6 step 2).
const claimContestWindow = 250 * time.Millisecond

// defaultMaxSilent is how long a device record may go unseen before the
// table expires it (spec §3 "Device record").
const defaultMaxSilent = 60 * time.Second

// Node is a record of another device observed on the bus.
type Node struct {
	Source uint8

	NAME      uint64
	Name      NodeName
	ValidName bool

	ProductInfo      ProductInfo
	ValidProductInfo bool

	ConfigurationInfo      ConfigurationInfo
	ValidConfigurationInfo bool
}

type Nodes []Node

type ProductInfo struct { // 22 bytes
	NMEA2000Version uint16
	ProductCode     uint16

	ModelID             string
	SoftwareVersionCode string
	ModelVersion        string
	ModelSerialCode     string

	CertificationLevel uint8
	LoadEquivalency    uint8
}

func PGN126996ToProductInfo(raw nmea.RawMessage) (ProductInfo, error) {
	if raw.Header.PGN != uint32(nmea.PGNProductInfo) {
		return ProductInfo{}, errors.New("product info can only be decoded from a PGN 126996 message")
	}
	b := nmea.RawData(raw.Data)
	if len(b) != 134 {
		return ProductInfo{}, errors.New("PGN 126996 payload has unexpected length")
	}

	version, err := b.DecodeVariableUint(0, 16)
	if err != nil && !errors.Is(err, nmea.ErrValueNoData) {
		return ProductInfo{}, fmt.Errorf("product info NMEA2000 version: %w", err)
	}
	productCode, err := b.DecodeVariableUint(16, 16)
	if err != nil && !errors.Is(err, nmea.ErrValueNoData) {
		return ProductInfo{}, fmt.Errorf("product info product code: %w", err)
	}
	modelID, err := b.DecodeStringFix(32, 256)
	if err != nil {
		return ProductInfo{}, fmt.Errorf("product info model id: %w", err)
	}
	softwareVersionCode, err := b.DecodeStringFix(32+256, 256)
	if err != nil {
		return ProductInfo{}, fmt.Errorf("product info software version: %w", err)
	}
	modelVersion, err := b.DecodeStringFix(544, 256)
	if err != nil {
		return ProductInfo{}, fmt.Errorf("product info model version: %w", err)
	}
	modelSerialCode, err := b.DecodeStringFix(800, 256)
	if err != nil {
		return ProductInfo{}, fmt.Errorf("product info model serial: %w", err)
	}

	return ProductInfo{
		NMEA2000Version:     uint16(version),
		ProductCode:         uint16(productCode),
		ModelID:             modelID,
		SoftwareVersionCode: softwareVersionCode,
		ModelVersion:        modelVersion,
		ModelSerialCode:     modelSerialCode,
		CertificationLevel:  b[132],
		LoadEquivalency:     b[133],
	}, nil
}

// NodeName is the 64-bit J1939 NAME (PGN 60928, ISO Address Claim), the
// identity used for address arbitration (spec §3, §4.6).
type NodeName struct {
	UniqueNumber        uint32 // ISO Identity Number (21 bits)
	Manufacturer        uint16 // Device Manufacturer (11 bits)
	DeviceInstanceLower uint8  // ECU Instance (3 bits)
	DeviceInstanceUpper uint8  // Function Instance (5 bits)
	DeviceFunction      uint8  // (8 bits)
	DeviceClass         uint8  // (7 bits, + 1 reserved bit)
	SystemInstance      uint8  // ISO Device Class Instance (4 bits)
	IndustryGroup       uint8  // (3 bits)

	// ArbitraryAddressCapable: if set, a CA that loses a contest selects a
	// new address from the configured pool instead of going Unusable.
	ArbitraryAddressCapable uint8
}

func (n NodeName) Bytes() []byte {
	return []byte{
		uint8(n.UniqueNumber >> 16 & 0xff),
		uint8(n.UniqueNumber >> 8 & 0xff),
		uint8(n.UniqueNumber&0b11111) | uint8(n.Manufacturer>>8&0b111)<<3,
		uint8(n.Manufacturer >> 3 & 0xff),
		n.DeviceInstanceLower&0b111 | n.DeviceInstanceUpper&0b11111<<3,
		n.DeviceFunction,
		n.DeviceClass << 1,
		n.SystemInstance&0b1111 | (n.IndustryGroup&0b111)<<4 | n.ArbitraryAddressCapable<<7,
	}
}

func (n NodeName) Uint64() uint64 {
	return binary.BigEndian.Uint64(n.Bytes())
}

func PGN60928ToNodeName(raw nmea.RawMessage) (NodeName, error) {
	if raw.Header.PGN != uint32(nmea.PGNISOAddressClaim) {
		return NodeName{}, errors.New("NAME can only be decoded from a PGN 60928 message")
	}
	b := raw.Data
	if len(b) != 8 {
		return NodeName{}, errors.New("PGN 60928 payload has unexpected length")
	}
	uqNumber := uint32(b[2]&0b11111) | uint32(b[1])<<8 | uint32(b[0])<<16
	manufacturer := uint16(b[3])<<3 | uint16(b[2]>>5)
	return NodeName{
		UniqueNumber:            uqNumber,
		Manufacturer:            manufacturer,
		DeviceInstanceLower:     b[4] & 0b111,
		DeviceInstanceUpper:     b[4] >> 3,
		DeviceFunction:          b[5],
		DeviceClass:             b[6] >> 1,
		SystemInstance:          b[7] & 0b1111,
		IndustryGroup:           (b[7] >> 4) & 0b111,
		ArbitraryAddressCapable: b[7] >> 7,
	}, nil
}

type ConfigurationInfo struct {
	InstallationDesc1 string
	InstallationDesc2 string
	ManufacturerInfo  string
}

func PGN126998ToConfigurationInfo(raw nmea.RawMessage) (ConfigurationInfo, error) {
	if raw.Header.PGN != uint32(nmea.PGNConfigurationInformation) {
		return ConfigurationInfo{}, errors.New("configuration info can only be decoded from a PGN 126998 message")
	}
	data := nmea.RawData(raw.Data)
	instDesc1, offset, err := data.DecodeStringLAU(0)
	if err != nil {
		return ConfigurationInfo{}, fmt.Errorf("configuration info installation description 1: %w", err)
	}
	instDesc2, n, err := data.DecodeStringLAU(offset)
	if err != nil {
		return ConfigurationInfo{}, fmt.Errorf("configuration info installation description 2: %w", err)
	}
	offset += n
	manufInfo, _, err := data.DecodeStringLAU(offset)
	if err != nil {
		return ConfigurationInfo{}, fmt.Errorf("configuration info manufacturer info: %w", err)
	}
	return ConfigurationInfo{
		InstallationDesc1: instDesc1,
		InstallationDesc2: instDesc2,
		ManufacturerInfo:  manufInfo,
	}, nil
}

// CAState is the local controller-application lifecycle (spec §4.6):
// Inactive → Claiming → Claimed → Contesting → {Claimed, Unusable}.
type CAState uint8

const (
	CAInactive CAState = iota
	CAClaiming
	CAClaimed
	CAContesting
	CAUnusable
)

func (s CAState) String() string {
	switch s {
	case CAInactive:
		return "Inactive"
	case CAClaiming:
		return "Claiming"
	case CAClaimed:
		return "Claimed"
	case CAContesting:
		return "Contesting"
	case CAUnusable:
		return "Unusable"
	default:
		return "unknown"
	}
}

// LocalCA is this process's own controller-application: a NAME it claims an
// address for, so it can answer ISO Requests (59904) for its own claim,
// product info, and PGN list (spec §4.6).
type LocalCA struct {
	Name             NodeName
	PreferredAddress uint8

	// AddressPoolStart/End bound the reserved pool a NAME with
	// ArbitraryAddressCapable set falls back to when it loses a contest
	// (spec §4.6 step 3: "[start_address, start_address + 2*max_applications)").
	AddressPoolStart uint8
	AddressPoolEnd   uint8

	state   CAState
	address uint8 // nmea.AddressNull while Inactive/Unusable
}

// State reports the CA's current lifecycle state.
func (ca *LocalCA) State() CAState { return ca.state }

// Address reports the CA's currently claimed (or claiming) bus address;
// nmea.AddressNull while Inactive/Unusable.
func (ca *LocalCA) Address() uint8 { return ca.address }

// DeviceEventKind classifies a DeviceTable subscription event.
type DeviceEventKind uint8

const (
	DeviceAdded DeviceEventKind = iota
	DeviceChanged
	DeviceExpired
)

// DeviceEvent is delivered to subscribers of DeviceTable.Subscribe.
type DeviceEvent struct {
	Kind DeviceEventKind
	Node Node
}

// DeviceTable is the single-writer owner of everything known about the bus:
// every other node's NAME/product-info/configuration-info, and (optionally)
// this process's own local CA claim state. It both consumes Address Claim
// and ISO Request traffic and produces the replies/claims a CA must emit.
type DeviceTable struct {
	mutex sync.Mutex

	requestsChan    chan nmea.RawMessage
	toggleWriteChan chan bool
	events          chan DeviceEvent

	writeEnabled bool
	isRunning    bool

	nmeaDevice nmea.RawMessageWriter

	knownNodes   map[uint64]*Node
	address2node [255]*busSlot

	localCA   *LocalCA
	maxSilent time.Duration

	now func() time.Time
	ctx context.Context
}

// NewDeviceTable creates a device table that writes bus-management replies
// (Address Claim responses, info requests) through nmeaDevice.
func NewDeviceTable(nmeaDevice nmea.RawMessageWriter) *DeviceTable {
	return &DeviceTable{
		now: time.Now,

		toggleWriteChan: make(chan bool),
		requestsChan:    make(chan nmea.RawMessage, writeChannelSize),
		events:          make(chan DeviceEvent, writeChannelSize),
		nmeaDevice:      nmeaDevice,

		knownNodes:   make(map[uint64]*Node),
		address2node: [255]*busSlot{},

		maxSilent: defaultMaxSilent,
	}
}

// WithLocalCA equips the table with a local controller-application: it
// claims the address passed to ClaimAddress when that is called, and will
// answer ISO Requests addressed to the address it ultimately holds. Writes
// are enabled automatically, since a CA that cannot write cannot claim.
func (m *DeviceTable) WithLocalCA(ca *LocalCA) *DeviceTable {
	ca.state = CAInactive
	ca.address = nmea.AddressNull
	m.localCA = ca
	m.writeEnabled = true
	return m
}

// WithMaxSilent overrides the default 60s device-record expiry window.
func (m *DeviceTable) WithMaxSilent(d time.Duration) *DeviceTable {
	m.maxSilent = d
	return m
}

// Subscribe returns the channel device-table add/change/expire events are
// delivered on (spec §4.6 "Clients subscribe to device-table events").
func (m *DeviceTable) Subscribe() <-chan DeviceEvent {
	return m.events
}

func (m *DeviceTable) ToggleWrite() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.writeEnabled = !m.writeEnabled
	if m.isRunning {
		m.toggleWriteChan <- m.writeEnabled
	}
}

// LocalCA returns the configured local controller-application, or nil.
func (m *DeviceTable) LocalCA() *LocalCA {
	return m.localCA
}

// Run drains the write-back queue (Address Claim responses, info requests)
// and the expiry tick until ctx is cancelled.
func (m *DeviceTable) Run(ctx context.Context) error {
	buffer := utils.NewQueue[nmea.RawMessage](50)
	writeTimer := time.NewTicker(10 * time.Millisecond)
	expiryTimer := time.NewTicker(5 * time.Second)
	defer expiryTimer.Stop()

	m.mutex.Lock()
	if m.isRunning {
		m.mutex.Unlock()
		return errors.New("device table is already running")
	}
	m.isRunning = true
	m.ctx = ctx
	enabled := m.writeEnabled
	m.mutex.Unlock()
	defer func() {
		m.mutex.Lock()
		m.isRunning = false
		m.mutex.Unlock()
	}()

	if !enabled {
		writeTimer.Stop()
	}
	for {
		select {
		case writeEnabled := <-m.toggleWriteChan:
			enabled = writeEnabled
			if enabled {
				writeTimer.Reset(10 * time.Millisecond)
			} else {
				writeTimer.Stop()
			}

		case msg, ok := <-m.requestsChan:
			if !ok {
				return errors.New("device table request channel closed unexpectedly")
			}
			if enabled {
				buffer.Enqueue(msg)
			}

		case <-writeTimer.C:
			msg, ok := buffer.Dequeue()
			if !ok {
				continue
			}
			if err := m.nmeaDevice.WriteRawMessage(ctx, msg); err != nil {
				fmt.Printf("# device table writer (PGN: %v), err: %v\n", msg.Header.PGN, err)
			}

		case <-expiryTimer.C:
			m.expireStaleNodes()

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type busSlot struct {
	node    *Node
	claimed time.Time

	productInfoRequested time.Time
	configInfoRequested  time.Time
	pgnListRequested     time.Time

	lastPacket time.Time
}

func (m *DeviceTable) BroadcastIsoAddressClaimRequest() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.requestsChan <- createISORequest(nmea.PGNISOAddressClaim, nmea.AddressGlobal)
}

// ClaimAddress starts (or restarts) the local CA's claim of address,
// implementing spec §4.6 steps 1-2: emit an Address Claim then wait
// claimContestWindow for a contending claim before settling into Claimed.
func (m *DeviceTable) ClaimAddress(address uint8) error {
	m.mutex.Lock()
	ca := m.localCA
	if ca == nil {
		m.mutex.Unlock()
		return errors.New("device table has no local CA configured")
	}
	ca.state = CAClaiming
	ca.address = address
	claimMsg := localClaimMessage(ca, address)
	m.requestsChan <- claimMsg
	m.mutex.Unlock()

	ctx := m.ctxOrBackground()
	go func() {
		select {
		case <-time.After(claimContestWindow):
		case <-ctx.Done():
			return
		}
		m.mutex.Lock()
		defer m.mutex.Unlock()
		if ca.state == CAClaiming && ca.address == address {
			ca.state = CAClaimed
		}
	}()
	return nil
}

func (m *DeviceTable) ctxOrBackground() context.Context {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.ctx != nil {
		return m.ctx
	}
	return context.Background()
}

func localClaimMessage(ca *LocalCA, address uint8) nmea.RawMessage {
	return nmea.RawMessage{
		Header: nmea.CanBusHeader{
			PGN:         uint32(nmea.PGNISOAddressClaim),
			Priority:    6,
			Source:      address,
			Destination: nmea.AddressGlobal,
		},
		Data: ca.Name.Bytes(),
	}
}

func (m *DeviceTable) Process(raw nmea.RawMessage) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	source := raw.Header.Source
	var slot *busSlot
	if source >= nmea.AddressNull { // 254/255 have special meaning, not an actual node address
		slot = new(busSlot)
	} else {
		slot = m.address2node[source]
		if slot == nil {
			slot = new(busSlot)
			m.address2node[source] = slot
		}
		slot.lastPacket = raw.Time
	}

	isBusNodeChanged := false
	switch nmea.PGN(raw.Header.PGN) {
	case nmea.PGNISOAddressClaim:
		isChanged, err := m.processISOAddressClaim(slot, raw)
		if err != nil {
			return false, err
		}
		isBusNodeChanged = isChanged
	case nmea.PGNProductInfo:
		if err := m.processProductInfo(slot, raw); err != nil {
			return false, err
		}
	case nmea.PGNConfigurationInformation:
		if err := m.processConfigurationInfo(slot, raw); err != nil {
			return false, err
		}
	case nmea.PGNPGNList:
		if err := m.processPGNList(slot, raw); err != nil {
			return false, err
		}
	case nmea.PGNISORequest:
		m.processISORequest(raw)
	}
	return isBusNodeChanged, nil
}

func (m *DeviceTable) processISOAddressClaim(slot *busSlot, raw nmea.RawMessage) (bool, error) {
	name, err := PGN60928ToNodeName(raw)
	if err != nil {
		return false, err
	}
	source := raw.Header.Source
	NAME := binary.LittleEndian.Uint64(raw.Data)

	if m.localCA != nil && source == m.localCA.address && NAME != m.localCA.Name.Uint64() {
		m.resolveLocalContest(NAME)
	}

	currentNode, ok := m.knownNodes[NAME]
	wasNew := !ok
	if !ok {
		currentNode = &Node{
			Source:    source,
			NAME:      NAME,
			Name:      name,
			ValidName: true,
		}
		m.knownNodes[NAME] = currentNode
	}

	isBusNodeChanged := false
	eventKind := DeviceChanged
	if slot.node == nil {
		if wasNew {
			eventKind = DeviceAdded
		}
		currentNode.Source = source
		slot.node = currentNode
		slot.claimed = m.now()
		isBusNodeChanged = true
	} else if slot.node.ValidName && currentNode.NAME < slot.node.NAME {
		slot.node.Source = nmea.AddressNull // older device displaced
		currentNode.Source = source
		slot.node = currentNode
		slot.claimed = m.now()
		isBusNodeChanged = true
	}

	if isBusNodeChanged {
		m.emitEvent(eventKind, *currentNode)
	}

	if m.writeEnabled && slot.productInfoRequested.IsZero() {
		slot.productInfoRequested = m.now()
		m.requestsChan <- createISORequest(nmea.PGNProductInfo, source)
	}
	return isBusNodeChanged, nil
}

// resolveLocalContest implements spec §4.6 step 3: another NAME has just
// claimed the address our local CA holds (or is claiming). Numerically
// smaller NAME wins; if we lose and are arbitrary-address-capable we move
// to the next free address in our pool and re-claim, otherwise we give up
// the address and become Unusable.
func (m *DeviceTable) resolveLocalContest(remoteNAME uint64) {
	ca := m.localCA
	if ca.state != CAClaiming && ca.state != CAClaimed {
		return
	}
	ourNAME := binary.LittleEndian.Uint64(ca.Name.Bytes())
	if ourNAME == remoteNAME {
		return // our own claim
	}
	if ourNAME < remoteNAME {
		return // we win, remote is expected to yield its address
	}

	ca.state = CAContesting
	if ca.Name.ArbitraryAddressCapable == 0 {
		m.enterUnusableLocked(ca)
		return
	}
	next, ok := m.nextFreeAddressLocked(ca.AddressPoolStart, ca.AddressPoolEnd)
	if !ok {
		m.enterUnusableLocked(ca)
		return
	}
	ca.address = next
	ca.state = CAClaiming
	m.requestsChan <- localClaimMessage(ca, next)

	ctx := m.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		select {
		case <-time.After(claimContestWindow):
		case <-ctx.Done():
			return
		}
		m.mutex.Lock()
		defer m.mutex.Unlock()
		if ca.state == CAClaiming && ca.address == next {
			ca.state = CAClaimed
		}
	}()
}

func (m *DeviceTable) enterUnusableLocked(ca *LocalCA) {
	ca.state = CAUnusable
	ca.address = nmea.AddressNull
	// "Cannot Claim Source Address": re-announce the claim with source=254.
	m.requestsChan <- localClaimMessage(ca, nmea.AddressNull)
}

// nextFreeAddressLocked scans [start, end) for an address with no known
// bus slot occupant, per the reserved pool in spec §4.6 step 3.
func (m *DeviceTable) nextFreeAddressLocked(start, end uint8) (uint8, bool) {
	for addr := start; addr < end && addr < nmea.AddressNull; addr++ {
		slot := m.address2node[addr]
		if slot == nil || slot.node == nil || slot.node.Source != addr {
			return addr, true
		}
	}
	return 0, false
}

// processISORequest answers ISO Requests directed at our local CA's own
// claimed address (spec §4.6: "On any incoming ISO Request for PGN 60928
// the CA replies with its Address Claim; on request for 126996 with its
// product info; on request for 126464 with its PGN list").
func (m *DeviceTable) processISORequest(raw nmea.RawMessage) {
	ca := m.localCA
	if ca == nil || ca.state != CAClaimed {
		return
	}
	if raw.Header.Destination != ca.address && raw.Header.Destination != nmea.AddressGlobal {
		return
	}
	if len(raw.Data) < 3 {
		return
	}
	requested := nmea.PGN(uint32(raw.Data[0]) | uint32(raw.Data[1])<<8 | uint32(raw.Data[2])<<16)
	switch requested {
	case nmea.PGNISOAddressClaim:
		m.requestsChan <- localClaimMessage(ca, ca.address)
	case nmea.PGNProductInfo, nmea.PGNPGNList:
		// Product info / PGN list content is application-specific and owned
		// by whatever component registered this CA; this table only
		// guarantees the claim reply, which is the one response every CA
		// must give regardless of what it produces.
	}
}

func (m *DeviceTable) processProductInfo(slot *busSlot, raw nmea.RawMessage) error {
	if slot.node == nil || !slot.node.ValidName {
		return nil
	}

	info, err := PGN126996ToProductInfo(raw)
	if err != nil {
		return err
	}
	slot.node.ProductInfo = info
	slot.node.ValidProductInfo = true

	if m.writeEnabled && slot.configInfoRequested.IsZero() {
		slot.configInfoRequested = m.now()
		m.requestsChan <- createISORequest(nmea.PGNConfigurationInformation, raw.Header.Source)
	}
	return nil
}

func (m *DeviceTable) processConfigurationInfo(slot *busSlot, raw nmea.RawMessage) error {
	if slot.node == nil || !slot.node.ValidName {
		return nil
	}

	ci, err := PGN126998ToConfigurationInfo(raw)
	if err != nil {
		return err
	}
	slot.node.ConfigurationInfo = ci
	slot.node.ValidConfigurationInfo = true

	if m.writeEnabled && slot.pgnListRequested.IsZero() {
		slot.pgnListRequested = m.now()
		m.requestsChan <- createISORequest(nmea.PGNPGNList, raw.Header.Source)
	}
	return nil
}

func (m *DeviceTable) processPGNList(slot *busSlot, raw nmea.RawMessage) error {
	if slot.node == nil || slot.node.ValidName {
		return nil
	}
	return nil
}

// expireStaleNodes implements spec §4.6 "expires entries whose last-seen
// exceeds max_silent" and emits DeviceExpired for each one removed.
func (m *DeviceTable) expireStaleNodes() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	threshold := m.now().Add(-m.maxSilent)
	for addr := 0; addr < len(m.address2node); addr++ {
		slot := m.address2node[addr]
		if slot == nil || slot.node == nil {
			continue
		}
		if slot.lastPacket.IsZero() || slot.lastPacket.After(threshold) {
			continue
		}
		expired := *slot.node
		slot.node.Source = nmea.AddressNull
		m.address2node[addr] = nil
		m.emitEvent(DeviceExpired, expired)
	}
}

func (m *DeviceTable) emitEvent(kind DeviceEventKind, node Node) {
	select {
	case m.events <- DeviceEvent{Kind: kind, Node: node}:
	default: // a slow/absent subscriber must never stall bus processing
	}
}

// Nodes returns all known (current and previous) nodes from the NMEA bus.
func (m *DeviceTable) Nodes() Nodes {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	result := make(Nodes, 0, len(m.knownNodes))
	for _, n := range m.knownNodes {
		result = append(result, *n)
	}
	return result
}

// NodesInUseBySource returns nodes currently holding a valid source address.
func (m *DeviceTable) NodesInUseBySource() map[uint8]Node {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	result := make(map[uint8]Node)
	for _, n := range m.knownNodes {
		node := *n
		if node.Source >= nmea.AddressNull || !node.ValidName {
			continue
		}
		result[node.Source] = node
	}
	return result
}

func createISORequest(forPGN nmea.PGN, destination uint8) nmea.RawMessage {
	return nmea.RawMessage{
		Header: nmea.CanBusHeader{
			PGN:      uint32(nmea.PGNISORequest),
			Priority: 6,
			// A node without a claimed address must use 254 as source when
			// requesting PGN 60928 (SAE J1939-81).
			Source:      nmea.AddressNull,
			Destination: destination,
		},
		Data: []byte{
			uint8(forPGN & 0xff),
			uint8((forPGN >> 8) & 0xff),
			uint8((forPGN >> 16) & 0xff),
		},
	}
}
