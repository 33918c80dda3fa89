package devicetable

import (
	"context"
	"testing"
	"time"

	nmea "github.com/sealane/nmeagate"
	"github.com/sealane/nmeagate/internal/utils"
	test_test "github.com/sealane/nmeagate/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGN126996ToProductInfo(t *testing.T) {
	var testCases = []struct {
		name        string
		given       nmea.RawMessage
		expect      ProductInfo
		expectError string
	}{
		{
			name: "ok, all fields set",
			given: nmea.RawMessage{
				Time: time.Time{},
				Header: nmea.CanBusHeader{
					PGN:         126996,
					Priority:    6,
					Source:      51,
					Destination: 255,
				},
				Data: []byte{
					0x34, 0x08, 0x15, 0x0b, 0x41, 0x50, 0x37, 0x30, 0x20, 0x4d, // 10
					0x6b, 0x32, 0x20, 0x41, 0x75, 0x74, 0x6f, 0x70, 0x69, 0x6c, // 20
					0x6f, 0x74, 0x20, 0x43, 0x6f, 0x6e, 0x74, 0x72, 0x6f, 0x6c, // 30
					0x6c, 0x65, 0x72, 0x20, 0x20, 0x20, 0x30, 0x31, 0x30, 0x30, // 40
					0x30, 0x5f, 0x45, 0x20, 0x32, 0x2e, 0x30, 0x2e, 0x30, 0x2e, // 50
					0x36, 0x34, 0x2e, 0x34, 0x2e, 0x33, 0x34, 0x20, 0x20, 0x20, // 60
					0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, // 70
					0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, // 80
					0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, // 90
					0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, // 100
					0x31, 0x32, 0x38, 0x37, 0x38, 0x37, 0x30, 0x39, 0x33, 0x20, // 110
					0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, // 120
					0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, // 130
					0x20, 0x20, 0x02, 0x01, // 134
				},
			},
			expect: ProductInfo{
				NMEA2000Version:     2100,
				ProductCode:         2837,
				ModelID:             "AP70 Mk2 Autopilot Controller   ",
				SoftwareVersionCode: "01000_E 2.0.0.64.4.34           ",
				ModelVersion:        "                                ",
				ModelSerialCode:     "128787093                       ",
				CertificationLevel:  0x2,
				LoadEquivalency:     0x1,
			},
		},
		{
			name: "ok, some fields set",
			given: nmea.RawMessage{
				Time: time.Time{},
				Header: nmea.CanBusHeader{
					PGN:         126996,
					Priority:    6,
					Source:      47,
					Destination: 255,
				},
				Data: []byte{
					0xff, 0xff, 0xff, 0xff, 0x51, 0x53, 0x38, 0x30, 0x20, 0x20, // 10
					0x20, 0x20, 0x5f, 0x50, 0x69, 0x6c, 0x6f, 0x74, 0x20, 0x63, // 20
					0x6f, 0x6e, 0x74, 0x72, 0x6f, 0x6c, 0x6c, 0x65, 0x72, 0x20, // 30
					0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x31, 0x31, 0x30, 0x30, // 40
					0x20, 0x20, 0x20, 0x20, 0x31, 0x33, 0x30, 0x32, 0x30, 0x30, // 50
					0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, // 60
					0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, // 70
					0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, // 80
					0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, // 90
					0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, // 100
					0x30, 0x30, 0x37, 0x37, 0x38, 0x37, 0x23, 0x20, 0x20, 0x20, // 110
					0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, // 120
					0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, // 130
					0x20, 0x20, 0x01, 0x03, //  134
				},
			},
			expect: ProductInfo{
				NMEA2000Version:     0,
				ProductCode:         0,
				ModelID:             "QS80    _Pilot controller       ", // NB: Canboat trims tailing spaces
				SoftwareVersionCode: "1100    130200                  ",
				ModelVersion:        "                                ",
				ModelSerialCode:     "007787#                         ",
				CertificationLevel:  1,
				LoadEquivalency:     3,
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := PGN126996ToProductInfo(tc.given)
			assert.Equal(t, tc.expect, result)
			if tc.expectError != "" {
				assert.EqualError(t, err, tc.expectError)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPGN60928ToDeviceName(t *testing.T) {
	now := test_test.UTCTime(1665488842) // Tue Oct 11 2022 11:47:22 GMT+0000

	var testCases = []struct {
		name        string
		given       nmea.RawMessage
		expect      NodeName
		expectError string
	}{
		{
			name: "ok",
			given: nmea.RawMessage{
				Time: now,
				Header: nmea.CanBusHeader{
					PGN:         60928,
					Priority:    6,
					Source:      23,
					Destination: 255,
				},
				Data: []byte{0x1e, 0x7d, 0x3e, 0xe8, 0x00, 0x87, 0x32, 0xc0},
			},
			expect: NodeName{
				UniqueNumber:            1998110, // 0x1E7D1E
				Manufacturer:            1857,    // Simrad (0x741)
				DeviceInstanceLower:     0,
				DeviceInstanceUpper:     0,
				DeviceFunction:          135, // NMEA 0183 Gateway
				DeviceClass:             25,  // Internetwork device
				SystemInstance:          0,
				IndustryGroup:           4, // Marine
				ArbitraryAddressCapable: 1,
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := PGN60928ToNodeName(tc.given)
			assert.Equal(t, tc.expect, result)
			if tc.expectError != "" {
				assert.EqualError(t, err, tc.expectError)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNodeName_Uint64(t *testing.T) {
	var testCases = []struct {
		name   string
		given  NodeName
		expect uint64
	}{
		{
			name: "ok",
			given: NodeName{
				UniqueNumber:            1998110, // 0x1E7D1E
				Manufacturer:            1857,    // Simrad (0x741)
				DeviceInstanceLower:     0,
				DeviceInstanceUpper:     0,
				DeviceFunction:          135, // NMEA 0183 Gateway
				DeviceClass:             25,  // Internetwork device
				SystemInstance:          0,
				IndustryGroup:           4, // Marine
				ArbitraryAddressCapable: 1,
			},
			expect: 0x1e7d3ee8008732c0,
			// 0001 1110 // 0-7   // 0x1e
			// 0111 1101 // 8-15  // 0x7d
			// 0011 1110 // 16-23 // 0x3e
			// 1110 1000 // 24-31 // 0xe8
			// 0000 0000 // 32-39 // 0x00
			// 1000 0111 // 40-47 // 0x87
			// 0011 0010 // 48-55 // 0x32
			// 1100 0000 // 56-63 // 0xc0
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := tc.given.Uint64()
			assert.Equal(t, tc.expect, result)
		})
	}
}

func TestCreateISORequest(t *testing.T) {
	var testCases = []struct {
		name            string
		whenPGN         nmea.PGN
		whenDestination uint8
		expect          nmea.RawMessage
	}{
		{
			name:            "ok, ISO address claim broadcast",
			whenPGN:         nmea.PGNISOAddressClaim,
			whenDestination: nmea.AddressGlobal,
			expect: nmea.RawMessage{
				Header: nmea.CanBusHeader{
					PGN:         uint32(nmea.PGNISORequest),
					Priority:    6,
					Source:      nmea.AddressNull,
					Destination: nmea.AddressGlobal,
				},
				Data: []byte{0x0, 0xEE, 0x0},
			},
		},
		{
			name:            "ok, ISO address claim addressed",
			whenPGN:         nmea.PGNISOAddressClaim,
			whenDestination: 32,
			expect: nmea.RawMessage{
				Header: nmea.CanBusHeader{
					PGN:         uint32(nmea.PGNISORequest),
					Priority:    6,
					Source:      nmea.AddressNull,
					Destination: 32,
				},
				Data: []byte{0x0, 0xEE, 0x0},
			},
		},
		{
			name:            "ok, product info to addressed",
			whenPGN:         nmea.PGNProductInfo,
			whenDestination: 32,
			expect: nmea.RawMessage{
				Header: nmea.CanBusHeader{
					PGN:         uint32(nmea.PGNISORequest),
					Priority:    6,
					Source:      nmea.AddressNull,
					Destination: 32,
				},
				Data: []byte{0x14, 0xf0, 0x1},
			},
		},
		{
			name:            "ok, configuration info to broadcast",
			whenPGN:         nmea.PGNConfigurationInformation,
			whenDestination: nmea.AddressGlobal,
			expect: nmea.RawMessage{
				Header: nmea.CanBusHeader{
					PGN:         uint32(nmea.PGNISORequest),
					Priority:    6,
					Source:      nmea.AddressNull,
					Destination: nmea.AddressGlobal,
				},
				Data: []byte{0x16, 0xf0, 0x1},
			},
		},
		{
			name:            "ok, PGN list addressed",
			whenPGN:         nmea.PGNPGNList,
			whenDestination: 45,
			expect: nmea.RawMessage{
				Header: nmea.CanBusHeader{
					PGN:         uint32(nmea.PGNISORequest),
					Priority:    6,
					Source:      nmea.AddressNull,
					Destination: 45,
				},
				Data: []byte{0x0, 0xEE, 0x1},
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := createISORequest(tc.whenPGN, tc.whenDestination)
			assert.Equal(t, tc.expect, result)
		})
	}
}

// fakeWriter records every RawMessage written through it.
type fakeWriter struct {
	written []nmea.RawMessage
}

func (w *fakeWriter) WriteRawMessage(_ context.Context, msg nmea.RawMessage) error {
	w.written = append(w.written, msg)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestDeviceTable_ClaimAddress_uncontested(t *testing.T) {
	writer := &fakeWriter{}
	dt := NewDeviceTable(writer)
	ca := &LocalCA{
		Name:             NodeName{UniqueNumber: 1, Manufacturer: 2},
		PreferredAddress: 10,
		AddressPoolStart: 128,
		AddressPoolEnd:   132,
	}
	dt.WithLocalCA(ca)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dt.Run(ctx)
	// Run needs a moment to reach its select loop before ClaimAddress enqueues.
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, dt.ClaimAddress(10))
	assert.Equal(t, CAClaiming, ca.State())

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, CAClaimed, ca.State())
	assert.Equal(t, uint8(10), ca.Address())
}

func TestDeviceTable_resolveLocalContest_loseArbitraryCapable(t *testing.T) {
	writer := &fakeWriter{}
	dt := NewDeviceTable(writer)
	ca := &LocalCA{
		Name:             NodeName{UniqueNumber: 100, ArbitraryAddressCapable: 1},
		PreferredAddress: 10,
		AddressPoolStart: 128,
		AddressPoolEnd:   132,
	}
	dt.WithLocalCA(ca)
	dt.ctx = context.Background()
	ca.state = CAClaiming
	ca.address = 10

	// a smaller (winning) NAME claims the same address we are claiming
	dt.resolveLocalContest(1)

	assert.Equal(t, CAClaiming, ca.State())
	assert.Equal(t, uint8(128), ca.Address())
}

func TestDeviceTable_resolveLocalContest_loseGoesUnusable(t *testing.T) {
	writer := &fakeWriter{}
	dt := NewDeviceTable(writer)
	ca := &LocalCA{
		Name:             NodeName{UniqueNumber: 100},
		PreferredAddress: 10,
		AddressPoolStart: 128,
		AddressPoolEnd:   132,
	}
	dt.WithLocalCA(ca)
	dt.ctx = context.Background()
	ca.state = CAClaiming
	ca.address = 10

	dt.resolveLocalContest(1)

	assert.Equal(t, CAUnusable, ca.State())
	assert.Equal(t, nmea.AddressNull, ca.Address())
}

func TestDeviceTable_expireStaleNodes(t *testing.T) {
	writer := &fakeWriter{}
	dt := NewDeviceTable(writer).WithMaxSilent(time.Minute)

	node := &Node{Source: 5, NAME: 42, ValidName: true}
	dt.knownNodes[42] = node
	dt.address2node[5] = &busSlot{node: node, lastPacket: time.Now().Add(-2 * time.Minute)}

	dt.expireStaleNodes()

	assert.Nil(t, dt.address2node[5])
	assert.Equal(t, nmea.AddressNull, node.Source)

	select {
	case ev := <-dt.Subscribe():
		assert.Equal(t, DeviceExpired, ev.Kind)
		assert.Equal(t, uint64(42), ev.Node.NAME)
	default:
		t.Fatal("expected a DeviceExpired event")
	}
}

func TestQueue(t *testing.T) {
	q := utils.NewQueue[int](5)

	q.Enqueue(1)

	item, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, 1, item)

	q.Enqueue(2)
	q.Enqueue(3)

	item, ok = q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, 2, item)

	item, ok = q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, 3, item)
}
