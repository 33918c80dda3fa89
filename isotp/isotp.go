// Package isotp implements ISO Transport (spec §4.5): PGN 60416 (TP.CM,
// Connection Management) and PGN 60160 (TP.DT, Data Transfer), the J1939/21
// multi-frame protocol NMEA2000 uses to carry PDUs above Fast-Packet's
// 223-byte ceiling, up to nmea.ISOTPDataMaxSize (1785) bytes. Two session
// kinds are supported: BAM (broadcast, no flow control) and RTS/CTS
// (peer-to-peer, windowed).
package isotp

import (
	"context"
	"errors"
	"fmt"
	"time"

	nmea "github.com/sealane/nmeagate"
)

// TP.CM (60416) control bytes, SAE J1939-21.
const (
	cmBAM         = 0x20
	cmRTS         = 0x10
	cmCTS         = 0x11
	cmEndOfMsgACK = 0x13
	cmAbort       = 0xFF
)

// AbortReason is the single byte carried by a TP.CM Abort control frame.
type AbortReason uint8

const (
	AbortBusy            AbortReason = 1
	AbortResources       AbortReason = 2
	AbortTimeout         AbortReason = 3
	AbortRetransmitLimit AbortReason = 4
)

func (r AbortReason) String() string {
	switch r {
	case AbortBusy:
		return "busy"
	case AbortResources:
		return "resources"
	case AbortTimeout:
		return "timeout"
	case AbortRetransmitLimit:
		return "retransmit-limit"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// ErrSessionAborted names the aborted-session condition. Transport itself
// does not return it: aborts are counted in Stats and announced with TP.CM
// Abort frames; sessions never emit a completed RawMessage after abort.
var ErrSessionAborted = errors.New("isotp: session aborted")

// Config carries the J1939/21 timers an implementation must honor (spec
// §4.5), validated the way rob-gra-go-iecp5/cs104.Config validates its own
// named protocol timers.
type Config struct {
	// T1 bounds how long a receiver waits between TP.DT packets.
	T1 time.Duration
	// T2 bounds how long a sender waits for CTS after RTS.
	T2 time.Duration
	// T3 bounds how long a sender waits for EndOfMsgACK after the last DT.
	T3 time.Duration
	// T4 bounds how long a receiver waits between CTS and the first DT of
	// the granted window.
	T4 time.Duration
	// BAMPacing is the minimum spacing a BAM sender must honor between
	// TP.DT frames.
	BAMPacing time.Duration
	// MaxPacing is the maximum spacing allowed between packets of an
	// RTS/CTS burst.
	MaxPacing time.Duration
}

// DefaultConfig returns the timers named in spec §4.5.
func DefaultConfig() Config {
	return Config{
		T1:        750 * time.Millisecond,
		T2:        1250 * time.Millisecond,
		T3:        1250 * time.Millisecond,
		T4:        1050 * time.Millisecond,
		BAMPacing: 50 * time.Millisecond,
		MaxPacing: 200 * time.Millisecond,
	}
}

// Valid reports whether every timer is positive.
func (c Config) Valid() error {
	for name, d := range map[string]time.Duration{
		"T1": c.T1, "T2": c.T2, "T3": c.T3, "T4": c.T4,
		"BAMPacing": c.BAMPacing, "MaxPacing": c.MaxPacing,
	} {
		if d <= 0 {
			return fmt.Errorf("isotp: timer %s must be positive", name)
		}
	}
	return nil
}

// SessionKey identifies one ISO Transport session: only one may exist per
// key at a time (spec §4.5: "a new RTS while active aborts the prior one").
type SessionKey struct {
	Source      uint8
	Destination uint8
	PGN         uint32
}

type mode uint8

const (
	modeBAM mode = iota
	modeRTSCTS
)

type role uint8

const (
	roleSender role = iota
	roleReceiver
)

type session struct {
	key  SessionKey
	mode mode
	role role

	totalBytes  uint16
	packetCount uint8
	windowSize  uint8
	nextPacket  uint8 // 1-based, next TP.DT sequence number expected/to send

	data     []byte
	deadline time.Time
	started  time.Time
}

// Transport holds every in-progress ISO Transport session (both directions)
// and the control frames (CTS/EndOfMsgACK/Abort) they generate.
type Transport struct {
	cfg      Config
	sessions map[SessionKey]*session
	out      []nmea.RawFrame
	now      func() time.Time

	aborts  uint64
	timeout uint64
}

// NewTransport creates a Transport using cfg (DefaultConfig if zero-valued).
func NewTransport(cfg Config) *Transport {
	if cfg.T1 == 0 {
		cfg = DefaultConfig()
	}
	return &Transport{
		cfg:      cfg,
		sessions: make(map[SessionKey]*session),
		now:      time.Now,
	}
}

// Outbound drains and returns control/data frames the transport queued for
// the caller to write to the bus (CTS, EndOfMsgACK, Abort, and - for a
// sender session - the RTS/TP.DT frames themselves).
func (t *Transport) Outbound() []nmea.RawFrame {
	out := t.out
	t.out = nil
	return out
}

// Stats returns counts of sessions ended by Abort and by timer expiry, for
// the per-coupler statistics spec §7 requires.
func (t *Transport) Stats() (aborts, timeouts uint64) {
	return t.aborts, t.timeout
}

// HandleFrame processes one incoming CAN frame carrying TP.CM (60416) or
// TP.DT (60160). It returns a completed RawMessage once a session finishes
// reassembly, or nil while more frames are needed.
func (t *Transport) HandleFrame(frame nmea.RawFrame) (*nmea.RawMessage, error) {
	switch nmea.PGN(frame.Header.PGN) {
	case nmea.PGNISOTPConnManagement:
		return nil, t.handleCM(frame)
	case nmea.PGNISOTPDataTransfer:
		return t.handleDT(frame)
	default:
		return nil, nil
	}
}

func (t *Transport) handleCM(frame nmea.RawFrame) error {
	if frame.Length < 1 {
		return errors.New("isotp: TP.CM frame too short")
	}
	control := frame.Data[0]
	switch control {
	case cmBAM:
		return t.startReceive(frame, modeBAM)
	case cmRTS:
		return t.startReceive(frame, modeRTSCTS)
	case cmCTS:
		return t.handleCTS(frame)
	case cmEndOfMsgACK:
		return t.handleEndOfMsgACK(frame)
	case cmAbort:
		t.dropSession(sessionKeyForCM(frame), true)
		return nil
	default:
		return fmt.Errorf("isotp: unknown TP.CM control byte 0x%02x", control)
	}
}

func sessionKeyForCM(frame nmea.RawFrame) SessionKey {
	pgn := uint32(frame.Data[5]) | uint32(frame.Data[6])<<8 | uint32(frame.Data[7])<<16
	return SessionKey{Source: frame.Header.Source, Destination: frame.Header.Destination, PGN: pgn}
}

// startReceive begins reassembly for a BAM or RTS session announced by a
// TP.CM control frame. A new RTS for a key already in use aborts the prior
// session with reason "busy" (spec §4.5).
func (t *Transport) startReceive(frame nmea.RawFrame, m mode) error {
	if frame.Length < 8 {
		return errors.New("isotp: TP.CM connection-management frame too short")
	}
	totalBytes := uint16(frame.Data[1]) | uint16(frame.Data[2])<<8
	packetCount := frame.Data[3]
	pgn := uint32(frame.Data[5]) | uint32(frame.Data[6])<<8 | uint32(frame.Data[7])<<16

	key := SessionKey{Source: frame.Header.Source, Destination: frame.Header.Destination, PGN: pgn}
	if _, exists := t.sessions[key]; exists {
		t.abort(key, AbortBusy)
	}
	if int(totalBytes) > nmea.ISOTPDataMaxSize {
		return fmt.Errorf("isotp: declared size %d exceeds maximum %d", totalBytes, nmea.ISOTPDataMaxSize)
	}

	sess := &session{
		key:         key,
		mode:        m,
		role:        roleReceiver,
		totalBytes:  totalBytes,
		packetCount: packetCount,
		nextPacket:  1,
		data:        make([]byte, 0, totalBytes),
		started:     t.now(),
	}
	if m == modeBAM {
		sess.deadline = t.now().Add(t.cfg.T1)
	} else {
		sess.deadline = t.now().Add(t.cfg.T4)
		windowSize := packetCount // grant the whole message in one window; simplest valid CTS policy
		sess.windowSize = windowSize
		t.queueCTS(key, windowSize, sess.nextPacket)
	}
	t.sessions[key] = sess
	return nil
}

func (t *Transport) handleDT(frame nmea.RawFrame) (*nmea.RawMessage, error) {
	if frame.Length < 1 {
		return nil, errors.New("isotp: TP.DT frame too short")
	}
	seq := frame.Data[0]

	var found *session
	var key SessionKey
	for k, s := range t.sessions {
		if s.role == roleReceiver && k.Source == frame.Header.Source {
			found = s
			key = k
			break
		}
	}
	if found == nil {
		return nil, nil // DT with no matching CM: nothing to reassemble, silently drop
	}
	if seq != found.nextPacket {
		t.abort(key, AbortTimeout)
		return nil, fmt.Errorf("isotp: out-of-order TP.DT seq %d, expected %d", seq, found.nextPacket)
	}

	payload := frame.Data[1:frame.Length]
	remaining := int(found.totalBytes) - len(found.data)
	if remaining < len(payload) {
		payload = payload[:remaining]
	}
	found.data = append(found.data, payload...)
	found.nextPacket++
	found.deadline = t.now().Add(t.cfg.T1)

	if len(found.data) >= int(found.totalBytes) {
		msg := &nmea.RawMessage{
			Time: t.now(),
			Header: nmea.CanBusHeader{
				PGN:         found.key.PGN,
				Source:      found.key.Source,
				Destination: found.key.Destination,
			},
			Data: found.data[:found.totalBytes],
		}
		if found.mode == modeRTSCTS {
			t.queueEndOfMsgACK(key)
		}
		delete(t.sessions, key)
		return msg, nil
	}

	if found.mode == modeRTSCTS && found.nextPacket > found.windowSize {
		// window exhausted with more data remaining: grant a new window
		// covering the rest of the message (spec §4.5: receiver "either
		// CTS again or EndOfMsgACK on completion").
		remainingPackets := found.packetCount - found.windowSize
		found.windowSize += remainingPackets
		t.queueCTS(key, remainingPackets, found.nextPacket)
	}
	return nil, nil
}

func (t *Transport) handleCTS(frame nmea.RawFrame) error {
	if frame.Length < 8 {
		return errors.New("isotp: TP.CM CTS frame too short")
	}
	pgn := uint32(frame.Data[5]) | uint32(frame.Data[6])<<8 | uint32(frame.Data[7])<<16
	key := SessionKey{Source: frame.Header.Destination, Destination: frame.Header.Source, PGN: pgn}
	sess, ok := t.sessions[key]
	if !ok || sess.role != roleSender {
		return nil
	}
	windowSize := frame.Data[1]
	nextPacket := frame.Data[2]
	sess.nextPacket = nextPacket
	sess.deadline = t.now().Add(t.cfg.T3)
	t.emitDataTransferBurst(sess, windowSize)
	return nil
}

func (t *Transport) handleEndOfMsgACK(frame nmea.RawFrame) error {
	key := sessionKeyForCM(frame)
	// sender session key uses destination as source from its own point of
	// view (the CM is addressed back to the sender)
	senderKey := SessionKey{Source: frame.Header.Destination, Destination: frame.Header.Source, PGN: key.PGN}
	delete(t.sessions, senderKey)
	return nil
}

func (t *Transport) queueCTS(key SessionKey, windowSize, nextPacket uint8) {
	data := [8]byte{cmCTS, windowSize, nextPacket, 0xFF, 0xFF,
		uint8(key.PGN), uint8(key.PGN >> 8), uint8(key.PGN >> 16)}
	t.out = append(t.out, nmea.RawFrame{
		Time: t.now(),
		Header: nmea.CanBusHeader{
			PGN:         uint32(nmea.PGNISOTPConnManagement),
			Priority:    7,
			Source:      key.Destination,
			Destination: key.Source,
		},
		Length: 8,
		Data:   data,
	})
}

func (t *Transport) queueEndOfMsgACK(key SessionKey) {
	data := [8]byte{cmEndOfMsgACK, uint8(0), uint8(0), 0xFF, 0xFF,
		uint8(key.PGN), uint8(key.PGN >> 8), uint8(key.PGN >> 16)}
	t.out = append(t.out, nmea.RawFrame{
		Time: t.now(),
		Header: nmea.CanBusHeader{
			PGN:         uint32(nmea.PGNISOTPConnManagement),
			Priority:    7,
			Source:      key.Destination,
			Destination: key.Source,
		},
		Length: 8,
		Data:   data,
	})
}

// abort ends a session immediately, emitting a TP.CM Abort control frame.
func (t *Transport) abort(key SessionKey, reason AbortReason) {
	t.aborts++
	data := [8]byte{cmAbort, uint8(reason), 0xFF, 0xFF, 0xFF,
		uint8(key.PGN), uint8(key.PGN >> 8), uint8(key.PGN >> 16)}
	source := key.Destination
	t.out = append(t.out, nmea.RawFrame{
		Time: t.now(),
		Header: nmea.CanBusHeader{
			PGN:         uint32(nmea.PGNISOTPConnManagement),
			Priority:    7,
			Source:      source,
			Destination: key.Source,
		},
		Length: 8,
		Data:   data,
	})
	delete(t.sessions, key)
}

func (t *Transport) dropSession(key SessionKey, counted bool) {
	if counted {
		t.aborts++
	}
	delete(t.sessions, key)
}

// Tick expires sessions past their deadline (spec §5: "a dedicated tick
// (50 ms granularity) fires expiry callbacks rather than relying on
// per-frame scanning"). Call it roughly every 50ms.
func (t *Transport) Tick(now time.Time) {
	t.now = func() time.Time { return now }
	for key, sess := range t.sessions {
		if now.Before(sess.deadline) {
			continue
		}
		t.timeout++
		if sess.role == roleReceiver {
			t.abort(key, AbortTimeout)
		} else {
			delete(t.sessions, key)
		}
	}
}

// StartRTS begins a sender-side RTS/CTS session for msg, returning the RTS
// control frame the caller must write to the bus; subsequent TP.DT bursts
// are produced by handleCTS as CTS frames arrive and drained via Outbound.
// Only one session per (source, destination, PGN) may be active; a new
// request aborts any prior one (reason "busy").
func (t *Transport) StartRTS(msg nmea.RawMessage) (nmea.RawFrame, error) {
	if len(msg.Data) > nmea.ISOTPDataMaxSize {
		return nmea.RawFrame{}, fmt.Errorf("isotp: payload of %d bytes exceeds maximum %d", len(msg.Data), nmea.ISOTPDataMaxSize)
	}
	key := SessionKey{Source: msg.Header.Source, Destination: msg.Header.Destination, PGN: msg.Header.PGN}
	if _, exists := t.sessions[key]; exists {
		t.abort(key, AbortBusy)
	}
	packetCount := uint8((len(msg.Data) + 6) / 7)
	t.sessions[key] = &session{
		key:         key,
		mode:        modeRTSCTS,
		role:        roleSender,
		totalBytes:  uint16(len(msg.Data)),
		packetCount: packetCount,
		nextPacket:  1,
		data:        append([]byte{}, msg.Data...),
		deadline:    t.now().Add(t.cfg.T2),
	}
	data := [8]byte{cmRTS, uint8(len(msg.Data)), uint8(len(msg.Data) >> 8), packetCount, 0xFF,
		uint8(msg.Header.PGN), uint8(msg.Header.PGN >> 8), uint8(msg.Header.PGN >> 16)}
	return nmea.RawFrame{
		Time: t.now(),
		Header: nmea.CanBusHeader{
			PGN:         uint32(nmea.PGNISOTPConnManagement),
			Priority:    7,
			Source:      msg.Header.Source,
			Destination: msg.Header.Destination,
		},
		Length: 8,
		Data:   data,
	}, nil
}

func (t *Transport) emitDataTransferBurst(sess *session, windowSize uint8) {
	start := int(sess.nextPacket-1) * 7
	for i := uint8(0); i < windowSize; i++ {
		seq := sess.nextPacket + i
		if int(seq) > int(sess.packetCount) {
			break
		}
		offset := start + int(i)*7
		if offset >= len(sess.data) {
			break
		}
		end := offset + 7
		if end > len(sess.data) {
			end = len(sess.data)
		}
		var frameData [8]byte
		frameData[0] = seq
		n := copy(frameData[1:], sess.data[offset:end])
		t.out = append(t.out, nmea.RawFrame{
			Time: t.now(),
			Header: nmea.CanBusHeader{
				PGN:         uint32(nmea.PGNISOTPDataTransfer),
				Priority:    7,
				Source:      sess.key.Source,
				Destination: sess.key.Destination,
			},
			Length: uint8(1 + n),
			Data:   frameData,
		})
	}
}

// SendBAM builds a full BAM transfer: the TP.CM BAM control frame followed
// by every TP.DT frame, in order. The caller paces writes no closer than
// cfg.BAMPacing apart and performs no flow control (spec §4.5 "no
// acknowledgements").
func SendBAM(ctx context.Context, msg nmea.RawMessage, cfg Config) ([]nmea.RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(msg.Data) > nmea.ISOTPDataMaxSize {
		return nil, fmt.Errorf("isotp: payload of %d bytes exceeds maximum %d", len(msg.Data), nmea.ISOTPDataMaxSize)
	}
	packetCount := uint8((len(msg.Data) + 6) / 7)
	frames := make([]nmea.RawFrame, 0, 1+int(packetCount))

	cm := nmea.RawFrame{
		Time: msg.Time,
		Header: nmea.CanBusHeader{
			PGN:         uint32(nmea.PGNISOTPConnManagement),
			Priority:    msg.Header.Priority,
			Source:      msg.Header.Source,
			Destination: nmea.AddressGlobal,
		},
		Length: 8,
		Data: [8]byte{cmBAM, uint8(len(msg.Data)), uint8(len(msg.Data) >> 8), packetCount, 0xFF,
			uint8(msg.Header.PGN), uint8(msg.Header.PGN >> 8), uint8(msg.Header.PGN >> 16)},
	}
	frames = append(frames, cm)

	for seq := uint8(1); seq <= packetCount; seq++ {
		offset := int(seq-1) * 7
		end := offset + 7
		if end > len(msg.Data) {
			end = len(msg.Data)
		}
		var frameData [8]byte
		frameData[0] = seq
		n := copy(frameData[1:], msg.Data[offset:end])
		frames = append(frames, nmea.RawFrame{
			Time: msg.Time,
			Header: nmea.CanBusHeader{
				PGN:         uint32(nmea.PGNISOTPDataTransfer),
				Priority:    msg.Header.Priority,
				Source:      msg.Header.Source,
				Destination: nmea.AddressGlobal,
			},
			Length: uint8(1 + n),
			Data:   frameData,
		})
	}
	return frames, nil
}
