package mstp

import (
	log "github.com/sirupsen/logrus"

	"github.com/sfcoop/gomstp/internal/crc"
)

// receiveState is the byte-driven receive FSM's current state.
type receiveState int

const (
	receiveIdle receiveState = iota
	receivePreamble
	receiveHeader
	receiveData
	receiveSkipData
)

// Tunables holds the clamped timing and ring parameters from §6.4. Use
// pkg/config to load and clamp a Tunables from disk; DefaultTunables
// already satisfies every clamp.
type Tunables struct {
	NmaxInfoFrames int
	NmaxMaster     byte
	TFrameAbort    int // ms
	TReplyDelay    int // ms
	TReplyTimeout  int // ms
	TUsageTimeout  int // ms
	Npoll          int
	NretryToken    int
	NminOctets     int
	TNoToken       int // ms
	TSlot          int // ms
}

// DefaultTunables are the §6.4 defaults.
var DefaultTunables = Tunables{
	NmaxInfoFrames: 1,
	NmaxMaster:     127,
	TFrameAbort:    30,
	TReplyDelay:    225,
	TReplyTimeout:  255,
	TUsageTimeout:  30,
	Npoll:          50,
	NretryToken:    1,
	NminOctets:     4,
	TNoToken:       500,
	TSlot:          10,
}

// Clamp replaces any out-of-range field with its §6.4 default, per the
// spec's "clamp out-of-range values at init to their defaults."
func (t Tunables) Clamp() Tunables {
	d := DefaultTunables
	if t.NmaxInfoFrames < 1 {
		t.NmaxInfoFrames = d.NmaxInfoFrames
	}
	if t.NmaxMaster < 1 || t.NmaxMaster > 127 {
		t.NmaxMaster = d.NmaxMaster
	}
	if t.TFrameAbort < 6 || t.TFrameAbort > 100 {
		t.TFrameAbort = d.TFrameAbort
	}
	if t.TReplyDelay < 0 || t.TReplyDelay > 250 {
		t.TReplyDelay = d.TReplyDelay
	}
	if t.TReplyTimeout < 20 || t.TReplyTimeout > 300 {
		t.TReplyTimeout = d.TReplyTimeout
	}
	if t.TUsageTimeout < 20 || t.TUsageTimeout > 35 {
		t.TUsageTimeout = d.TUsageTimeout
	}
	if t.Npoll < 1 {
		t.Npoll = d.Npoll
	}
	if t.NretryToken < 0 {
		t.NretryToken = d.NretryToken
	}
	if t.NminOctets < 1 {
		t.NminOctets = d.NminOctets
	}
	if t.TNoToken < 1 {
		t.TNoToken = d.TNoToken
	}
	if t.TSlot < 1 {
		t.TSlot = d.TSlot
	}
	return t
}

// ReceiveEvents are the three mutually exclusive outcomes the receive
// FSM raises when it returns to Idle. There is no separate
// packet-pending flag.
type ReceiveEvents struct {
	ValidFrameForUs    bool
	ValidFrameNotForUs bool
	InvalidFrame       bool
}

// Clear zeroes all three flags; the master FSM must consume an event
// before the next one can be raised.
func (e *ReceiveEvents) Clear() {
	e.ValidFrameForUs = false
	e.ValidFrameNotForUs = false
	e.InvalidFrame = false
}

// Port is the exclusive owner of one MS/TP station's framer and ring
// state. Everything the receive FSM and master FSM touch lives here;
// the upper layer only reaches in through the callbacks and the
// delivered Frame values, never by mutating Port fields directly from
// another goroutine.
type Port struct {
	ThisStation byte
	Tunables    Tunables

	// SilenceMs returns milliseconds since the last accepted octet or
	// receive error; SilenceReset resets that clock. Both are supplied
	// by the platform's RS-485 driver per §6.2.
	SilenceMs    func() uint16
	SilenceReset func()

	state      receiveState
	index      int
	headerAcc  crc.CRC8
	dataAcc    crc.CRC16
	frameType  FrameType
	dest, src  byte
	dataLength int

	InputBuffer []byte // scratch region the framer fills during Data/SkipData

	Events ReceiveEvents

	// Ring state, advanced by the master FSM (§3).
	TokenCount  int
	RetryCount  int
	FrameCount  int
	EventCount  int
	SoleMaster  bool

	Log *log.Entry
}

// NewPort creates a Port ready to run the receive FSM. inputBufferSize
// bounds the largest data payload the framer will retain before
// falling back to SkipData.
func NewPort(station byte, tunables Tunables, inputBufferSize int) *Port {
	if inputBufferSize <= 0 {
		inputBufferSize = MaxClassicDataLength
	}
	return &Port{
		ThisStation: station,
		Tunables:    tunables.Clamp(),
		InputBuffer: make([]byte, inputBufferSize),
		Log:         log.WithField("component", "mstp"),
	}
}

func (p *Port) addressedToUs(dest byte) bool {
	return dest == p.ThisStation || dest == Broadcast
}
