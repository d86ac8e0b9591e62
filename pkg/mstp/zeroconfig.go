package mstp

import "github.com/google/uuid"

// ZeroConfigState is the zero-config address-acquisition FSM's state, §4.6.
type ZeroConfigState int

const (
	ZeroConfigInit ZeroConfigState = iota
	ZeroConfigIdle
	ZeroConfigLurk
	ZeroConfigClaim
	ZeroConfigConfirm
	ZeroConfigUse
)

var zeroConfigStateNames = map[ZeroConfigState]string{
	ZeroConfigInit:    "INIT",
	ZeroConfigIdle:    "IDLE",
	ZeroConfigLurk:    "LURK",
	ZeroConfigClaim:   "CLAIM",
	ZeroConfigConfirm: "CONFIRM",
	ZeroConfigUse:     "USE",
}

func (s ZeroConfigState) String() string { return zeroConfigStateNames[s] }

const (
	zeroConfigMinStation byte = 64
	zeroConfigMaxStation byte = 127
	// NminPoll is added to the randomized poll-slot offset to get the
	// number of maintenance PollForMaster frames addressed to the
	// candidate a lurking node must observe before replying, per §4.6 and
	// §8 scenario 5 (poll_slot=6 replies on the 6th observed PFM, so
	// NminPoll itself contributes none of that count).
	NminPoll = 0
	// NmaxSlot bounds the randomized poll-slot offset.
	NmaxSlot = 8
)

// ZeroConfig runs the dynamic address-acquisition procedure of §4.6 for a
// station with no statically assigned MAC address. Once it reaches
// ZeroConfigUse, Port.ThisStation holds the claimed address in [64,127]
// and the caller should hand the Port to a Master.
type ZeroConfig struct {
	*Port

	state ZeroConfigState
	uuid  uuid.UUID

	candidate     byte
	pollCount     int
	pollSlot      int
	observedNmax  byte
	silenceBudget int
	clockMs       int
	stateEnteredAt int

	// Transmit hands a fully encoded frame to the RS-485 driver.
	Transmit func(buf []byte) bool

	txBuf []byte
}

// NewZeroConfig creates a zero-config FSM seeded with a fresh random
// identifier (RFC 4122 version 4, via google/uuid) and a preferred
// starting candidate address. preferred is clamped into [64,127]; pass 0
// to use the §4.6 default of 64.
func NewZeroConfig(p *Port, preferred byte) *ZeroConfig {
	if preferred < zeroConfigMinStation {
		preferred = zeroConfigMinStation
	}
	if preferred > zeroConfigMaxStation {
		preferred = zeroConfigMaxStation
	}
	z := &ZeroConfig{
		Port:      p,
		uuid:      uuid.New(),
		candidate: preferred,
		txBuf:     make([]byte, 2048),
	}
	p.ThisStation = Unbound
	return z
}

// State reports the FSM's current state.
func (z *ZeroConfig) State() ZeroConfigState { return z.state }

// Done reports whether the FSM has claimed an address.
func (z *ZeroConfig) Done() bool { return z.state == ZeroConfigUse }

func (z *ZeroConfig) enter(s ZeroConfigState) {
	z.state = s
	z.stateEnteredAt = z.clockMs
}

func (z *ZeroConfig) sinceEntry() int { return z.clockMs - z.stateEnteredAt }

// Tick advances the FSM by deltaMs milliseconds and reacts to any
// receive event the Port raised since the last call.
func (z *ZeroConfig) Tick(deltaMs int) {
	z.clockMs += deltaMs

	switch z.state {
	case ZeroConfigInit:
		z.tickInit()
	case ZeroConfigIdle:
		z.tickIdle()
	case ZeroConfigLurk:
		z.tickLurk()
	case ZeroConfigClaim:
		z.tickClaim()
	case ZeroConfigConfirm:
		z.tickConfirm()
	}
}

func (z *ZeroConfig) tickInit() {
	b := z.uuid[0]
	z.pollSlot = 1 + int(b)%NmaxSlot
	z.pollCount = 0
	z.observedNmax = z.Port.Tunables.NmaxMaster
	z.silenceBudget = z.Port.Tunables.TNoToken + z.Port.Tunables.TSlot*(128+z.pollSlot)
	z.enter(ZeroConfigIdle)
}

func (z *ZeroConfig) tickIdle() {
	if z.Port.Events.ValidFrameForUs || z.Port.Events.ValidFrameNotForUs {
		z.pollCount = 0
		z.enter(ZeroConfigLurk)
		// the frame that ended Idle is the first one Lurk observes
		z.tickLurk()
		return
	}
	if z.Port.Events.InvalidFrame {
		z.Port.Events.Clear()
		return
	}
	if z.sinceEntry() > z.silenceBudget {
		z.sendTestRequest()
		z.enter(ZeroConfigConfirm)
	}
}

func (z *ZeroConfig) tickLurk() {
	if !z.Port.Events.ValidFrameForUs && !z.Port.Events.ValidFrameNotForUs {
		if z.Port.Events.InvalidFrame {
			z.Port.Events.Clear()
		}
		return
	}
	f := z.Port.ReceivedFrame()
	z.Port.Events.Clear()

	if f.Source == z.candidate {
		z.advanceCandidate()
		z.pollCount = 0
		return
	}
	if f.Type != FrameTypePollForMaster {
		return
	}
	if f.Destination > z.observedNmax {
		z.observedNmax = f.Destination
	}
	if f.Destination != z.candidate {
		return
	}
	z.pollCount++
	if z.pollCount >= NminPoll+z.pollSlot {
		z.transmit(FrameTypeReplyToPollForMaster, Broadcast)
		z.enter(ZeroConfigClaim)
	}
}

func (z *ZeroConfig) tickClaim() {
	if z.Port.Events.ValidFrameForUs {
		f := z.Port.ReceivedFrame()
		z.Port.Events.Clear()
		if f.Source == z.candidate {
			z.advanceCandidate()
			z.enter(ZeroConfigLurk)
			return
		}
		if f.Type == FrameTypeToken && f.Destination == z.candidate {
			z.sendTestRequest()
			z.enter(ZeroConfigConfirm)
		}
		return
	}
	if z.Port.Events.ValidFrameNotForUs || z.Port.Events.InvalidFrame {
		z.Port.Events.Clear()
	}
	if z.sinceEntry() > z.silenceBudget {
		z.enter(ZeroConfigIdle)
	}
}

func (z *ZeroConfig) tickConfirm() {
	if z.Port.Events.ValidFrameForUs {
		f := z.Port.ReceivedFrame()
		z.Port.Events.Clear()
		if f.Source == z.candidate {
			z.advanceCandidate()
			z.enter(ZeroConfigLurk)
			return
		}
		if f.Type == FrameTypeTestResponse && uuidMatches(f.Data, z.uuid) {
			z.adopt()
		}
		return
	}
	if z.Port.Events.ValidFrameNotForUs || z.Port.Events.InvalidFrame {
		z.Port.Events.Clear()
	}
	if z.sinceEntry() >= z.Port.Tunables.TReplyTimeout {
		// some peers do not implement Test; adopt anyway
		z.adopt()
	}
}

func (z *ZeroConfig) adopt() {
	z.Port.ThisStation = z.candidate
	z.enter(ZeroConfigUse)
}

// advanceCandidate moves to the next integer in [64,127], wrapping.
// Either a modulo or linear-with-wrap form is acceptable per §9; this
// uses the linear form for simplicity.
func (z *ZeroConfig) advanceCandidate() {
	if z.candidate >= zeroConfigMaxStation {
		z.candidate = zeroConfigMinStation
		return
	}
	z.candidate++
}

func (z *ZeroConfig) sendTestRequest() {
	z.transmit(FrameTypeTestRequest, z.candidate)
}

func (z *ZeroConfig) transmit(t FrameType, dest byte) {
	var data []byte
	if t == FrameTypeTestRequest {
		data = z.uuid[:]
	}
	n, err := Encode(z.txBuf, Frame{Type: t, Destination: dest, Source: z.candidate, Data: data})
	if err != nil {
		return
	}
	if z.Transmit != nil {
		z.Transmit(z.txBuf[:n])
	}
}

func uuidMatches(data []byte, u uuid.UUID) bool {
	if len(data) != len(u) {
		return false
	}
	for i := range data {
		if data[i] != u[i] {
			return false
		}
	}
	return true
}
