package mstp

// MasterState is the master-node token-ring FSM's current state, §4.4.
type MasterState int

const (
	MasterInitialize MasterState = iota
	MasterIdle
	MasterUseToken
	MasterWaitForReply
	MasterDoneWithToken
	MasterPassToken
	MasterNoToken
	MasterPollForMaster
	MasterAnswerDataRequest
)

var masterStateNames = map[MasterState]string{
	MasterInitialize:       "INITIALIZE",
	MasterIdle:             "IDLE",
	MasterUseToken:         "USE-TOKEN",
	MasterWaitForReply:     "WAIT-FOR-REPLY",
	MasterDoneWithToken:    "DONE-WITH-TOKEN",
	MasterPassToken:        "PASS-TOKEN",
	MasterNoToken:          "NO-TOKEN",
	MasterPollForMaster:    "POLL-FOR-MASTER",
	MasterAnswerDataRequest: "ANSWER-DATA-REQUEST",
}

func (s MasterState) String() string { return masterStateNames[s] }

// OutboundPDU is a single queued frame the master FSM transmits the
// next time it holds the token.
type OutboundPDU struct {
	Type        FrameType
	Destination byte
	Data        []byte
}

// Master drives the token-ring FSM for one station. It owns a Port's
// receive events and ring counters and decides when to transmit.
type Master struct {
	*Port

	state       MasterState
	nextStation byte
	pollStation byte

	clockMs          int
	stateEnteredAt   int
	stateEventBase   int
	replyDeadlineAt  int

	outbound *OutboundPDU
	waiting  *Frame // the DER currently awaiting an upper-layer reply

	// Transmit hands a fully encoded frame to the RS-485 driver. It must
	// not be called unless silence has satisfied the turnaround
	// requirement; the scheduler is responsible for that gate via the
	// platform driver.
	Transmit func(buf []byte) bool

	// Deliver is called for every non-broadcast BACnet data frame (DER
	// and non-DER alike) received in Idle, and for every reply-type
	// frame (data, ReplyPostponed, TestResponse) received in
	// WaitForReply. expectingReply is true only for a
	// BACnetDataExpectingReply received in Idle; frames delivered from
	// WaitForReply always carry false.
	Deliver func(f Frame, expectingReply bool)

	// TryReply is polled once per Tick while a DER answer is pending.
	// Returning ok=true supplies the reply payload; ok=false means "not
	// yet" and the FSM keeps waiting until t_reply_delay elapses.
	TryReply func() (data []byte, ok bool)

	txBuf []byte
}

// NewMaster wraps a Port with the master-node FSM.
func NewMaster(p *Port) *Master {
	return &Master{
		Port:        p,
		state:       MasterInitialize,
		nextStation: p.ThisStation,
		pollStation: p.ThisStation,
		txBuf:       make([]byte, 2048),
	}
}

// State reports the FSM's current state.
func (m *Master) State() MasterState { return m.state }

// Queue submits an outbound PDU for transmission on the next token
// hold. It replaces any PDU already queued; Nmax_info_frames bounds how
// many are sent per hold, not how many may be queued.
func (m *Master) Queue(pdu OutboundPDU) {
	m.outbound = &pdu
}

func (m *Master) enter(s MasterState) {
	m.state = s
	m.stateEnteredAt = m.clockMs
	m.stateEventBase = m.Port.EventCount
}

func (m *Master) sinceEntry() int       { return m.clockMs - m.stateEnteredAt }
func (m *Master) octetsSinceEntry() int { return m.Port.EventCount - m.stateEventBase }

// Tick advances the FSM by deltaMs milliseconds of wall-clock time and
// reacts to any receive event the Port raised since the last call. It
// is meant to be invoked once per scheduler tick, per §5.
func (m *Master) Tick(deltaMs int) {
	m.clockMs += deltaMs

	// Duplicate-node defense applies in every state but Initialize.
	if m.state != MasterInitialize && (m.Port.Events.ValidFrameForUs || m.Port.Events.ValidFrameNotForUs) {
		if m.Port.frameAddrSrc() == m.Port.ThisStation {
			m.Port.ThisStation = Unbound
			m.enter(MasterInitialize)
			m.Port.Events.Clear()
			return
		}
	}

	switch m.state {
	case MasterInitialize:
		m.tickInitialize()
	case MasterIdle:
		m.tickIdle()
	case MasterUseToken:
		m.tickUseToken()
	case MasterWaitForReply:
		m.tickWaitForReply()
	case MasterDoneWithToken:
		m.tickDoneWithToken()
	case MasterPassToken:
		m.tickPassToken()
	case MasterNoToken:
		m.tickNoToken()
	case MasterPollForMaster:
		m.tickPollForMaster()
	case MasterAnswerDataRequest:
		m.tickAnswerDataRequest()
	}
}

func (m *Master) tickInitialize() {
	m.nextStation = m.Port.ThisStation
	m.TokenCount = m.Port.Tunables.Npoll
	m.SoleMaster = false
	m.enter(MasterIdle)
}

func (m *Master) tickIdle() {
	if m.Port.Events.ValidFrameForUs {
		f := m.Port.ReceivedFrame()
		m.Port.Events.Clear()
		switch f.Type {
		case FrameTypeToken:
			m.enter(MasterUseToken)
		case FrameTypePollForMaster:
			m.replyToPollForMaster(f.Source)
			m.enter(MasterIdle)
		case FrameTypeBACnetDataNotExpectingReply:
			if m.Deliver != nil {
				m.Deliver(f, false)
			}
			m.enter(MasterIdle)
		case FrameTypeBACnetDataExpectingReply:
			if f.Destination == Broadcast {
				// broadcast DER is silently dropped, §9 departure note
				m.enter(MasterIdle)
				return
			}
			if m.Deliver != nil {
				m.Deliver(f, true)
			}
			w := f
			m.waiting = &w
			m.replyDeadlineAt = m.clockMs + m.Port.Tunables.TReplyDelay
			m.enter(MasterAnswerDataRequest)
		case FrameTypeTestRequest:
			m.transmit(FrameTypeTestResponse, f.Source, f.Data)
			m.enter(MasterIdle)
		default:
			m.enter(MasterIdle)
		}
		return
	}
	if m.Port.Events.ValidFrameNotForUs || m.Port.Events.InvalidFrame {
		m.Port.Events.Clear()
		m.enter(MasterIdle) // bus activity observed, silence clock restarts
		return
	}
	if m.sinceEntry() >= m.Port.Tunables.TNoToken {
		m.enter(MasterNoToken)
	}
}

func (m *Master) tickUseToken() {
	if m.outbound != nil {
		pdu := m.outbound
		m.outbound = nil
		m.transmit(pdu.Type, pdu.Destination, pdu.Data)
		if pdu.Type == FrameTypeBACnetDataExpectingReply || pdu.Type == FrameTypeTestRequest {
			m.enter(MasterWaitForReply)
		} else {
			m.enter(MasterDoneWithToken)
		}
		return
	}
	m.FrameCount = m.Port.Tunables.NmaxInfoFrames
	m.enter(MasterDoneWithToken)
}

func (m *Master) tickWaitForReply() {
	if m.sinceEntry() >= m.Port.Tunables.TReplyTimeout {
		m.enter(MasterDoneWithToken)
		return
	}
	if m.Port.Events.ValidFrameForUs {
		f := m.Port.ReceivedFrame()
		m.Port.Events.Clear()
		switch f.Type {
		case FrameTypeReplyPostponed, FrameTypeTestResponse,
			FrameTypeBACnetDataExpectingReply, FrameTypeBACnetDataNotExpectingReply:
			if m.Deliver != nil {
				m.Deliver(f, false)
			}
			m.enter(MasterDoneWithToken)
		default:
			m.enter(MasterIdle)
		}
		return
	}
	if m.Port.Events.InvalidFrame || m.Port.Events.ValidFrameNotForUs {
		m.Port.Events.Clear()
	}
}

func (m *Master) tickDoneWithToken() {
	if m.FrameCount < m.Port.Tunables.NmaxInfoFrames {
		m.enter(MasterUseToken)
		return
	}
	if !m.SoleMaster && m.nextStation == m.Port.ThisStation {
		probe := nextAddr(m.Port.ThisStation, m.Port.Tunables.NmaxMaster)
		m.pollStation = probe
		m.enter(MasterPollForMaster)
		m.sendPollForMaster(probe)
		return
	}
	if m.TokenCount < m.Port.Tunables.Npoll-1 {
		if m.SoleMaster && m.nextStation != nextAddr(m.Port.ThisStation, m.Port.Tunables.NmaxMaster) {
			// no other known master node to pass the token to: stay the
			// token's user instead of sending it to ourselves, per §4.4's
			// sole-master case.
			m.FrameCount = 0
			m.TokenCount++
			m.enter(MasterUseToken)
			return
		}
		m.TokenCount++
		m.transmit(FrameTypeToken, m.nextStation, nil)
		m.enter(MasterPassToken)
		return
	}
	// Maintenance poll-for-master cycle: keep probing successive
	// addresses until the cycle comes back around to next_station. Only
	// then does it resume passing the token (or, with no known
	// successor, restart the cycle one slot further on), per §4.4.
	probe := nextAddr(m.pollStation, m.Port.Tunables.NmaxMaster)
	if probe == m.nextStation {
		if m.SoleMaster {
			next := nextAddr(m.nextStation, m.Port.Tunables.NmaxMaster)
			m.pollStation = next
			m.nextStation = m.Port.ThisStation
			m.TokenCount = 1
			m.enter(MasterPollForMaster)
			m.sendPollForMaster(next)
			return
		}
		m.pollStation = m.Port.ThisStation
		m.TokenCount = 1
		m.transmit(FrameTypeToken, m.nextStation, nil)
		m.enter(MasterPassToken)
		return
	}
	m.pollStation = probe
	m.enter(MasterPollForMaster)
	m.sendPollForMaster(probe)
}

func (m *Master) tickPassToken() {
	if m.octetsSinceEntry() > m.Port.Tunables.NminOctets {
		m.enter(MasterIdle)
		return
	}
	if m.sinceEntry() >= m.Port.Tunables.TUsageTimeout {
		if m.RetryCount < m.Port.Tunables.NretryToken {
			m.RetryCount++
			m.transmit(FrameTypeToken, m.nextStation, nil)
			m.enter(MasterPassToken)
			return
		}
		m.RetryCount = 0
		probe := nextAddr(m.nextStation, m.Port.Tunables.NmaxMaster)
		m.pollStation = probe
		m.enter(MasterPollForMaster)
		m.sendPollForMaster(probe)
	}
}

func (m *Master) tickNoToken() {
	slot := m.Port.Tunables.TSlot
	base := m.Port.Tunables.TNoToken + slot*int(m.Port.ThisStation)
	if m.Port.EventCount > m.stateEventBase && m.sinceEntry() < base {
		m.enter(MasterIdle)
		return
	}
	lower := base + slot
	upper := m.Port.Tunables.TNoToken + slot*(int(m.Port.Tunables.NmaxMaster)+1)
	if m.sinceEntry() >= lower && m.sinceEntry() <= upper {
		probe := nextAddr(m.Port.ThisStation, m.Port.Tunables.NmaxMaster)
		m.pollStation = probe
		m.enter(MasterPollForMaster)
		m.sendPollForMaster(probe)
	}
}

func (m *Master) tickPollForMaster() {
	if m.Port.Events.ValidFrameForUs {
		f := m.Port.ReceivedFrame()
		m.Port.Events.Clear()
		if f.Type == FrameTypeReplyToPollForMaster {
			m.nextStation = f.Source
			m.transmit(FrameTypeToken, m.nextStation, nil)
			m.enter(MasterPassToken)
		}
		return
	}
	if m.Port.Events.InvalidFrame {
		m.Port.Events.Clear()
	}
	if m.sinceEntry() >= m.Port.Tunables.TUsageTimeout {
		if m.SoleMaster {
			m.enter(MasterUseToken)
			return
		}
		if m.nextStation != m.Port.ThisStation {
			m.transmit(FrameTypeToken, m.nextStation, nil)
			m.enter(MasterPassToken)
			return
		}
		probe := nextAddr(m.pollStation, m.Port.Tunables.NmaxMaster)
		if probe == m.Port.ThisStation {
			m.SoleMaster = true
			m.nextStation = m.Port.ThisStation
			m.enter(MasterUseToken)
			return
		}
		m.pollStation = probe
		m.enter(MasterPollForMaster)
		m.sendPollForMaster(probe)
	}
}

func (m *Master) tickAnswerDataRequest() {
	if m.TryReply != nil {
		if data, ok := m.TryReply(); ok {
			dest := m.waiting.Source
			m.waiting = nil
			m.transmit(FrameTypeBACnetDataNotExpectingReply, dest, data)
			m.enter(MasterIdle)
			return
		}
	}
	if m.clockMs >= m.replyDeadlineAt {
		dest := m.waiting.Source
		m.waiting = nil
		m.transmit(FrameTypeReplyPostponed, dest, nil)
		m.enter(MasterIdle)
	}
}

func (m *Master) replyToPollForMaster(source byte) {
	m.transmit(FrameTypeReplyToPollForMaster, source, nil)
}

func (m *Master) sendPollForMaster(dest byte) {
	m.transmit(FrameTypePollForMaster, dest, nil)
}

func (m *Master) transmit(t FrameType, dest byte, data []byte) {
	n, err := Encode(m.txBuf, Frame{Type: t, Destination: dest, Source: m.Port.ThisStation, Data: data})
	if err != nil {
		return
	}
	if m.Transmit != nil {
		m.Transmit(m.txBuf[:n])
	}
}

// frameAddrSrc reports the source address of the most recently received
// frame, valid only immediately after an event flag is observed.
func (p *Port) frameAddrSrc() byte { return p.src }

// nextAddr returns the next candidate address after station, wrapping
// at nmaxMaster back to 0.
func nextAddr(station, nmaxMaster byte) byte {
	if station >= nmaxMaster {
		return 0
	}
	return station + 1
}
