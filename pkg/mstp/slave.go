package mstp

// Slave drives the cut-down responder variant of the master FSM for a
// station that never holds the token, per §4.5. It processes received
// frames and the reply deadline only; there is no ring state to advance.
type Slave struct {
	*Port

	clockMs         int
	waiting         *Frame
	replyDeadlineAt int

	// Transmit hands a fully encoded frame to the RS-485 driver.
	Transmit func(buf []byte) bool

	// Deliver is called for every inbound frame addressed to this
	// station that carries application data.
	Deliver func(f Frame, expectingReply bool)

	// TryReply is polled once per Tick while a DER answer is pending. See
	// Master.TryReply for the contract.
	TryReply func() (data []byte, ok bool)

	txBuf []byte
}

// NewSlave wraps a Port with the slave-node FSM.
func NewSlave(p *Port) *Slave {
	return &Slave{Port: p, txBuf: make([]byte, 2048)}
}

// Tick advances the FSM by deltaMs milliseconds and reacts to any
// receive event the Port raised since the last call.
func (s *Slave) Tick(deltaMs int) {
	s.clockMs += deltaMs

	if s.waiting != nil {
		if s.TryReply != nil {
			if data, ok := s.TryReply(); ok {
				dest := s.waiting.Source
				s.waiting = nil
				s.transmit(FrameTypeBACnetDataNotExpectingReply, dest, data)
				return
			}
		}
		if s.clockMs >= s.replyDeadlineAt {
			// §4.5: answer within t_reply_delay or drop the response
			// silently; unlike the master, a slave has no token to pass
			// and no ReplyPostponed to send.
			s.waiting = nil
		}
	}

	if !s.Port.Events.ValidFrameForUs {
		if s.Port.Events.ValidFrameNotForUs || s.Port.Events.InvalidFrame {
			s.Port.Events.Clear()
		}
		return
	}

	f := s.Port.ReceivedFrame()
	s.Port.Events.Clear()

	switch f.Type {
	case FrameTypeTestRequest:
		s.transmit(FrameTypeTestResponse, f.Source, f.Data)
	case FrameTypeBACnetDataNotExpectingReply:
		if s.Deliver != nil {
			s.Deliver(f, false)
		}
	case FrameTypeBACnetDataExpectingReply:
		if f.Destination == Broadcast {
			return
		}
		if s.Deliver != nil {
			s.Deliver(f, true)
		}
		w := f
		s.waiting = &w
		s.replyDeadlineAt = s.clockMs + s.Port.Tunables.TReplyDelay
	}
}

func (s *Slave) transmit(t FrameType, dest byte, data []byte) {
	n, err := Encode(s.txBuf, Frame{Type: t, Destination: dest, Source: s.Port.ThisStation, Data: data})
	if err != nil {
		return
	}
	if s.Transmit != nil {
		s.Transmit(s.txBuf[:n])
	}
}
