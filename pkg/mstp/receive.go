package mstp

import "github.com/sfcoop/gomstp/internal/crc"

// HandleOctet feeds one received octet (or a receive error) through the
// FSM described in §4.3. Exactly one of Events.{ValidFrameForUs,
// ValidFrameNotForUs,InvalidFrame} is set when the FSM returns to
// receiveIdle for a given frame; the caller must consume and clear the
// event (Events.Clear) before the next frame's event can be observed.
func (p *Port) HandleOctet(octet byte, receiveError bool) {
	// The silence timer resets on every accepted octet AND on a receive
	// error (§5): a noisy-but-active bus must not be mistaken for a
	// silent one by the master/slave FSMs' t_no_token/t_usage_timeout
	// checks.
	if p.SilenceReset != nil {
		p.SilenceReset()
	}
	p.EventCount++

	switch p.state {
	case receiveIdle:
		p.handleIdle(octet, receiveError)
	case receivePreamble:
		p.handlePreamble(octet, receiveError)
	case receiveHeader:
		p.handleHeader(octet, receiveError)
	case receiveData:
		p.handleData(octet, receiveError)
	case receiveSkipData:
		p.handleSkipData(octet, receiveError)
	}
}

// Tick lets the framer observe elapsed silence without a fresh octet,
// so mid-frame timeouts (t_frame_abort) can fire even when the bus
// stays quiet. Call it once per scheduler tick.
func (p *Port) Tick() {
	if p.state == receiveIdle {
		return
	}
	if p.SilenceMs == nil {
		return
	}
	if int(p.SilenceMs()) > p.Tunables.TFrameAbort {
		p.abortFrame()
	}
}

func (p *Port) handleIdle(octet byte, receiveError bool) {
	if receiveError {
		return
	}
	if octet == preambleByte1 {
		p.state = receivePreamble
	}
}

func (p *Port) handlePreamble(octet byte, receiveError bool) {
	if receiveError {
		p.state = receiveIdle
		return
	}
	switch octet {
	case preambleByte2:
		p.state = receiveHeader
		p.index = 0
		p.headerAcc = crc.Header8Init
	case preambleByte1:
		// repeated preamble byte, stay put
	default:
		p.state = receiveIdle
	}
}

func (p *Port) handleHeader(octet byte, receiveError bool) {
	if receiveError {
		p.abortFrame()
		return
	}
	p.headerAcc = p.headerAcc.Single(octet)
	switch p.index {
	case 0:
		p.frameType = FrameType(octet)
	case 1:
		p.dest = octet
	case 2:
		p.src = octet
	case 3:
		p.dataLength = int(octet) << 8
	case 4:
		p.dataLength |= int(octet)
	case 5:
		p.finishHeader()
		return
	}
	p.index++
}

func (p *Port) finishHeader() {
	if p.headerAcc != crc.Header8Good {
		p.raiseInvalid()
		return
	}
	if p.dataLength == 0 {
		p.raiseValid(p.addressedToUs(p.dest))
		return
	}
	p.index = 0
	p.dataAcc = crc.Data16Init
	if p.dataLength > len(p.InputBuffer) {
		p.state = receiveSkipData
	} else {
		p.state = receiveData
	}
}

func (p *Port) handleData(octet byte, receiveError bool) {
	if receiveError {
		p.abortFrame()
		return
	}
	if p.index < p.dataLength {
		p.InputBuffer[p.index] = octet
		p.dataAcc = p.dataAcc.Single(octet)
		p.index++
		return
	}
	// trailing CRC octets
	p.dataAcc = p.dataAcc.Single(octet)
	p.index++
	if p.index == p.dataLength+2 {
		if p.dataAcc == crc.Data16Good {
			p.raiseValid(p.addressedToUs(p.dest))
		} else {
			p.raiseInvalid()
		}
	}
}

func (p *Port) handleSkipData(octet byte, receiveError bool) {
	if receiveError {
		p.abortFrame()
		return
	}
	p.dataAcc = p.dataAcc.Single(octet)
	p.index++
	if p.index == p.dataLength+2 {
		if p.dataAcc == crc.Data16Good {
			p.Events.Clear()
			p.Events.ValidFrameNotForUs = true
			p.state = receiveIdle
		} else {
			p.raiseInvalid()
		}
	}
}

func (p *Port) raiseValid(forUs bool) {
	p.Events.Clear()
	if forUs {
		p.Events.ValidFrameForUs = true
	} else {
		p.Events.ValidFrameNotForUs = true
	}
	p.state = receiveIdle
}

func (p *Port) raiseInvalid() {
	p.Events.Clear()
	p.Events.InvalidFrame = true
	p.state = receiveIdle
}

func (p *Port) abortFrame() {
	if p.state == receiveIdle {
		return
	}
	p.raiseInvalid()
}

// ReceivedFrame builds the logical Frame the upper layer sees once a
// ValidFrame event has been raised. It must be called before the next
// octet is fed in, since InputBuffer is reused by the next frame.
func (p *Port) ReceivedFrame() Frame {
	data := make([]byte, p.dataLength)
	copy(data, p.InputBuffer[:p.dataLength])
	return Frame{Type: p.frameType, Destination: p.dest, Source: p.src, Data: data}
}
