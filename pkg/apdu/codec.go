package apdu

import "errors"

// ErrTooShort is returned by ParseHeader when the buffer does not even
// hold the fixed APDU header octets.
var ErrTooShort = errors.New("apdu: buffer too short")

// Header is the fixed-position prefix spec.md §6.3 describes: a 4-bit
// PDU-type plus flags in the first octet, and an invoke-id in the
// second (absent for Unconfirmed-Request). Segmentation fields are
// parsed but never acted on; segmentation is a Non-goal (§1) and any
// SegmentedMessage request is answered with an
// AbortSegmentationNotSupported by the dispatcher.
type Header struct {
	Type                      PDUType
	SegmentedMessage          bool
	MoreFollows               bool
	SegmentedResponseAccepted bool
	InvokeID                  byte
	ServiceChoice             byte
	// BodyOffset is the index into the original buffer where the
	// service-specific body begins, after ServiceChoice.
	BodyOffset int
}

// ParseHeader reads the PDU-type, flags, invoke-id (when present), and
// service-choice byte from a raw APDU. It does not validate the
// service-specific body; that is pkg/dispatch's job.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < 1 {
		return Header{}, ErrTooShort
	}
	h := Header{Type: PDUType(buf[0] >> 4)}

	switch h.Type {
	case PDUConfirmedRequest:
		// octet0 type+flags, octet1 invoke-id, octet2 service-choice.
		if len(buf) < 3 {
			return Header{}, ErrTooShort
		}
		h.SegmentedMessage = buf[0]&0x08 != 0
		h.MoreFollows = buf[0]&0x04 != 0
		h.SegmentedResponseAccepted = buf[0]&0x02 != 0
		h.InvokeID = buf[1]
		h.ServiceChoice = buf[2]
		h.BodyOffset = 3
		return h, nil
	case PDUUnconfirmedRequest:
		// octet0 type, octet1 service-choice.
		if len(buf) < 2 {
			return Header{}, ErrTooShort
		}
		h.ServiceChoice = buf[1]
		h.BodyOffset = 2
		return h, nil
	case PDUSimpleACK:
		if len(buf) < 3 {
			return Header{}, ErrTooShort
		}
		h.InvokeID = buf[1]
		h.ServiceChoice = buf[2]
		h.BodyOffset = 3
		return h, nil
	case PDUComplexACK:
		if len(buf) < 3 {
			return Header{}, ErrTooShort
		}
		h.SegmentedMessage = buf[0]&0x08 != 0
		h.MoreFollows = buf[0]&0x04 != 0
		h.InvokeID = buf[1]
		h.ServiceChoice = buf[2]
		h.BodyOffset = 3
		return h, nil
	case PDUSegmentACK, PDUError, PDUReject, PDUAbort:
		if len(buf) < 2 {
			return Header{}, ErrTooShort
		}
		h.InvokeID = buf[1]
		h.BodyOffset = 2
		return h, nil
	}
	return h, errors.New("apdu: unknown pdu type")
}

// EncodeHeader writes h's fixed prefix onto buf and returns the number
// of bytes written. Callers append the service-specific body after the
// returned offset.
func EncodeHeader(buf []byte, h Header) (int, error) {
	switch h.Type {
	case PDUConfirmedRequest:
		if len(buf) < 3 {
			return 0, ErrTooShort
		}
		flags := byte(h.Type) << 4
		if h.SegmentedMessage {
			flags |= 0x08
		}
		if h.MoreFollows {
			flags |= 0x04
		}
		if h.SegmentedResponseAccepted {
			flags |= 0x02
		}
		buf[0] = flags
		buf[1] = h.InvokeID
		buf[2] = h.ServiceChoice
		return 3, nil
	case PDUUnconfirmedRequest:
		if len(buf) < 2 {
			return 0, ErrTooShort
		}
		buf[0] = byte(h.Type) << 4
		buf[1] = h.ServiceChoice
		return 2, nil
	case PDUSimpleACK, PDUComplexACK:
		if len(buf) < 3 {
			return 0, ErrTooShort
		}
		buf[0] = byte(h.Type) << 4
		buf[1] = h.InvokeID
		buf[2] = h.ServiceChoice
		return 3, nil
	case PDUSegmentACK, PDUError, PDUReject, PDUAbort:
		if len(buf) < 2 {
			return 0, ErrTooShort
		}
		buf[0] = byte(h.Type) << 4
		buf[1] = h.InvokeID
		return 2, nil
	}
	return 0, errors.New("apdu: unknown pdu type")
}
