// Package dispatch implements the confirmed/unconfirmed service
// demultiplex of spec.md §4.9: PDUs are routed by service-choice byte to
// handlers registered at init time, with a default "unrecognized
// service" Reject, a SegmentationNotSupported Abort for any segmented
// message, a MissingRequiredParameter Reject, and an Abort Other on
// decode failure. Grounded on pkg/can/register.go's
// RegisterInterface/NewInterfaceFunc registry pattern, generalized from
// one registered CAN backend to one handler per service-choice byte.
package dispatch

import (
	log "github.com/sirupsen/logrus"

	"github.com/sfcoop/gomstp/pkg/apdu"
)

// ConfirmedHandler processes one Confirmed-Request body and returns the
// response payload for a Complex-ACK, or nil for a Simple-ACK. Returning
// a apdu.Reject, apdu.Abort, or apdu.Error causes Dispatcher to encode
// the matching PDU instead.
type ConfirmedHandler func(invokeID byte, body []byte) (ack []byte, err error)

// UnconfirmedHandler processes one Unconfirmed-Request body. Any
// returned error is logged; unconfirmed requests never produce a reply.
type UnconfirmedHandler func(body []byte) error

// Dispatcher demultiplexes inbound APDUs by service-choice byte.
// The zero value is not usable; use New.
type Dispatcher struct {
	confirmed   map[byte]ConfirmedHandler
	unconfirmed map[byte]UnconfirmedHandler

	Log *log.Entry
}

// New creates an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{
		confirmed:   make(map[byte]ConfirmedHandler),
		unconfirmed: make(map[byte]UnconfirmedHandler),
		Log:         log.WithField("component", "dispatch"),
	}
}

// RegisterConfirmed associates a service-choice byte with a confirmed
// handler. Call during init; Dispatch is not safe to call concurrently
// with RegisterConfirmed.
func (d *Dispatcher) RegisterConfirmed(serviceChoice byte, h ConfirmedHandler) {
	d.confirmed[serviceChoice] = h
}

// RegisterUnconfirmed associates a service-choice byte with an
// unconfirmed handler.
func (d *Dispatcher) RegisterUnconfirmed(serviceChoice byte, h UnconfirmedHandler) {
	d.unconfirmed[serviceChoice] = h
}

// Outcome is what Dispatch decided to send back for a confirmed
// request. When Dispatch returns ok=false nothing is sent (unconfirmed
// request, unparsable header, or a PDU type outside the
// confirmed/unconfirmed family) and the Outcome is the zero value.
type Outcome struct {
	Type     apdu.PDUType // PDUSimpleACK, PDUComplexACK, PDUError, PDUReject, or PDUAbort
	InvokeID byte
	Body     []byte // the ack payload, or nil
	ErrVal   apdu.Error
	Reject   apdu.Reject
	Abort    apdu.Abort
}

// Dispatch decodes raw's header and routes it. For a Confirmed-Request
// it always returns an Outcome describing the PDU to send back
// (ack/error/reject/abort). For an Unconfirmed-Request it invokes the
// handler and returns ok=false (no reply is ever sent). Any other PDU
// type is not this package's concern and returns ok=false.
func (d *Dispatcher) Dispatch(raw []byte) (Outcome, bool) {
	h, err := apdu.ParseHeader(raw)
	if err != nil {
		return Outcome{}, false
	}

	switch h.Type {
	case apdu.PDUUnconfirmedRequest:
		handler, ok := d.unconfirmed[h.ServiceChoice]
		if !ok {
			if d.Log != nil {
				d.Log.WithField("service_choice", h.ServiceChoice).Debug("unrecognized unconfirmed service, dropped")
			}
			return Outcome{}, false
		}
		if err := handler(raw[h.BodyOffset:]); err != nil && d.Log != nil {
			d.Log.WithError(err).Warn("unconfirmed handler returned an error")
		}
		return Outcome{}, false

	case apdu.PDUConfirmedRequest:
		if h.SegmentedMessage {
			return Outcome{
				Type:     apdu.PDUAbort,
				InvokeID: h.InvokeID,
				Abort:    apdu.Abort{Reason: apdu.AbortSegmentationNotSupported},
			}, true
		}
		handler, ok := d.confirmed[h.ServiceChoice]
		if !ok {
			return Outcome{
				Type:     apdu.PDUReject,
				InvokeID: h.InvokeID,
				Reject:   apdu.Reject{Reason: apdu.RejectUnrecognizedService},
			}, true
		}
		ack, herr := handler(h.InvokeID, raw[h.BodyOffset:])
		return d.outcomeFor(h.InvokeID, ack, herr), true

	default:
		return Outcome{}, false
	}
}

func (d *Dispatcher) outcomeFor(invokeID byte, ack []byte, err error) Outcome {
	if err == nil {
		if ack == nil {
			return Outcome{Type: apdu.PDUSimpleACK, InvokeID: invokeID}
		}
		return Outcome{Type: apdu.PDUComplexACK, InvokeID: invokeID, Body: ack}
	}
	switch v := err.(type) {
	case apdu.Reject:
		return Outcome{Type: apdu.PDUReject, InvokeID: invokeID, Reject: v}
	case apdu.Abort:
		return Outcome{Type: apdu.PDUAbort, InvokeID: invokeID, Abort: v}
	case apdu.Error:
		return Outcome{Type: apdu.PDUError, InvokeID: invokeID, ErrVal: v}
	default:
		// A decoding failure inside the handler that didn't bother to
		// wrap itself in one of the three taxonomies, per §7: "a
		// decoding failure yields Abort OTHER".
		return Outcome{Type: apdu.PDUAbort, InvokeID: invokeID, Abort: apdu.Abort{Reason: apdu.AbortOther}}
	}
}

// ErrMissingRequiredParameter is a convenience a ConfirmedHandler can
// return when a required field is absent from the body, per §7.
var ErrMissingRequiredParameter = apdu.Reject{Reason: apdu.RejectMissingRequiredParameter}
