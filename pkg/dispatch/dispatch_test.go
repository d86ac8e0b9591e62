package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sfcoop/gomstp/pkg/apdu"
)

func confirmedRequest(invokeID, serviceChoice byte, segmented bool, body []byte) []byte {
	flags := byte(apdu.PDUConfirmedRequest) << 4
	if segmented {
		flags |= 0x08
	}
	buf := []byte{flags, invokeID, serviceChoice}
	return append(buf, body...)
}

func TestDispatchUnrecognizedServiceRejects(t *testing.T) {
	d := New()
	out, ok := d.Dispatch(confirmedRequest(1, 0x99, false, nil))
	assert.True(t, ok)
	assert.Equal(t, apdu.PDUReject, out.Type)
	assert.Equal(t, apdu.RejectUnrecognizedService, out.Reject.Reason)
}

func TestDispatchSegmentedAborts(t *testing.T) {
	d := New()
	d.RegisterConfirmed(0x0C, func(byte, []byte) ([]byte, error) { return nil, nil })

	out, ok := d.Dispatch(confirmedRequest(1, 0x0C, true, nil))
	assert.True(t, ok)
	assert.Equal(t, apdu.PDUAbort, out.Type)
	assert.Equal(t, apdu.AbortSegmentationNotSupported, out.Abort.Reason)
}

func TestDispatchSimpleAckOnNilReturn(t *testing.T) {
	d := New()
	d.RegisterConfirmed(0x0F, func(byte, []byte) ([]byte, error) { return nil, nil })

	out, ok := d.Dispatch(confirmedRequest(5, 0x0F, false, []byte{0x01}))
	assert.True(t, ok)
	assert.Equal(t, apdu.PDUSimpleACK, out.Type)
	assert.Equal(t, byte(5), out.InvokeID)
}

func TestDispatchComplexAckCarriesBody(t *testing.T) {
	d := New()
	d.RegisterConfirmed(0x0C, func(byte, []byte) ([]byte, error) { return []byte{0xAA, 0xBB}, nil })

	out, ok := d.Dispatch(confirmedRequest(5, 0x0C, false, nil))
	assert.True(t, ok)
	assert.Equal(t, apdu.PDUComplexACK, out.Type)
	assert.Equal(t, []byte{0xAA, 0xBB}, out.Body)
}

func TestDispatchMissingRequiredParameterRejects(t *testing.T) {
	d := New()
	d.RegisterConfirmed(0x0F, func(byte, []byte) ([]byte, error) { return nil, ErrMissingRequiredParameter })

	out, ok := d.Dispatch(confirmedRequest(1, 0x0F, false, nil))
	assert.True(t, ok)
	assert.Equal(t, apdu.PDUReject, out.Type)
	assert.Equal(t, apdu.RejectMissingRequiredParameter, out.Reject.Reason)
}

func TestDispatchDecodeFailureAbortsOther(t *testing.T) {
	d := New()
	d.RegisterConfirmed(0x0F, func(byte, []byte) ([]byte, error) { return nil, assertErr{} })

	out, ok := d.Dispatch(confirmedRequest(1, 0x0F, false, nil))
	assert.True(t, ok)
	assert.Equal(t, apdu.PDUAbort, out.Type)
	assert.Equal(t, apdu.AbortOther, out.Abort.Reason)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestDispatchUnconfirmedInvokesHandlerAndNeverReplies(t *testing.T) {
	d := New()
	var seen []byte
	d.RegisterUnconfirmed(0x08, func(body []byte) error {
		seen = body
		return nil
	})

	buf := []byte{byte(apdu.PDUUnconfirmedRequest) << 4, 0x08, 0x01, 0x02}
	out, ok := d.Dispatch(buf)
	assert.False(t, ok)
	assert.Equal(t, Outcome{}, out)
	assert.Equal(t, []byte{0x01, 0x02}, seen)
}
