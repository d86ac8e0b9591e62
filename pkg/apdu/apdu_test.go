package apdu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaderRoundTripConfirmedRequest(t *testing.T) {
	buf := make([]byte, 16)
	n, err := EncodeHeader(buf, Header{
		Type:          PDUConfirmedRequest,
		InvokeID:      7,
		ServiceChoice: 0x0C,
	})
	assert.NoError(t, err)

	h, err := ParseHeader(buf[:n])
	assert.NoError(t, err)
	assert.Equal(t, PDUConfirmedRequest, h.Type)
	assert.Equal(t, byte(7), h.InvokeID)
	assert.Equal(t, byte(0x0C), h.ServiceChoice)
}

func TestHeaderRoundTripAbort(t *testing.T) {
	buf := make([]byte, 16)
	n, err := EncodeHeader(buf, Header{Type: PDUAbort, InvokeID: 42})
	assert.NoError(t, err)

	h, err := ParseHeader(buf[:n])
	assert.NoError(t, err)
	assert.Equal(t, PDUAbort, h.Type)
	assert.Equal(t, byte(42), h.InvokeID)
}

func TestParseHeaderTooShort(t *testing.T) {
	_, err := ParseHeader([]byte{byte(PDUConfirmedRequest) << 4})
	assert.ErrorIs(t, err, ErrTooShort)
}

func TestAbortDescriptionProprietary(t *testing.T) {
	a := Abort{Reason: AbortProprietary, Code: 99}
	assert.Equal(t, "proprietary(99)", a.Description())
}

func TestUnknownErrorNormalizes(t *testing.T) {
	e := UnknownError()
	assert.Equal(t, ErrorClassServices, e.Class)
	assert.Equal(t, ErrorCodeOther, e.Code)
}
