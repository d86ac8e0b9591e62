package mstp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestSlave(station byte) (*Slave, *[]byte) {
	p := NewPort(station, DefaultTunables, 64)
	var lastTx []byte
	s := NewSlave(p)
	s.Transmit = func(buf []byte) bool {
		cp := make([]byte, len(buf))
		copy(cp, buf)
		lastTx = cp
		return true
	}
	return s, &lastTx
}

func TestSlaveAnswersTestRequest(t *testing.T) {
	s, lastTx := newTestSlave(10)
	s.Port.dest = 10
	s.Port.src = 20
	s.Port.frameType = FrameTypeTestRequest
	s.Port.dataLength = 0
	s.Port.Events.ValidFrameForUs = true

	s.Tick(1)

	decoded, err := Decode(*lastTx)
	assert.NoError(t, err)
	assert.Equal(t, FrameTypeTestResponse, decoded.Type)
	assert.Equal(t, byte(20), decoded.Destination)
	assert.Equal(t, byte(10), decoded.Source)
}

func TestSlaveDropsBroadcastDER(t *testing.T) {
	s, lastTx := newTestSlave(10)
	s.Port.dest = Broadcast
	s.Port.src = 20
	s.Port.frameType = FrameTypeBACnetDataExpectingReply
	s.Port.dataLength = 0
	s.Port.Events.ValidFrameForUs = true

	s.Tick(1)

	assert.Nil(t, *lastTx)
	assert.Nil(t, s.waiting)
}

func TestSlaveReplyDeadlineDropsSilently(t *testing.T) {
	s, lastTx := newTestSlave(10)
	s.Port.dest = 10
	s.Port.src = 20
	s.Port.frameType = FrameTypeBACnetDataExpectingReply
	s.Port.dataLength = 0
	s.Port.Events.ValidFrameForUs = true

	s.Tick(1)
	assert.NotNil(t, s.waiting)

	*lastTx = nil
	s.Tick(s.Port.Tunables.TReplyDelay + 1)

	assert.Nil(t, *lastTx)
	assert.Nil(t, s.waiting)
}

func TestSlaveTryReplyAnswersWithinDeadline(t *testing.T) {
	s, lastTx := newTestSlave(10)
	s.TryReply = func() ([]byte, bool) { return []byte{0xAB}, true }
	s.Port.dest = 10
	s.Port.src = 20
	s.Port.frameType = FrameTypeBACnetDataExpectingReply
	s.Port.dataLength = 0
	s.Port.Events.ValidFrameForUs = true

	s.Tick(1)
	*lastTx = nil
	s.Tick(1)

	decoded, err := Decode(*lastTx)
	assert.NoError(t, err)
	assert.Equal(t, FrameTypeBACnetDataNotExpectingReply, decoded.Type)
	assert.Equal(t, []byte{0xAB}, decoded.Data)
}
