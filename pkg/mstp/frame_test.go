package mstp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Frame{
		{Type: FrameTypeToken, Destination: 1, Source: 0},
		{Type: FrameTypePollForMaster, Destination: 2, Source: 0},
		{Type: FrameTypeBACnetDataExpectingReply, Destination: 10, Source: 1, Data: []byte{0x01, 0x02, 0x03}},
		{Type: FrameTypeBACnetDataNotExpectingReply, Destination: Broadcast, Source: 5, Data: []byte{}},
	}
	buf := make([]byte, 2048)
	for _, f := range cases {
		n, err := Encode(buf, f)
		require.NoError(t, err)
		decoded, err := Decode(buf[:n])
		require.NoError(t, err)
		assert.Equal(t, f.Type, decoded.Type)
		assert.Equal(t, f.Destination, decoded.Destination)
		assert.Equal(t, f.Source, decoded.Source)
		if len(f.Data) == 0 {
			assert.Empty(t, decoded.Data)
		} else {
			assert.Equal(t, f.Data, decoded.Data)
		}
	}
}

func TestEncodeExtendedRoundTrip(t *testing.T) {
	f := Frame{
		Type:        FrameTypeExtendedDataNotExpectingReply,
		Destination: 3,
		Source:      1,
		Data:        []byte{0x00, 0x10, 0x00, 0x20, 0x00},
	}
	buf := make([]byte, 2048)
	n, err := Encode(buf, f)
	require.NoError(t, err)

	decoded, err := Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, f.Data, decoded.Data)
	assert.Equal(t, f.Destination, decoded.Destination)
}

func TestEncodeBufferOverflow(t *testing.T) {
	f := Frame{Type: FrameTypeToken, Destination: 1, Source: 0}
	buf := make([]byte, 4)
	_, err := Encode(buf, f)
	assert.ErrorIs(t, err, ErrBufferOverflow)
}

func TestDecodeRejectsBadHeaderCRC(t *testing.T) {
	buf := make([]byte, 16)
	n, err := Encode(buf, Frame{Type: FrameTypeToken, Destination: 1, Source: 0})
	require.NoError(t, err)
	buf[7] ^= 0xFF
	_, err = Decode(buf[:n])
	assert.ErrorIs(t, err, errBadHeaderCRC)
}

func TestDecodeRejectsBadDataCRC(t *testing.T) {
	buf := make([]byte, 32)
	n, err := Encode(buf, Frame{Type: FrameTypeBACnetDataExpectingReply, Destination: 1, Source: 0, Data: []byte{1, 2, 3}})
	require.NoError(t, err)
	buf[n-1] ^= 0xFF
	_, err = Decode(buf[:n])
	assert.ErrorIs(t, err, errBadDataCRC)
}
