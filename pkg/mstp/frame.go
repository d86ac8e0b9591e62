package mstp

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"github.com/sfcoop/gomstp/internal/cobs"
	"github.com/sfcoop/gomstp/internal/crc"
)

// ErrBufferOverflow is returned by Encode when buffer is too small to
// hold the encoded frame.
var ErrBufferOverflow = errors.New("mstp: frame buffer overflow")

// ErrExtendedUnsupported names the failure of an encoder that speaks only
// the classic profile. Encode in this package accepts extended
// (COBS-encoded) frame types and never returns it.
var ErrExtendedUnsupported = errors.New("mstp: extended frame types not supported by this encoder")

// Encode writes f onto buffer in MS/TP wire form and returns the number
// of bytes written. It returns (0, ErrBufferOverflow) if buffer is too
// small. Classic frame types use the fixed six-byte header plus a
// 16-bit CRC trailer; extended frame types are COBS-encoded with a
// CRC-32 appended before encoding, per §4.2's accommodation for
// CRC-32 coverage.
func Encode(buffer []byte, f Frame) (int, error) {
	if f.Type.Extended() {
		return encodeExtended(buffer, f)
	}
	return encodeClassic(buffer, f)
}

func encodeClassic(buffer []byte, f Frame) (int, error) {
	n := 8 + len(f.Data)
	if len(f.Data) > 0 {
		n += 2
	}
	if len(buffer) < n {
		return 0, ErrBufferOverflow
	}
	if len(f.Data) > MaxClassicDataLength {
		return 0, ErrBufferOverflow
	}

	buffer[0] = preambleByte1
	buffer[1] = preambleByte2
	buffer[2] = byte(f.Type)
	buffer[3] = f.Destination
	buffer[4] = f.Source
	binary.BigEndian.PutUint16(buffer[5:7], uint16(len(f.Data)))

	hacc := crc.Header8Init.Bytes(buffer[2:7])
	buffer[7] = hacc.Complement()

	if len(f.Data) == 0 {
		return 8, nil
	}

	copy(buffer[8:], f.Data)
	dacc := crc.Data16Init.Bytes(f.Data)
	tail := dacc.ComplementBytes()
	buffer[8+len(f.Data)] = tail[0]
	buffer[8+len(f.Data)+1] = tail[1]
	return n, nil
}

func encodeExtended(buffer []byte, f Frame) (int, error) {
	payload := make([]byte, len(f.Data)+4)
	copy(payload, f.Data)
	sum := crc32.ChecksumIEEE(f.Data)
	binary.LittleEndian.PutUint32(payload[len(f.Data):], sum)

	encoded := cobs.Encode(payload)
	if len(encoded) < 2 {
		return 0, ErrBufferOverflow
	}
	wireLen := len(encoded) - 2

	n := 8 + len(encoded)
	if len(buffer) < n {
		return 0, ErrBufferOverflow
	}

	buffer[0] = preambleByte1
	buffer[1] = preambleByte2
	buffer[2] = byte(f.Type)
	buffer[3] = f.Destination
	buffer[4] = f.Source
	binary.BigEndian.PutUint16(buffer[5:7], uint16(wireLen))

	hacc := crc.Header8Init.Bytes(buffer[2:7])
	buffer[7] = hacc.Complement()

	copy(buffer[8:], encoded)
	return n, nil
}

// Decode reverses Encode for a classic or extended frame whose full
// extent (header through the data CRC trailer or COBS block) is already
// present in buffer. It does
// not perform framing; that is the receive FSM's job. Decode exists
// mainly to round-trip Encode output in tests and for loopback/virtual
// transports that hand over whole frames instead of octet streams.
func Decode(buffer []byte) (Frame, error) {
	if len(buffer) < 8 {
		return Frame{}, ErrBufferOverflow
	}
	if buffer[0] != preambleByte1 || buffer[1] != preambleByte2 {
		return Frame{}, errBadPreamble
	}
	hacc := crc.Header8Init.Bytes(buffer[2:8])
	if hacc != crc.Header8Good {
		return Frame{}, errBadHeaderCRC
	}

	typ := FrameType(buffer[2])
	dest := buffer[3]
	src := buffer[4]
	dataLen := int(binary.BigEndian.Uint16(buffer[5:7]))

	if dataLen == 0 {
		return Frame{Type: typ, Destination: dest, Source: src}, nil
	}

	if typ.Extended() {
		encodedLen := dataLen + 2
		if len(buffer) < 8+encodedLen {
			return Frame{}, ErrBufferOverflow
		}
		payload, err := cobs.Decode(buffer[8 : 8+encodedLen])
		if err != nil {
			return Frame{}, err
		}
		if len(payload) < 4 {
			return Frame{}, errBadDataCRC
		}
		data := payload[:len(payload)-4]
		want := binary.LittleEndian.Uint32(payload[len(payload)-4:])
		if crc32.ChecksumIEEE(data) != want {
			return Frame{}, errBadDataCRC
		}
		return Frame{Type: typ, Destination: dest, Source: src, Data: data}, nil
	}

	if len(buffer) < 8+dataLen+2 {
		return Frame{}, ErrBufferOverflow
	}
	data := buffer[8 : 8+dataLen]
	dacc := crc.Data16Init.Bytes(data)
	dacc = dacc.Single(buffer[8+dataLen]).Single(buffer[8+dataLen+1])
	if dacc != crc.Data16Good {
		return Frame{}, errBadDataCRC
	}
	return Frame{Type: typ, Destination: dest, Source: src, Data: data}, nil
}

var (
	errBadPreamble  = errors.New("mstp: bad preamble")
	errBadHeaderCRC = errors.New("mstp: bad header crc")
	errBadDataCRC   = errors.New("mstp: bad data crc")
)
