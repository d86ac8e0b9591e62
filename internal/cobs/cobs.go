// Package cobs implements Consistent Overhead Byte Stuffing, used by the
// MS/TP frame codec to carry the extended (CRC-32) frame types without
// embedding a literal zero byte that could be mistaken for the classic
// preamble framing. No example repo in the reference corpus ships a COBS
// codec, so this is a direct, self-contained implementation of the
// well-known algorithm rather than a wrapped ecosystem dependency.
package cobs

// Encode returns the COBS encoding of data. The input must not contain a
// length-delimiter byte itself; COBS removes all zero bytes from the
// stream by construction, so data may contain zero bytes freely.
func Encode(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/254+2)
	out = append(out, 0) // placeholder for the first code byte

	codeIndex := 0
	code := byte(1)

	flush := func() {
		out[codeIndex] = code
		codeIndex = len(out)
		out = append(out, 0) // placeholder for next code byte
		code = 1
	}

	for _, b := range data {
		if b == 0 {
			flush()
			continue
		}
		out = append(out, b)
		code++
		if code == 0xFF {
			flush()
		}
	}
	out[codeIndex] = code
	return out
}

// Decode reverses Encode. It returns an error if the input is not a
// well-formed COBS block.
func Decode(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	i := 0
	for i < len(data) {
		code := data[i]
		if code == 0 {
			return nil, ErrZeroCode
		}
		i++
		run := int(code) - 1
		if i+run > len(data) {
			return nil, ErrTruncated
		}
		out = append(out, data[i:i+run]...)
		i += run
		if code != 0xFF && i < len(data) {
			out = append(out, 0)
		}
	}
	return out, nil
}
