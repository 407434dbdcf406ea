package pte

import "errors"

// ErrCOBSDecode is returned by Decode when the input isn't a well-formed
// COBS-encoded block.
var ErrCOBSDecode = errors.New("pte: malformed cobs frame")

// Encode applies Consistent Overhead Byte Stuffing to data, removing every
// zero byte from the encoded body so the caller can use 0x00 as an
// unambiguous frame delimiter. The terminator itself is appended
// separately — see EncodeFrame.
func Encode(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/254+2)
	code := byte(1)
	codeIdx := 0
	out = append(out, 0) // placeholder, patched in below

	for _, b := range data {
		if b == 0 {
			out[codeIdx] = code
			code = 1
			codeIdx = len(out)
			out = append(out, 0)
			continue
		}
		out = append(out, b)
		code++
		if code == 0xFF {
			out[codeIdx] = code
			code = 1
			codeIdx = len(out)
			out = append(out, 0)
		}
	}
	out[codeIdx] = code
	return out
}

// Decode reverses Encode, given a COBS-encoded block with its terminator
// already stripped.
func Decode(enc []byte) ([]byte, error) {
	out := make([]byte, 0, len(enc))
	i := 0
	for i < len(enc) {
		code := int(enc[i])
		if code == 0 {
			return nil, ErrCOBSDecode
		}
		i++
		end := i + code - 1
		if end > len(enc) {
			return nil, ErrCOBSDecode
		}
		out = append(out, enc[i:end]...)
		i = end
		if code != 0xFF && i < len(enc) {
			out = append(out, 0)
		}
	}
	return out, nil
}

// EncodeFrame returns data COBS-encoded with its 0x00 terminator appended.
func EncodeFrame(data []byte) []byte {
	return append(Encode(data), 0x00)
}

// DecodeFrame strips a trailing 0x00 terminator, if present, before
// decoding.
func DecodeFrame(frame []byte) ([]byte, error) {
	if len(frame) > 0 && frame[len(frame)-1] == 0x00 {
		frame = frame[:len(frame)-1]
	}
	return Decode(frame)
}
