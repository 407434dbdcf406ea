// Package pte implements the persistence-tool (PTE) wire protocol of
// spec §6: COBS-framed commands/responses over FastUART, used for EEPROM
// read/write and remote NOP/RUN/RESET against a running device.
package pte

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// Command bytes, per spec §6.
const (
	CmdNOP     = 0x00
	CmdRUN     = 0x01
	CmdRESET   = 0x02
	CmdEERead  = 0x90
	CmdEEWrite = 0x91
)

// Result codes with the error bit (0x80) set, per spec §6.
const (
	ResultEPARAM = 0x80
	ResultINTERR = 0x81
	ResultWTX    = 0xFE
	ResultNOIMPL = 0xFF
)

// ErrFrameTooShort is returned when a decoded frame is shorter than the
// fixed header+crc overhead.
var ErrFrameTooShort = errors.New("pte: frame shorter than minimum size")

// ErrCRCMismatch is returned when a frame's trailing CRC32 doesn't match
// its contents.
var ErrCRCMismatch = errors.New("pte: crc32 mismatch")

// Frame is one decoded PTE command or response: {cmd, tag, len, payload,
// pad to 4, crc32}.
type Frame struct {
	Cmd     byte
	Tag     uint16
	Payload []byte
}

// Pack builds the COBS-ready (pre-framing) byte sequence for f: the fixed
// header, payload, zero-padding to a 4-byte boundary, and a little-endian
// CRC32 over everything preceding it.
func Pack(f Frame) []byte {
	body := make([]byte, 0, 4+len(f.Payload)+4)
	body = append(body, f.Cmd)
	var tagBuf [2]byte
	binary.LittleEndian.PutUint16(tagBuf[:], f.Tag)
	body = append(body, tagBuf[:]...)
	body = append(body, byte(len(f.Payload)))
	body = append(body, f.Payload...)

	for len(body)%4 != 0 {
		body = append(body, 0)
	}

	crc := crc32.ChecksumIEEE(body)
	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], crc)
	return append(body, crcBuf[:]...)
}

// Unpack parses the pre-framing bytes Pack produces (i.e. after COBS
// DecodeFrame has already stripped the terminator and byte-stuffing).
func Unpack(raw []byte) (Frame, error) {
	if len(raw) < 4+4 {
		return Frame{}, ErrFrameTooShort
	}
	body := raw[:len(raw)-4]
	wantCRC := binary.LittleEndian.Uint32(raw[len(raw)-4:])
	if crc32.ChecksumIEEE(body) != wantCRC {
		return Frame{}, ErrCRCMismatch
	}

	cmd := body[0]
	tag := binary.LittleEndian.Uint16(body[1:3])
	plen := int(body[3])
	if 4+plen > len(body) {
		return Frame{}, ErrFrameTooShort
	}
	payload := append([]byte(nil), body[4:4+plen]...)
	return Frame{Cmd: cmd, Tag: tag, Payload: payload}, nil
}

// EncodeWireFrame packs f and wraps it in a COBS frame (with terminator)
// ready to write to the wire (FastUART).
func EncodeWireFrame(f Frame) []byte {
	return EncodeFrame(Pack(f))
}

// DecodeWireFrame strips COBS framing and parses the resulting bytes as a
// Frame, in one call.
func DecodeWireFrame(wire []byte) (Frame, error) {
	raw, err := DecodeFrame(wire)
	if err != nil {
		return Frame{}, err
	}
	return Unpack(raw)
}
