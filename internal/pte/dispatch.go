package pte

import (
	"encoding/binary"

	"github.com/agsys/lorasim/internal/emulator"
)

// Dispatch executes one decoded command Frame against e and returns the
// response Frame, per spec §6's `{cmd,tag,len,payload}` request/response
// shape. The response payload's first byte is the result code (0x00 on
// success, or one of the 0x8x/0xFx codes on error); any remaining bytes
// are command-specific data (EE_READ's returned bytes).
func Dispatch(e *emulator.Emulator, req Frame) Frame {
	switch req.Cmd {
	case CmdNOP:
		return ok(req, nil)

	case CmdRUN:
		e.Wake()
		return ok(req, nil)

	case CmdRESET:
		if err := e.Reset(nil); err != nil {
			return fail(req, ResultINTERR)
		}
		return ok(req, nil)

	case CmdEERead:
		if len(req.Payload) < 5 {
			return fail(req, ResultEPARAM)
		}
		addr := binary.LittleEndian.Uint32(req.Payload[0:4])
		n := int(req.Payload[4])
		data, err := e.Mem.ReadBytes(emulator.EEBase+addr, n)
		if err != nil {
			return fail(req, ResultEPARAM)
		}
		return ok(req, data)

	case CmdEEWrite:
		if len(req.Payload) < 4 {
			return fail(req, ResultEPARAM)
		}
		addr := binary.LittleEndian.Uint32(req.Payload[0:4])
		data := req.Payload[4:]
		if err := e.Mem.WriteBytes(emulator.EEBase+addr, data); err != nil {
			return fail(req, ResultEPARAM)
		}
		return ok(req, nil)

	default:
		return fail(req, ResultNOIMPL)
	}
}

func ok(req Frame, data []byte) Frame {
	payload := append([]byte{0x00}, data...)
	return Frame{Cmd: req.Cmd, Tag: req.Tag, Payload: payload}
}

func fail(req Frame, code byte) Frame {
	return Frame{Cmd: req.Cmd, Tag: req.Tag, Payload: []byte{code}}
}
