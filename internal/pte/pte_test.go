package pte

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agsys/lorasim/internal/emulator"
)

func TestCOBSRoundTripWithEmbeddedZeros(t *testing.T) {
	data := []byte{0x11, 0x00, 0x00, 0x22, 0x33, 0x00, 0x44}
	enc := Encode(data)
	require.NotContains(t, enc, byte(0x00))

	dec, err := Decode(enc)
	require.NoError(t, err)
	require.Equal(t, data, dec)
}

func TestCOBSRoundTripOver254RunLength(t *testing.T) {
	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i%255 + 1) // non-zero throughout
	}
	enc := Encode(data)
	dec, err := Decode(enc)
	require.NoError(t, err)
	require.Equal(t, data, dec)
}

func TestPackUnpackRoundTrip(t *testing.T) {
	f := Frame{Cmd: CmdEERead, Tag: 0xBEEF, Payload: []byte{1, 2, 3}}
	raw := Pack(f)
	got, err := Unpack(raw)
	require.NoError(t, err)
	require.Equal(t, f, got)
}

func TestUnpackRejectsBadCRC(t *testing.T) {
	f := Frame{Cmd: CmdNOP, Tag: 1}
	raw := Pack(f)
	raw[len(raw)-1] ^= 0xFF
	_, err := Unpack(raw)
	require.ErrorIs(t, err, ErrCRCMismatch)
}

func TestEncodeDecodeWireFrameRoundTrip(t *testing.T) {
	f := Frame{Cmd: CmdRUN, Tag: 7, Payload: []byte{0x00, 0x01, 0x00}}
	wire := EncodeWireFrame(f)
	require.Equal(t, byte(0x00), wire[len(wire)-1])

	got, err := DecodeWireFrame(wire)
	require.NoError(t, err)
	require.Equal(t, f, got)
}

func newTestEmulator(t *testing.T) *emulator.Emulator {
	t.Helper()
	mem := emulator.NewMemory(emulator.DefaultRAMSize, emulator.DefaultFlashSize, emulator.DefaultEESize)
	asm := emulator.NewAsm().SVC()
	flash := emulator.BuildFlashImage(0x1000, asm.Bytes())
	e := emulator.New(mem, nil)
	require.NoError(t, e.Reset(flash))
	return e
}

func TestDispatchEEWriteThenReadRoundTrip(t *testing.T) {
	e := newTestEmulator(t)

	writeReq := Frame{Cmd: CmdEEWrite, Tag: 1, Payload: append([]byte{0, 0, 0, 0}, []byte("hello, eeprom")...)}
	writeResp := Dispatch(e, writeReq)
	require.Equal(t, byte(0x00), writeResp.Payload[0])

	readReq := Frame{Cmd: CmdEERead, Tag: 2, Payload: []byte{0, 0, 0, 0, 13}}
	readResp := Dispatch(e, readReq)
	require.Equal(t, byte(0x00), readResp.Payload[0])
	require.Equal(t, []byte("hello, eeprom"), readResp.Payload[1:])
}

func TestDispatchEEReadRejectsOutOfRangeParams(t *testing.T) {
	e := newTestEmulator(t)
	resp := Dispatch(e, Frame{Cmd: CmdEERead, Tag: 1, Payload: []byte{0, 0, 0}})
	require.Equal(t, byte(ResultEPARAM), resp.Payload[0])
}

func TestDispatchUnknownCommandIsNoImpl(t *testing.T) {
	e := newTestEmulator(t)
	resp := Dispatch(e, Frame{Cmd: 0x7F, Tag: 1})
	require.Equal(t, byte(ResultNOIMPL), resp.Payload[0])
}

func TestDispatchResetReloadsFlash(t *testing.T) {
	e := newTestEmulator(t)
	resp := Dispatch(e, Frame{Cmd: CmdRESET, Tag: 1})
	require.Equal(t, byte(0x00), resp.Payload[0])
	require.True(t, e.Running())
}
