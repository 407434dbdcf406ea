// Package fastuart implements the FastUART peripheral of spec §4.H: a
// whole-frame (not byte-at-a-time) serial link. Firmware fills txbuf/txlen
// and calls svc(0) to hand a frame to the host; the host calls Send to
// deliver an inbound frame, which raises the NVIC line.
package fastuart

import (
	"github.com/google/uuid"

	"github.com/agsys/lorasim/internal/emulator"
	"github.com/agsys/lorasim/internal/peripheral"
	"github.com/agsys/lorasim/internal/peripheral/nvic"
)

// UUID is FastUART's statically-assigned peripheral identity.
var UUID = uuid.MustParse("8c6a3e10-2f2e-4a5b-9e1b-000000000005")

const (
	bufSize = 256

	offCtrl  = 0
	offTxLen = 4
	offTxBuf = 8
	offRxLen = offTxBuf + bufSize
	offRxBuf = offRxLen + 4

	ctrlRxEn = 1 << 0
)

func init() {
	peripheral.Register(UUID, New)
}

// RecvFunc is notified with a copy of each frame firmware hands to the
// host via svc(0).
type RecvFunc func(data []byte)

// FastUART is the whole-frame serial peripheral: {ctrl, txlen, txbuf[256],
// rxlen, rxbuf[256]}.
type FastUART struct {
	peripheral.Page
	pid  uint32
	nvic *nvic.NVIC

	onSend RecvFunc
}

// New satisfies emulator.Factory.
func New(e *emulator.Emulator, pid uint32) (emulator.Peripheral, error) {
	f := &FastUART{pid: pid}
	if n, ok := e.NVICHandle().(*nvic.NVIC); ok {
		f.nvic = n
	}
	return f, nil
}

// OnSend registers the callback invoked whenever firmware transmits a
// frame. Typically wired by the device harness to forward bytes to a PTE
// or FUOTA host-side decoder.
func (f *FastUART) OnSend(cb RecvFunc) { f.onSend = cb }

// Svc implements emulator.Peripheral. fid 0 = firmware has a frame ready
// in txbuf/txlen; fid 1 = firmware acks/clears its rx-pending interrupt.
func (f *FastUART) Svc(fid uint16, p1, p2, p3 uint32) uint32 {
	switch fid {
	case 0:
		n := int(f.ReadReg(offTxLen))
		if n > bufSize {
			n = bufSize
		}
		data := make([]byte, n)
		copy(data, f.Bytes(offTxBuf, n))
		if f.onSend != nil {
			f.onSend(data)
		}
	case 1:
		if f.nvic != nil {
			f.nvic.Clear(f.pid)
		}
	}
	return 0
}

// RxEnabled reports whether firmware has set C_RXEN in ctrl.
func (f *FastUART) RxEnabled() bool {
	return f.ReadReg(offCtrl)&ctrlRxEn != 0
}

// Send delivers an inbound frame from the host, if firmware has enabled
// receive. Frames larger than the buffer are truncated. Raises the NVIC
// line so firmware's ISR can read rxbuf/rxlen.
func (f *FastUART) Send(data []byte) {
	if !f.RxEnabled() {
		return
	}
	n := len(data)
	if n > bufSize {
		n = bufSize
	}
	f.SetBytes(offRxBuf, data[:n])
	f.WriteReg(offRxLen, uint32(n))
	if f.nvic != nil {
		f.nvic.Set(f.pid)
	}
}
