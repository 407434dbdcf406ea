// Package radio implements the Radio peripheral of spec §4.H: the bridge
// between firmware's svc ABI and the shared Medium's Transmitter/Receiver,
// per spec §4.D/§4.E.
package radio

import (
	"math"

	"github.com/google/uuid"

	"github.com/agsys/lorasim/internal/emulator"
	"github.com/agsys/lorasim/internal/medium"
	"github.com/agsys/lorasim/internal/peripheral"
	"github.com/agsys/lorasim/internal/peripheral/nvic"
)

// UUID is Radio's statically-assigned peripheral identity.
var UUID = uuid.MustParse("8c6a3e10-2f2e-4a5b-9e1b-000000000006")

const bufSize = 256

const (
	offFreq      = 0
	offRps       = 4
	offXpow      = 8 // float32 bits
	offNpreamble = 12
	offStatus    = 16
	offXtimeLo   = 20
	offXtimeHi   = 24
	offPlen      = 28
	offBuf       = 32
)

// Status codes written to the status register on phase completion.
const (
	StatusIdle   = 0
	StatusTxDone = 1
	StatusRxDone = 2
	StatusRxTout = 3
)

func init() {
	peripheral.Register(UUID, New)
}

// Radio is the Radio peripheral: {freq, rps, xpow, npreamble, status,
// xtime (64-bit, two registers), plen, buf[256]}. It owns one
// medium.Transmitter and one medium.Receiver over the device's shared
// Medium, and listens for its own transmissions completing.
type Radio struct {
	peripheral.Page
	pid  uint32
	e    *emulator.Emulator
	nvic *nvic.NVIC

	ctx peripheral.DeviceContext
	tx  *medium.Transmitter
	rx  *medium.Receiver
}

// New satisfies emulator.Factory. The Emulator's Context() must already be
// set to a peripheral.DeviceContext before a Radio is registered.
func New(e *emulator.Emulator, pid uint32) (emulator.Peripheral, error) {
	ctx, _ := e.Context().(peripheral.DeviceContext)
	r := &Radio{pid: pid, e: e, ctx: ctx}
	if ctx != nil {
		r.tx = medium.NewTransmitter(ctx.Scheduler(), ctx.Medium())
		r.rx = medium.NewReceiver(ctx.Scheduler(), ctx.Medium(), ctx.Clock())
		ctx.Medium().AddListener(r, medium.Tick(ctx.Clock().Ticks()))
	}
	if n, ok := e.NVICHandle().(*nvic.NVIC); ok {
		r.nvic = n
	}
	return r, nil
}

// Svc implements emulator.Peripheral: 0=reset, 1=tx, 2=rx, 3=clear-irq.
func (r *Radio) Svc(fid uint16, p1, p2, p3 uint32) uint32 {
	switch fid {
	case 0:
		r.reset()
	case 1:
		r.startTx()
	case 2:
		r.startRx()
	case 3:
		if r.nvic != nil {
			r.nvic.Clear(r.pid)
		}
	}
	return 0
}

func (r *Radio) reset() {
	if r.tx != nil {
		r.tx.Abort()
	}
	if r.rx != nil {
		r.rx.Reset()
	}
	r.WriteReg(offStatus, StatusIdle)
}

func (r *Radio) rps() medium.Rps {
	return medium.Rps(r.ReadReg(offRps))
}

func (r *Radio) writeXtime(tick medium.Tick) {
	r.WriteReg(offXtimeLo, uint32(tick))
	r.WriteReg(offXtimeHi, uint32(tick>>32))
}

func (r *Radio) raise() {
	if r.nvic != nil {
		r.nvic.Set(r.pid)
	}
}

func (r *Radio) startTx() {
	if r.ctx == nil || r.tx == nil {
		return
	}
	freq := r.ReadReg(offFreq)
	rps := r.rps()
	xpow := float64(math.Float32frombits(r.ReadReg(offXpow)))
	npreamble := int(r.ReadReg(offNpreamble))
	plen := int(r.ReadReg(offPlen))
	if plen > bufSize {
		plen = bufSize
	}
	pdu := make([]byte, plen)
	copy(pdu, r.Bytes(offBuf, plen))

	clk := r.ctx.Clock()
	dro := medium.DefaultDro(rps.Sf(), rps.Bw())
	msg := medium.NewLoraMsg(clk, medium.Tick(clk.Ticks()), pdu, freq, rps, xpow, npreamble, dro, r)
	_ = r.tx.Transmit(msg)
}

func (r *Radio) startRx() {
	if r.ctx == nil || r.rx == nil {
		return
	}
	freq := r.ReadReg(offFreq)
	rps := r.rps()
	npreamble := int(r.ReadReg(offNpreamble))
	if npreamble == 0 {
		npreamble = 8
	}
	clk := r.ctx.Clock()
	timeoutTicks := medium.Tick(clk.Sec2Ticks(medium.Symtime(rps, npreamble)))
	deadline := medium.Tick(clk.Ticks()) + timeoutTicks

	r.rx.Arm(freq, rps, deadline, func(m *medium.LoraMsg) {
		if m == nil {
			r.WriteReg(offStatus, StatusRxTout)
			r.writeXtime(medium.Tick(r.ctx.Clock().Ticks()))
			r.raise()
			return
		}
		n := len(m.Pdu)
		if n > bufSize {
			n = bufSize
		}
		r.SetBytes(offBuf, m.Pdu[:n])
		r.WriteReg(offPlen, uint32(n))
		r.WriteReg(offStatus, StatusRxDone)
		r.writeXtime(m.Xend)
		r.raise()
	})
}

// MsgPreamble implements medium.Listener; Radio itself doesn't react to
// on-air preambles (that's the embedded Receiver's job).
func (r *Radio) MsgPreamble(m *medium.LoraMsg, t medium.Tick) {}

// MsgPayload implements medium.Listener.
func (r *Radio) MsgPayload(m *medium.LoraMsg) {}

// MsgComplete implements medium.Listener: when one of Radio's own
// transmissions completes, record TXDONE and raise the interrupt line.
func (r *Radio) MsgComplete(m *medium.LoraMsg) {
	if m.Src != r {
		return
	}
	r.WriteReg(offStatus, StatusTxDone)
	r.writeXtime(m.Xend)
	r.raise()
}

// MsgAbort implements medium.Listener.
func (r *Radio) MsgAbort(m *medium.LoraMsg) {}
