// Package gpio implements the GPIO peripheral of spec §4.H: a 32-pin
// register page plus a host-side "external world" API (Drive/WaitFor) that
// lets test harnesses drive or read pins the way real test jigs do.
package gpio

import (
	"errors"

	"github.com/google/uuid"

	"github.com/agsys/lorasim/internal/emulator"
	"github.com/agsys/lorasim/internal/peripheral"
	"github.com/agsys/lorasim/internal/peripheral/nvic"
)

// UUID is GPIO's statically-assigned peripheral identity.
var UUID = uuid.MustParse("8c6a3e10-2f2e-4a5b-9e1b-000000000004")

const (
	offValue = 0
	offOutm  = 4
	offOutv  = 8
	offPdn   = 12
	offPup   = 16
	offRise  = 20
	offFall  = 24
	offIrq   = 28
)

func init() {
	peripheral.Register(UUID, New)
}

// ErrShortCircuit is returned by Drive when an external driver and
// firmware's own output mode conflict on the same pin — an invariant
// violation, per spec §7.
var ErrShortCircuit = errors.New("gpio: short-circuited pin (internal and external drivers both active)")

// GPIO is the GPIO peripheral: {value, outm, outv, pdn, pup, rise, fall,
// irq}, plus the pid its NVIC line is raised on.
type GPIO struct {
	peripheral.Page
	pid  uint32
	nvic *nvic.NVIC

	extDriven [32]bool
	extValue  [32]bool

	rngState uint64
	waiters  map[int]chan bool
}

// New satisfies emulator.Factory.
func New(e *emulator.Emulator, pid uint32) (emulator.Peripheral, error) {
	g := &GPIO{pid: pid, rngState: 0x9E3779B97F4A7C15, waiters: make(map[int]chan bool)}
	if n, ok := e.NVICHandle().(*nvic.NVIC); ok {
		g.nvic = n
	}
	return g, nil
}

// Svc implements emulator.Peripheral: fid 0 recomputes value via update().
// It leaves the irq register as it is.
func (g *GPIO) Svc(fid uint16, p1, p2, p3 uint32) uint32 {
	if fid == 0 {
		g.update()
	}
	return 0
}

func (g *GPIO) nextRandomBit(pin int) bool {
	// A tiny deterministic xorshift64*, not math/rand: this simulator's
	// whole point is reproducible runs, so floating-pin noise must be a
	// pure function of call order, not wall-clock entropy.
	g.rngState ^= g.rngState << 13
	g.rngState ^= g.rngState >> 7
	g.rngState ^= g.rngState << 17
	return (g.rngState>>uint(pin%64))&1 == 1
}

// update recomputes `value` per spec §4.H: pull-ups, then floating-pin
// noise, then override with internal (outm/outv) or external drivers, then
// raises edge IRQs and the NVIC line if anything is newly pending.
func (g *GPIO) update() {
	outm := g.ReadReg(offOutm)
	outv := g.ReadReg(offOutv)
	pdn := g.ReadReg(offPdn)
	pup := g.ReadReg(offPup)
	rise := g.ReadReg(offRise)
	fall := g.ReadReg(offFall)
	oldValue := g.ReadReg(offValue)

	var newValue uint32
	for pin := 0; pin < 32; pin++ {
		bit := uint32(1) << uint(pin)
		var v bool
		switch {
		case pup&bit != 0:
			v = true
		case pdn&bit != 0:
			v = false
		default:
			v = g.nextRandomBit(pin)
		}
		if outm&bit != 0 {
			v = outv&bit != 0
		}
		if g.extDriven[pin] {
			v = g.extValue[pin]
		}
		if v {
			newValue |= bit
		}
	}
	g.WriteReg(offValue, newValue)

	changed := oldValue ^ newValue
	irq := (rise & changed & newValue) | (fall & changed &^ newValue)
	if irq != 0 {
		g.WriteReg(offIrq, g.ReadReg(offIrq)|irq)
		if g.nvic != nil {
			g.nvic.Set(g.pid)
		}
	}

	for pin, ch := range g.waiters {
		bit := uint32(1) << uint(pin)
		select {
		case ch <- newValue&bit != 0:
		default:
		}
	}
}

// Drive sets (or releases, when level is nil) an external driver on pio,
// then recomputes value. Returns ErrShortCircuit if firmware's own output
// mode is simultaneously active on the same pin.
func (g *GPIO) Drive(pio int, level *bool) error {
	outm := g.ReadReg(offOutm)
	if level != nil && outm&(1<<uint(pio)) != 0 {
		return ErrShortCircuit
	}
	if level == nil {
		g.extDriven[pio] = false
	} else {
		g.extDriven[pio] = true
		g.extValue[pio] = *level
	}
	g.update()
	return nil
}

// WaitFor returns a channel on which every later update() offers pio's
// current level, whatever that level is; it does not wait for a particular
// level. The channel buffers one value, and update() drops its value while
// the previous one is unread. A second WaitFor on the same pio replaces the
// first channel. Callers should re-check ch after a send since update() may
// race a subsequent Drive.
func (g *GPIO) WaitFor(pio int) <-chan bool {
	ch := make(chan bool, 1)
	g.waiters[pio] = ch
	return ch
}
