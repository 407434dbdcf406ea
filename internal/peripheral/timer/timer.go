// Package timer implements the Timer peripheral of spec §4.H, which
// doubles as the simulation's Clock: svc(0) arms a host callback that
// advances the shared clock.Timer and wakes the guest.
package timer

import (
	"github.com/google/uuid"

	"github.com/agsys/lorasim/internal/emulator"
	"github.com/agsys/lorasim/internal/peripheral"
)

// UUID is Timer's statically-assigned peripheral identity.
var UUID = uuid.MustParse("8c6a3e10-2f2e-4a5b-9e1b-000000000002")

const offTarget = 0

func init() {
	peripheral.Register(UUID, New)
}

// Timer is the Timer peripheral: {target: u32}. svc(0) arms a host job
// that advances the device clock by target ticks and wakes the guest.
type Timer struct {
	peripheral.Page
	e   *emulator.Emulator
	ctx peripheral.DeviceContext
}

// New satisfies emulator.Factory. The Emulator's Context() must already be
// set to a peripheral.DeviceContext before a Timer is registered.
func New(e *emulator.Emulator, pid uint32) (emulator.Peripheral, error) {
	ctx, _ := e.Context().(peripheral.DeviceContext)
	return &Timer{e: e, ctx: ctx}, nil
}

// Svc implements emulator.Peripheral. fid 0 is the only defined call.
func (t *Timer) Svc(fid uint16, p1, p2, p3 uint32) uint32 {
	if fid != 0 || t.ctx == nil {
		return 0
	}
	target := int64(t.ReadReg(offTarget))
	clk := t.ctx.Clock()
	sched := t.ctx.Scheduler()

	sched.Schedule(clk.Ticks()+target, func() {
		clk.Advance(target)
		t.e.Wake()
	})
	return 0
}
