// Package clock implements the three Clock flavors of spec §4.B: a wall
// (dummy) clock, a timer-peripheral clock, and a virtual clock that never
// advances until asked. All scheduling elsewhere in this module goes
// through this interface so tests can swap in the virtual flavor and run
// entire scenarios without sleeping.
package clock

import "time"

// Clock converts between ticks (the scheduler's unit) and seconds.
type Clock interface {
	Ticks() int64
	Time() float64
	Ticks2Time(t int64) float64
	Time2Ticks(s float64) int64
	Sec2Ticks(s float64) int64
}

// TicksPerSec is the default tick rate shared by the Timer clock and every
// peripheral that derives airtime from it.
const TicksPerSec = 32768

// Wall is the identity-at-zero dummy clock: ticks and seconds are the same
// axis, both starting at 0. Used where no real timer peripheral has been
// registered yet.
type Wall struct{}

func NewWall() *Wall { return &Wall{} }

func (w *Wall) Ticks() int64               { return 0 }
func (w *Wall) Time() float64              { return 0 }
func (w *Wall) Ticks2Time(t int64) float64 { return float64(t) }
func (w *Wall) Time2Ticks(s float64) int64 { return int64(s) }
func (w *Wall) Sec2Ticks(s float64) int64  { return int64(s * 1) }

// Timer is the hardware-timer-peripheral clock: ticks run at TicksPerSec,
// and Time() is offset by an epoch captured at first instantiation.
type Timer struct {
	epoch float64
	ticks int64
}

// NewTimer captures "now" as epoch and starts ticks at 0.
func NewTimer() *Timer {
	return &Timer{epoch: float64(time.Now().UnixNano()) / 1e9}
}

// NewTimerAt is NewTimer with an explicit epoch, for reproducible tests.
func NewTimerAt(epoch float64) *Timer {
	return &Timer{epoch: epoch}
}

func (t *Timer) Ticks() int64 { return t.ticks }

// Advance moves the timer's tick counter forward by delta ticks (fired by
// the Timer peripheral's svc(0) handler arming a host callback).
func (t *Timer) Advance(delta int64) { t.ticks += delta }

// Set jumps the tick counter directly, used on reset.
func (t *Timer) Set(ticks int64) { t.ticks = ticks }

func (t *Timer) Time() float64               { return t.epoch + float64(t.ticks)/TicksPerSec }
func (t *Timer) Ticks2Time(tk int64) float64 { return t.epoch + float64(tk)/TicksPerSec }
func (t *Timer) Time2Ticks(s float64) int64  { return int64((s - t.epoch) * TicksPerSec) }
func (t *Timer) Sec2Ticks(s float64) int64   { return int64(s * TicksPerSec) }

// Virtual is the deterministic test clock of spec §4.B and §5: it stores
// its own now_s and never advances except when explicitly jumped forward
// by the scheduler's driver loop to the next pending event's time. This is
// what lets whole test suites run instantly and deterministically.
type Virtual struct {
	nowS float64
}

// NewVirtual starts the virtual clock at t0 seconds (0 by default).
func NewVirtual(t0 float64) *Virtual {
	return &Virtual{nowS: t0}
}

func (v *Virtual) Ticks() int64  { return v.Time2Ticks(v.nowS) }
func (v *Virtual) Time() float64 { return v.nowS }

// JumpTo advances now_s forward to t, the time of the next scheduled job.
// Jumping backward is a caller error and is ignored (the simulation's
// virtual clock is monotonic by construction).
func (v *Virtual) JumpTo(t float64) {
	if t > v.nowS {
		v.nowS = t
	}
}

func (v *Virtual) Ticks2Time(t int64) float64 { return float64(t) / TicksPerSec }
func (v *Virtual) Time2Ticks(s float64) int64 { return int64(s * TicksPerSec) }
func (v *Virtual) Sec2Ticks(s float64) int64  { return int64(s * TicksPerSec) }
