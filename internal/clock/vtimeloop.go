package clock

import "github.com/agsys/lorasim/internal/scheduler"

// VirtualTimeLoop drives a Scheduler against a Virtual clock: instead of
// waiting on a host timer, "now" jumps straight to the next pending job's
// tick. Driving a scenario through Run or RunUntil lets tests finish
// instantly regardless of the seconds the scenario models.
type VirtualTimeLoop struct {
	clock *Virtual
	sched *scheduler.Scheduler
}

// NewVirtualTimeLoop pairs a fresh Virtual clock (starting at t0 seconds)
// with the given Scheduler.
func NewVirtualTimeLoop(sched *scheduler.Scheduler, t0 float64) *VirtualTimeLoop {
	return &VirtualTimeLoop{clock: NewVirtual(t0), sched: sched}
}

// Clock returns the underlying Virtual clock.
func (l *VirtualTimeLoop) Clock() *Virtual { return l.clock }

// Run jumps forward to each pending job in turn and steps the scheduler,
// until no job remains or the scheduler faults. It returns the fault, if
// any, so the driver can propagate it per spec §7.
func (l *VirtualTimeLoop) Run() *scheduler.Fault {
	for {
		tick, ok := l.sched.Peek()
		if !ok {
			return nil
		}
		l.clock.JumpTo(l.clock.Ticks2Time(tick))
		if fault := l.sched.Step(l.clock.Ticks()); fault != nil {
			return fault
		}
	}
}

// RunUntil behaves like Run but stops once the virtual clock reaches
// deadlineS seconds, even if jobs remain pending beyond it. Useful for
// "sleep(5s) completes without error" style assertions (spec §8, S2).
func (l *VirtualTimeLoop) RunUntil(deadlineS float64) *scheduler.Fault {
	for {
		tick, ok := l.sched.Peek()
		if !ok {
			l.clock.JumpTo(deadlineS)
			return nil
		}
		t := l.clock.Ticks2Time(tick)
		if t > deadlineS {
			l.clock.JumpTo(deadlineS)
			return nil
		}
		l.clock.JumpTo(t)
		if fault := l.sched.Step(l.clock.Ticks()); fault != nil {
			return fault
		}
	}
}
