package medium

import "github.com/agsys/lorasim/internal/scheduler"

// State is a Receiver's position in the IDLE -> ARMED -> LOCKED -> DONE
// state machine of spec §4.E.
type State int

const (
	Idle State = iota
	Armed
	Locked
	Done
)

// symdetect is the fixed number of symbols a candidate preamble must
// survive before its lock job fires, per spec §4.E step 2.
const symdetect = 5

// Callback is invoked exactly once per Arm call: with the locked message on
// successful reception, or nil on timeout/abort.
type Callback func(m *LoraMsg)

// ReceiverClock is the clock capability Receiver needs: Ticks for the tick
// to replay in-flight preambles at when it first subscribes to the Medium,
// and Sec2Ticks for converting spec §4.E's symtime(rps, n) formula (in
// seconds) into the Scheduler's tick domain for the lock/timeout jobs.
type ReceiverClock interface {
	Ticks() Tick
	Sec2Ticks(s float64) Tick
}

// Receiver listens on a Medium for a message matching a requested
// freq/rps, per spec §4.E's candidate/lock state machine: the first
// matching preamble is held as a candidate, not locked immediately, and
// only becomes the locked message once a lock job fires symdetect symbols
// later — a candidate whose payload phase arrives first (too short a
// preamble to survive detection) is dropped instead. The receiver fires
// its callback exactly once, on the locked message's completion/abort or
// on the arm deadline passing with nothing locked.
type Receiver struct {
	sched *scheduler.Scheduler
	med   *Medium
	clk   ReceiverClock
	jobs  *scheduler.JobGroup

	state State
	freq  uint32
	rps   Rps
	cb    Callback
	fired bool

	candidate *LoraMsg // preamble seen, lock job armed but not yet fired
	locked    *LoraMsg // lock job fired; this is the confirmed reception
}

// NewReceiver returns an idle Receiver already subscribed to med; events
// are ignored until Arm is called.
func NewReceiver(sched *scheduler.Scheduler, med *Medium, clk ReceiverClock) *Receiver {
	r := &Receiver{sched: sched, med: med, clk: clk, jobs: scheduler.NewJobGroup(sched), state: Idle}
	med.AddListener(r, clk.Ticks())
	return r
}

// State returns the receiver's current state.
func (r *Receiver) State() State { return r.state }

// Arm transitions Idle -> Armed: the receiver will hold the first
// preamble matching freq/rps as a candidate and lock onto it symdetect
// symbols later, firing cb(msg) on that message's completion, cb(nil) if
// it's aborted after locking or timeoutTick passes with nothing locked.
// Arming while not Idle is a caller error; callers must wait for the
// previous cb to fire (or call Reset) first.
func (r *Receiver) Arm(freq uint32, rps Rps, timeoutTick Tick, cb Callback) {
	r.state = Armed
	r.freq = freq
	r.rps = rps
	r.cb = cb
	r.fired = false
	r.candidate = nil
	r.locked = nil

	r.jobs.Schedule("timeout", timeoutTick, func() {
		if r.state == Armed {
			r.finish(nil)
		}
	})
}

// Reset forces the receiver back to Idle, cancelling any pending
// timeout/lock job and discarding a not-yet-fired callback. Does not
// itself invoke cb.
func (r *Receiver) Reset() {
	r.jobs.CancelAll()
	r.state = Idle
	r.candidate = nil
	r.locked = nil
	r.cb = nil
}

func (r *Receiver) matches(m *LoraMsg) bool {
	if m.Freq != r.freq {
		return false
	}
	if r.rps.IsFSK() {
		return m.Rps.IsFSK()
	}
	return !m.Rps.IsFSK() && m.Rps.Sf() == r.rps.Sf() && m.Rps.Bw() == r.rps.Bw()
}

func (r *Receiver) finish(m *LoraMsg) {
	if r.fired {
		return
	}
	r.fired = true
	r.state = Done
	cb := r.cb
	r.jobs.CancelAll()
	if cb != nil {
		cb(m)
	}
}

// msgLock fires symdetect symbols after a candidate's preamble was first
// observed: cancels the timeout and promotes the candidate to locked, per
// spec §4.E step 3.
func (r *Receiver) msgLock() {
	if r.candidate == nil {
		return
	}
	r.jobs.Cancel("timeout")
	r.state = Locked
	r.locked = r.candidate
}

// MsgPreamble implements Listener: adopts m as a candidate if Armed, no
// candidate is already held, and m matches, then arms a lock job at
// t + symtime(rps, symdetect), per spec §4.E step 2.
func (r *Receiver) MsgPreamble(m *LoraMsg, t Tick) {
	if r.state != Armed || r.candidate != nil || !r.matches(m) {
		return
	}
	r.candidate = m
	lockAt := t + r.clk.Sec2Ticks(Symtime(r.rps, symdetect))
	r.jobs.Schedule("lock", lockAt, r.msgLock)
}

// MsgPayload implements Listener: a candidate whose payload phase begins
// before its lock job has fired missed the detection window and is
// dropped, per spec §4.E step 4. Once locked, payload carries no state
// transition of its own.
func (r *Receiver) MsgPayload(m *LoraMsg) {
	if r.state == Armed && r.candidate == m {
		r.jobs.Cancel("lock")
		r.candidate = nil
	}
}

// MsgComplete implements Listener: fires cb(m) if m is the locked message,
// per spec §4.E step 5.
func (r *Receiver) MsgComplete(m *LoraMsg) {
	if r.state == Locked && r.locked == m {
		r.finish(m)
	}
}

// MsgAbort implements Listener. The spec's contract is silent on abort:
// this drops m if it was still only a candidate (cancelling its pending
// lock job, the same as a too-early payload) and fires cb(nil) if m was
// already locked, so a transmitter-side Abort (e.g. Radio.reset) never
// leaves the receiver stuck waiting on a message that will never
// complete.
func (r *Receiver) MsgAbort(m *LoraMsg) {
	if r.state == Armed && r.candidate == m {
		r.jobs.Cancel("lock")
		r.candidate = nil
		return
	}
	if r.state == Locked && r.locked == m {
		r.finish(nil)
	}
}
