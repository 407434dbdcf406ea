// Package scheduler implements the runtime's priority-queue of timed jobs.
//
// A Scheduler is single-threaded and cooperative: callers drive it with
// Step(now), passing the current tick, and Step pops every job due at or
// before that tick, in (ticks, insertion-order) order. Nothing here spawns
// goroutines; the owning driver loop decides when to call Step.
package scheduler

import (
	"container/heap"
	"fmt"
)

// Tick is a non-negative integer in the active Clock's units.
type Tick = int64

// Handle identifies a scheduled Job for cancellation.
type Handle uint64

// Job is a scheduled closure. Payload runs inside Step's fault boundary.
type Job struct {
	Ticks     Tick
	Cancelled bool
	Payload   func()

	handle Handle
	seq    uint64
	index  int // heap index, maintained by container/heap
}

// Fault records a job payload panic observed during Step.
type Fault struct {
	Handle Handle
	Ticks  Tick
	Reason any
}

func (f *Fault) Error() string {
	return fmt.Sprintf("scheduler: job %d faulted at tick %d: %v", f.Handle, f.Ticks, f.Reason)
}

type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].Ticks != h[j].Ticks {
		return h[i].Ticks < h[j].Ticks
	}
	return h[i].seq < h[j].seq
}
func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *jobHeap) Push(x any) {
	j := x.(*Job)
	j.index = len(*h)
	*h = append(*h, j)
}
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*h = old[:n-1]
	return j
}

// Scheduler is the exactly-one-stepping job queue described in spec §4.A.
type Scheduler struct {
	heap     jobHeap
	byHandle map[Handle]*Job
	nextSeq  uint64
	nextHand Handle
	stepping bool
	deferred []*Job // jobs scheduled while Step is running, not yet re-swept
	fault    *Fault
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{
		byHandle: make(map[Handle]*Job),
	}
}

// Schedule inserts a job to run at the given tick. Insertion order breaks
// ties among equal ticks. O(log n).
func (s *Scheduler) Schedule(at Tick, payload func()) Handle {
	s.nextHand++
	h := s.nextHand
	j := &Job{Ticks: at, Payload: payload, handle: h, seq: s.nextSeq}
	s.nextSeq++
	s.byHandle[h] = j

	if s.stepping {
		// Deferred: only honored in this sweep if it lands at-or-before "now",
		// which the caller re-checks after Step's pop loop finishes one pass.
		s.deferred = append(s.deferred, j)
		return h
	}

	heap.Push(&s.heap, j)
	return h
}

// Cancel marks a job cancelled. Idempotent; cancelling an unknown or
// already-fired handle is a harmless no-op.
func (s *Scheduler) Cancel(h Handle) {
	if j, ok := s.byHandle[h]; ok {
		j.Cancelled = true
	}
}

// Fault returns the most recent job panic observed during Step, if any.
// Once a Fault is recorded, stepping stops for good: no method clears it,
// so only a new Scheduler runs jobs again.
func (s *Scheduler) Fault() *Fault { return s.fault }

// Len reports the number of live (non-popped) jobs, including cancelled
// ones not yet swept.
func (s *Scheduler) Len() int { return len(s.heap) }

// Peek returns the tick of the next not-yet-cancelled job, and whether one
// exists. Used by the driver loop to re-arm a single host timer after Step.
func (s *Scheduler) Peek() (Tick, bool) {
	var best Tick
	found := false
	for _, j := range s.heap {
		if !j.Cancelled && (!found || j.Ticks < best) {
			best, found = j.Ticks, true
		}
	}
	return best, found
}

// Step pops and runs every non-cancelled job with Ticks <= now, in heap
// order. Jobs scheduled reentrantly during this call are appended to the
// heap and honored in the same sweep only if their tick is <= now.
//
// If a job payload panics, Step captures it as a Fault, stops popping, and
// returns the fault; every later Step returns that same fault without
// running any job.
func (s *Scheduler) Step(now Tick) *Fault {
	if s.fault != nil {
		return s.fault
	}

	s.stepping = true
	defer func() { s.stepping = false }()

	for {
		if s.heap.Len() == 0 {
			break
		}
		next := s.heap[0]
		if next.Ticks > now {
			break
		}
		heap.Pop(&s.heap)
		delete(s.byHandle, next.handle)
		if next.Cancelled {
			continue
		}

		if fault := s.runPayload(next); fault != nil {
			s.fault = fault
			s.flushDeferred(now) // still observable via heap, but stop dispatch
			return fault
		}

		s.admitDeferred(now)
	}

	s.admitDeferred(now)
	return nil
}

// admitDeferred moves jobs scheduled reentrantly during Step back onto the
// heap, so the current sweep can still pick up ones due at-or-before now.
func (s *Scheduler) admitDeferred(now Tick) {
	if len(s.deferred) == 0 {
		return
	}
	pending := s.deferred
	s.deferred = nil
	for _, j := range pending {
		heap.Push(&s.heap, j)
	}
}

// flushDeferred is identical to admitDeferred; named separately to make the
// fault path's intent explicit at the call site.
func (s *Scheduler) flushDeferred(now Tick) { s.admitDeferred(now) }

func (s *Scheduler) runPayload(j *Job) (fault *Fault) {
	defer func() {
		if r := recover(); r != nil {
			fault = &Fault{Handle: j.handle, Ticks: j.Ticks, Reason: r}
		}
	}()
	j.Payload()
	return nil
}
