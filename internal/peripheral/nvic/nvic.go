// Package nvic implements the NVIC peripheral of spec §4.H: it tracks
// pending peripheral ids and a stack of active interrupt priorities, and
// implements emulator.NVIC so the CPU core can deliver interrupts without
// importing this package.
package nvic

import (
	"github.com/google/uuid"

	"github.com/agsys/lorasim/internal/emulator"
	"github.com/agsys/lorasim/internal/peripheral"
)

// UUID is NVIC's statically-assigned peripheral identity.
var UUID = uuid.MustParse("8c6a3e10-2f2e-4a5b-9e1b-000000000003")

const (
	numPids = 128
	offVtor = 0           // [u32;128]
	offPrio = numPids * 4 // [u8;128]
)

func init() {
	peripheral.Register(UUID, New)
}

// NVIC is the interrupt controller: {vtor:[u32;128], prio:[u8;128]}. The
// active-priority stack starts as [-1] so any configured priority (0..255)
// can preempt the base level.
type NVIC struct {
	peripheral.Page
	e *emulator.Emulator

	pending   [numPids]bool
	prioStack []int
}

// New satisfies emulator.Factory.
func New(e *emulator.Emulator, pid uint32) (emulator.Peripheral, error) {
	return &NVIC{e: e, prioStack: []int{-1}}, nil
}

func (n *NVIC) vtor(pid uint32) uint32 { return n.ReadReg(offVtor + pid*4) }
func (n *NVIC) prio(pid uint32) int {
	b := n.Bytes(offPrio, numPids)
	return int(b[pid])
}

// Set marks pid pending and wakes the guest, per spec §4.H ("set(pid) also
// signals the emulator running event"). Called directly by other
// peripherals (GPIO, FastUART, Radio) raising their own interrupt line.
func (n *NVIC) Set(pid uint32) {
	if pid < numPids {
		n.pending[pid] = true
	}
	if n.e != nil {
		n.e.Wake()
	}
}

// Clear un-marks pid pending without entering it, e.g. on svc(3) clear-irq.
func (n *NVIC) Clear(pid uint32) {
	if pid < numPids {
		n.pending[pid] = false
	}
}

// Svc implements emulator.Peripheral. fid 0 sets pid=p1 pending, fid 1
// clears it.
func (n *NVIC) Svc(fid uint16, p1, p2, p3 uint32) uint32 {
	switch fid {
	case 0:
		n.Set(p1)
	case 1:
		n.Clear(p1)
	}
	return 0
}

// NextPending implements emulator.NVIC: the highest-priority pending pid
// whose priority exceeds the current stack top, if any.
func (n *NVIC) NextPending() (uint32, bool) {
	top := n.prioStack[len(n.prioStack)-1]
	best := -1
	bestPid := uint32(0)
	for pid := 0; pid < numPids; pid++ {
		if !n.pending[pid] {
			continue
		}
		pr := n.prio(uint32(pid))
		if pr > top && pr > best {
			best = pr
			bestPid = uint32(pid)
		}
	}
	if best < 0 {
		return 0, false
	}
	return bestPid, true
}

// Enter implements emulator.NVIC: pushes pid's priority and clears its
// pending bit (it's now being serviced).
func (n *NVIC) Enter(pid uint32) {
	n.prioStack = append(n.prioStack, n.prio(pid))
	n.pending[pid] = false
}

// Done implements emulator.NVIC: pops the active-priority stack.
func (n *NVIC) Done() {
	if len(n.prioStack) > 1 {
		n.prioStack = n.prioStack[:len(n.prioStack)-1]
	}
}

// VectorFor implements emulator.NVIC.
func (n *NVIC) VectorFor(pid uint32) uint32 { return n.vtor(pid) }
