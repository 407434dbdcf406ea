package emulator

import (
	"encoding/binary"
	"fmt"
)

// SVC ids, per spec §4.F's table.
const (
	SvcPanic     = 0
	SvcPeriphReg = 1
	SvcWFI       = 2
	SvcIRQYield  = 3
	SvcReset     = 4
	SvcPeriphMin = 0x01000000
)

// Peripheral is a host-side model bound to one peripheral page and
// reachable from firmware via `svcid = 0x01000000 | pid<<16 | fid`.
type Peripheral interface {
	PeriphPage
	Svc(fid uint16, p1, p2, p3 uint32) uint32
}

// NVIC is the subset of the NVIC peripheral's behavior the Emulator core
// itself needs to deliver interrupts, kept as an interface so emulator
// doesn't import the peripheral package (which imports emulator for
// Peripheral/PeriphPage).
type NVIC interface {
	NextPending() (pid uint32, ok bool)
	Enter(pid uint32)
	Done()
	VectorFor(pid uint32) uint32
}

// Factory instantiates a Peripheral for pid once its UUID is looked up.
type Factory func(e *Emulator, pid uint32) (Peripheral, error)

// Registry resolves a 16-byte peripheral UUID to its Factory. Satisfied by
// internal/peripheral's process-wide registration table.
type Registry interface {
	Lookup(uuid [16]byte) (Factory, error)
}

// Fault is a captured fatal error: a guest PANIC SVC, an unknown SVCID, a
// memory fault, or firmware falling off the end of main. Spec §7 says
// these stop the simulation and are surfaced to the harness.
type Fault struct {
	Kind   string // "panic", "unknown-svc", "mem", "returned-from-main"
	Reason any
	Addr   uint32
	LR     uint32
}

func (f *Fault) Error() string {
	return fmt.Sprintf("emulator: fatal %s at %#x (lr=%#x): %v", f.Kind, f.Addr, f.LR, f.Reason)
}

// Emulator is the CPU + guest memory + peripheral bridge of spec §4.F.
type Emulator struct {
	CPU *CPU
	Mem *Memory

	registry   Registry
	peripheral map[uint32]Peripheral // pid -> instance
	nvic       NVIC

	running  bool
	savedPCs []uint32
	fault    *Fault

	flashImage []byte // retained so Reset can re-run without reloading

	// context is an opaque handle peripherals type-assert to reach the
	// per-device Scheduler/Clock/Medium (internal/peripheral.DeviceContext).
	// The registry's Factory closures only see (Emulator, pid), so any
	// runtime dependency beyond the guest memory itself has to flow
	// through here.
	context any
}

// SetContext attaches the per-device host context (typically implementing
// internal/peripheral.DeviceContext) that peripheral factories retrieve via
// Context().
func (e *Emulator) SetContext(c any) { e.context = c }

// Context returns whatever was last passed to SetContext, or nil.
func (e *Emulator) Context() any { return e.context }

// New returns an Emulator over mem, using registry to resolve peripheral
// UUIDs registered via svc(PERIPH_REG).
func New(mem *Memory, registry Registry) *Emulator {
	return &Emulator{
		CPU:        &CPU{},
		Mem:        mem,
		registry:   registry,
		peripheral: make(map[uint32]Peripheral),
	}
}

// Fault returns the captured fatal fault, if any.
func (e *Emulator) Fault() *Fault { return e.fault }

// Running reports whether the guest is runnable (false after a WFI with no
// pending interrupt).
func (e *Emulator) Running() bool { return e.running }

// Wake marks the guest runnable again, for a peripheral (typically Timer)
// whose scheduled host callback fires while the guest is parked in WFI.
func (e *Emulator) Wake() { e.running = true }

// Peripheral returns the instance bound to pid, if any.
func (e *Emulator) Peripheral(pid uint32) (Peripheral, bool) {
	p, ok := e.peripheral[pid]
	return p, ok
}

// NVICHandle returns the registered NVIC peripheral, if one has been
// bound. Other peripherals (GPIO, FastUART, Radio) use this to raise
// their own interrupt line without the Emulator mediating every set/done.
func (e *Emulator) NVICHandle() NVIC { return e.nvic }

// Reset implements spec §4.F's reset semantics: load flash (first call
// only, or re-use the previously loaded image), read {sp, entry} from its
// first 8 bytes, set SP/PC, LR = LRReset, clear peripherals, and mark the
// guest runnable.
func (e *Emulator) Reset(flash []byte) error {
	if flash != nil {
		e.flashImage = flash
		if err := e.Mem.LoadFlash(FlashBase, flash); err != nil {
			return err
		}
	}
	if len(e.flashImage) < 8 {
		return fmt.Errorf("emulator: flash image too small for {sp,entry} header")
	}

	sp := binary.LittleEndian.Uint32(e.flashImage[0:4])
	entry := binary.LittleEndian.Uint32(e.flashImage[4:8])

	e.CPU.Reset()
	e.CPU.SP = sp
	e.CPU.PC = entry
	e.CPU.LR = LRReset

	e.Mem.UnmapAll()
	e.peripheral = make(map[uint32]Peripheral)
	e.nvic = nil
	e.savedPCs = nil
	e.fault = nil
	e.running = true
	return nil
}

// RunUntilYield executes instructions until the guest issues svc(WFI) with
// nothing pending, svc(IRQ), faults, or budget instructions have run
// (a runaway-firmware backstop; cycle-accurate timing is out of scope, but
// an infinite guest loop must not hang the host driver forever).
func (e *Emulator) RunUntilYield(budget int) *Fault {
	if e.fault != nil {
		return e.fault
	}

	for i := 0; i < budget; i++ {
		if e.handleSpecialPC() {
			if e.fault != nil {
				return e.fault
			}
			continue
		}
		if !e.running {
			return nil
		}

		result, err := e.CPU.Step(e.Mem)
		if err != nil {
			e.fault = &Fault{Kind: "mem", Reason: err, Addr: e.CPU.PC, LR: e.CPU.LR}
			return e.fault
		}

		if result == StepSVC {
			yield := e.dispatchSVC()
			if e.fault != nil {
				return e.fault
			}
			if yield {
				return nil
			}
		}
	}
	return nil
}

// handleSpecialPC checks whether CPU.PC landed in the special-return
// window and, if so, resolves it (popping a saved interrupted PC on
// LRIRQReturn, faulting on LRReset) instead of fetching an instruction
// there. Returns true if it consumed this iteration.
func (e *Emulator) handleSpecialPC() bool {
	if e.CPU.PC < SpecialBase {
		return false
	}
	switch e.CPU.PC {
	case LRIRQReturn:
		if len(e.savedPCs) == 0 {
			e.fault = &Fault{Kind: "panic", Reason: "interrupt return with empty save stack", Addr: e.CPU.PC, LR: e.CPU.LR}
			return true
		}
		n := len(e.savedPCs) - 1
		e.CPU.PC = e.savedPCs[n]
		e.savedPCs = e.savedPCs[:n]
		if e.nvic != nil {
			e.nvic.Done()
		}
		return true
	case LRReset:
		e.fault = &Fault{Kind: "returned-from-main", Reason: "firmware returned from main", Addr: e.CPU.PC, LR: e.CPU.LR}
		return true
	default:
		e.fault = &Fault{Kind: "panic", Reason: "jump into undefined special address", Addr: e.CPU.PC, LR: e.CPU.LR}
		return true
	}
}

// dispatchSVC handles the just-trapped SVC per spec §4.F's table. Returns
// true if the driver loop should yield control back to its caller (WFI
// with nothing pending, or explicit IRQ yield).
func (e *Emulator) dispatchSVC() (yield bool) {
	svcid := e.CPU.R[0]
	p1, p2, p3 := e.CPU.R[1], e.CPU.R[2], e.CPU.R[3]

	switch {
	case svcid == SvcPanic:
		e.fault = &Fault{Kind: "panic", Reason: fmt.Sprintf("ptype=%d reason=%d", p1, p2), Addr: e.CPU.PC, LR: e.CPU.LR}
		return true

	case svcid == SvcPeriphReg:
		pid := p1
		uuid, err := e.Mem.ReadBytes(p2, 16)
		if err != nil {
			e.fault = &Fault{Kind: "mem", Reason: err, Addr: e.CPU.PC, LR: e.CPU.LR}
			return true
		}
		var u [16]byte
		copy(u[:], uuid)
		if err := e.registerPeripheral(pid, u); err != nil {
			e.fault = &Fault{Kind: "panic", Reason: err, Addr: e.CPU.PC, LR: e.CPU.LR}
			return true
		}
		return false

	case svcid == SvcWFI:
		if !e.checkInterrupt() {
			e.running = false
			return true
		}
		return false

	case svcid == SvcIRQYield:
		e.checkInterrupt()
		return true

	case svcid == SvcReset:
		if err := e.Reset(nil); err != nil {
			e.fault = &Fault{Kind: "panic", Reason: err, Addr: e.CPU.PC, LR: e.CPU.LR}
			return true
		}
		return false

	case svcid >= SvcPeriphMin:
		pid := (svcid >> 16) & 0xff
		fid := uint16(svcid & 0xffff)
		p, ok := e.peripheral[pid]
		if !ok {
			e.fault = &Fault{Kind: "unknown-svc", Reason: fmt.Sprintf("no peripheral bound at pid %d", pid), Addr: e.CPU.PC, LR: e.CPU.LR}
			return true
		}
		e.CPU.R[0] = p.Svc(fid, p1, p2, p3)
		return false

	default:
		e.fault = &Fault{Kind: "unknown-svc", Reason: fmt.Sprintf("svcid %#x", svcid), Addr: e.CPU.PC, LR: e.CPU.LR}
		return true
	}
}

func (e *Emulator) registerPeripheral(pid uint32, uuid [16]byte) error {
	factory, err := e.registry.Lookup(uuid)
	if err != nil {
		return err
	}
	p, err := factory(e, pid)
	if err != nil {
		return err
	}
	e.peripheral[pid] = p
	e.Mem.MapPeriph(pid, p)
	if n, ok := p.(NVIC); ok {
		e.nvic = n
	}
	return nil
}

// checkInterrupt asks the NVIC for the highest-priority pid above the
// current stack top and, if one exists, saves the interrupted PC, arms
// the interrupt-return sentinel in LR, and redirects PC to the
// peripheral's vector. Returns whether an interrupt was delivered.
func (e *Emulator) checkInterrupt() bool {
	if e.nvic == nil {
		return false
	}
	pid, ok := e.nvic.NextPending()
	if !ok {
		return false
	}
	e.nvic.Enter(pid)
	e.savedPCs = append(e.savedPCs, e.CPU.PC)
	e.CPU.LR = LRIRQReturn
	e.CPU.PC = e.nvic.VectorFor(pid)
	e.running = true
	return true
}
