package main

import (
	"fmt"
	"os"

	"github.com/agsys/lorasim/internal/clock"
	"github.com/agsys/lorasim/internal/emulator"
	"github.com/agsys/lorasim/internal/hexload"
	"github.com/agsys/lorasim/internal/medium"
	"github.com/agsys/lorasim/internal/peripheral"
	_ "github.com/agsys/lorasim/internal/peripheral/debug"
	_ "github.com/agsys/lorasim/internal/peripheral/fastuart"
	_ "github.com/agsys/lorasim/internal/peripheral/gpio"
	_ "github.com/agsys/lorasim/internal/peripheral/nvic"
	_ "github.com/agsys/lorasim/internal/peripheral/radio"
	_ "github.com/agsys/lorasim/internal/peripheral/timer"
	"github.com/agsys/lorasim/internal/scheduler"
)

// worldContext is the single Scheduler/Clock/Medium shared by the Gateway
// and every simulated Device, implementing internal/peripheral.DeviceContext.
// Spec §5 is explicit that one driver task owns the Scheduler and all timed
// work is jobs on it — devices don't get private event loops.
type worldContext struct {
	sched *scheduler.Scheduler
	clk   *clock.Timer
	med   *medium.Medium
}

func newWorldContext() *worldContext {
	return &worldContext{sched: scheduler.New(), clk: clock.NewTimer(), med: medium.New()}
}

func (c *worldContext) Scheduler() *scheduler.Scheduler { return c.sched }
func (c *worldContext) Clock() *clock.Timer             { return c.clk }
func (c *worldContext) Medium() *medium.Medium          { return c.med }

// Device is one simulated end-device's Emulator, bound to the shared
// worldContext at construction.
type Device struct {
	Name string
	e    *emulator.Emulator
}

// loadFlash reads and flattens the Intel-HEX files named by paths into one
// FLASH-sized image, per spec §6's "first 8 bytes are {SP, entry}" layout.
func loadFlash(paths []string) ([]byte, error) {
	var segs []hexload.Segment
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("devsim: read hex file %s: %w", path, err)
		}
		s, err := hexload.Load(raw)
		if err != nil {
			return nil, fmt.Errorf("devsim: parse hex file %s: %w", path, err)
		}
		segs = append(segs, s...)
	}
	return hexload.Flatten(segs, emulator.FlashBase, emulator.DefaultFlashSize), nil
}

// NewDevice constructs a Device over the shared ctx whose firmware image is
// loaded from hexFiles.
func NewDevice(name string, ctx *worldContext, hexFiles []string) (*Device, error) {
	flash, err := loadFlash(hexFiles)
	if err != nil {
		return nil, err
	}

	mem := emulator.NewMemory(emulator.DefaultRAMSize, emulator.DefaultFlashSize, emulator.DefaultEESize)
	e := emulator.New(mem, peripheral.Global())
	e.SetContext(ctx)

	if err := e.Reset(flash); err != nil {
		return nil, fmt.Errorf("devsim: reset device %s: %w", name, err)
	}

	return &Device{Name: name, e: e}, nil
}

// stepBudget bounds the number of guest instructions RunUntilYield executes
// per scheduler tick, so a runaway firmware image can't starve the driver
// loop's ability to check the stop channel.
const stepBudget = 100_000

// Simulation drives the shared worldContext's Scheduler/Clock and every
// Device's Emulator from a single cooperative loop, per spec §5.
type Simulation struct {
	ctx     *worldContext
	devices []*Device
}

// NewSimulation returns an empty Simulation sharing ctx.
func NewSimulation(ctx *worldContext) *Simulation {
	return &Simulation{ctx: ctx}
}

// AddDevice registers d with the simulation's driver loop.
func (s *Simulation) AddDevice(d *Device) {
	s.devices = append(s.devices, d)
}

// Run drives every device's emulator and the shared scheduler until stop
// is closed or a device's guest faults. virtualTime, when true, advances
// the Timer straight to the next scheduled tick instead of pacing it in
// real time via pacer — the same fast-forwarding internal/clock.VirtualTimeLoop
// does for *clock.Virtual, adapted to the concrete *clock.Timer
// DeviceContext pins.
func (s *Simulation) Run(stop <-chan struct{}, virtualTime bool, pacer func(ticks int64)) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		anyRunning := false
		for _, d := range s.devices {
			if !d.e.Running() {
				continue
			}
			anyRunning = true
			if fault := d.e.RunUntilYield(stepBudget); fault != nil {
				return fmt.Errorf("devsim: device %s halted: %w", d.Name, fault)
			}
		}
		if anyRunning {
			continue
		}

		at, ok := s.ctx.sched.Peek()
		if !ok {
			// Nothing scheduled and every device is parked: idle-wait for stop.
			<-stop
			return nil
		}

		if delta := at - s.ctx.clk.Ticks(); delta > 0 {
			if !virtualTime && pacer != nil {
				pacer(delta)
			}
			s.ctx.clk.Advance(delta)
		}

		if fault := s.ctx.sched.Step(s.ctx.clk.Ticks()); fault != nil {
			return fmt.Errorf("devsim: scheduler fault: %w", fault)
		}
	}
}
