package peripheral

import (
	"github.com/agsys/lorasim/internal/clock"
	"github.com/agsys/lorasim/internal/medium"
	"github.com/agsys/lorasim/internal/scheduler"
)

// DeviceContext is the per-device host handle peripheral factories recover
// from emulator.Emulator.Context() via type assertion. One Emulator exists
// per simulated device, but peripheral factories are registered once,
// process-wide, so any runtime dependency beyond guest memory flows
// through this interface instead of a constructor parameter.
type DeviceContext interface {
	Scheduler() *scheduler.Scheduler
	Clock() *clock.Timer
	Medium() *medium.Medium
}
