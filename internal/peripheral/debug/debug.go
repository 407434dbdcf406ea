// Package debug implements the Debug UART peripheral of spec §4.H: a
// fixed-size guest buffer that firmware fills and then asks the host to
// log via svc(0).
package debug

import (
	"log"

	"github.com/google/uuid"

	"github.com/agsys/lorasim/internal/emulator"
	"github.com/agsys/lorasim/internal/peripheral"
)

// UUID is Debug's statically-assigned peripheral identity.
var UUID = uuid.MustParse("8c6a3e10-2f2e-4a5b-9e1b-000000000001")

const (
	offN = 0
	offS = 4
	sLen = 1024
)

func init() {
	peripheral.Register(UUID, New)
}

// Debug is the Debug UART peripheral: {n:u32, s:[u8;1024]}. svc(0) logs
// s[0..n] as UTF-8 via the standard logger, matching the teacher's
// log.Printf-at-state-transition register rather than a structured logger.
type Debug struct {
	peripheral.Page
	pid uint32
}

// New satisfies emulator.Factory.
func New(e *emulator.Emulator, pid uint32) (emulator.Peripheral, error) {
	return &Debug{pid: pid}, nil
}

// Svc implements emulator.Peripheral. fid 0 is the only defined call.
func (d *Debug) Svc(fid uint16, p1, p2, p3 uint32) uint32 {
	if fid != 0 {
		return 0
	}
	n := d.ReadReg(offN)
	if int(n) > sLen {
		n = sLen
	}
	log.Printf("debug[pid=%d]: %s", d.pid, string(d.Bytes(offS, int(n))))
	return 0
}
