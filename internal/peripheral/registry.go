// Package peripheral implements the UUID-keyed registry and the six
// peripheral models of spec §4.G/§4.H: Debug, Timer, NVIC, GPIO,
// FastUART, and Radio. Each conforms to emulator.Peripheral so the
// Emulator core can map its page and dispatch its svc table without
// importing this package back (Registry/Peripheral/NVIC interfaces live in
// emulator; this package only implements them).
package peripheral

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/agsys/lorasim/internal/emulator"
)

// registry is the process-wide UUID -> factory table spec §4.G describes,
// populated by each peripheral file's init() via Register.
type registry struct {
	mu    sync.RWMutex
	table map[uuid.UUID]emulator.Factory
}

var global = &registry{table: make(map[uuid.UUID]emulator.Factory)}

// Register binds id to factory. Called from init() in each peripheral's
// own file, mirroring the teacher's self-registering driver tables.
func Register(id uuid.UUID, factory emulator.Factory) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.table[id] = factory
}

// Lookup implements emulator.Registry.
func (r *registry) Lookup(raw [16]byte) (emulator.Factory, error) {
	id := uuid.UUID(raw)
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.table[id]
	if !ok {
		return nil, fmt.Errorf("peripheral: no peripheral registered for uuid %s", id)
	}
	return f, nil
}

// Global returns the process-wide Registry for wiring into emulator.New.
func Global() emulator.Registry { return global }
