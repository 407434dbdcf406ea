// Package lns implements the LNS (LoRaWAN Network Server) of spec §4.J:
// join handling, key derivation, session tracking, and uplink/downlink
// frame protocol on top of internal/lorawancodec.
package lns

import (
	"errors"

	"github.com/agsys/lorasim/internal/lorawancodec"
	"github.com/agsys/lorasim/internal/region"
)

// Session is the per-device state the LNS owns, keyed by (DevEUI,
// DevAddr), per spec §3.
type Session struct {
	DevEUI   [8]byte
	DevAddr  uint32
	NwkKey   lorawancodec.Key
	NwkSKey  lorawancodec.Key
	AppSKey  lorawancodec.Key
	FCntUp   uint16
	FCntDn   uint16
	RX1Delay byte
	RX1DROff int
	RX2DR    int
	RX2Freq  uint32
	DevNonce uint16
	Region   *region.Region
}

// SessionManager maintains the two indices spec §4.J describes: by
// DevAddr (for uplink MIC-matching against every session sharing that
// address) and by DevEUI (for re-Join and teardown).
type SessionManager struct {
	byAddr map[uint32]map[[8]byte]*Session
	byEUI  map[[8]byte]map[uint32]*Session
}

// NewSessionManager returns an empty SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		byAddr: make(map[uint32]map[[8]byte]*Session),
		byEUI:  make(map[[8]byte]map[uint32]*Session),
	}
}

// Add inserts s into both indices, first removing any existing session(s)
// for s.DevEUI (a re-Join replaces, it doesn't accumulate).
func (sm *SessionManager) Add(s *Session) {
	sm.removeByEUI(s.DevEUI)

	if sm.byAddr[s.DevAddr] == nil {
		sm.byAddr[s.DevAddr] = make(map[[8]byte]*Session)
	}
	sm.byAddr[s.DevAddr][s.DevEUI] = s

	if sm.byEUI[s.DevEUI] == nil {
		sm.byEUI[s.DevEUI] = make(map[uint32]*Session)
	}
	sm.byEUI[s.DevEUI][s.DevAddr] = s
}

// ByAddr returns every session currently registered under devaddr (usually
// one, but DevAddr collisions across different devices are possible and
// must all be tried during uplink verification).
func (sm *SessionManager) ByAddr(devaddr uint32) []*Session {
	inner := sm.byAddr[devaddr]
	out := make([]*Session, 0, len(inner))
	for _, s := range inner {
		out = append(out, s)
	}
	return out
}

// PreviousDevNonce returns the highest DevNonce accepted for deveui across
// all of its sessions (DevNonce monotonicity is per-device, not
// per-session), and whether any session exists for it yet.
func (sm *SessionManager) PreviousDevNonce(deveui [8]byte) (uint16, bool) {
	inner := sm.byEUI[deveui]
	if len(inner) == 0 {
		return 0, false
	}
	var max uint16
	found := false
	for _, s := range inner {
		if !found || s.DevNonce > max {
			max = s.DevNonce
			found = true
		}
	}
	return max, found
}

// Remove deletes every session registered for deveui, per spec §4.J's
// "removed on re-Join for the same EUI and on explicit teardown" —
// re-Join calls this via Add's removeByEUI, teardown calls it directly.
func (sm *SessionManager) Remove(deveui [8]byte) {
	sm.removeByEUI(deveui)
}

func (sm *SessionManager) removeByEUI(deveui [8]byte) {
	inner, ok := sm.byEUI[deveui]
	if !ok {
		return
	}
	for addr := range inner {
		delete(sm.byAddr[addr], deveui)
		if len(sm.byAddr[addr]) == 0 {
			delete(sm.byAddr, addr)
		}
	}
	delete(sm.byEUI, deveui)
}

// Errors returned by LNS operations, per spec §4.J's failure modes.
// Unlike emulator.Fault, these are ordinary results: a rejected Join or a
// failed uplink verify never stops the Scheduler.
var (
	ErrDevNonceNotIncreasing = errors.New("lns: devnonce not strictly increasing")
	ErrNoSession             = errors.New("lns: no session for devaddr")
	ErrMICMismatch           = errors.New("lns: mic verification failed")
)
