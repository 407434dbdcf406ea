package medium

import "fmt"

// Rps packs sf/bw/cr/crc/ih/iqinv into the small bit-exact integer of spec
// §3: bits 0..2 = sf-6 (0 means FSK); bits 3..4 = bw index into
// [125,250,500] kHz; bits 5..6 = cr-1 (1..4); bit 7 = ¬crc; bits 8..15 =
// implicit-header flag byte; bit 16 = IQ-inverted (downlink). Firmware and
// tests both consume this encoding directly, so the layout must stay
// bit-exact.
type Rps uint32

var bandwidths = [3]uint32{125000, 250000, 500000}

const (
	rpsSfMask   = 0x7 // bits 0..2
	rpsBwShift  = 3
	rpsBwMask   = 0x3 // bits 3..4
	rpsCrShift  = 5
	rpsCrMask   = 0x3 // bits 5..6
	rpsCrcBit   = 1 << 7
	rpsIhShift  = 8
	rpsIhMask   = 0xFF // bits 8..15
	rpsIqInvBit = 1 << 16
)

// MakeRps assembles an Rps from its component parameters. sf == 0 selects
// FSK (bwHz/dro are then meaningless and ignored for symbol-time purposes,
// but are still stored so round-tripping getters is exact).
func MakeRps(sf int, bwHz uint32, cr int, crc bool, ih bool) Rps {
	var sfField uint32
	if sf != 0 {
		sfField = uint32(sf-6) & rpsSfMask
	}

	var bwIdx uint32
	for i, b := range bandwidths {
		if b == bwHz {
			bwIdx = uint32(i)
		}
	}

	crField := uint32(cr-1) & rpsCrMask

	var r uint32
	r |= sfField
	r |= bwIdx << rpsBwShift
	r |= crField << rpsCrShift
	if !crc {
		r |= rpsCrcBit
	}
	if ih {
		r |= 1 << rpsIhShift
	}
	return Rps(r)
}

// RpsFSK is the canonical FSK parameter set; spec §4.E says FSK receive
// matching collapses every FSK preamble onto this single value.
const RpsFSK Rps = 0

// IsFSK reports whether this Rps encodes FSK modulation.
func (r Rps) IsFSK() bool { return uint32(r)&rpsSfMask == 0 }

// Sf returns the spreading factor, or 0 for FSK.
func (r Rps) Sf() int {
	if r.IsFSK() {
		return 0
	}
	return int(uint32(r)&rpsSfMask) + 6
}

// Bw returns the bandwidth in Hz.
func (r Rps) Bw() uint32 {
	idx := (uint32(r) >> rpsBwShift) & rpsBwMask
	if idx > 2 {
		return 0
	}
	return bandwidths[idx]
}

// Cr returns the coding rate denominator offset, in 1..4 (4/5..4/8).
func (r Rps) Cr() int {
	return int((uint32(r)>>rpsCrShift)&rpsCrMask) + 1
}

// Crc reports whether the payload carries a CRC.
func (r Rps) Crc() bool {
	return uint32(r)&rpsCrcBit == 0
}

// Ih reports whether implicit header mode is set.
func (r Rps) Ih() bool {
	return (uint32(r)>>rpsIhShift)&rpsIhMask != 0
}

// IQInv reports the IQ-inversion bit (set on downlinks).
func (r Rps) IQInv() bool {
	return uint32(r)&rpsIqInvBit != 0
}

// WithIQInv returns a copy of r with the IQ-inversion bit set to v.
func (r Rps) WithIQInv(v bool) Rps {
	if v {
		return Rps(uint32(r) | rpsIqInvBit)
	}
	return Rps(uint32(r) &^ rpsIqInvBit)
}

// Validate reports whether r lies in the documented domain: the only
// invalid encoding is a bandwidth index of 3 (the field is 2 bits wide but
// only 3 bandwidths are defined).
func (r Rps) Validate() error {
	idx := (uint32(r) >> rpsBwShift) & rpsBwMask
	if idx > 2 {
		return fmt.Errorf("medium: invalid rps %#x: bandwidth index %d out of range", uint32(r), idx)
	}
	return nil
}

// DefaultDro computes the low-datarate-optimize flag spec §4.E mandates
// unless a caller supplies one explicitly: set iff (sf>=11 && bw==125kHz)
// or (sf==12 && bw==250kHz).
func DefaultDro(sf int, bwHz uint32) bool {
	return (sf >= 11 && bwHz == 125000) || (sf == 12 && bwHz == 250000)
}
