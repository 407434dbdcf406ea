// Package region supplies the Region external collaborator spec.md §3
// describes but deliberately leaves unimplemented ("supplied by external
// library"). Nothing elsewhere in this module can run without one, so the
// package provides the two regional plans spec.md's scenarios actually
// exercise: EU868 and US915.
package region

import "github.com/agsys/lorasim/internal/medium"

// DR describes one data-rate's modulation, mirroring medium.Rps's sf/bw
// fields directly so region tables can build an Rps with medium.MakeRps.
type DR struct {
	Sf int
	Bw uint32 // 0 means FSK
}

// Channel is one uplink channel's center frequency.
type Channel struct {
	Freq uint32
}

// Region is the external collaborator of spec.md §3: upchannels, a DR
// table, RX2 defaults, max EIRP, and the three derivation functions the
// Universal Gateway and LNS depend on.
type Region struct {
	Name       string
	UpChannels []Channel
	DRs        map[int]DR
	MinDR      int
	MaxDR      int
	RX2DR      int
	RX2Freq    uint32
	MaxEIRP    float64

	// dnFreq, when non-nil, computes the RX1 downlink frequency for an
	// uplink channel index (US915's RX1 plan uses a distinct 500kHz
	// channel set; EU868's RX1 freq equals the uplink freq, so it's nil).
	dnFreq func(r *Region, ch int) uint32
}

// Rps builds the medium.Rps for data rate dr, with the given coding rate,
// CRC and implicit-header flags.
func (r *Region) Rps(dr int, cr int, crc bool, ih bool) medium.Rps {
	d := r.DRs[dr]
	sf := d.Sf
	bw := d.Bw
	if bw == 0 {
		return medium.RpsFSK
	}
	return medium.MakeRps(sf, bw, cr, crc, ih)
}

// MatchUpChannel finds the (ch, dr) pair such that freq equals an
// upchannel's center frequency and (sf, bw) matches a DR table entry. It
// returns ok=false if no such pair exists, per the LoraWanMsg invariant of
// spec.md §3.
func (r *Region) MatchUpChannel(freq uint32, sf int, bw uint32) (ch int, dr int, ok bool) {
	chIdx := -1
	for i, c := range r.UpChannels {
		if c.Freq == freq {
			chIdx = i
			break
		}
	}
	if chIdx < 0 {
		return 0, 0, false
	}
	for d := r.MinDR; d <= r.MaxDR; d++ {
		e := r.DRs[d]
		if e.Sf == 0 && sf == 0 {
			return chIdx, d, true // FSK: bandwidth is not meaningful
		}
		if e.Sf == sf && e.Bw == bw {
			return chIdx, d, true
		}
	}
	return 0, 0, false
}

// GetDnFreq returns the RX1 downlink frequency for the uplink channel ch.
func (r *Region) GetDnFreq(ch int) uint32 {
	if r.dnFreq != nil {
		return r.dnFreq(r, ch)
	}
	if ch < 0 || ch >= len(r.UpChannels) {
		return r.UpChannels[0].Freq
	}
	return r.UpChannels[ch].Freq
}

// GetDnDR computes the RX1 data rate from the uplink data rate and the
// session's rx1droff, per the regional RX1DROffset table. Clamped to
// [MinDR, MaxDR].
func (r *Region) GetDnDR(updr int, rx1droff int) int {
	dr := updr - rx1droff
	if dr < r.MinDR {
		dr = r.MinDR
	}
	if dr > r.MaxDR {
		dr = r.MaxDR
	}
	return dr
}

// GetCFList returns the optional channel-frequency list appended to a
// Join-Accept (empty when the region defines no supplemental channels
// beyond its defaults, per EU868's plan).
func (r *Region) GetCFList() []byte {
	if len(r.UpChannels) <= 3 {
		return nil
	}
	// CFList: up to 5 additional 24-bit little-endian frequencies in
	// units of 100Hz, followed by a 1-byte CFListType (0 = frequency list).
	extra := r.UpChannels[3:]
	if len(extra) > 5 {
		extra = extra[:5]
	}
	buf := make([]byte, 0, 16)
	for _, c := range extra {
		f := c.Freq / 100
		buf = append(buf, byte(f), byte(f>>8), byte(f>>16))
	}
	for len(buf) < 15 {
		buf = append(buf, 0)
	}
	return append(buf, 0)
}
