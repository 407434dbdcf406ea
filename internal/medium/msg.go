package medium

import "github.com/agsys/lorasim/internal/scheduler"

// Tick is re-exported for callers that construct messages without importing
// the scheduler package directly.
type Tick = scheduler.Tick

// LoraMsg is an in-flight (or delivered) radio frame on the Medium, per
// spec §3. The three derived timestamps are ticks in the owning Clock's
// units: xbeg is transmission start, xpld is the end of the preamble phase
// (start of the payload phase), and xend is transmission end. By
// construction xbeg <= xpld <= xend and xend-xbeg == Airtime(...).
type LoraMsg struct {
	Pdu       []byte
	Freq      uint32
	Rps       Rps
	Xpow      float64 // dBm
	Rssi      float64
	Snr       float64
	Dro       bool
	Npreamble int
	Src       any // originating Transmitter, opaque to Medium

	Xbeg Tick
	Xpld Tick
	Xend Tick
}

// TickClock is the minimal clock capability LoraMsg construction needs:
// converting a duration in seconds to a number of ticks.
type TickClock interface {
	Sec2Ticks(s float64) Tick
}

// NewLoraMsg computes the derived timestamps from the airtime formulas of
// spec §4.E and returns a fully-populated LoraMsg starting at "now".
// npreamble defaults to 8 when 0 is passed (the common LoRaWAN preamble
// length); dro should usually be DefaultDro(rps.Sf(), rps.Bw()) unless the
// scenario overrides it.
func NewLoraMsg(clk TickClock, now Tick, pdu []byte, freq uint32, rps Rps, xpow float64, npreamble int, dro bool, src any) *LoraMsg {
	if npreamble == 0 {
		npreamble = 8
	}

	tpre := Tpreamble(rps, npreamble)
	tpld := Tpayload(rps, len(pdu), dro)

	m := &LoraMsg{
		Pdu:       pdu,
		Freq:      freq,
		Rps:       rps,
		Xpow:      xpow,
		Dro:       dro,
		Npreamble: npreamble,
		Src:       src,
		Xbeg:      now,
	}
	m.Xpld = m.Xbeg + clk.Sec2Ticks(tpre)
	m.Xend = m.Xbeg + clk.Sec2Ticks(tpre+tpld)
	return m
}

// Airtime returns xend-xbeg in ticks, the realized on-air duration.
func (m *LoraMsg) Airtime() Tick { return m.Xend - m.Xbeg }
