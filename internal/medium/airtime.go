package medium

import "math"

// symbolTime returns the symbol time in seconds: 2^sf/bw for LoRa, or the
// per-byte bit time (8 bits at 50kbps) for FSK.
func symbolTime(rps Rps) float64 {
	if rps.IsFSK() {
		return 8.0 / 50000.0
	}
	return math.Pow(2, float64(rps.Sf())) / float64(rps.Bw())
}

// Symtime returns nsym symbol periods in seconds — the basis for the
// Receiver's timeout (minsyms) and lock-job (symdetect) deadlines in spec
// §4.E, as distinct from Tpreamble's full on-air preamble duration.
func Symtime(rps Rps, nsym int) float64 {
	return float64(nsym) * symbolTime(rps)
}

// Tpreamble returns the preamble duration in seconds, per spec §4.E.
// FSK preambles are a fixed 8 bytes; LoRa preambles scale with npreamble.
func Tpreamble(rps Rps, npreamble int) float64 {
	ts := symbolTime(rps)
	if rps.IsFSK() {
		return 8 * ts
	}
	return (float64(npreamble) + 4.25) * ts
}

// Tpayload returns the payload duration in seconds, per spec §4.E.
// dro (low-datarate optimize) must be resolved by the caller — pass
// DefaultDro(...) unless the scenario overrides it explicitly.
func Tpayload(rps Rps, pduLen int, dro bool) float64 {
	ts := symbolTime(rps)
	if rps.IsFSK() {
		return float64(3+1+2+pduLen) * ts
	}

	sf := float64(rps.Sf())
	crc := 0.0
	if rps.Crc() {
		crc = 1
	}
	ih := 0.0
	if rps.Ih() {
		ih = 1
	}
	droF := 0.0
	if dro {
		droF = 1
	}

	num := 8*float64(pduLen) - 4*sf + 28 + 16*crc - 20*ih
	den := 4 * (sf - 2*droF)
	nsym := 8.0
	if num > 0 {
		nsym += math.Ceil(num/den) * float64(rps.Cr()+4)
	}
	return nsym * ts
}

// Airtime returns the total on-air duration (preamble + payload) in
// seconds for the given parameters, per spec §4.E and §8 property 1.
func Airtime(rps Rps, pduLen int, npreamble int, dro bool) float64 {
	return Tpreamble(rps, npreamble) + Tpayload(rps, pduLen, dro)
}
