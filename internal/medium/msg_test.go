package medium

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agsys/lorasim/internal/clock"
)

func TestNewLoraMsgTimestampsMatchAirtime(t *testing.T) {
	clk := clock.NewTimerAt(0)
	rps := MakeRps(7, 125000, 1, true, false)
	pdu := make([]byte, 20)

	m := NewLoraMsg(clk, 100, pdu, 868100000, rps, 14, 8, DefaultDro(7, 125000), nil)

	require.LessOrEqual(t, m.Xbeg, m.Xpld)
	require.LessOrEqual(t, m.Xpld, m.Xend)
	require.Equal(t, clk.Sec2Ticks(Airtime(rps, len(pdu), 8, DefaultDro(7, 125000))), m.Xend-m.Xbeg)
	require.Equal(t, m.Airtime(), m.Xend-m.Xbeg)
}

func TestNewLoraMsgDefaultsPreambleTo8(t *testing.T) {
	clk := clock.NewTimerAt(0)
	rps := MakeRps(9, 125000, 1, true, false)
	m := NewLoraMsg(clk, 0, []byte{1, 2, 3}, 868300000, rps, 14, 0, false, nil)
	require.Equal(t, 8, m.Npreamble)
}

func TestFSKAirtimeIgnoresSfDependentTerms(t *testing.T) {
	pdu := make([]byte, 10)
	at := Airtime(RpsFSK, len(pdu), 8, false)
	require.Greater(t, at, 0.0)
}
