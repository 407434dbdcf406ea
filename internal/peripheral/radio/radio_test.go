package radio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agsys/lorasim/internal/clock"
	"github.com/agsys/lorasim/internal/emulator"
	"github.com/agsys/lorasim/internal/medium"
	"github.com/agsys/lorasim/internal/peripheral"
	"github.com/agsys/lorasim/internal/scheduler"
)

type testCtx struct {
	sched *scheduler.Scheduler
	clk   *clock.Timer
	med   *medium.Medium
}

func (c *testCtx) Scheduler() *scheduler.Scheduler { return c.sched }
func (c *testCtx) Clock() *clock.Timer             { return c.clk }
func (c *testCtx) Medium() *medium.Medium          { return c.med }

var _ peripheral.DeviceContext = (*testCtx)(nil)

// drain runs the scheduler to completion, advancing ctx.clk.Ticks() to
// match each popped job's tick (mirroring clock.VirtualTimeLoop, which
// DeviceContext's concrete *clock.Timer can't reuse directly since that
// loop drives its own *clock.Virtual).
func drain(t *testing.T, ctx *testCtx) {
	t.Helper()
	for {
		tick, ok := ctx.sched.Peek()
		if !ok {
			return
		}
		delta := tick - ctx.clk.Ticks()
		if delta > 0 {
			ctx.clk.Advance(delta)
		}
		fault := ctx.sched.Step(ctx.clk.Ticks())
		require.Nil(t, fault)
	}
}

func newDevice(t *testing.T) (*emulator.Emulator, *Radio, *testCtx) {
	t.Helper()
	ctx := &testCtx{sched: scheduler.New(), clk: clock.NewTimerAt(0), med: medium.New()}

	mem := emulator.NewMemory(emulator.DefaultRAMSize, emulator.DefaultFlashSize, emulator.DefaultEESize)
	e := emulator.New(mem, nopRegistry{})
	e.SetContext(ctx)

	p, err := New(e, 3)
	require.NoError(t, err)
	return e, p.(*Radio), ctx
}

type nopRegistry struct{}

var errNoFactory = errors.New("radio test: no peripheral registered")

func (nopRegistry) Lookup(u [16]byte) (emulator.Factory, error) { return nil, errNoFactory }

func testRps() medium.Rps {
	return medium.MakeRps(7, 125000, 1, true, false)
}

func TestTxDoneRaisesStatusAndXtime(t *testing.T) {
	_, r, ctx := newDevice(t)

	r.WriteReg(offFreq, 868100000)
	r.WriteReg(offRps, uint32(testRps()))
	pdu := []byte("hello")
	r.SetBytes(offBuf, pdu)
	r.WriteReg(offPlen, uint32(len(pdu)))

	r.Svc(1, 0, 0, 0)
	require.True(t, r.tx.Busy())

	drain(t, ctx)

	require.Equal(t, uint32(StatusTxDone), r.ReadReg(offStatus))
	require.False(t, r.tx.Busy())
}

func TestRxDoneCopiesPduAndStatus(t *testing.T) {
	_, rxRadio, rxCtx := newDevice(t)
	_, txRadio, _ := newDevice(t)
	// Rewire the transmitting device onto the same Medium as the receiver.
	txRadio.ctx = rxCtx
	txRadio.tx = medium.NewTransmitter(rxCtx.sched, rxCtx.med)
	rxCtx.med.AddListener(txRadio, medium.Tick(rxCtx.clk.Ticks()))

	freq := uint32(868100000)
	rps := testRps()

	rxRadio.WriteReg(offFreq, freq)
	rxRadio.WriteReg(offRps, uint32(rps))
	rxRadio.WriteReg(offNpreamble, 8)
	rxRadio.Svc(2, 0, 0, 0)

	pdu := []byte("payload")
	txRadio.WriteReg(offFreq, freq)
	txRadio.WriteReg(offRps, uint32(rps))
	txRadio.SetBytes(offBuf, pdu)
	txRadio.WriteReg(offPlen, uint32(len(pdu)))
	txRadio.Svc(1, 0, 0, 0)

	drain(t, rxCtx)

	require.Equal(t, uint32(StatusRxDone), rxRadio.ReadReg(offStatus))
	require.Equal(t, uint32(len(pdu)), rxRadio.ReadReg(offPlen))
	require.Equal(t, pdu, rxRadio.Bytes(offBuf, len(pdu)))
}

func TestRxTimesOutWithNoTransmission(t *testing.T) {
	_, r, ctx := newDevice(t)
	r.WriteReg(offFreq, 868100000)
	r.WriteReg(offRps, uint32(testRps()))
	r.WriteReg(offNpreamble, 8)

	r.Svc(2, 0, 0, 0)
	drain(t, ctx)

	require.Equal(t, uint32(StatusRxTout), r.ReadReg(offStatus))
}
