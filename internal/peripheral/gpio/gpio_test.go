package gpio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agsys/lorasim/internal/emulator"
)

func newGPIO(t *testing.T) *GPIO {
	t.Helper()
	mem := emulator.NewMemory(emulator.DefaultRAMSize, emulator.DefaultFlashSize, emulator.DefaultEESize)
	e := emulator.New(mem, nopRegistry{})
	g, err := New(e, 1)
	require.NoError(t, err)
	return g.(*GPIO)
}

type nopRegistry struct{}

var errNoPeripheral = errors.New("gpio test: no peripheral registered")

func (nopRegistry) Lookup(u [16]byte) (emulator.Factory, error) {
	return nil, errNoPeripheral
}

func TestUpdatePullsUpConfiguredPin(t *testing.T) {
	g := newGPIO(t)
	g.WriteReg(offPup, 1<<3)
	g.update()
	require.NotEqual(t, uint32(0), g.ReadReg(offValue)&(1<<3))
}

func TestDriveOverridesFloatingValue(t *testing.T) {
	g := newGPIO(t)
	level := true
	require.NoError(t, g.Drive(5, &level))
	require.NotEqual(t, uint32(0), g.ReadReg(offValue)&(1<<5))

	level = false
	require.NoError(t, g.Drive(5, &level))
	require.Equal(t, uint32(0), g.ReadReg(offValue)&(1<<5))
}

func TestDriveDetectsShortCircuit(t *testing.T) {
	g := newGPIO(t)
	g.WriteReg(offOutm, 1<<2)
	level := true
	err := g.Drive(2, &level)
	require.ErrorIs(t, err, ErrShortCircuit)
}

func TestOutputModeWinsOverPullConfig(t *testing.T) {
	g := newGPIO(t)
	g.WriteReg(offPup, 1<<1)
	g.WriteReg(offOutm, 1<<1)
	g.WriteReg(offOutv, 0)
	g.update()
	require.Equal(t, uint32(0), g.ReadReg(offValue)&(1<<1))
}

func TestRisingEdgeSetsIrqBit(t *testing.T) {
	g := newGPIO(t)
	g.WriteReg(offPdn, 1<<4)
	g.update()
	g.WriteReg(offRise, 1<<4)

	level := true
	require.NoError(t, g.Drive(4, &level))
	require.NotEqual(t, uint32(0), g.ReadReg(offIrq)&(1<<4))
}

func TestFallingEdgeSetsIrqBitNotRise(t *testing.T) {
	g := newGPIO(t)
	level := true
	require.NoError(t, g.Drive(6, &level))
	g.WriteReg(offFall, 1<<6)

	level = false
	require.NoError(t, g.Drive(6, &level))
	require.NotEqual(t, uint32(0), g.ReadReg(offIrq)&(1<<6))
}

func TestReleasingExternalDriverReturnsToFloatingBehavior(t *testing.T) {
	g := newGPIO(t)
	g.WriteReg(offPup, 1<<7)
	level := false
	require.NoError(t, g.Drive(7, &level))
	require.Equal(t, uint32(0), g.ReadReg(offValue)&(1<<7))

	require.NoError(t, g.Drive(7, nil))
	require.NotEqual(t, uint32(0), g.ReadReg(offValue)&(1<<7))
}
