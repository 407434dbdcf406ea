package hexload

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func checksum(bytes []byte) byte {
	var sum byte
	for _, b := range bytes {
		sum += b
	}
	return byte(0x100 - int(sum))
}

func dataRecord(addr16 uint16, data []byte) string {
	raw := []byte{byte(len(data)), byte(addr16 >> 8), byte(addr16), 0x00}
	raw = append(raw, data...)
	cs := checksum(raw)
	line := ":" + toHex(raw) + toHex([]byte{cs})
	return line
}

func toHex(b []byte) string {
	const digits = "0123456789ABCDEF"
	out := make([]byte, 0, len(b)*2)
	for _, v := range b {
		out = append(out, digits[v>>4], digits[v&0xf])
	}
	return string(out)
}

func TestLoadSingleDataRecord(t *testing.T) {
	src := dataRecord(0x0000, []byte{1, 2, 3, 4}) + "\n:00000001FF\n"
	segs, err := Load([]byte(src))
	require.NoError(t, err)
	require.Len(t, segs, 1)
	require.Equal(t, uint32(0), segs[0].Addr)
	require.Equal(t, []byte{1, 2, 3, 4}, segs[0].Data)
}

func TestLoadRejectsBadChecksum(t *testing.T) {
	line := dataRecord(0, []byte{1, 2, 3})
	corrupted := line[:len(line)-1] + "0"
	_, err := Load([]byte(corrupted))
	require.ErrorIs(t, err, ErrChecksum)
}

func TestLoadHandlesExtendedLinearAddress(t *testing.T) {
	ela := ":02000004" + toHex([]byte{0x00, 0x01}) + toHex([]byte{checksum([]byte{0x02, 0x00, 0x00, 0x04, 0x00, 0x01})})
	src := ela + "\n" + dataRecord(0x0010, []byte{0xAB}) + "\n:00000001FF\n"
	segs, err := Load([]byte(src))
	require.NoError(t, err)
	require.Equal(t, uint32(0x00010010), segs[0].Addr)
}

func TestFlattenMergesSegmentsAndZeroFillsGaps(t *testing.T) {
	segs := []Segment{
		{Addr: 0x20000000, Data: []byte{1, 2}},
		{Addr: 0x20000004, Data: []byte{9, 9}},
	}
	out := Flatten(segs, 0x20000000, 8)
	require.Equal(t, []byte{1, 2, 0, 0, 9, 9, 0, 0}, out)
}
