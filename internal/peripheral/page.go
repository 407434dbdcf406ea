package peripheral

import "encoding/binary"

// Page is the 4096-byte guest-visible register window spec §3 assigns to
// every peripheral. Each concrete peripheral embeds one and defines
// typed accessors over fixed byte offsets; ReadReg/WriteReg (the
// emulator.PeriphPage contract) just address into the raw buffer.
type Page struct {
	buf [4096]byte
}

func (p *Page) ReadReg(offset uint32) uint32 {
	if int(offset)+4 > len(p.buf) {
		return 0
	}
	return binary.LittleEndian.Uint32(p.buf[offset:])
}

func (p *Page) WriteReg(offset uint32, v uint32) {
	if int(offset)+4 > len(p.buf) {
		return
	}
	binary.LittleEndian.PutUint32(p.buf[offset:], v)
}

// Bytes returns a live view of n bytes starting at offset. Peripherals use
// this for fields wider than one register (buffers, UUIDs).
func (p *Page) Bytes(offset uint32, n int) []byte {
	return p.buf[offset : int(offset)+n]
}

// SetBytes copies data into the page starting at offset.
func (p *Page) SetBytes(offset uint32, data []byte) {
	copy(p.buf[offset:], data)
}
