package emulator

import "encoding/binary"

// Asm is a tiny assembler for this module's hand-assembled test firmware:
// it emits the opcodes cpu.go decodes, and nothing else. Production
// firmware images are never authored this way; this exists purely so
// tests can build flash images without hand-packing hex bytes.
type Asm struct {
	words []uint16
}

func NewAsm() *Asm { return &Asm{} }

func (a *Asm) emit(w uint16) *Asm { a.words = append(a.words, w); return a }

func (a *Asm) NOP() *Asm { return a.emit(uint16(opNOP) << 12) }
func (a *Asm) MOVI(rd, imm8 int) *Asm {
	return a.emit(uint16(opMOVI)<<12 | uint16(rd&0x7)<<8 | uint16(imm8&0xFF))
}
func (a *Asm) ADDI(rd, imm8 int) *Asm {
	return a.emit(uint16(opADDI)<<12 | uint16(rd&0x7)<<8 | uint16(imm8&0xFF))
}
func (a *Asm) SUBI(rd, imm8 int) *Asm {
	return a.emit(uint16(opSUBI)<<12 | uint16(rd&0x7)<<8 | uint16(imm8&0xFF))
}
func (a *Asm) MOVR(rd, rs int) *Asm {
	return a.emit(uint16(opMOVR)<<12 | uint16(rd&0x7)<<3 | uint16(rs&0x7))
}
func (a *Asm) LDR(rd, rb, imm5 int) *Asm {
	return a.emit(uint16(opLDR)<<12 | uint16(rd&0x7)<<8 | uint16(rb&0x7)<<5 | uint16(imm5&0x1F))
}
func (a *Asm) STR(rd, rb, imm5 int) *Asm {
	return a.emit(uint16(opSTR)<<12 | uint16(rd&0x7)<<8 | uint16(rb&0x7)<<5 | uint16(imm5&0x1F))
}
func (a *Asm) B(offsetHalfwords int) *Asm {
	return a.emit(uint16(opB)<<12 | uint16(offsetHalfwords)&0x0FFF)
}
func (a *Asm) BL(offsetHalfwords int) *Asm {
	return a.emit(uint16(opBL)<<12 | uint16(offsetHalfwords)&0x0FFF)
}
func (a *Asm) SVC() *Asm {
	return a.emit(uint16(opSVC) << 12)
}
func (a *Asm) CMPI(rd, imm8 int) *Asm {
	return a.emit(uint16(opCMPI)<<12 | uint16(rd&0x7)<<8 | uint16(imm8&0xFF))
}
func (a *Asm) BEQ(offsetHalfwords int) *Asm {
	return a.emit(uint16(opBEQ)<<12 | uint16(offsetHalfwords)&0x0FFF)
}
func (a *Asm) BNE(offsetHalfwords int) *Asm {
	return a.emit(uint16(opBNE)<<12 | uint16(offsetHalfwords)&0x0FFF)
}
func (a *Asm) RET() *Asm { return a.emit(uint16(opRET) << 12) }

// Bytes returns the assembled little-endian instruction stream.
func (a *Asm) Bytes() []byte {
	out := make([]byte, len(a.words)*2)
	for i, w := range a.words {
		binary.LittleEndian.PutUint16(out[i*2:], w)
	}
	return out
}

// BuildFlashImage prepends the {sp, entry} header spec §6 requires and
// appends code at FlashBase+8 (entry must equal FlashBase+8 for code built
// with this helper).
func BuildFlashImage(sp uint32, code []byte) []byte {
	entry := uint32(FlashBase + 8)
	img := make([]byte, 8+len(code))
	binary.LittleEndian.PutUint32(img[0:4], sp)
	binary.LittleEndian.PutUint32(img[4:8], entry)
	copy(img[8:], code)
	return img
}
