package lorawancodec

import (
	"encoding/binary"
	"errors"
)

// MType values, carried in MHDR's top 3 bits.
const (
	mtypeJoinRequest     = 0x00
	mtypeJoinAccept      = 0x01
	mtypeUnconfirmedUp   = 0x02
	mtypeUnconfirmedDown = 0x03
	mtypeConfirmedUp     = 0x04
	mtypeConfirmedDown   = 0x05
)

func mhdr(mtype byte) byte { return mtype << 5 }

// ErrJoinMICMismatch is returned by VerifyJreq when the frame's MIC does
// not match what NwkKey would produce.
var ErrJoinMICMismatch = errors.New("lorawancodec: join-request MIC mismatch")

// ErrFrameTooShort is returned by any unpack function given fewer bytes
// than its format requires.
var ErrFrameTooShort = errors.New("lorawancodec: frame too short")

// JoinRequest is the decoded, MIC-verified content of a Join-Request PDU.
type JoinRequest struct {
	JoinEUI  [8]byte
	DevEUI   [8]byte
	DevNonce uint16
}

// VerifyJreq implements `verify_jreq(pdu, nwkkey)`: decodes a 23-byte
// Join-Request PDU and verifies its MIC under nwkkey.
func VerifyJreq(pdu []byte, nwkkey Key) (*JoinRequest, error) {
	if len(pdu) != 23 {
		return nil, ErrFrameTooShort
	}
	body := pdu[:19]
	mic := pdu[19:23]

	want := CMAC4(nwkkey, body)
	if !bytesEqual(want[:], mic) {
		return nil, ErrJoinMICMismatch
	}

	jr := &JoinRequest{}
	copy(jr.JoinEUI[:], pdu[1:9])
	copy(jr.DevEUI[:], pdu[9:17])
	jr.DevNonce = binary.LittleEndian.Uint16(pdu[17:19])
	return jr, nil
}

// DLSettings packs RX1DROffset (bits 4..6) and RX2DataRate (bits 0..3)
// into the Join-Accept's single DLSettings byte.
type DLSettings struct {
	RX1DROffset int
	RX2DataRate int
}

func (d DLSettings) byte() byte {
	return byte(d.RX1DROffset&0x7)<<4 | byte(d.RX2DataRate&0xF)
}

// ParseDLSettings unpacks a DLSettings byte.
func ParseDLSettings(b byte) DLSettings {
	return DLSettings{RX1DROffset: int(b>>4) & 0x7, RX2DataRate: int(b) & 0xF}
}

// PackJacc implements `pack_jacc`: builds and encrypts a Join-Accept PDU.
// cflist, if non-empty, must be exactly 16 bytes (region.Region.GetCFList).
func PackJacc(nwkkey Key, appnonce [3]byte, netid [3]byte, devaddr uint32, dlset DLSettings, rxdelay byte, cflist []byte) []byte {
	body := make([]byte, 0, 1+3+3+4+1+1+len(cflist))
	body = append(body, mhdr(mtypeJoinAccept))
	body = append(body, appnonce[:]...)
	body = append(body, netid[:]...)
	var addr [4]byte
	binary.LittleEndian.PutUint32(addr[:], devaddr)
	body = append(body, addr[:]...)
	body = append(body, dlset.byte(), rxdelay)
	body = append(body, cflist...)

	mic := CMAC4(nwkkey, body)
	plain := append(body[1:], mic[:]...)

	encrypted := make([]byte, len(plain))
	for i := 0; i < len(plain); i += 16 {
		end := i + 16
		block := make([]byte, 16)
		copy(block, plain[i:min(end, len(plain))])
		// Join-Accept uses AES-decrypt as its "encrypt" direction so
		// devices only ever need the AES-encrypt primitive to undo it.
		out := aesDecryptBlock(nwkkey, block)
		copy(encrypted[i:min(end, len(plain))], out[:min(16, len(plain)-i)])
	}

	return append([]byte{body[0]}, encrypted...)
}

// UnpackJacc decrypts and MIC-verifies a Join-Accept PDU built by PackJacc,
// returning its fields. Its callers in this module are the round-trip
// tests.
func UnpackJacc(pdu []byte, nwkkey Key) (appnonce [3]byte, netid [3]byte, devaddr uint32, dlset DLSettings, rxdelay byte, cflist []byte, err error) {
	if len(pdu) < 1+3+3+4+1+1+4 {
		return appnonce, netid, 0, dlset, 0, nil, ErrFrameTooShort
	}
	enc := pdu[1:]
	plain := make([]byte, len(enc))
	for i := 0; i < len(enc); i += 16 {
		end := i + 16
		block := make([]byte, 16)
		copy(block, enc[i:min(end, len(enc))])
		out := aesEncryptBlock(nwkkey, block)
		copy(plain[i:min(end, len(enc))], out[:min(16, len(enc)-i)])
	}

	body := append([]byte{pdu[0]}, plain[:len(plain)-4]...)
	mic := plain[len(plain)-4:]
	want := CMAC4(nwkkey, body)
	if !bytesEqual(want[:], mic) {
		return appnonce, netid, 0, dlset, 0, nil, ErrJoinMICMismatch
	}

	copy(appnonce[:], plain[0:3])
	copy(netid[:], plain[3:6])
	devaddr = binary.LittleEndian.Uint32(plain[6:10])
	dlset = ParseDLSettings(plain[10])
	rxdelay = plain[11]
	if len(plain) > 12+4 {
		cflist = plain[12 : len(plain)-4]
	}
	return appnonce, netid, devaddr, dlset, rxdelay, cflist, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
