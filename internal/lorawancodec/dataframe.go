package lorawancodec

import (
	"encoding/binary"
	"errors"
)

// ErrDataMICMismatch is returned by UnpackDataframe when the frame's MIC
// does not match what the session's keys would produce.
var ErrDataMICMismatch = errors.New("lorawancodec: data frame MIC mismatch")

const (
	fctrlAck = 1 << 5
)

// direction bytes for cryptPayload / the data-frame MIC's B0 block.
const (
	dirUp   = 0
	dirDown = 1
)

// Dataframe is the decoded, decrypted content of a verified uplink or
// downlink data PDU.
type Dataframe struct {
	DevAddr    uint32
	FCnt       uint16
	Ack        bool
	Confirmed  bool
	FPort      int // -1 when absent (no payload)
	FRMPayload []byte
}

// PackDataframe implements `pack_dataframe`: builds {devaddr, fcnt,
// nwkskey, appskey}-keyed data PDU with optional port/payload, the ACK
// flag when ack is true, and (for testing
// MIC-mismatch rejection paths) an invalidmic override that flips the
// last 4 bytes.
func PackDataframe(down bool, devaddr uint32, fcnt uint16, nwkskey, appskey Key, fport int, payload []byte, confirmed bool, ack bool, invalidmic bool) []byte {
	mtype := byte(mtypeUnconfirmedUp)
	dir := byte(dirUp)
	if down {
		mtype = mtypeUnconfirmedDown
		dir = dirDown
	}
	if confirmed {
		if down {
			mtype = mtypeConfirmedDown
		} else {
			mtype = mtypeConfirmedUp
		}
	}

	fctrl := byte(0)
	if ack {
		fctrl |= fctrlAck
	}

	body := make([]byte, 0, 12+len(payload))
	body = append(body, mhdr(mtype))
	var addr [4]byte
	binary.LittleEndian.PutUint32(addr[:], devaddr)
	body = append(body, addr[:]...)
	body = append(body, fctrl)
	var fcntBytes [2]byte
	binary.LittleEndian.PutUint16(fcntBytes[:], fcnt)
	body = append(body, fcntBytes[:]...)

	if len(payload) > 0 {
		key := nwkskey
		if fport != 0 {
			key = appskey
		}
		enc := cryptPayload(key, devaddr, uint32(fcnt), dir, payload)
		body = append(body, byte(fport))
		body = append(body, enc...)
	} else if fport >= 0 {
		body = append(body, byte(fport))
	}

	var b0 [16]byte
	b0[0] = 0x49
	b0[5] = dir
	binary.LittleEndian.PutUint32(b0[6:10], devaddr)
	binary.LittleEndian.PutUint32(b0[10:14], uint32(fcnt))
	b0[15] = byte(len(body))

	mic := CMAC4(nwkskey, append(b0[:], body...))
	if invalidmic {
		for i := range mic {
			mic[i] ^= 0xFF
		}
	}

	return append(body, mic[:]...)
}

// UnpackDataframe implements `unpack_dataframe`: verifies the frame's MIC
// under the session keys and returns its decrypted content.
func UnpackDataframe(pdu []byte, nwkskey, appskey Key) (*Dataframe, error) {
	if len(pdu) < 12 {
		return nil, ErrFrameTooShort
	}
	mtype := pdu[0] >> 5
	down := mtype == mtypeUnconfirmedDown || mtype == mtypeConfirmedDown
	dir := byte(dirUp)
	if down {
		dir = dirDown
	}

	devaddr := binary.LittleEndian.Uint32(pdu[1:5])
	fctrl := pdu[5]
	fcnt := binary.LittleEndian.Uint16(pdu[6:8])
	body := pdu[:len(pdu)-4]
	mic := pdu[len(pdu)-4:]

	var b0 [16]byte
	b0[0] = 0x49
	b0[5] = dir
	binary.LittleEndian.PutUint32(b0[6:10], devaddr)
	binary.LittleEndian.PutUint32(b0[10:14], uint32(fcnt))
	b0[15] = byte(len(body))

	want := CMAC4(nwkskey, append(b0[:], body...))
	if !bytesEqual(want[:], mic) {
		return nil, ErrDataMICMismatch
	}

	df := &Dataframe{
		DevAddr:   devaddr,
		FCnt:      fcnt,
		Ack:       fctrl&fctrlAck != 0,
		Confirmed: mtype == mtypeConfirmedUp || mtype == mtypeConfirmedDown,
		FPort:     -1,
	}

	rest := pdu[8 : len(pdu)-4]
	if len(rest) == 0 {
		return df, nil
	}

	fport := int(rest[0])
	df.FPort = fport
	enc := rest[1:]
	if len(enc) > 0 {
		key := nwkskey
		if fport != 0 {
			key = appskey
		}
		df.FRMPayload = cryptPayload(key, devaddr, uint32(fcnt), dir, enc)
	}
	return df, nil
}
