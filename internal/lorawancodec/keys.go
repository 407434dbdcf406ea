package lorawancodec

// Session-key derivation kinds, selecting the leading byte of the AES
// block DeriveKey encrypts under NwkKey (LoRaWAN 1.0.x key derivation).
const (
	KindNwkSKey byte = 0x01
	KindAppSKey byte = 0x02
)

// DeriveKey implements `derive_key(nwkkey, devnonce, appnonce, netid, kind)`:
// AES-128-encrypt(nwkkey, kind | appnonce(3) | netid(3) | devnonce(2) | pad(7)).
func DeriveKey(nwkkey Key, devnonce uint16, appnonce [3]byte, netid [3]byte, kind byte) Key {
	var block [16]byte
	block[0] = kind
	copy(block[1:4], appnonce[:])
	copy(block[4:7], netid[:])
	block[7] = byte(devnonce)
	block[8] = byte(devnonce >> 8)
	// block[9:16] stay zero-padded.

	out := aesEncryptBlock(nwkkey, block[:])
	var k Key
	copy(k[:], out)
	return k
}
