// Package lorawancodec implements the spec's OUT-OF-SCOPE "lorawan_codec"
// external collaborator directly: LoRaWAN 1.0.x MIC/AES-128 primitives and
// MAC-frame packing/unpacking. See DESIGN.md for why this is hand-rolled on
// crypto/aes rather than built on a real LoRaWAN library.
package lorawancodec

import (
	"crypto/aes"
	"encoding/binary"
)

// Key is a 128-bit AES key (NwkKey, NwkSKey, or AppSKey).
type Key [16]byte

// aesEncryptBlock encrypts exactly one 16-byte block with key.
func aesEncryptBlock(key Key, block []byte) []byte {
	c, err := aes.NewCipher(key[:])
	if err != nil {
		panic("lorawancodec: invalid key length: " + err.Error())
	}
	out := make([]byte, 16)
	c.Encrypt(out, block)
	return out
}

// aesDecryptBlock decrypts exactly one 16-byte block with key.
func aesDecryptBlock(key Key, block []byte) []byte {
	c, err := aes.NewCipher(key[:])
	if err != nil {
		panic("lorawancodec: invalid key length: " + err.Error())
	}
	out := make([]byte, 16)
	c.Decrypt(out, block)
	return out
}

// xorBlocks XORs equal-length a and b into a fresh slice.
func xorBlocks(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// cryptPayload implements the LoRaWAN payload "encryption": a CTR-like
// keystream built from AES-encrypting a per-block counter Ai, XORed
// against the payload. It is its own inverse (used for both encrypt and
// decrypt of FRMPayload). Join-Accept does not go through it: PackJacc
// applies AES-decrypt block by block, the direction LoRaWAN defines so
// that devices only need AES-encrypt in hardware.
func cryptPayload(key Key, devaddr uint32, fcnt uint32, dir byte, payload []byte) []byte {
	out := make([]byte, len(payload))
	var a [16]byte
	a[0] = 0x01
	a[5] = dir
	binary.LittleEndian.PutUint32(a[6:10], devaddr)
	binary.LittleEndian.PutUint32(a[10:14], fcnt)
	a[15] = 0x00

	for i := 0; i < len(payload); i += 16 {
		a[15] = byte(i/16 + 1)
		s := aesEncryptBlock(key, a[:])
		end := i + 16
		if end > len(payload) {
			end = len(payload)
		}
		for j := i; j < end; j++ {
			out[j] = payload[j] ^ s[j-i]
		}
	}
	return out
}
