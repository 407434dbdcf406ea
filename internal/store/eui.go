package store

import (
	"encoding/hex"
	"fmt"
)

func hexEUI(eui [8]byte) string {
	return hex.EncodeToString(eui[:])
}

func parseHexEUI(s string) ([8]byte, error) {
	var eui [8]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return eui, fmt.Errorf("store: malformed dev_eui %q: %w", s, err)
	}
	if len(b) != 8 {
		return eui, fmt.Errorf("store: dev_eui %q has wrong length", s)
	}
	copy(eui[:], b)
	return eui, nil
}
