package handshake

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// NewGUID draws a random peer identifier. Call it once per peer and pass the
// value through configuration.
func NewGUID() (uint64, error) {
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return 0, fmt.Errorf("handshake: guid: %w", err)
	}
	return binary.BigEndian.Uint64(raw[:]), nil
}
