package id

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns a 16-char random hex identifier.
func New() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
