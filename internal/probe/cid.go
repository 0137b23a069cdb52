package probe

import "math/rand"

// SourceIDLen is the length of generated local connection ids.
const SourceIDLen = 20

// NewSourceID generates a fresh local connection id and stateless reset
// token from the injected random source. No global generator state.
func NewSourceID(rng *rand.Rand) ([]byte, [16]byte) {
	id := make([]byte, SourceIDLen)
	var token [16]byte
	_, _ = rng.Read(id)
	_, _ = rng.Read(token[:])
	return id, token
}
