package preview

import (
	"encoding/hex"
	"strconv"
	"unicode/utf8"
)

// Build renders a short human-readable preview of a payload: printable text
// is truncated to max bytes, everything else becomes a hex dump of the first
// bytes with the total size appended.
func Build(data []byte, max int) string {
	if len(data) == 0 {
		return ""
	}
	if max <= 0 {
		max = len(data)
	}
	if isPrintable(data) {
		if len(data) <= max {
			return string(data)
		}
		return string(data[:max]) + "…"
	}
	n := len(data)
	if n > 32 {
		n = 32
	}
	return "0x" + hex.EncodeToString(data[:n]) + " (" + strconv.Itoa(len(data)) + " bytes)"
}

func isPrintable(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	for _, b := range data {
		if b < 0x20 && b != '\n' && b != '\r' && b != '\t' {
			return false
		}
	}
	return true
}
