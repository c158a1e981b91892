// Package util holds small shared helpers with no domain knowledge.
package util

import (
	"crypto/rand"
	"encoding/hex"
)

// RandomHex returns n random bytes, hex encoded.
func RandomHex(n int) string {
	bytes := make([]byte, n)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
