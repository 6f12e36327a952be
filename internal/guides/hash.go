package guides

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// Hash returns the hex blake3 digest of content.
func Hash(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// HashString is Hash for text.
func HashString(content string) string {
	return Hash([]byte(content))
}
