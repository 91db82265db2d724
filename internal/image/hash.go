package image

import (
	"crypto/sha256"
	"encoding/hex"
)

// hashContent returns the hex-encoded SHA-256 digest of b. The digest
// depends only on the bytes, never on filename or declared type, so it is
// a stable dedup key across uploads and process restarts.
func hashContent(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
