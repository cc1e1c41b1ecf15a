// Package signing provides the HMAC-SHA256 primitives that underpin
// signed state tokens and signed upload URLs.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// digestSize is the fixed HMAC-SHA256 output length in bytes. Signatures
// are always 64 hex characters; anything else fails verification.
const digestSize = sha256.Size

// Sign computes the HMAC-SHA256 of message under key and returns the
// digest as lowercase hex.
func Sign(message, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature of message under key and compares it
// against digest in constant time. Malformed hex, a digest of the wrong
// length, or a mismatch all return false; Verify never fails open and
// never panics on attacker-controlled input.
func Verify(message []byte, digest string, key []byte) bool {
	raw, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	// Reject length mismatches before the timing-sensitive comparison.
	// hmac.Equal is constant-time only across equal-length buffers.
	if len(raw) != digestSize {
		return false
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return hmac.Equal(raw, mac.Sum(nil))
}
