// Package signedurl issues and verifies time-limited signed URLs for
// protected uploaded files. A token binds the resource path and an
// absolute expiry instant under one signature, so tampering with either
// field invalidates the whole token.
package signedurl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tixgate/tixgate/internal/signing"
)

// DefaultTTL is the link lifetime used when the caller does not specify one.
const DefaultTTL = 5 * time.Minute

var (
	// ErrExpired indicates the token was valid but its expiry instant has
	// passed. Surfaced separately from ErrInvalidSignature so clients can
	// be prompted to request a fresh link.
	ErrExpired = errors.New("signed url expired")

	// ErrInvalidSignature indicates a missing, malformed, or mismatched
	// signature, or a non-numeric expiry.
	ErrInvalidSignature = errors.New("signed url signature invalid")
)

// Signer mints and checks signed URL tokens for one signing key.
// The zero value is not usable; construct with New.
type Signer struct {
	key []byte
	now func() time.Time
}

// New creates a Signer for the given upload-signing key.
func New(key []byte) *Signer {
	return &Signer{key: key, now: time.Now}
}

// NewAt creates a Signer with an injected clock, for tests.
func NewAt(key []byte, now func() time.Time) *Signer {
	return &Signer{key: key, now: now}
}

// message builds the signed payload. Expiry is epoch milliseconds; both
// fields are covered by one signature.
func message(filePath string, expiresMs int64) []byte {
	return []byte(filePath + ":" + strconv.FormatInt(expiresMs, 10))
}

// Issue returns the query fragment granting access to filePath until
// now+ttl, in the form "?expires=<epoch-ms>&signature=<hex>". filePath is
// the resource-relative path with no query component; callers compose the
// full URL as base + "/uploads/" + filePath + fragment.
func (s *Signer) Issue(filePath string, ttl time.Duration) string {
	expires := s.now().Add(ttl).UnixMilli()
	sig := signing.Sign(message(filePath, expires), s.key)
	return fmt.Sprintf("?expires=%d&signature=%s", expires, sig)
}

// Verify checks a presented (filePath, expires, signature) triple.
// It returns nil only when the expiry parses, has not passed, and the
// signature matches recomputation over the exact pair presented.
// Expiry is strict: a token is not valid after its boundary instant.
func (s *Signer) Verify(filePath, expires, signature string) error {
	expiresMs, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if s.now().UnixMilli() > expiresMs {
		return ErrExpired
	}
	if !signing.Verify(message(filePath, expiresMs), signature, s.key) {
		return ErrInvalidSignature
	}
	return nil
}

// Protected reports whether filePath falls under one of the configured
// protected directory segments (e.g. "payment-proofs"). Paths outside
// every protected segment are public and bypass signature checks.
func Protected(filePath string, segments []string) bool {
	for _, part := range strings.Split(filePath, "/") {
		for _, seg := range segments {
			if part == seg {
				return true
			}
		}
	}
	return false
}
