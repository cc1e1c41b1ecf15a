package signing

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Codec encodes JSON-serializable payloads into opaque signed tokens,
// used for OAuth state parameters and similar round-tripped values.
// The wire format is base64("<json>|<hex-signature>"). The signature is
// hex-only, so the last '|' in the decoded string is always the true
// separator and the payload itself may contain '|' freely.
type Codec struct {
	key []byte
}

// NewCodec creates a Codec bound to the given signing key.
func NewCodec(key []byte) *Codec {
	return &Codec{key: key}
}

// Encode serializes payload as JSON, signs the serialized bytes, and
// returns the opaque token. Payloads must be JSON-representable; cyclic
// structures or function values return an error.
func (c *Codec) Encode(payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sig := Sign(body, c.key)
	return base64.StdEncoding.EncodeToString(append(body, []byte("|"+sig)...)), nil
}

// Decode verifies token and, on success, unmarshals the payload into out
// and reports true. Any failure — malformed base64, missing separator,
// signature mismatch, malformed JSON — reports false and leaves out
// untouched. Decode never returns an error to the caller.
func (c *Codec) Decode(token string, out any) bool {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return false
	}

	idx := strings.LastIndexByte(string(raw), '|')
	if idx < 0 {
		return false
	}
	body, sig := raw[:idx], string(raw[idx+1:])

	if !Verify(body, sig, c.key) {
		return false
	}
	return json.Unmarshal(body, out) == nil
}
