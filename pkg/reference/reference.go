// Package reference provides content-addressed references for records.
package reference

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Size is the length of a reference in bytes.
const Size = sha256.Size

// Reference is a 32-byte content address.
type Reference [Size]byte

// ErrInvalidReference indicates a malformed reference encoding.
var ErrInvalidReference = errors.New("invalid reference")

// Compute returns the reference for the given data.
func Compute(data []byte) Reference {
	return sha256.Sum256(data)
}

// Hex returns the lowercase hex encoding of a reference.
func Hex(r Reference) string {
	return hex.EncodeToString(r[:])
}

// FromHex decodes a reference from its hex encoding.
func FromHex(s string) (Reference, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Reference{}, ErrInvalidReference
	}
	if len(raw) != Size {
		return Reference{}, ErrInvalidReference
	}
	var r Reference
	copy(r[:], raw)
	return r, nil
}

// Equal reports whether two references are the same.
func Equal(a, b Reference) bool {
	return a == b
}

// IsZero reports whether r is the zero reference.
func (r Reference) IsZero() bool {
	return r == Reference{}
}
