// Package identity provides public-key identities for board agents.
//
// Every network participant is identified by an algorithm-tagged public key.
// Keys and signatures travel as "algo:hex" strings so new algorithms can be
// introduced without breaking old readers.
package identity

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"strings"
)

// Algorithm identifies a signing algorithm.
type Algorithm string

// AlgEd25519 is the only algorithm currently issued to board agents.
const AlgEd25519 Algorithm = "ed25519"

// PublicKey is an algorithm-tagged public key.
type PublicKey struct {
	Algo  Algorithm
	Bytes []byte
}

// Signature is an algorithm-tagged signature.
type Signature struct {
	Algo  Algorithm
	Bytes []byte
}

// Signer represents a private key capable of signing.
type Signer interface {
	PublicKey() PublicKey
	Sign(payload []byte) (Signature, error)
	Algorithm() Algorithm
}

// Provider loads or generates a signer for a runtime.
type Provider interface {
	Load(ctx context.Context) (Signer, error)
}

// ProviderFunc adapts a function to a Provider.
type ProviderFunc func(ctx context.Context) (Signer, error)

// Load implements Provider.
func (f ProviderFunc) Load(ctx context.Context) (Signer, error) {
	return f(ctx)
}

var (
	// ErrUnknownAlgorithm indicates an unknown algorithm.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
	// ErrInvalidEncoding indicates an invalid encoded key/signature.
	ErrInvalidEncoding = errors.New("invalid encoding")
)

// Equal reports whether two public keys are the same key.
func Equal(a, b PublicKey) bool {
	if normalizeAlgo(a.Algo) != normalizeAlgo(b.Algo) {
		return false
	}
	if len(a.Bytes) != len(b.Bytes) {
		return false
	}
	for i := range a.Bytes {
		if a.Bytes[i] != b.Bytes[i] {
			return false
		}
	}
	return true
}

func normalizeAlgo(a Algorithm) Algorithm {
	if a == "" {
		return AlgEd25519
	}
	return Algorithm(strings.ToLower(string(a)))
}

// EncodePublicKey encodes a public key as "algo:hex".
func EncodePublicKey(pk PublicKey) string {
	return string(normalizeAlgo(pk.Algo)) + ":" + hex.EncodeToString(pk.Bytes)
}

// DecodePublicKey decodes a public key from "algo:hex".
// A missing algorithm prefix defaults to ed25519 for compatibility.
func DecodePublicKey(s string) (PublicKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PublicKey{}, ErrInvalidEncoding
	}
	algo, hexPart, ok := strings.Cut(s, ":")
	if !ok {
		algo = string(AlgEd25519)
		hexPart = s
	}
	raw, err := hex.DecodeString(hexPart)
	if err != nil {
		return PublicKey{}, ErrInvalidEncoding
	}
	return PublicKey{Algo: normalizeAlgo(Algorithm(algo)), Bytes: raw}, nil
}

// EncodeSignature encodes a signature as "algo:hex".
func EncodeSignature(sig Signature) string {
	return string(normalizeAlgo(sig.Algo)) + ":" + hex.EncodeToString(sig.Bytes)
}

// DecodeSignature decodes a signature from "algo:hex".
func DecodeSignature(s string) (Signature, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Signature{}, ErrInvalidEncoding
	}
	algo, hexPart, ok := strings.Cut(s, ":")
	if !ok {
		algo = string(AlgEd25519)
		hexPart = s
	}
	raw, err := hex.DecodeString(hexPart)
	if err != nil {
		return Signature{}, ErrInvalidEncoding
	}
	return Signature{Algo: normalizeAlgo(Algorithm(algo)), Bytes: raw}, nil
}

// Verify checks a signature over the given payload.
func Verify(pub PublicKey, payload []byte, sig Signature) bool {
	algo := normalizeAlgo(pub.Algo)
	if sig.Algo != "" && normalizeAlgo(sig.Algo) != algo {
		return false
	}

	switch algo {
	case AlgEd25519:
		if len(pub.Bytes) != ed25519.PublicKeySize {
			return false
		}
		return ed25519.Verify(pub.Bytes, payload, sig.Bytes)
	default:
		return false
	}
}
