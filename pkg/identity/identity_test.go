package identity_test

import (
	"testing"

	"github.com/corknet/cork-node/pkg/identity"
	"github.com/corknet/cork-node/pkg/identity/ed25519"
)

func TestSignAndVerify(t *testing.T) {
	kp, err := ed25519.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	payload := []byte("signed payload")
	sig, err := kp.Sign(payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if !identity.Verify(kp.PublicKey(), payload, sig) {
		t.Error("Verify failed for valid signature")
	}
	if identity.Verify(kp.PublicKey(), []byte("tampered"), sig) {
		t.Error("Verify accepted tampered payload")
	}

	other, _ := ed25519.Generate()
	if identity.Verify(other.PublicKey(), payload, sig) {
		t.Error("Verify accepted wrong key")
	}
}

func TestPublicKeyEncoding(t *testing.T) {
	kp, _ := ed25519.Generate()
	pk := kp.PublicKey()

	encoded := identity.EncodePublicKey(pk)
	decoded, err := identity.DecodePublicKey(encoded)
	if err != nil {
		t.Fatalf("DecodePublicKey: %v", err)
	}
	if !identity.Equal(pk, decoded) {
		t.Error("round trip mismatch")
	}
}

func TestDecodePublicKeyBareHex(t *testing.T) {
	kp, _ := ed25519.Generate()
	encoded := identity.EncodePublicKey(kp.PublicKey())

	// Old readers emit bare hex without the algorithm prefix.
	bare := encoded[len("ed25519:"):]
	decoded, err := identity.DecodePublicKey(bare)
	if err != nil {
		t.Fatalf("DecodePublicKey: %v", err)
	}
	if decoded.Algo != identity.AlgEd25519 {
		t.Errorf("Algo = %q, want ed25519", decoded.Algo)
	}
}

func TestDecodePublicKeyInvalid(t *testing.T) {
	for _, s := range []string{"", "ed25519:zz", "   "} {
		if _, err := identity.DecodePublicKey(s); err == nil {
			t.Errorf("DecodePublicKey(%q) succeeded, want error", s)
		}
	}
}

func TestSignatureEncoding(t *testing.T) {
	kp, _ := ed25519.Generate()
	sig, _ := kp.Sign([]byte("x"))

	decoded, err := identity.DecodeSignature(identity.EncodeSignature(sig))
	if err != nil {
		t.Fatalf("DecodeSignature: %v", err)
	}
	if !identity.Verify(kp.PublicKey(), []byte("x"), decoded) {
		t.Error("decoded signature does not verify")
	}
}

func TestFromSeedDeterministic(t *testing.T) {
	kp, _ := ed25519.Generate()
	again, err := ed25519.FromSeed(kp.Seed())
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	if !identity.Equal(kp.PublicKey(), again.PublicKey()) {
		t.Error("FromSeed produced a different key")
	}
}
